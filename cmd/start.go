package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/afklabs/afkmon/internal/api"
	"github.com/afklabs/afkmon/internal/config"
	"github.com/afklabs/afkmon/internal/editor"
	"github.com/afklabs/afkmon/internal/monitor"
	"github.com/afklabs/afkmon/internal/session"
	"github.com/afklabs/afkmon/internal/system"
	"github.com/afklabs/afkmon/internal/tracker"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the tracking daemon",
	Long: `Run the tracking daemon. Editor plugins connect to ws://<listen_addr>/events
and stream focus and edit events; completed sessions are submitted to the
configured collector.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger(os.Stderr)

		queuePath, err := pendingQueuePath()
		if err != nil {
			return err
		}
		queue, err := session.NewPendingQueue(queuePath, 0)
		if err != nil {
			return err
		}

		client := api.NewClient(logger, cfg.ServerURL)
		tr := tracker.New(logger, system.Info(""))
		mon := monitor.New(logger, cfg, tr, client, queue)
		defer mon.Close()

		bridge := editor.NewBridge(logger, tr.HandleEvent, func(app string) {
			tr.SetSystemInfo(system.Info(app))
		})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go bridge.Run(ctx)

		// Config edits apply live; the daemon does not need a restart.
		go func() {
			err := config.Watch(ctx, cfgPath, func(c config.Config) {
				logger.Info("configuration changed", slog.Bool("enabled", c.Enabled), slog.String("server", c.ServerURL))
				mon.ApplyConfig(ctx, c)
			})
			if err != nil {
				logger.Warn("config watch unavailable", slog.String("error", err.Error()))
			}
		}()

		r := mux.NewRouter()
		r.Handle("/events", bridge.Handler())
		r.HandleFunc("/status", func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(mon.Status(req.Context()))
		}).Methods(http.MethodGet)

		srv := &http.Server{Addr: cfg.ListenAddr, Handler: r}
		errCh := make(chan error, 1)
		go func() {
			logger.Info("daemon listening", slog.String("addr", cfg.ListenAddr))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		// The collector may be down at boot; keep accepting events and let a
		// later config change or restart bring monitoring up.
		if err := mon.Initialize(ctx); err != nil {
			logger.Warn("monitoring not started", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
		case err := <-errCh:
			return err
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		mon.StopMonitoring()
		mon.Flush()
		return nil
	},
}

// pendingQueuePath returns the pending-session store location:
// $XDG_DATA_HOME/afkmon/pending.json or ~/.local/share/afkmon/pending.json.
func pendingQueuePath() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	dir := filepath.Join(base, "afkmon")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, "pending.json"), nil
}

func init() {
	rootCmd.AddCommand(startCmd)
}
