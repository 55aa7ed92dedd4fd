package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/afklabs/afkmon/internal/server"
)

var flagServeAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the collector backend",
	Long: `Run the collector backend that daemons submit sessions to. Requires a
PostgreSQL database; the connection string is read from the DATABASE_URL
environment variable (a .env file in the working directory is honored).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger(os.Stderr)

		// Optional; absence just means the environment is already set.
		godotenv.Load()

		dsn := os.Getenv("DATABASE_URL")
		if dsn == "" {
			return fmt.Errorf("DATABASE_URL is not set")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := server.NewPostgresStore(ctx, dsn)
		if err != nil {
			return err
		}
		defer store.Close()

		srv := &http.Server{
			Addr:    flagServeAddr,
			Handler: server.New(logger, store).Router(),
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("collector listening", slog.String("addr", flagServeAddr))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case <-ctx.Done():
		case err := <-errCh:
			return err
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagServeAddr, "addr", ":8000", "listen address")
	rootCmd.AddCommand(serveCmd)
}
