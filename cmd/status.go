package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/afklabs/afkmon/internal/monitor"
	"github.com/afklabs/afkmon/internal/tui"
)

var flagWatch bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon's current tracking status",
	RunE: func(cmd *cobra.Command, args []string) error {
		fetch := func(ctx context.Context) (monitor.Status, error) {
			return fetchStatus(ctx, cfg.ListenAddr)
		}

		if flagWatch {
			if !term.IsTerminal(os.Stdout.Fd()) {
				return fmt.Errorf("--watch requires an interactive terminal")
			}
			return tui.Run(fetch)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
		defer cancel()

		st, err := fetch(ctx)
		if err != nil {
			return fmt.Errorf("daemon not reachable at %s (is 'afkmon start' running?): %w", cfg.ListenAddr, err)
		}

		cmd.Printf("Enabled: %v\n", st.Enabled)
		cmd.Printf("Monitoring: %v\n", st.Monitoring)
		if st.Connected {
			cmd.Printf("Collector: connected (%s)\n", st.ServerURL)
		} else {
			cmd.Printf("Collector: %s (%s)\n", st.ConnectionMessage, st.ServerURL)
		}
		cmd.Printf("Pending sessions: %d\n", st.PendingCount)

		if st.CurrentSession == nil {
			cmd.Println("No active session")
			return nil
		}
		s := st.CurrentSession
		cmd.Printf("Tracking: %s (%s)\n", s.FileName, s.ProjectName)
		cmd.Printf("Elapsed: %s\n", monitor.FormatDuration(st.SessionSeconds))
		cmd.Printf("Edits: %d\n", s.TotalEdits)
		cmd.Printf("Lines: +%d -%d ~%d\n", s.LinesAdded, s.LinesDeleted, s.LinesModified)
		return nil
	},
}

// fetchStatus queries the daemon's local status endpoint.
func fetchStatus(ctx context.Context, listenAddr string) (monitor.Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+listenAddr+"/status", nil)
	if err != nil {
		return monitor.Status{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return monitor.Status{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return monitor.Status{}, fmt.Errorf("daemon returned %s", resp.Status)
	}

	var st monitor.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return monitor.Status{}, fmt.Errorf("decoding status: %w", err)
	}
	return st, nil
}

func init() {
	statusCmd.Flags().BoolVarP(&flagWatch, "watch", "w", false, "live-updating status view")
	rootCmd.AddCommand(statusCmd)
}
