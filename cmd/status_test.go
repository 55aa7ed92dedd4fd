package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/afklabs/afkmon/internal/monitor"
	"github.com/afklabs/afkmon/internal/session"
)

// fakeDaemon serves a canned /status response on a loopback port and returns
// the host:port the status command should be pointed at.
func fakeDaemon(t *testing.T, st monitor.Status) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(st)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

// pointConfigAt writes a config file whose listen_addr targets addr.
func pointConfigAt(t *testing.T, addr string) {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)

	dir := filepath.Join(tmp, "afkmon")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	body := `{"listen_addr": "` + addr + `"}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestStatusIdle(t *testing.T) {
	addr := fakeDaemon(t, monitor.Status{
		Enabled:    true,
		Monitoring: true,
		Connected:  true,
		ServerURL:  "http://localhost:8000",
	})
	pointConfigAt(t, addr)

	out, err := executeCommand(rootCmd, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "Monitoring: true") {
		t.Errorf("output missing monitoring state:\n%s", out)
	}
	if !strings.Contains(out, "No active session") {
		t.Errorf("output missing idle notice:\n%s", out)
	}
}

func TestStatusWithOpenSession(t *testing.T) {
	addr := fakeDaemon(t, monitor.Status{
		Enabled:    true,
		Monitoring: true,
		Connected:  true,
		ServerURL:  "http://localhost:8000",
		CurrentSession: &session.FileSession{
			FileName:         "main.go",
			ProjectName:      "afkmon",
			SessionStartTime: time.Now(),
			TotalEdits:       7,
			LinesAdded:       3,
		},
		SessionSeconds: 125,
	})
	pointConfigAt(t, addr)

	out, err := executeCommand(rootCmd, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "Tracking: main.go (afkmon)") {
		t.Errorf("output missing session line:\n%s", out)
	}
	if !strings.Contains(out, "Elapsed: 2m 5s") {
		t.Errorf("output missing elapsed time:\n%s", out)
	}
	if !strings.Contains(out, "Edits: 7") {
		t.Errorf("output missing edit count:\n%s", out)
	}
}

func TestStatusDaemonDown(t *testing.T) {
	// A port from a server we already closed: connection refused.
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	addr := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()
	pointConfigAt(t, addr)

	_, err := executeCommand(rootCmd, "status")
	if err == nil || !strings.Contains(err.Error(), "daemon not reachable") {
		t.Errorf("err = %v, want daemon not reachable", err)
	}
}
