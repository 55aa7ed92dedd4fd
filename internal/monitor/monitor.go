// Package monitor wires the tracker, submission client and configuration
// together and keeps the pending-submission bookkeeping.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/afklabs/afkmon/internal/api"
	"github.com/afklabs/afkmon/internal/config"
	"github.com/afklabs/afkmon/internal/session"
	"github.com/afklabs/afkmon/internal/tracker"
)

// Status is a point-in-time snapshot for display, combining tracker state,
// pending bookkeeping and a fresh connectivity probe.
type Status struct {
	Enabled           bool                 `json:"enabled"`
	Monitoring        bool                 `json:"monitoring"`
	ServerURL         string               `json:"serverUrl"`
	PendingCount      int                  `json:"pendingCount"`
	Connected         bool                 `json:"connected"`
	ConnectionMessage string               `json:"connectionMessage"`
	CurrentSession    *session.FileSession `json:"currentSession,omitempty"`
	// SessionSeconds is the open session's live duration.
	SessionSeconds int `json:"sessionSeconds,omitempty"`
}

// Monitor coordinates the tracking lifecycle. Completed sessions are appended
// to the pending queue and sent once, immediately and asynchronously; a failed
// send leaves the record in the queue and nothing retries it.
type Monitor struct {
	logger  *slog.Logger
	tracker *tracker.Tracker
	client  *api.Client
	queue   *session.PendingQueue

	mu  sync.Mutex
	cfg config.Config

	inflight       sync.WaitGroup
	cancelComplete func()
}

// New wires a monitor to its collaborators and subscribes to session
// completions. Call Close to unsubscribe and drain in-flight submissions.
func New(logger *slog.Logger, cfg config.Config, tr *tracker.Tracker, client *api.Client, queue *session.PendingQueue) *Monitor {
	m := &Monitor{
		logger:  logger.With(slog.String("component", "monitor")),
		tracker: tr,
		client:  client,
		queue:   queue,
		cfg:     cfg,
	}
	m.cancelComplete = tr.OnSessionComplete(m.handleSessionComplete)
	return m
}

// Initialize starts monitoring when the configuration enables it.
func (m *Monitor) Initialize(ctx context.Context) error {
	if !m.Config().Enabled {
		m.logger.Info("monitoring disabled in configuration")
		return nil
	}
	return m.StartMonitoring(ctx)
}

// StartMonitoring probes the collector and, only on success, starts the
// tracker. A failed probe is surfaced and nothing starts (fail-closed).
func (m *Monitor) StartMonitoring(ctx context.Context) error {
	probe := m.client.TestConnection(ctx)
	if !probe.Success {
		m.logger.Warn("server connection failed, not starting", slog.String("message", probe.Message))
		return fmt.Errorf("server connection failed: %s", probe.Message)
	}

	m.tracker.StartMonitoring()
	return nil
}

// StopMonitoring stops the tracker, closing any open session.
func (m *Monitor) StopMonitoring() {
	m.tracker.StopMonitoring()
}

// Close unsubscribes from the tracker and waits for in-flight submissions.
func (m *Monitor) Close() {
	m.cancelComplete()
	m.inflight.Wait()
}

// Flush blocks until all in-flight submissions have settled.
func (m *Monitor) Flush() {
	m.inflight.Wait()
}

// Config returns the currently applied configuration.
func (m *Monitor) Config() config.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// ApplyConfig applies a configuration change live: the collector URL
// propagates immediately; toggling enabled off while tracking stops it, and
// toggling it on while idle starts it.
func (m *Monitor) ApplyConfig(ctx context.Context, cfg config.Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()

	m.client.UpdateURL(cfg.ServerURL)

	_, open := m.tracker.CurrentSession()
	switch {
	case cfg.Enabled && !open:
		if err := m.StartMonitoring(ctx); err != nil {
			m.logger.Warn("could not start after config change", slog.String("error", err.Error()))
		}
	case !cfg.Enabled && open:
		m.StopMonitoring()
	}
}

// Status composes the display snapshot, including a fresh connectivity probe.
func (m *Monitor) Status(ctx context.Context) Status {
	cfg := m.Config()
	probe := m.client.TestConnection(ctx)

	st := Status{
		Enabled:           cfg.Enabled,
		Monitoring:        m.tracker.Monitoring(),
		ServerURL:         m.client.URL(),
		PendingCount:      m.queue.Len(),
		Connected:         probe.Success,
		ConnectionMessage: probe.Message,
	}
	if s, ok := m.tracker.CurrentSession(); ok {
		st.CurrentSession = &s
		st.SessionSeconds = int(time.Since(s.SessionStartTime).Seconds())
	}
	return st
}

// handleSessionComplete records the completed session as pending and attempts
// one immediate send. Success removes it from the queue; failure leaves it
// there for visibility, with no automatic retry.
func (m *Monitor) handleSessionComplete(rec session.Record) {
	if err := m.queue.Append(rec); err != nil {
		m.logger.Error("could not persist pending session", slog.String("error", err.Error()))
	}

	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()

		res := m.client.SendSession(context.Background(), rec)
		if res.Success {
			if err := m.queue.Remove(rec.Session.ID); err != nil {
				m.logger.Error("could not update pending queue", slog.String("error", err.Error()))
			}
			return
		}
		m.logger.Warn("session send failed, kept in pending queue",
			slog.String("session", rec.Session.ID),
			slog.String("error", res.Err))
	}()
}

// FormatDuration renders a second count as "1h 2m 3s", omitting leading zero
// units.
func FormatDuration(seconds int) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, secs)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}
