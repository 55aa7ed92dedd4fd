// Package tracker owns the single-active-session state machine: it consumes
// raw editor events and emits completed session records.
package tracker

import (
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/afklabs/afkmon/internal/editor"
	"github.com/afklabs/afkmon/internal/session"
)

// minSessionSeconds is the shortest session worth reporting; anything shorter
// is discarded at close without notifying subscribers.
const minSessionSeconds = 5

// Tracker converts the raw editor event stream into discrete file sessions.
// It is in one of two states: idle (no open session) or tracking (exactly one
// open session). Events are expected to arrive serialized (the bridge
// dispatches from a single goroutine); the mutex exists because status reads
// come from other goroutines.
type Tracker struct {
	// Now returns the current time. Overridden in tests to control durations.
	Now func() time.Time

	logger *slog.Logger

	mu          sync.Mutex
	monitoring  bool
	current     *session.FileSession
	lastContent string // full document snapshot before the next edit
	activeDoc   *editor.Document
	sysInfo     session.SystemInfo

	listeners  map[int]func(session.Record)
	nextListen int
	completed  []session.Record // records pending fan-out, drained outside the lock
}

// New returns an idle tracker that stamps records with info.
func New(logger *slog.Logger, info session.SystemInfo) *Tracker {
	return &Tracker{
		Now:       time.Now,
		logger:    logger.With(slog.String("component", "tracker")),
		sysInfo:   info,
		listeners: make(map[int]func(session.Record)),
	}
}

// SetSystemInfo replaces the system info stamped onto subsequent records.
// Called when an editor plugin connects and identifies itself.
func (t *Tracker) SetSystemInfo(info session.SystemInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sysInfo = info
}

// OnSessionComplete registers fn to receive every completed session record.
// The returned cancel func removes the registration.
func (t *Tracker) OnSessionComplete(fn func(session.Record)) (cancel func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextListen
	t.nextListen++
	t.listeners[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.listeners, id)
	}
}

// StartMonitoring enables session tracking. If a file-scheme document is
// already focused, a session opens for it immediately. Calling it while
// already monitoring is a no-op.
func (t *Tracker) StartMonitoring() {
	t.mu.Lock()
	if !t.monitoring {
		t.monitoring = true
		if t.activeDoc.IsFile() {
			t.startSessionLocked(t.activeDoc)
		}
		t.logger.Info("started monitoring file sessions")
	}
	t.mu.Unlock()
	t.flush()
}

// StopMonitoring closes any open session and disables tracking. Calling it
// while already idle is a no-op.
func (t *Tracker) StopMonitoring() {
	t.mu.Lock()
	if t.monitoring {
		t.monitoring = false
		t.endSessionLocked()
		t.logger.Info("stopped monitoring file sessions")
	}
	t.mu.Unlock()
	t.flush()
}

// Monitoring reports whether tracking is enabled.
func (t *Tracker) Monitoring() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.monitoring
}

// CurrentSession returns a snapshot of the open session, if any.
func (t *Tracker) CurrentSession() (session.FileSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return session.FileSession{}, false
	}
	return *t.current, true
}

// HandleEvent applies one editor event to the state machine. Events that do
// not concern the current session are ignored.
func (t *Tracker) HandleEvent(ev editor.Event) {
	t.mu.Lock()

	switch ev.Kind {
	case editor.KindEditorChanged:
		t.activeDoc = ev.Document
		if t.monitoring {
			// Close-before-open: this also applies when refocusing the
			// same file, so session boundaries stay per activation.
			t.endSessionLocked()
			if ev.Document.IsFile() {
				t.startSessionLocked(ev.Document)
			}
		}

	case editor.KindTextChanged:
		if ev.Document != nil && t.activeDoc != nil && ev.Document.URI == t.activeDoc.URI {
			t.activeDoc = ev.Document
		}
		if t.monitoring && t.current != nil && ev.Document != nil && ev.Document.URI == t.current.FilePath {
			t.applyEditLocked(ev)
		}

	case editor.KindWindowFocus:
		if ev.Document != nil {
			t.activeDoc = ev.Document
		}
		if t.monitoring {
			if !ev.Focused {
				t.endSessionLocked()
			} else if t.current == nil && t.activeDoc.IsFile() {
				t.startSessionLocked(t.activeDoc)
			}
		}

	case editor.KindDocumentSaved:
		if t.monitoring && t.current != nil && ev.Document != nil && ev.Document.URI == t.current.FilePath {
			t.logger.Debug("file saved", slog.String("file", t.current.FileName))
		}
	}

	t.mu.Unlock()
	t.flush()
}

// startSessionLocked opens a session for doc. Caller must hold t.mu and must
// have closed any previous session first.
func (t *Tracker) startSessionLocked(doc *editor.Document) {
	projectPath := doc.WorkspaceFolder
	projectName := "Unknown"
	if projectPath != "" {
		projectName = filepath.Base(projectPath)
	}

	t.current = &session.FileSession{
		ID:               uuid.NewString(),
		FilePath:         doc.URI,
		FileName:         filepath.Base(doc.Path),
		FileExtension:    strings.TrimPrefix(filepath.Ext(doc.Path), "."),
		Language:         doc.LanguageID,
		ProjectName:      projectName,
		ProjectPath:      projectPath,
		SessionStartTime: t.Now(),
		IsActive:         true,
	}
	t.lastContent = doc.Text

	t.logger.Info("session started",
		slog.String("file", t.current.FileName),
		slog.String("language", t.current.Language))
}

// endSessionLocked closes the open session, computing its final duration.
// Sessions shorter than minSessionSeconds are dropped; the rest are queued
// for fan-out. A no-op when idle.
func (t *Tracker) endSessionLocked() {
	if t.current == nil {
		return
	}

	now := t.Now()
	t.current.SessionEndTime = &now
	t.current.TotalDuration = int(now.Sub(t.current.SessionStartTime).Seconds())
	t.current.IsActive = false

	if t.current.TotalDuration >= minSessionSeconds {
		t.logger.Info("session completed",
			slog.String("file", t.current.FileName),
			slog.Int("duration", t.current.TotalDuration),
			slog.Int("edits", t.current.TotalEdits))
		t.completed = append(t.completed, session.Record{
			Session:    *t.current,
			SystemInfo: t.sysInfo,
		})
	}

	t.current = nil
	t.lastContent = ""
}

// applyEditLocked folds one edit event into the current session's counters.
// The whole event counts as one edit; each change record is classified
// independently.
func (t *Tracker) applyEditLocked(ev editor.Event) {
	t.current.TotalEdits++

	for _, ch := range ev.Changes {
		deleted := sliceSnapshot(t.lastContent, ch.Offset, ch.Length)
		inserted := ch.Text

		// A "line" is a line break contained in the span; single-line
		// edits contribute zero lines on purpose.
		deletedLines := strings.Count(deleted, "\n")
		insertedLines := strings.Count(inserted, "\n")
		deletedChars := len(deleted)
		insertedChars := len(inserted)

		switch {
		case deletedChars == 0 && insertedChars > 0:
			t.current.LinesAdded += insertedLines
			t.current.CharactersAdded += insertedChars
		case insertedChars == 0 && deletedChars > 0:
			t.current.LinesDeleted += deletedLines
			t.current.CharactersDeleted += deletedChars
		case deletedChars > 0 && insertedChars > 0:
			t.current.LinesModified += max(deletedLines, insertedLines)
			t.current.CharactersModified += max(deletedChars, insertedChars)
		}
	}

	// Refresh the snapshot to the post-edit document. O(document size) per
	// edit, acceptable for a one-file-at-a-time tracker.
	t.lastContent = ev.Document.Text
}

// sliceSnapshot returns snapshot[offset:offset+length], clamped to bounds so
// a change record from a stale or inconsistent plugin cannot panic the daemon.
func sliceSnapshot(snapshot string, offset, length int) string {
	if offset < 0 || length <= 0 || offset >= len(snapshot) {
		return ""
	}
	end := offset + length
	if end > len(snapshot) {
		end = len(snapshot)
	}
	return snapshot[offset:end]
}

// flush delivers queued completed records to all listeners, outside the lock
// so listeners may query the tracker.
func (t *Tracker) flush() {
	t.mu.Lock()
	records := t.completed
	t.completed = nil
	fns := make([]func(session.Record), 0, len(t.listeners))
	for _, fn := range t.listeners {
		fns = append(fns, fn)
	}
	t.mu.Unlock()

	for _, r := range records {
		for _, fn := range fns {
			fn(r)
		}
	}
}
