package tracker_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/afklabs/afkmon/internal/editor"
	"github.com/afklabs/afkmon/internal/session"
	"github.com/afklabs/afkmon/internal/tracker"
)

// fakeClock lets tests advance time between events.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker() (*tracker.Tracker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	tr := tracker.New(
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		session.SystemInfo{Editor: "vscode", Platform: "linux"},
	)
	tr.Now = clk.now
	return tr, clk
}

func doc(uri, text string) *editor.Document {
	return &editor.Document{
		URI:             uri,
		Path:            "/" + uri[len("file:///"):],
		LanguageID:      "go",
		WorkspaceFolder: "/home/dev/proj",
		Text:            text,
	}
}

func focusEvent(d *editor.Document) editor.Event {
	return editor.Event{Kind: editor.KindEditorChanged, Document: d}
}

func editEvent(d *editor.Document, changes ...editor.ContentChange) editor.Event {
	return editor.Event{Kind: editor.KindTextChanged, Document: d, Changes: changes}
}

// collect registers a completion listener that appends to the returned slice.
func collect(tr *tracker.Tracker) *[]session.Record {
	var got []session.Record
	tr.OnSessionComplete(func(r session.Record) { got = append(got, r) })
	return &got
}

func TestStartMonitoringOpensSessionForFocusedFile(t *testing.T) {
	tr, _ := newTestTracker()

	tr.HandleEvent(focusEvent(doc("file:///home/dev/proj/main.go", "package main")))
	if _, ok := tr.CurrentSession(); ok {
		t.Fatal("session open before monitoring started")
	}

	tr.StartMonitoring()
	s, ok := tr.CurrentSession()
	if !ok {
		t.Fatal("no session after StartMonitoring with focused file")
	}
	if s.FileName != "main.go" || s.FileExtension != "go" || s.Language != "go" {
		t.Errorf("derived fields = %q/%q/%q", s.FileName, s.FileExtension, s.Language)
	}
	if s.ProjectName != "proj" || s.ProjectPath != "/home/dev/proj" {
		t.Errorf("project = %q at %q, want proj at /home/dev/proj", s.ProjectName, s.ProjectPath)
	}
	if !s.IsActive {
		t.Error("open session not marked active")
	}
}

func TestSessionOutsideWorkspaceUsesSentinel(t *testing.T) {
	tr, _ := newTestTracker()
	tr.StartMonitoring()

	d := doc("file:///tmp/scratch.py", "")
	d.WorkspaceFolder = ""
	d.LanguageID = "python"
	tr.HandleEvent(focusEvent(d))

	s, ok := tr.CurrentSession()
	if !ok {
		t.Fatal("no session")
	}
	if s.ProjectName != "Unknown" || s.ProjectPath != "" {
		t.Errorf("project = %q at %q, want Unknown with empty path", s.ProjectName, s.ProjectPath)
	}
}

func TestNonFileSchemeNotTracked(t *testing.T) {
	tr, _ := newTestTracker()
	tr.StartMonitoring()

	tr.HandleEvent(focusEvent(&editor.Document{URI: "untitled:Untitled-1", Text: ""}))
	if _, ok := tr.CurrentSession(); ok {
		t.Fatal("session opened for non-file scheme")
	}
}

func TestPureInsertionCounts(t *testing.T) {
	tr, _ := newTestTracker()
	tr.StartMonitoring()
	d := doc("file:///home/dev/proj/a.go", "")
	tr.HandleEvent(focusEvent(d))

	after := doc(d.URI, "foo\nbar")
	tr.HandleEvent(editEvent(after, editor.ContentChange{Offset: 0, Length: 0, Text: "foo\nbar"}))

	s, _ := tr.CurrentSession()
	if s.LinesAdded != 1 || s.CharactersAdded != 7 {
		t.Errorf("added = %d lines / %d chars, want 1/7", s.LinesAdded, s.CharactersAdded)
	}
	if s.LinesDeleted+s.CharactersDeleted+s.LinesModified+s.CharactersModified != 0 {
		t.Error("deletion/modification counters changed on pure insertion")
	}
	if s.TotalEdits != 1 {
		t.Errorf("TotalEdits = %d, want 1", s.TotalEdits)
	}
}

func TestPureDeletionCounts(t *testing.T) {
	tr, _ := newTestTracker()
	tr.StartMonitoring()
	d := doc("file:///home/dev/proj/a.go", "0123456789rest")
	tr.HandleEvent(focusEvent(d))

	after := doc(d.URI, "rest")
	tr.HandleEvent(editEvent(after, editor.ContentChange{Offset: 0, Length: 10, Text: ""}))

	s, _ := tr.CurrentSession()
	if s.LinesDeleted != 0 || s.CharactersDeleted != 10 {
		t.Errorf("deleted = %d lines / %d chars, want 0/10", s.LinesDeleted, s.CharactersDeleted)
	}
	if s.LinesAdded+s.CharactersAdded+s.LinesModified+s.CharactersModified != 0 {
		t.Error("addition/modification counters changed on pure deletion")
	}
}

func TestReplacementUsesMaxRule(t *testing.T) {
	tr, _ := newTestTracker()
	tr.StartMonitoring()
	d := doc("file:///home/dev/proj/a.go", "abcdefgh")
	tr.HandleEvent(focusEvent(d))

	// Replace 5 chars / 0 line breaks with 12 chars / 1 line break.
	inserted := "hello\nworld!"
	after := doc(d.URI, inserted+"fgh")
	tr.HandleEvent(editEvent(after, editor.ContentChange{Offset: 0, Length: 5, Text: inserted}))

	s, _ := tr.CurrentSession()
	if s.LinesModified != 1 || s.CharactersModified != 12 {
		t.Errorf("modified = %d lines / %d chars, want 1/12", s.LinesModified, s.CharactersModified)
	}
	if s.LinesAdded+s.CharactersAdded+s.LinesDeleted+s.CharactersDeleted != 0 {
		t.Error("addition/deletion counters changed on replacement")
	}
}

func TestEmptyChangeNotClassified(t *testing.T) {
	tr, _ := newTestTracker()
	tr.StartMonitoring()
	d := doc("file:///home/dev/proj/a.go", "abc")
	tr.HandleEvent(focusEvent(d))

	tr.HandleEvent(editEvent(doc(d.URI, "abc"), editor.ContentChange{Offset: 1, Length: 0, Text: ""}))

	s, _ := tr.CurrentSession()
	if s.TotalEdits != 1 {
		t.Errorf("TotalEdits = %d, want 1 (event still counts)", s.TotalEdits)
	}
	sum := s.LinesAdded + s.LinesDeleted + s.LinesModified +
		s.CharactersAdded + s.CharactersDeleted + s.CharactersModified
	if sum != 0 {
		t.Errorf("counters changed by a no-op change record: %+v", s)
	}
}

func TestMultipleChangeRecordsOneEdit(t *testing.T) {
	tr, _ := newTestTracker()
	tr.StartMonitoring()
	d := doc("file:///home/dev/proj/a.go", "aaabbb")
	tr.HandleEvent(focusEvent(d))

	// One event, two change records: an insertion and a deletion.
	tr.HandleEvent(editEvent(doc(d.URI, "Xaaa"),
		editor.ContentChange{Offset: 0, Length: 0, Text: "X"},
		editor.ContentChange{Offset: 3, Length: 3, Text: ""},
	))

	s, _ := tr.CurrentSession()
	if s.TotalEdits != 1 {
		t.Errorf("TotalEdits = %d, want 1", s.TotalEdits)
	}
	if s.CharactersAdded != 1 || s.CharactersDeleted != 3 {
		t.Errorf("chars = +%d/-%d, want +1/-3", s.CharactersAdded, s.CharactersDeleted)
	}
}

func TestEditForWrongFileIgnored(t *testing.T) {
	tr, _ := newTestTracker()
	tr.StartMonitoring()
	tr.HandleEvent(focusEvent(doc("file:///home/dev/proj/a.go", "aaa")))

	tr.HandleEvent(editEvent(doc("file:///home/dev/proj/b.go", "bbbX"),
		editor.ContentChange{Offset: 3, Length: 0, Text: "X"}))

	s, _ := tr.CurrentSession()
	if s.TotalEdits != 0 {
		t.Errorf("TotalEdits = %d after edit to another file, want 0", s.TotalEdits)
	}
}

func TestShortSessionDropped(t *testing.T) {
	tr, clk := newTestTracker()
	got := collect(tr)
	tr.StartMonitoring()
	tr.HandleEvent(focusEvent(doc("file:///home/dev/proj/a.go", "")))

	clk.advance(4 * time.Second)
	tr.StopMonitoring()

	if len(*got) != 0 {
		t.Fatalf("4-second session was emitted: %+v", (*got)[0].Session)
	}
}

func TestFiveSecondSessionEmitted(t *testing.T) {
	tr, clk := newTestTracker()
	got := collect(tr)
	tr.StartMonitoring()
	tr.HandleEvent(focusEvent(doc("file:///home/dev/proj/a.go", "")))

	clk.advance(5 * time.Second)
	tr.StopMonitoring()

	if len(*got) != 1 {
		t.Fatalf("emitted %d records, want 1", len(*got))
	}
	if (*got)[0].Session.TotalDuration != 5 {
		t.Errorf("TotalDuration = %d, want 5", (*got)[0].Session.TotalDuration)
	}
}

func TestEndToEndRefocusEmitsOneRecord(t *testing.T) {
	tr, clk := newTestTracker()
	got := collect(tr)
	tr.StartMonitoring()

	a := doc("file:///home/dev/proj/a.go", "")
	tr.HandleEvent(focusEvent(a))

	// Three edit events on A.
	content := ""
	for i := 0; i < 3; i++ {
		content += "x"
		tr.HandleEvent(editEvent(doc(a.URI, content),
			editor.ContentChange{Offset: i, Length: 0, Text: "x"}))
	}

	clk.advance(6 * time.Second)
	tr.HandleEvent(focusEvent(doc("file:///home/dev/proj/b.go", "")))

	if len(*got) != 1 {
		t.Fatalf("emitted %d records, want exactly 1", len(*got))
	}
	rec := (*got)[0].Session
	if rec.FileName != "a.go" {
		t.Errorf("FileName = %q, want a.go", rec.FileName)
	}
	if rec.TotalEdits != 3 {
		t.Errorf("TotalEdits = %d, want 3", rec.TotalEdits)
	}
	if rec.TotalDuration != 6 {
		t.Errorf("TotalDuration = %d, want 6", rec.TotalDuration)
	}
	if rec.IsActive {
		t.Error("completed session still marked active")
	}
	if rec.SessionEndTime == nil {
		t.Error("completed session has no end time")
	}

	// The new session for B is open.
	s, ok := tr.CurrentSession()
	if !ok || s.FileName != "b.go" {
		t.Errorf("current session = %+v, want open session for b.go", s)
	}
}

func TestRefocusSameFileClosesAndReopens(t *testing.T) {
	tr, clk := newTestTracker()
	got := collect(tr)
	tr.StartMonitoring()

	a := doc("file:///home/dev/proj/a.go", "")
	tr.HandleEvent(focusEvent(a))
	first, _ := tr.CurrentSession()

	clk.advance(10 * time.Second)
	// Same file regains focus: boundaries are per activation, not merged.
	tr.HandleEvent(focusEvent(a))

	if len(*got) != 1 {
		t.Fatalf("emitted %d records on same-file refocus, want 1", len(*got))
	}
	second, ok := tr.CurrentSession()
	if !ok {
		t.Fatal("no session after refocus")
	}
	if second.ID == first.ID {
		t.Error("refocus reused the previous session instead of opening a new one")
	}
	if second.TotalEdits != 0 {
		t.Errorf("new session inherited %d edits", second.TotalEdits)
	}
}

func TestWindowFocusTransitions(t *testing.T) {
	tr, clk := newTestTracker()
	got := collect(tr)
	tr.StartMonitoring()

	a := doc("file:///home/dev/proj/a.go", "")
	tr.HandleEvent(focusEvent(a))

	clk.advance(7 * time.Second)
	tr.HandleEvent(editor.Event{Kind: editor.KindWindowFocus, Focused: false})
	if _, ok := tr.CurrentSession(); ok {
		t.Fatal("session still open after window lost focus")
	}
	if len(*got) != 1 {
		t.Fatalf("emitted %d records on focus loss, want 1", len(*got))
	}

	// Regaining focus with a file active and no session open starts one.
	tr.HandleEvent(editor.Event{Kind: editor.KindWindowFocus, Focused: true})
	if _, ok := tr.CurrentSession(); !ok {
		t.Fatal("no session after window regained focus with active file")
	}
}

func TestStopMonitoringWhenIdleIsNoop(t *testing.T) {
	tr, _ := newTestTracker()
	got := collect(tr)

	tr.StopMonitoring()
	tr.StopMonitoring()

	if len(*got) != 0 {
		t.Errorf("idle StopMonitoring emitted %d records", len(*got))
	}
	if tr.Monitoring() {
		t.Error("tracker monitoring after StopMonitoring")
	}
}

func TestListenerCancellation(t *testing.T) {
	tr, clk := newTestTracker()

	var calls int
	cancel := tr.OnSessionComplete(func(session.Record) { calls++ })
	cancel()

	tr.StartMonitoring()
	tr.HandleEvent(focusEvent(doc("file:///home/dev/proj/a.go", "")))
	clk.advance(10 * time.Second)
	tr.StopMonitoring()

	if calls != 0 {
		t.Errorf("cancelled listener called %d times", calls)
	}
}

func TestEventsIgnoredWhileNotMonitoring(t *testing.T) {
	tr, clk := newTestTracker()
	got := collect(tr)

	a := doc("file:///home/dev/proj/a.go", "")
	tr.HandleEvent(focusEvent(a))
	clk.advance(10 * time.Second)
	tr.HandleEvent(focusEvent(doc("file:///home/dev/proj/b.go", "")))

	if len(*got) != 0 {
		t.Errorf("emitted %d records while not monitoring", len(*got))
	}
	if _, ok := tr.CurrentSession(); ok {
		t.Error("session open while not monitoring")
	}
}

// Property: for any interleaving of editor events and clock advances, at most
// one session is ever open, and the completed records form non-overlapping,
// well-formed intervals of at least the minimum duration.
func TestAtMostOneOpenSessionProperty(t *testing.T) {
	docs := []*editor.Document{
		doc("file:///home/dev/proj/a.go", "alpha\n"),
		doc("file:///home/dev/proj/b.go", "bravo\n"),
		doc("file:///home/dev/proj/c.md", "charlie\n"),
		{URI: "untitled:Untitled-1", Text: ""}, // never tracked
	}

	rapid.Check(t, func(t *rapid.T) {
		tr, clk := newTestTracker()
		var completed []session.Record
		tr.OnSessionComplete(func(r session.Record) { completed = append(completed, r) })
		tr.StartMonitoring()

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			clk.advance(time.Duration(rapid.IntRange(0, 7).Draw(t, "advance")) * time.Second)

			switch rapid.IntRange(0, 4).Draw(t, "action") {
			case 0:
				tr.HandleEvent(focusEvent(docs[rapid.IntRange(0, len(docs)-1).Draw(t, "doc")]))
			case 1:
				tr.HandleEvent(focusEvent(nil)) // focus moved off documents
			case 2:
				d := docs[rapid.IntRange(0, 2).Draw(t, "edit_doc")]
				tr.HandleEvent(editEvent(d, editor.ContentChange{
					Offset: 0,
					Length: rapid.IntRange(0, 3).Draw(t, "len"),
					Text:   rapid.SampledFrom([]string{"", "x", "x\ny"}).Draw(t, "text"),
				}))
			case 3:
				tr.HandleEvent(editor.Event{
					Kind:    editor.KindWindowFocus,
					Focused: rapid.Bool().Draw(t, "focused"),
				})
			case 4:
				if rapid.Bool().Draw(t, "restart") {
					tr.StopMonitoring()
				} else {
					tr.StartMonitoring()
				}
			}

			// CurrentSession never reports an inactive or second session.
			if s, ok := tr.CurrentSession(); ok && !s.IsActive {
				t.Fatal("open session not marked active")
			}
		}
		tr.StopMonitoring()

		for i, r := range completed {
			s := r.Session
			if s.IsActive {
				t.Fatalf("record %d emitted while active", i)
			}
			if s.TotalDuration < 5 {
				t.Fatalf("record %d emitted with duration %d < 5", i, s.TotalDuration)
			}
			if s.SessionEndTime == nil || s.SessionEndTime.Before(s.SessionStartTime) {
				t.Fatalf("record %d has malformed interval", i)
			}
			// Close-before-open: intervals never overlap in emission order.
			if i > 0 {
				prev := completed[i-1].Session
				if prev.SessionEndTime.After(s.SessionStartTime) {
					t.Fatalf("record %d starts before record %d ended", i, i-1)
				}
			}
		}
	})
}
