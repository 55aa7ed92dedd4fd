// Package editor defines the host-editor event model and the localhost
// WebSocket bridge that feeds raw events from an editor plugin to the daemon.
package editor

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventKind discriminates the raw event stream.
type EventKind string

const (
	// KindEditorChanged fires when the focused editor changes. Document is
	// nil when focus moved to a non-document view.
	KindEditorChanged EventKind = "editorChanged"
	// KindTextChanged fires on document mutation and carries one or more
	// content-change records plus the full post-edit document text.
	KindTextChanged EventKind = "textChanged"
	// KindWindowFocus fires when the host window gains or loses focus.
	// Document carries the active document at that moment, if any.
	KindWindowFocus EventKind = "windowFocus"
	// KindDocumentSaved fires when a document is written to disk.
	KindDocumentSaved EventKind = "documentSaved"
)

// Document is the plugin's view of an open text document.
type Document struct {
	URI             string `json:"uri"`      // scheme-qualified, e.g. file:///home/u/p/main.go
	Path            string `json:"path"`     // filesystem path
	LanguageID      string `json:"language"` // editor-reported language classification
	WorkspaceFolder string `json:"workspaceFolder,omitempty"`
	Text            string `json:"text"` // full content at event time
}

// IsFile reports whether the document is backed by the file scheme. Untitled
// buffers, diff views and virtual documents are not tracked.
func (d *Document) IsFile() bool {
	return d != nil && strings.HasPrefix(d.URI, "file://")
}

// ContentChange is one contiguous delete+insert operation within an edit
// event. Offset and Length address the document content as it was before the
// change was applied.
type ContentChange struct {
	Offset int    `json:"offset"`
	Length int    `json:"length"`
	Text   string `json:"text"` // inserted text, empty for pure deletions
}

// Event is a single decoded editor notification.
type Event struct {
	Kind     EventKind
	Document *Document
	Changes  []ContentChange // KindTextChanged only
	Focused  bool            // KindWindowFocus only
}

// wireEvent is the JSON envelope sent by editor plugins.
type wireEvent struct {
	Type     string          `json:"type"`
	Document *Document       `json:"document,omitempty"`
	Changes  []ContentChange `json:"changes,omitempty"`
	Focused  bool            `json:"focused,omitempty"`
}

// DecodeEvent parses one wire message into an Event.
func DecodeEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("decoding editor event: %w", err)
	}

	kind := EventKind(w.Type)
	switch kind {
	case KindEditorChanged, KindTextChanged, KindWindowFocus, KindDocumentSaved:
	default:
		return Event{}, fmt.Errorf("unknown editor event type %q", w.Type)
	}
	if kind == KindTextChanged && w.Document == nil {
		return Event{}, fmt.Errorf("textChanged event without document")
	}

	return Event{
		Kind:     kind,
		Document: w.Document,
		Changes:  w.Changes,
		Focused:  w.Focused,
	}, nil
}
