// Package session defines the file-session data model and the persisted
// pending-submission queue.
package session

import "time"

// FileSession accumulates edit statistics for one continuously focused file.
// It is mutable while open and owned exclusively by the tracker; once closed
// it is wrapped in an immutable Record and the tracker drops its reference.
//
// Field names follow the collector wire format (camelCase JSON).
type FileSession struct {
	ID            string `json:"id"`
	FilePath      string `json:"filePath"` // scheme-qualified URI, e.g. file:///home/u/main.go
	FileName      string `json:"fileName"`
	FileExtension string `json:"fileExtension"`
	Language      string `json:"language"`
	ProjectName   string `json:"projectName"`
	ProjectPath   string `json:"projectPath"`

	SessionStartTime time.Time  `json:"sessionStartTime"`
	SessionEndTime   *time.Time `json:"sessionEndTime,omitempty"`
	// TotalDuration is whole seconds, computed once at close.
	TotalDuration int `json:"totalDuration"`

	LinesAdded         int `json:"linesAdded"`
	LinesDeleted       int `json:"linesDeleted"`
	LinesModified      int `json:"linesModified"`
	CharactersAdded    int `json:"charactersAdded"`
	CharactersDeleted  int `json:"charactersDeleted"`
	CharactersModified int `json:"charactersModified"`
	TotalEdits         int `json:"totalEdits"`

	IsActive bool `json:"isActive"`
}

// SystemInfo identifies the reporting editor and host platform.
type SystemInfo struct {
	Editor   string `json:"editor"` // "vscode" or "cursor"
	Platform string `json:"platform"`
}

// Record is the immutable snapshot of a closed session, in the exact shape
// POSTed to the collector's /api/sessions endpoint.
type Record struct {
	Session    FileSession `json:"session"`
	SystemInfo SystemInfo  `json:"systemInfo"`
}
