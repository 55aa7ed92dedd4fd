package server

import (
	"context"
	"time"

	"github.com/afklabs/afkmon/internal/session"
)

// Entry is one stored session row: the submitted FileSession flattened
// together with its system info.
type Entry struct {
	session.FileSession
	Editor   string `json:"editor"`
	Platform string `json:"platform"`
}

// Filter narrows listing and aggregation queries. Zero From/To leave the
// corresponding bound open; both compare against the session start time.
type Filter struct {
	ProjectName string
	Language    string
	From        time.Time
	To          time.Time
	Limit       int
	Offset      int
}

// Stats are the aggregate totals over a filtered set of sessions.
type Stats struct {
	TotalSessions      int `json:"totalSessions"`
	TotalDuration      int `json:"totalDuration"`
	TotalEdits         int `json:"totalEdits"`
	LinesAdded         int `json:"linesAdded"`
	LinesDeleted       int `json:"linesDeleted"`
	LinesModified      int `json:"linesModified"`
	CharactersAdded    int `json:"charactersAdded"`
	CharactersDeleted  int `json:"charactersDeleted"`
	CharactersModified int `json:"charactersModified"`
	// AverageSessionDuration is derived by the handler, not the store.
	AverageSessionDuration float64 `json:"averageSessionDuration"`
}

// DailyStat is one day's activity, keyed by the session start date (UTC).
type DailyStat struct {
	Date     string `json:"date"`
	Duration int    `json:"duration"`
	Sessions int    `json:"sessions"`
}

// UsageStat is one language's or project's share of activity. Empty names
// group under "Unknown".
type UsageStat struct {
	Name     string `json:"name"`
	Duration int    `json:"duration"`
	Sessions int    `json:"sessions"`
}

// Store persists submitted sessions.
type Store interface {
	// Upsert inserts the entry or, when the session id already exists,
	// replaces the stored row (extensions may resubmit a session).
	Upsert(ctx context.Context, e Entry) error
	// List returns matching entries newest-first plus the unpaginated total.
	List(ctx context.Context, f Filter) ([]Entry, int, error)
	// Projects returns the distinct non-empty project names.
	Projects(ctx context.Context) ([]string, error)
	// Languages returns the distinct non-empty languages.
	Languages(ctx context.Context) ([]string, error)
	// Stats aggregates totals over the entries matching f.
	Stats(ctx context.Context, f Filter) (Stats, error)
	// Daily groups matching entries by start date, oldest first.
	Daily(ctx context.Context, f Filter) ([]DailyStat, error)
	// ByLanguage groups matching entries by language, longest duration first.
	ByLanguage(ctx context.Context, f Filter) ([]UsageStat, error)
	// ByProject groups matching entries by project, longest duration first.
	ByProject(ctx context.Context, f Filter) ([]UsageStat, error)
	// Hourly sums duration per start hour of day (UTC), indexed 0-23.
	Hourly(ctx context.Context, f Filter) ([24]int, error)
	Close() error
}
