package server

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS file_sessions (
	id                  TEXT PRIMARY KEY,
	file_path           TEXT NOT NULL,
	file_name           TEXT NOT NULL,
	file_extension      TEXT NOT NULL DEFAULT '',
	language            TEXT NOT NULL DEFAULT '',
	project_name        TEXT NOT NULL DEFAULT '',
	project_path        TEXT NOT NULL DEFAULT '',
	session_start_time  TIMESTAMPTZ NOT NULL,
	session_end_time    TIMESTAMPTZ,
	total_duration      INTEGER NOT NULL DEFAULT 0,
	lines_added         INTEGER NOT NULL DEFAULT 0,
	lines_deleted       INTEGER NOT NULL DEFAULT 0,
	lines_modified      INTEGER NOT NULL DEFAULT 0,
	characters_added    INTEGER NOT NULL DEFAULT 0,
	characters_deleted  INTEGER NOT NULL DEFAULT 0,
	characters_modified INTEGER NOT NULL DEFAULT 0,
	total_edits         INTEGER NOT NULL DEFAULT 0,
	editor              TEXT NOT NULL DEFAULT '',
	platform            TEXT NOT NULL DEFAULT '',
	is_active           BOOLEAN NOT NULL DEFAULT FALSE,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_session_project ON file_sessions (project_name);
CREATE INDEX IF NOT EXISTS idx_session_language ON file_sessions (language);
CREATE INDEX IF NOT EXISTS idx_session_start_time ON file_sessions (session_start_time);
`

// PostgresStore is the production Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to dsn and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Upsert(ctx context.Context, e Entry) error {
	const query = `
INSERT INTO file_sessions (
	id, file_path, file_name, file_extension, language,
	project_name, project_path, session_start_time, session_end_time,
	total_duration, lines_added, lines_deleted, lines_modified,
	characters_added, characters_deleted, characters_modified,
	total_edits, editor, platform, is_active
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
ON CONFLICT (id) DO UPDATE SET
	file_path = EXCLUDED.file_path,
	file_name = EXCLUDED.file_name,
	file_extension = EXCLUDED.file_extension,
	language = EXCLUDED.language,
	project_name = EXCLUDED.project_name,
	project_path = EXCLUDED.project_path,
	session_start_time = EXCLUDED.session_start_time,
	session_end_time = EXCLUDED.session_end_time,
	total_duration = EXCLUDED.total_duration,
	lines_added = EXCLUDED.lines_added,
	lines_deleted = EXCLUDED.lines_deleted,
	lines_modified = EXCLUDED.lines_modified,
	characters_added = EXCLUDED.characters_added,
	characters_deleted = EXCLUDED.characters_deleted,
	characters_modified = EXCLUDED.characters_modified,
	total_edits = EXCLUDED.total_edits,
	editor = EXCLUDED.editor,
	platform = EXCLUDED.platform,
	is_active = EXCLUDED.is_active,
	updated_at = now()`

	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.FilePath, e.FileName, e.FileExtension, e.Language,
		e.ProjectName, e.ProjectPath, e.SessionStartTime, e.SessionEndTime,
		e.TotalDuration, e.LinesAdded, e.LinesDeleted, e.LinesModified,
		e.CharactersAdded, e.CharactersDeleted, e.CharactersModified,
		e.TotalEdits, e.Editor, e.Platform, e.IsActive,
	)
	if err != nil {
		return fmt.Errorf("upserting session %s: %w", e.ID, err)
	}
	return nil
}

// filterClause builds the WHERE clause and args for f.
func filterClause(f Filter) (string, []any) {
	var conds []string
	var args []any
	if f.ProjectName != "" {
		args = append(args, f.ProjectName)
		conds = append(conds, fmt.Sprintf("project_name = $%d", len(args)))
	}
	if f.Language != "" {
		args = append(args, f.Language)
		conds = append(conds, fmt.Sprintf("language = $%d", len(args)))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		conds = append(conds, fmt.Sprintf("session_start_time >= $%d", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		conds = append(conds, fmt.Sprintf("session_start_time <= $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]Entry, int, error) {
	where, args := filterClause(f)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM file_sessions"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting sessions: %w", err)
	}

	query := `
SELECT id, file_path, file_name, file_extension, language,
	project_name, project_path, session_start_time, session_end_time,
	total_duration, lines_added, lines_deleted, lines_modified,
	characters_added, characters_deleted, characters_modified,
	total_edits, editor, platform, is_active
FROM file_sessions` + where +
		fmt.Sprintf(" ORDER BY session_start_time DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.FilePath, &e.FileName, &e.FileExtension, &e.Language,
			&e.ProjectName, &e.ProjectPath, &e.SessionStartTime, &e.SessionEndTime,
			&e.TotalDuration, &e.LinesAdded, &e.LinesDeleted, &e.LinesModified,
			&e.CharactersAdded, &e.CharactersDeleted, &e.CharactersModified,
			&e.TotalEdits, &e.Editor, &e.Platform, &e.IsActive,
		); err != nil {
			return nil, 0, fmt.Errorf("scanning session row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

func (s *PostgresStore) Projects(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "project_name")
}

func (s *PostgresStore) Languages(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "language")
}

func (s *PostgresStore) distinct(ctx context.Context, column string) ([]string, error) {
	query := fmt.Sprintf("SELECT DISTINCT %s FROM file_sessions WHERE %s <> '' ORDER BY %s", column, column, column)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying distinct %s: %w", column, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func (s *PostgresStore) Stats(ctx context.Context, f Filter) (Stats, error) {
	where, args := filterClause(f)
	query := `
SELECT COUNT(*),
	COALESCE(SUM(total_duration), 0),
	COALESCE(SUM(total_edits), 0),
	COALESCE(SUM(lines_added), 0),
	COALESCE(SUM(lines_deleted), 0),
	COALESCE(SUM(lines_modified), 0),
	COALESCE(SUM(characters_added), 0),
	COALESCE(SUM(characters_deleted), 0),
	COALESCE(SUM(characters_modified), 0)
FROM file_sessions` + where

	var st Stats
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&st.TotalSessions, &st.TotalDuration, &st.TotalEdits,
		&st.LinesAdded, &st.LinesDeleted, &st.LinesModified,
		&st.CharactersAdded, &st.CharactersDeleted, &st.CharactersModified,
	)
	if err != nil {
		return Stats{}, fmt.Errorf("aggregating stats: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) Daily(ctx context.Context, f Filter) ([]DailyStat, error) {
	where, args := filterClause(f)
	query := `
SELECT (session_start_time AT TIME ZONE 'UTC')::date AS day,
	COALESCE(SUM(total_duration), 0),
	COUNT(*)
FROM file_sessions` + where + `
GROUP BY day ORDER BY day`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregating daily stats: %w", err)
	}
	defer rows.Close()

	var stats []DailyStat
	for rows.Next() {
		var day time.Time
		var st DailyStat
		if err := rows.Scan(&day, &st.Duration, &st.Sessions); err != nil {
			return nil, fmt.Errorf("scanning daily stat row: %w", err)
		}
		st.Date = day.Format("2006-01-02")
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

func (s *PostgresStore) ByLanguage(ctx context.Context, f Filter) ([]UsageStat, error) {
	return s.usage(ctx, f, "language")
}

func (s *PostgresStore) ByProject(ctx context.Context, f Filter) ([]UsageStat, error) {
	return s.usage(ctx, f, "project_name")
}

func (s *PostgresStore) usage(ctx context.Context, f Filter, column string) ([]UsageStat, error) {
	where, args := filterClause(f)
	query := fmt.Sprintf(`
SELECT COALESCE(NULLIF(%s, ''), 'Unknown') AS name,
	COALESCE(SUM(total_duration), 0) AS duration,
	COUNT(*)
FROM file_sessions`, column) + where + `
GROUP BY name ORDER BY duration DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregating by %s: %w", column, err)
	}
	defer rows.Close()

	var stats []UsageStat
	for rows.Next() {
		var st UsageStat
		if err := rows.Scan(&st.Name, &st.Duration, &st.Sessions); err != nil {
			return nil, fmt.Errorf("scanning usage row: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

func (s *PostgresStore) Hourly(ctx context.Context, f Filter) ([24]int, error) {
	where, args := filterClause(f)
	query := `
SELECT EXTRACT(HOUR FROM session_start_time AT TIME ZONE 'UTC')::int AS hour,
	COALESCE(SUM(total_duration), 0)
FROM file_sessions` + where + `
GROUP BY hour`

	var buckets [24]int
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return buckets, fmt.Errorf("aggregating hourly stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var hour, duration int
		if err := rows.Scan(&hour, &duration); err != nil {
			return buckets, fmt.Errorf("scanning hourly stat row: %w", err)
		}
		if hour >= 0 && hour < 24 {
			buckets[hour] = duration
		}
	}
	return buckets, rows.Err()
}
