// Package server implements the collector backend: session ingest, listing
// and aggregate statistics over HTTP.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/afklabs/afkmon/internal/session"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// Server serves the collector API.
type Server struct {
	logger *slog.Logger
	store  Store
}

// New returns a server backed by store.
func New(logger *slog.Logger, store Store) *Server {
	return &Server{
		logger: logger.With(slog.String("component", "server")),
		store:  store,
	}
}

// Router builds the API route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions", s.handleListSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/projects", s.handleProjects).Methods(http.MethodGet)
	api.HandleFunc("/sessions/languages", s.handleLanguages).Methods(http.MethodGet)
	api.HandleFunc("/sessions/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/sessions/stats/daily", s.handleDailyStats).Methods(http.MethodGet)
	api.HandleFunc("/sessions/stats/languages", s.handleLanguageStats).Methods(http.MethodGet)
	api.HandleFunc("/sessions/stats/projects", s.handleProjectStats).Methods(http.MethodGet)
	api.HandleFunc("/sessions/stats/hourly", s.handleHourlyStats).Methods(http.MethodGet)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   Version,
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var rec session.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid session payload")
		return
	}
	if rec.Session.ID == "" || rec.Session.FilePath == "" {
		writeError(w, http.StatusBadRequest, "session id and filePath are required")
		return
	}

	entry := Entry{
		FileSession: rec.Session,
		Editor:      rec.SystemInfo.Editor,
		Platform:    rec.SystemInfo.Platform,
	}
	if err := s.store.Upsert(r.Context(), entry); err != nil {
		s.logger.Error("failed to store session",
			slog.String("session", rec.Session.ID),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to process session data")
		return
	}

	s.logger.Info("session stored",
		slog.String("session", rec.Session.ID),
		slog.String("file", rec.Session.FileName),
		slog.Int("duration", rec.Session.TotalDuration))

	writeSuccess(w, map[string]any{
		"sessionId": rec.Session.ID,
		"processed": true,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	f := Filter{
		ProjectName: r.URL.Query().Get("projectName"),
		Language:    r.URL.Query().Get("language"),
		From:        timeQuery(r, "from"),
		To:          timeQuery(r, "to"),
		Limit:       intQuery(r, "limit", defaultListLimit),
		Offset:      intQuery(r, "offset", 0),
	}
	if f.Limit < 1 || f.Limit > maxListLimit {
		f.Limit = defaultListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	entries, total, err := s.store.List(r.Context(), f)
	if err != nil {
		s.logger.Error("failed to list sessions", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to retrieve sessions")
		return
	}

	totalDuration := 0
	for _, e := range entries {
		totalDuration += e.TotalDuration
	}
	if entries == nil {
		entries = []Entry{}
	}

	writeSuccess(w, map[string]any{
		"sessions":      entries,
		"total":         total,
		"totalDuration": totalDuration,
		"offset":        f.Offset,
		"limit":         f.Limit,
	})
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.Projects(r.Context())
	if err != nil {
		s.logger.Error("failed to list projects", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to retrieve projects")
		return
	}
	if projects == nil {
		projects = []string{}
	}
	writeSuccess(w, projects)
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	languages, err := s.store.Languages(r.Context())
	if err != nil {
		s.logger.Error("failed to list languages", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to retrieve languages")
		return
	}
	if languages == nil {
		languages = []string{}
	}
	writeSuccess(w, languages)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context(), statsFilter(r, ""))
	if err != nil {
		s.logger.Error("failed to aggregate stats", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to retrieve statistics")
		return
	}
	if stats.TotalSessions > 0 {
		stats.AverageSessionDuration = float64(stats.TotalDuration) / float64(stats.TotalSessions)
	}
	writeSuccess(w, stats)
}

func (s *Server) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Daily(r.Context(), statsFilter(r, filterLast7Days))
	if err != nil {
		s.logger.Error("failed to aggregate daily stats", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to retrieve daily statistics")
		return
	}
	if stats == nil {
		stats = []DailyStat{}
	}
	writeSuccess(w, stats)
}

// languageColors matches languages to dashboard chart colors; everything else
// falls back to gray.
var languageColors = map[string]string{
	"TypeScript": "#3178c6",
	"JavaScript": "#f7df1e",
	"Python":     "#3776ab",
	"Rust":       "#ce422b",
	"Go":         "#00add8",
	"Java":       "#ed8b00",
	"C++":        "#00599c",
	"C":          "#a8b9cc",
	"HTML":       "#e34f26",
	"CSS":        "#1572b6",
	"Vue":        "#4fc08d",
	"React":      "#61dafb",
}

func (s *Server) handleLanguageStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.ByLanguage(r.Context(), statsFilter(r, ""))
	if err != nil {
		s.logger.Error("failed to aggregate language stats", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to retrieve language statistics")
		return
	}

	total := 0
	for _, st := range stats {
		total += st.Duration
	}

	type languageShare struct {
		UsageStat
		// Value is the language's percentage of total duration, one decimal.
		Value float64 `json:"value"`
		Color string  `json:"color"`
	}
	shares := make([]languageShare, 0, len(stats))
	for _, st := range stats {
		share := languageShare{UsageStat: st, Color: "#6b7280"}
		if c, ok := languageColors[st.Name]; ok {
			share.Color = c
		}
		if total > 0 {
			share.Value = math.Round(float64(st.Duration)/float64(total)*1000) / 10
		}
		shares = append(shares, share)
	}
	writeSuccess(w, shares)
}

func (s *Server) handleProjectStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.ByProject(r.Context(), statsFilter(r, ""))
	if err != nil {
		s.logger.Error("failed to aggregate project stats", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to retrieve project statistics")
		return
	}
	if stats == nil {
		stats = []UsageStat{}
	}
	writeSuccess(w, stats)
}

func (s *Server) handleHourlyStats(w http.ResponseWriter, r *http.Request) {
	buckets, err := s.store.Hourly(r.Context(), statsFilter(r, filterLast7Days))
	if err != nil {
		s.logger.Error("failed to aggregate hourly stats", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to retrieve hourly statistics")
		return
	}

	type hourlySlot struct {
		Hour     string `json:"hour"`
		Duration int    `json:"duration"`
	}
	slots := make([]hourlySlot, 24)
	for h := range buckets {
		slots[h] = hourlySlot{Hour: fmt.Sprintf("%02d", h), Duration: buckets[h]}
	}
	writeSuccess(w, slots)
}

// statsFilter builds the shared filter of the stats endpoints: project_name,
// language, and a time_filter resolved against the current time (falling back
// to fallbackRange when the parameter is absent).
func statsFilter(r *http.Request, fallbackRange string) Filter {
	f := Filter{
		ProjectName: r.URL.Query().Get("project_name"),
		Language:    r.URL.Query().Get("language"),
	}
	name := r.URL.Query().Get("time_filter")
	if name == "" {
		name = fallbackRange
	}
	if name != "" {
		f.From, f.To = timeRange(name, timeQuery(r, "start_date"), timeQuery(r, "end_date"), time.Now().UTC())
	}
	return f
}

// timeQuery parses an RFC 3339 query parameter; absent or malformed values
// leave the bound open.
func timeQuery(r *http.Request, key string) time.Time {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func intQuery(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func writeSuccess(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    data,
	})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   msg,
	})
}
