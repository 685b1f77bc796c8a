package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/pal/internal/analytics"
	"github.com/kalambet/pal/internal/chat"
	"github.com/kalambet/pal/internal/domain"
	"github.com/kalambet/pal/internal/history"
	"github.com/kalambet/pal/internal/llm"
	"github.com/kalambet/pal/internal/profile"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Responder answers chat messages. Satisfied by *chat.Service.
type Responder interface {
	Respond(ctx context.Context, message string, override *profile.Profile) (chat.Reply, error)
}

// Deps holds what the HTTP API needs.
type Deps struct {
	Profiles *profile.Manager
	History  *history.Log
	Chat     Responder
	Token    string

	RequestsPerMinute int
	Analytics         bool // serve /api/stats and /api/insights
	Export            bool // serve /api/export/*

	Logger *slog.Logger
	Now    func() time.Time
}

// NewHandler returns the router for the HTTP API. Everything under /api
// requires the bearer token.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	r := chi.NewRouter()
	r.Use(Recovery(deps.Logger))
	r.Use(RequestID)
	r.Use(Logger(deps.Logger))
	r.Use(CORS)

	r.Get("/health", handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(BearerAuth(deps.Token, deps.Logger))

		r.With(RateLimit(deps.RequestsPerMinute)).Post("/chat", handleChat(deps))

		r.Get("/profile", handleGetProfile(deps))
		r.Put("/profile", handleSaveProfile(deps))
		r.Post("/profile", handleSaveProfile(deps))
		r.Patch("/profile", handlePatchProfile(deps))
		r.Delete("/profile", handleDeleteProfile(deps))
		r.Get("/profile/options", handleProfileOptions)

		r.Get("/conversations", handleListConversations(deps))
		r.Get("/conversations/relevant", handleRelevantConversations(deps))
		r.Delete("/conversations", handleClearConversations(deps))

		r.Get("/classify", handleClassify)

		r.Get("/stats", feature(deps.Analytics, "analytics", handleStats(deps)))
		r.Get("/insights", feature(deps.Analytics, "analytics", handleInsights(deps)))
		r.Get("/export/conversations.csv", feature(deps.Export, "export", handleExportCSV(deps)))
		r.Get("/export/stats", feature(deps.Export, "export", handleExportStats(deps)))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type chatRequest struct {
	Message string           `json:"message"`
	Profile *profile.Profile `json:"profile,omitempty"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		reply, err := deps.Chat.Respond(r.Context(), req.Message, req.Profile)
		if err != nil {
			writeServiceError(w, "chat failed", err)
			return
		}
		writeJSON(w, reply)
	}
}

func handleGetProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Profiles.Load()
		var corrupt *profile.CorruptDataError
		if errors.As(err, &corrupt) {
			p, err = nil, nil
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load profile: %v", err)
			return
		}
		writeJSON(w, p)
	}
}

func handleSaveProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var p profile.Profile
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		saved, err := deps.Profiles.Save(p)
		if err != nil {
			writeServiceError(w, "failed to save profile", err)
			return
		}
		writeJSON(w, saved)
	}
}

func handlePatchProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var fields map[string]any
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		saved, err := deps.Profiles.Update(fields)
		if err != nil {
			writeServiceError(w, "failed to update profile", err)
			return
		}
		writeJSON(w, saved)
	}
}

func handleDeleteProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Profiles.Delete(); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete profile: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

func handleProfileOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, profile.DefaultOptions())
}

func handleListConversations(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := deps.History.LoadAll()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load conversations: %v", err)
			return
		}
		if r.URL.Query().Has("recent") {
			records = history.Recent(records, parseIntParam(r, "recent", 5, deps.History.MaxSize()))
		}
		if records == nil {
			records = []history.Record{}
		}
		writeJSON(w, records)
	}
}

func handleRelevantConversations(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if q == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query parameter q is required")
			return
		}
		limit := parseIntParam(r, "limit", 5, deps.History.MaxSize())

		records, err := deps.History.Relevant(q, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to search conversations: %v", err)
			return
		}
		if records == nil {
			records = []history.Record{}
		}
		writeJSON(w, records)
	}
}

func handleClearConversations(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.History.Clear(); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to clear conversations: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "cleared"})
	}
}

type classifyResponse struct {
	Domain domain.Domain  `json:"domain"`
	Scores []domain.Score `json:"scores"`
}

func handleClassify(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	writeJSON(w, classifyResponse{
		Domain: domain.Classify(text),
		Scores: domain.Scores(text),
	})
}

type statsResponse struct {
	analytics.Stats
	Breakdown     []analytics.DomainCount `json:"breakdown"`
	DailyActivity []analytics.DateCount   `json:"daily_activity"`
}

func handleStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, ok := loadRecords(w, deps)
		if !ok {
			return
		}
		s := analytics.Summarize(records)
		writeJSON(w, statsResponse{
			Stats:         s,
			Breakdown:     s.Breakdown(),
			DailyActivity: s.DailyActivity(7),
		})
	}
}

func handleInsights(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, ok := loadRecords(w, deps)
		if !ok {
			return
		}
		writeJSON(w, analytics.Analyze(records))
	}
}

func handleExportCSV(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, ok := loadRecords(w, deps)
		if !ok {
			return
		}
		name := fmt.Sprintf("conversations_%s.csv", deps.Now().Format("20060102_150405"))
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		if err := analytics.WriteCSV(w, records); err != nil {
			deps.Logger.Warn("csv export interrupted", "error", err)
		}
	}
}

func handleExportStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, ok := loadRecords(w, deps)
		if !ok {
			return
		}
		writeJSON(w, analytics.Export(records, deps.Now()))
	}
}

func loadRecords(w http.ResponseWriter, deps Deps) ([]history.Record, bool) {
	records, err := deps.History.LoadAll()
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to load conversations: %v", err)
		return nil, false
	}
	return records, true
}

// feature serves h only when enabled; otherwise the route answers 404.
func feature(enabled bool, name string, h http.HandlerFunc) http.HandlerFunc {
	if enabled {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		httpError(w, http.StatusNotFound, "not_found", "%s is disabled", name)
	}
}

// writeServiceError maps core errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, what string, err error) {
	var verr *profile.ValidationError
	var ese *llm.ExternalServiceError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, history.ErrEmptyText):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.As(err, &ese):
		httpError(w, http.StatusBadGateway, "api_error", "%s: %v", what, err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%s: %v", what, err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
