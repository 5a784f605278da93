package handler

import (
	"net/http"
	"time"

	"app/internal/api/v1/dto"
	"app/internal/apperr"
	"app/internal/middleware"
	"app/internal/service"

	"github.com/rs/zerolog"
)

// RequestLogHandler serves the dashboard request log views.
type RequestLogHandler struct {
	logSvc service.RequestLogService
	logger zerolog.Logger
}

// NewRequestLogHandler creates a new RequestLogHandler.
func NewRequestLogHandler(logSvc service.RequestLogService, logger zerolog.Logger) *RequestLogHandler {
	return &RequestLogHandler{logSvc: logSvc, logger: logger}
}

// RegisterRoutes registers the log endpoints behind dashboard auth.
func (h *RequestLogHandler) RegisterRoutes(mux *http.ServeMux, authed func(http.Handler) http.Handler) {
	mux.Handle("GET /logs", authed(http.HandlerFunc(h.List)))
	mux.Handle("GET /logs/stats", authed(http.HandlerFunc(h.Stats)))
}

// List returns the caller's request logs, newest first.
func (h *RequestLogHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	q := r.URL.Query()

	var before *time.Time
	if raw := q.Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, h.logger, apperr.BadRequest("Invalid before timestamp"))
			return
		}
		before = &t
	}

	logs, hasMore, err := h.logSvc.List(r.Context(), userID, pageSize(q.Get("limit")), before)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	next := ""
	if hasMore && len(logs) > 0 {
		next = logs[len(logs)-1].CreatedAt.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, dto.ListRequestLogsResponse{
		Logs:       logs,
		Pagination: dto.Pagination{NextCursor: next, HasMore: hasMore},
	})
}

// Stats aggregates the caller's request logs over a trailing window.
func (h *RequestLogHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		if n, err := parsePositiveInt(raw); err == nil && n <= 90 {
			days = n
		}
	}

	stats, err := h.logSvc.Stats(r.Context(), userID, time.Now().AddDate(0, 0, -days))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
