package handler

import (
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/service"

	"github.com/rs/zerolog"
)

// UsageHandler serves the current billing period's usage snapshot.
type UsageHandler struct {
	usageSvc service.UsageService
	subSvc   service.SubscriptionService
	logger   zerolog.Logger
}

// NewUsageHandler creates a new UsageHandler.
func NewUsageHandler(usageSvc service.UsageService, subSvc service.SubscriptionService, logger zerolog.Logger) *UsageHandler {
	return &UsageHandler{usageSvc: usageSvc, subSvc: subSvc, logger: logger}
}

// RegisterRoutes registers the usage endpoint behind the given middleware.
func (h *UsageHandler) RegisterRoutes(mux *http.ServeMux, authed func(http.Handler) http.Handler) {
	mux.Handle("GET /usage", authed(http.HandlerFunc(h.Get)))
}

// Get returns the caller's usage against their plan limits.
func (h *UsageHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	plan, err := h.subSvc.PlanForUser(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	usage, err := h.usageSvc.CurrentUsage(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewUsageResponse(plan, usage))
}
