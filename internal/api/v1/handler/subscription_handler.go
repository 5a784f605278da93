package handler

import (
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/apperr"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// SubscriptionHandler handles the dashboard billing endpoints.
type SubscriptionHandler struct {
	stripeSvc *service.StripeService
	subSvc    service.SubscriptionService
	validate  *validator.Validate
	logger    zerolog.Logger
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(stripeSvc *service.StripeService, subSvc service.SubscriptionService, validate *validator.Validate, logger zerolog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{stripeSvc: stripeSvc, subSvc: subSvc, validate: validate, logger: logger}
}

// RegisterRoutes registers the billing endpoints behind dashboard auth.
func (h *SubscriptionHandler) RegisterRoutes(mux *http.ServeMux, authed func(http.Handler) http.Handler) {
	mux.Handle("GET /billing/subscription", authed(http.HandlerFunc(h.Get)))
	mux.Handle("POST /billing/checkout", authed(http.HandlerFunc(h.Checkout)))
	mux.Handle("POST /billing/portal", authed(http.HandlerFunc(h.Portal)))
	mux.Handle("POST /billing/cancel", authed(http.HandlerFunc(h.Cancel)))
	mux.Handle("POST /billing/reactivate", authed(http.HandlerFunc(h.Reactivate)))
}

// Get returns the caller's subscription state.
func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	sub, err := h.subSvc.GetSubscription(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewSubscriptionResponse(sub, h.subSvc.GracePeriodDaysRemaining(sub)))
}

// Checkout creates a Stripe Checkout session for a plan upgrade.
func (h *SubscriptionHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	var req dto.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, h.logger, apperr.BadRequest("Invalid checkout request: "+err.Error()))
		return
	}

	url, err := h.stripeSvc.CreateCheckoutSession(r.Context(), userID, model.PlanTier(req.Plan), req.Interval)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SessionURLResponse{URL: url})
}

// Portal creates a Stripe customer portal session.
func (h *SubscriptionHandler) Portal(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	url, err := h.stripeSvc.CreatePortalSession(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SessionURLResponse{URL: url})
}

// Cancel schedules the subscription to end at the current period boundary.
func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	if err := h.stripeSvc.CancelAtPeriodEnd(r.Context(), userID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.respondWithSubscription(w, r, userID)
}

// Reactivate clears a pending cancellation.
func (h *SubscriptionHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	if err := h.stripeSvc.Reactivate(r.Context(), userID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.respondWithSubscription(w, r, userID)
}

func (h *SubscriptionHandler) respondWithSubscription(w http.ResponseWriter, r *http.Request, userID string) {
	sub, err := h.subSvc.GetSubscription(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewSubscriptionResponse(sub, h.subSvc.GracePeriodDaysRemaining(sub)))
}
