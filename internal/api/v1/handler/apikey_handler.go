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

// APIKeyHandler handles dashboard API key management.
type APIKeyHandler struct {
	keySvc   service.APIKeyService
	subSvc   service.SubscriptionService
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewAPIKeyHandler creates a new APIKeyHandler.
func NewAPIKeyHandler(keySvc service.APIKeyService, subSvc service.SubscriptionService, validate *validator.Validate, logger zerolog.Logger) *APIKeyHandler {
	return &APIKeyHandler{keySvc: keySvc, subSvc: subSvc, validate: validate, logger: logger}
}

// RegisterRoutes registers the key management endpoints behind dashboard auth.
func (h *APIKeyHandler) RegisterRoutes(mux *http.ServeMux, authed func(http.Handler) http.Handler) {
	mux.Handle("POST /keys", authed(http.HandlerFunc(h.Create)))
	mux.Handle("GET /keys", authed(http.HandlerFunc(h.List)))
	mux.Handle("PATCH /keys/{id}", authed(http.HandlerFunc(h.UpdateOrigins)))
	mux.Handle("DELETE /keys/{id}", authed(http.HandlerFunc(h.Revoke)))
}

// Create mints a new API key. The full key appears in this response only.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	var req dto.CreateAPIKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, h.logger, apperr.BadRequest("Invalid API key request: "+err.Error()))
		return
	}

	plan, err := h.subSvc.PlanForUser(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	created, err := h.keySvc.Create(r.Context(), userID, plan, model.APIKeyType(req.Type), req.Name, req.AllowedOrigins)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.CreateAPIKeyResponse{
		APIKeyResponse: dto.NewAPIKeyResponse(&created.APIKey),
		Key:            created.Key,
	})
}

// List returns the caller's active keys, prefixes only.
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	keys, err := h.keySvc.List(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	responses := make([]dto.APIKeyResponse, 0, len(keys))
	for i := range keys {
		responses = append(responses, dto.NewAPIKeyResponse(&keys[i]))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"keys": responses})
}

// UpdateOrigins replaces a key's origin allow-list.
func (h *APIKeyHandler) UpdateOrigins(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	var req dto.UpdateAPIKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, h.logger, apperr.BadRequest("Invalid origins: "+err.Error()))
		return
	}

	key, err := h.keySvc.UpdateOrigins(r.Context(), r.PathValue("id"), userID, req.AllowedOrigins)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewAPIKeyResponse(key))
}

// Revoke soft-deletes a key. Revoked keys stop resolving immediately.
func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	if err := h.keySvc.Revoke(r.Context(), r.PathValue("id"), userID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
