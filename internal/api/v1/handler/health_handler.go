package handler

import (
	"net/http"

	"app/internal/storage"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// HealthHandler reports whether the database and object storage are
// reachable. Unauthenticated.
type HealthHandler struct {
	pool   *pgxpool.Pool
	store  storage.ObjectStorage
	logger zerolog.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(pool *pgxpool.Pool, store storage.ObjectStorage, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{pool: pool, store: store, logger: logger}
}

// RegisterRoutes registers the health endpoint.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET /health", http.HandlerFunc(h.Get))
}

func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := map[string]string{"database": "ok", "storage": "ok"}

	if err := h.pool.Ping(r.Context()); err != nil {
		h.logger.Error().Err(err).Msg("Database health check failed")
		checks["database"] = "unreachable"
		status = http.StatusServiceUnavailable
	}
	if err := h.store.HealthCheck(r.Context()); err != nil {
		h.logger.Error().Err(err).Msg("Storage health check failed")
		checks["storage"] = "unreachable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, checks)
}
