package handler

import (
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/service"

	"github.com/rs/zerolog"
)

// CronHandler exposes the scheduled maintenance endpoints. Routes are
// guarded by the cron secret, not user auth.
type CronHandler struct {
	sweeperSvc service.SweeperService
	logger     zerolog.Logger
}

// NewCronHandler creates a new CronHandler.
func NewCronHandler(sweeperSvc service.SweeperService, logger zerolog.Logger) *CronHandler {
	return &CronHandler{sweeperSvc: sweeperSvc, logger: logger}
}

// RegisterRoutes registers the cron endpoints behind the cron secret check.
func (h *CronHandler) RegisterRoutes(mux *http.ServeMux, cronAuth func(http.Handler) http.Handler) {
	mux.Handle("GET /cron/daily", cronAuth(http.HandlerFunc(h.Daily)))
	mux.Handle("GET /cron/process-grace-periods", cronAuth(http.HandlerFunc(h.GracePeriods)))
}

// Daily runs both sweeps: expired files first, then overdue grace periods.
func (h *CronHandler) Daily(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.sweeperSvc.SweepExpiredFiles(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	completed, err := h.sweeperSvc.SweepGracePeriods(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SweepResponse{
		ExpiredFilesDeleted:   deleted,
		GracePeriodsCompleted: completed,
	})
}

// GracePeriods runs only the grace-period sweep.
func (h *CronHandler) GracePeriods(w http.ResponseWriter, r *http.Request) {
	completed, err := h.sweeperSvc.SweepGracePeriods(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SweepResponse{GracePeriodsCompleted: completed})
}
