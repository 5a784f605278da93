package dto

import "app/internal/model"

// ListRequestLogsResponse is the response to GET /logs.
type ListRequestLogsResponse struct {
	Logs       []model.RequestLog `json:"logs"`
	Pagination Pagination         `json:"pagination"`
}

// SweepResponse reports what a cron sweep did.
type SweepResponse struct {
	ExpiredFilesDeleted   int `json:"expired_files_deleted"`
	GracePeriodsCompleted int `json:"grace_periods_completed"`
}
