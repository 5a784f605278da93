package dto

import (
	"time"

	"app/internal/model"
)

// QuotaUsage pairs a counter with its plan limit.
type QuotaUsage struct {
	Used  int64 `json:"used"`
	Limit int64 `json:"limit"`
}

// UsageResponse is the response to GET /usage.
type UsageResponse struct {
	Plan        string     `json:"plan"`
	PeriodStart time.Time  `json:"period_start"`
	Storage     QuotaUsage `json:"storage"`
	Bandwidth   QuotaUsage `json:"bandwidth"`
	Uploads     QuotaUsage `json:"uploads"`
}

// NewUsageResponse combines a ledger snapshot with the plan's limits.
func NewUsageResponse(plan model.PlanTier, usage *model.Usage) UsageResponse {
	limits := model.LimitsFor(plan)
	return UsageResponse{
		Plan:        string(plan),
		PeriodStart: usage.PeriodStart,
		Storage:     QuotaUsage{Used: usage.StorageBytes, Limit: limits.MaxStorageBytes},
		Bandwidth:   QuotaUsage{Used: usage.BandwidthBytes, Limit: limits.MaxBandwidthBytes},
		Uploads:     QuotaUsage{Used: usage.UploadCount, Limit: limits.MaxUploadsPerPeriod},
	}
}
