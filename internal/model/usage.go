package model

import "time"

// UsageField names a counter in the usage ledger.
type UsageField string

const (
	UsageStorageBytes   UsageField = "storage_bytes"
	UsageBandwidthBytes UsageField = "bandwidth_bytes"
	UsageUploadCount    UsageField = "upload_count"
)

// Valid reports whether the field names a real ledger column. Repositories
// interpolate the field into SQL, so anything else must be rejected first.
func (f UsageField) Valid() bool {
	switch f {
	case UsageStorageBytes, UsageBandwidthBytes, UsageUploadCount:
		return true
	}
	return false
}

// Usage is one user's counters for a single calendar-month billing period.
// PeriodStart is the first day of the month. Counters never go below zero.
type Usage struct {
	UserID         string    `db:"user_id" json:"user_id"`
	PeriodStart    time.Time `db:"period_start" json:"period_start"`
	StorageBytes   int64     `db:"storage_bytes" json:"storage_bytes"`
	BandwidthBytes int64     `db:"bandwidth_bytes" json:"bandwidth_bytes"`
	UploadCount    int64     `db:"upload_count" json:"upload_count"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
