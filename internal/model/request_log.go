package model

import "time"

// RequestLog is one API request record, written fire-and-forget.
type RequestLog struct {
	ID             string    `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"user_id"`
	APIKeyID       string    `db:"api_key_id" json:"api_key_id"`
	Method         string    `db:"method" json:"method"`
	Endpoint       string    `db:"endpoint" json:"endpoint"`
	StatusCode     int       `db:"status_code" json:"status_code"`
	ResponseTimeMs int64     `db:"response_time_ms" json:"response_time_ms"`
	FileSizeBytes  *int64    `db:"file_size_bytes" json:"file_size_bytes,omitempty"`
	ErrorCode      *string   `db:"error_code" json:"error_code,omitempty"`
	IPAddress      *string   `db:"ip_address" json:"ip_address,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// RequestStats aggregates request logs over a window.
type RequestStats struct {
	TotalRequests     int64   `json:"total_requests"`
	SuccessCount      int64   `json:"success_count"`
	ErrorCount        int64   `json:"error_count"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
}
