package repository

import (
	"context"
	"fmt"
	"time"

	"app/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RequestLogRepository stores per-request API log rows.
type RequestLogRepository interface {
	Create(ctx context.Context, l *model.RequestLog) error
	// FindByUser lists logs newest first with cursor pagination.
	FindByUser(ctx context.Context, userID string, limit int, before *time.Time) ([]model.RequestLog, bool, error)
	Stats(ctx context.Context, userID string, since time.Time) (model.RequestStats, error)
}

type requestLogRepo struct {
	pool *pgxpool.Pool
}

// NewRequestLogRepo creates a new RequestLogRepository.
func NewRequestLogRepo(pool *pgxpool.Pool) RequestLogRepository {
	return &requestLogRepo{pool: pool}
}

func (r *requestLogRepo) Create(ctx context.Context, l *model.RequestLog) error {
	const q = `
        INSERT INTO request_logs
            (id, user_id, api_key_id, method, endpoint, status_code,
             response_time_ms, file_size_bytes, error_code, ip_address)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `
	_, err := r.pool.Exec(ctx, q,
		l.ID, l.UserID, l.APIKeyID, l.Method, l.Endpoint, l.StatusCode,
		l.ResponseTimeMs, l.FileSizeBytes, l.ErrorCode, l.IPAddress,
	)
	if err != nil {
		return fmt.Errorf("create request log: %w", err)
	}
	return nil
}

func (r *requestLogRepo) FindByUser(ctx context.Context, userID string, limit int, before *time.Time) ([]model.RequestLog, bool, error) {
	const q = `
        SELECT id, user_id, api_key_id, method, endpoint, status_code,
               response_time_ms, file_size_bytes, error_code, ip_address, created_at
        FROM request_logs
        WHERE user_id = $1
          AND ($2::timestamptz IS NULL OR created_at < $2)
        ORDER BY created_at DESC
        LIMIT $3
    `
	rows, err := r.pool.Query(ctx, q, userID, before, limit+1)
	if err != nil {
		return nil, false, fmt.Errorf("fetch request logs for user %s: %w", userID, err)
	}
	defer rows.Close()

	var logs []model.RequestLog
	for rows.Next() {
		var l model.RequestLog
		err := rows.Scan(
			&l.ID, &l.UserID, &l.APIKeyID, &l.Method, &l.Endpoint, &l.StatusCode,
			&l.ResponseTimeMs, &l.FileSizeBytes, &l.ErrorCode, &l.IPAddress, &l.CreatedAt,
		)
		if err != nil {
			return nil, false, fmt.Errorf("scan request log: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate request logs: %w", err)
	}
	hasMore := len(logs) > limit
	if hasMore {
		logs = logs[:limit]
	}
	return logs, hasMore, nil
}

func (r *requestLogRepo) Stats(ctx context.Context, userID string, since time.Time) (model.RequestStats, error) {
	const q = `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE status_code < 400),
               COUNT(*) FILTER (WHERE status_code >= 400),
               COALESCE(AVG(response_time_ms), 0)
        FROM request_logs
        WHERE user_id = $1
          AND created_at >= $2
    `
	var stats model.RequestStats
	err := r.pool.QueryRow(ctx, q, userID, since).Scan(
		&stats.TotalRequests,
		&stats.SuccessCount,
		&stats.ErrorCount,
		&stats.AvgResponseTimeMs,
	)
	if err != nil {
		return model.RequestStats{}, fmt.Errorf("fetch request stats for user %s: %w", userID, err)
	}
	return stats, nil
}
