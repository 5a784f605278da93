package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UsageRepository stores per-user, per-billing-period usage counters.
type UsageRepository interface {
	// FindCurrent returns the usage row for the given period, or nil if the
	// user has no row yet. It never creates a row.
	FindCurrent(ctx context.Context, userID string, periodStart time.Time) (*model.Usage, error)
	// Apply adds delta (which may be negative) to one counter of the period
	// row, creating the row if absent. The result is clamped at zero inside
	// the statement, so concurrent double-decrements can never drive a
	// counter negative.
	Apply(ctx context.Context, userID string, periodStart time.Time, field model.UsageField, delta int64) error
}

type usageRepo struct {
	pool *pgxpool.Pool
}

// NewUsageRepo creates a new UsageRepository.
func NewUsageRepo(pool *pgxpool.Pool) UsageRepository {
	return &usageRepo{pool: pool}
}

func (r *usageRepo) FindCurrent(ctx context.Context, userID string, periodStart time.Time) (*model.Usage, error) {
	const q = `
        SELECT user_id, period_start, storage_bytes, bandwidth_bytes, upload_count, updated_at
        FROM usage
        WHERE user_id = $1
          AND period_start = $2
    `
	var u model.Usage
	err := r.pool.QueryRow(ctx, q, userID, periodStart).Scan(
		&u.UserID,
		&u.PeriodStart,
		&u.StorageBytes,
		&u.BandwidthBytes,
		&u.UploadCount,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch usage for user %s: %w", userID, err)
	}
	return &u, nil
}

func (r *usageRepo) Apply(ctx context.Context, userID string, periodStart time.Time, field model.UsageField, delta int64) error {
	if !field.Valid() {
		return fmt.Errorf("invalid usage field: %s", field)
	}
	// The column name is interpolated, which is safe because field is
	// checked against the known column set above.
	q := fmt.Sprintf(`
        INSERT INTO usage (user_id, period_start, %[1]s, updated_at)
        VALUES ($1, $2, GREATEST($3, 0), NOW())
        ON CONFLICT (user_id, period_start) DO UPDATE
        SET %[1]s = GREATEST(usage.%[1]s + $3, 0),
            updated_at = NOW()
    `, string(field))
	if _, err := r.pool.Exec(ctx, q, userID, periodStart, delta); err != nil {
		return fmt.Errorf("apply %s delta for user %s: %w", field, userID, err)
	}
	return nil
}
