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

// SubscriptionRepository defines methods for accessing subscription data.
// Rows are never hard-deleted.
type SubscriptionRepository interface {
	FindByUserID(ctx context.Context, userID string) (*model.Subscription, error)
	FindByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*model.Subscription, error)
	// UpsertFromProvider writes the authoritative provider state for a user,
	// creating the row if absent. Nil period bounds preserve the stored
	// values so a partial provider payload cannot erase them. Any pending
	// grace deadline is cleared.
	UpsertFromProvider(ctx context.Context, userID string, plan model.PlanTier, status model.SubscriptionStatus, stripeSubscriptionID, stripePriceID string, periodStart, periodEnd *time.Time, cancelAtPeriodEnd bool) error
	// UpsertDefault creates a free/active subscription for the user if none
	// exists; it does nothing otherwise.
	UpsertDefault(ctx context.Context, userID string) error
	// StartGracePeriod moves the user's subscription into grace_period
	// targeting the given plan, with the given deadline. Last caller wins.
	StartGracePeriod(ctx context.Context, userID string, targetPlan model.PlanTier, endsAt time.Time) error
	// CompleteGracePeriod marks the subscription canceled and clears the
	// grace deadline. Calling it on an already-canceled row is a no-op.
	CompleteGracePeriod(ctx context.Context, id string) error
	SetStatus(ctx context.Context, id string, status model.SubscriptionStatus) error
	// FindExpiredGracePeriods returns subscriptions still in grace_period
	// whose deadline passed before cutoff, earliest deadline first.
	FindExpiredGracePeriods(ctx context.Context, cutoff time.Time, limit int) ([]model.Subscription, error)
}

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

// NewSubscriptionRepo creates a new SubscriptionRepository.
func NewSubscriptionRepo(pool *pgxpool.Pool) SubscriptionRepository {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `
        id, user_id, plan, status, stripe_subscription_id, stripe_price_id,
        current_period_start, current_period_end, cancel_at_period_end,
        grace_period_ends_at, created_at, updated_at`

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	var s model.Subscription
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.Plan,
		&s.Status,
		&s.StripeSubscriptionID,
		&s.StripePriceID,
		&s.CurrentPeriodStart,
		&s.CurrentPeriodEnd,
		&s.CancelAtPeriodEnd,
		&s.GracePeriodEndsAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *subscriptionRepo) FindByUserID(ctx context.Context, userID string) (*model.Subscription, error) {
	q := `SELECT` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1`
	sub, err := scanSubscription(r.pool.QueryRow(ctx, q, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch subscription for user %s: %w", userID, err)
	}
	return sub, nil
}

func (r *subscriptionRepo) FindByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*model.Subscription, error) {
	q := `SELECT` + subscriptionColumns + ` FROM subscriptions WHERE stripe_subscription_id = $1`
	sub, err := scanSubscription(r.pool.QueryRow(ctx, q, stripeSubscriptionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch subscription %s: %w", stripeSubscriptionID, err)
	}
	return sub, nil
}

func (r *subscriptionRepo) UpsertFromProvider(ctx context.Context, userID string, plan model.PlanTier, status model.SubscriptionStatus, stripeSubscriptionID, stripePriceID string, periodStart, periodEnd *time.Time, cancelAtPeriodEnd bool) error {
	const q = `
        INSERT INTO subscriptions
            (user_id, plan, status, stripe_subscription_id, stripe_price_id,
             current_period_start, current_period_end, cancel_at_period_end,
             created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
        ON CONFLICT (user_id) DO UPDATE
        SET plan = EXCLUDED.plan,
            status = EXCLUDED.status,
            stripe_subscription_id = EXCLUDED.stripe_subscription_id,
            stripe_price_id = EXCLUDED.stripe_price_id,
            current_period_start = COALESCE(EXCLUDED.current_period_start, subscriptions.current_period_start),
            current_period_end = COALESCE(EXCLUDED.current_period_end, subscriptions.current_period_end),
            cancel_at_period_end = EXCLUDED.cancel_at_period_end,
            grace_period_ends_at = NULL,
            updated_at = NOW()
    `
	_, err := r.pool.Exec(ctx, q, userID, plan, status, stripeSubscriptionID, stripePriceID, periodStart, periodEnd, cancelAtPeriodEnd)
	if err != nil {
		return fmt.Errorf("upsert subscription for user %s: %w", userID, err)
	}
	return nil
}

func (r *subscriptionRepo) UpsertDefault(ctx context.Context, userID string) error {
	const q = `
        INSERT INTO subscriptions (user_id, plan, status, created_at, updated_at)
        VALUES ($1, 'free', 'active', NOW(), NOW())
        ON CONFLICT (user_id) DO NOTHING
    `
	if _, err := r.pool.Exec(ctx, q, userID); err != nil {
		return fmt.Errorf("upsert default subscription for user %s: %w", userID, err)
	}
	return nil
}

func (r *subscriptionRepo) StartGracePeriod(ctx context.Context, userID string, targetPlan model.PlanTier, endsAt time.Time) error {
	const q = `
        UPDATE subscriptions
        SET status = 'grace_period',
            plan = $2,
            grace_period_ends_at = $3,
            cancel_at_period_end = FALSE,
            updated_at = NOW()
        WHERE user_id = $1
    `
	if _, err := r.pool.Exec(ctx, q, userID, targetPlan, endsAt); err != nil {
		return fmt.Errorf("start grace period for user %s: %w", userID, err)
	}
	return nil
}

func (r *subscriptionRepo) CompleteGracePeriod(ctx context.Context, id string) error {
	const q = `
        UPDATE subscriptions
        SET status = 'canceled',
            grace_period_ends_at = NULL,
            updated_at = NOW()
        WHERE id = $1
    `
	if _, err := r.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("complete grace period for subscription %s: %w", id, err)
	}
	return nil
}

func (r *subscriptionRepo) SetStatus(ctx context.Context, id string, status model.SubscriptionStatus) error {
	const q = `UPDATE subscriptions SET status = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.pool.Exec(ctx, q, id, status); err != nil {
		return fmt.Errorf("set status %s for subscription %s: %w", status, id, err)
	}
	return nil
}

func (r *subscriptionRepo) FindExpiredGracePeriods(ctx context.Context, cutoff time.Time, limit int) ([]model.Subscription, error) {
	q := `SELECT` + subscriptionColumns + `
        FROM subscriptions
        WHERE status = 'grace_period'
          AND grace_period_ends_at < $1
        ORDER BY grace_period_ends_at
        LIMIT $2`
	rows, err := r.pool.Query(ctx, q, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch expired grace periods: %w", err)
	}
	defer rows.Close()

	var subs []model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired grace period: %w", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired grace periods: %w", err)
	}
	return subs, nil
}
