package model

import "time"

// SubscriptionStatus is the internal subscription lifecycle state.
type SubscriptionStatus string

const (
	StatusActive      SubscriptionStatus = "active"
	StatusPastDue     SubscriptionStatus = "past_due"
	StatusGracePeriod SubscriptionStatus = "grace_period"
	StatusCanceled    SubscriptionStatus = "canceled"
)

// Subscription is the per-user subscription record. One row per user.
// grace_period_ends_at is non-null iff status is grace_period.
type Subscription struct {
	ID                   string             `db:"id" json:"id"`
	UserID               string             `db:"user_id" json:"user_id"`
	Plan                 PlanTier           `db:"plan" json:"plan"`
	Status               SubscriptionStatus `db:"status" json:"status"`
	StripeSubscriptionID *string            `db:"stripe_subscription_id" json:"stripe_subscription_id,omitempty"`
	StripePriceID        *string            `db:"stripe_price_id" json:"stripe_price_id,omitempty"`
	CurrentPeriodStart   *time.Time         `db:"current_period_start" json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time         `db:"current_period_end" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool               `db:"cancel_at_period_end" json:"cancel_at_period_end"`
	GracePeriodEndsAt    *time.Time         `db:"grace_period_ends_at" json:"grace_period_ends_at,omitempty"`
	CreatedAt            time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time          `db:"updated_at" json:"updated_at"`
}

// SubscriptionSnapshot is the normalized view of a billing-provider
// subscription used by the reconciler. It is always built from a fresh fetch
// of the provider's authoritative state, never from accumulated deltas.
type SubscriptionSnapshot struct {
	ProviderSubscriptionID string
	CustomerID             string
	PriceID                string
	Plan                   PlanTier
	ProviderStatus         string
	PeriodStart            *time.Time
	PeriodEnd              *time.Time
	CancelAtPeriodEnd      bool
}

// MapProviderStatus maps a billing-provider status string to the internal
// status. Anything unrecognized maps to active as the safe default.
func MapProviderStatus(status string) SubscriptionStatus {
	switch status {
	case "active", "trialing":
		return StatusActive
	case "past_due", "unpaid":
		return StatusPastDue
	case "canceled", "incomplete_expired":
		return StatusCanceled
	default:
		return StatusActive
	}
}
