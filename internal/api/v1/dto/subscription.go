package dto

import (
	"time"

	"app/internal/model"
)

// SubscriptionResponse is the response to GET /billing/subscription.
type SubscriptionResponse struct {
	Plan               string     `json:"plan"`
	Status             string     `json:"status"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool       `json:"cancel_at_period_end"`
	GraceDaysRemaining *int       `json:"grace_days_remaining,omitempty"`
}

// NewSubscriptionResponse maps a subscription to its API shape.
func NewSubscriptionResponse(sub *model.Subscription, graceDaysRemaining *int) SubscriptionResponse {
	return SubscriptionResponse{
		Plan:               string(sub.Plan),
		Status:             string(sub.Status),
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		GraceDaysRemaining: graceDaysRemaining,
	}
}

// CheckoutRequest is the body of POST /billing/checkout.
type CheckoutRequest struct {
	Plan     string `json:"plan" validate:"required,oneof=hobby pro"`
	Interval string `json:"interval" validate:"required,oneof=monthly yearly"`
}

// SessionURLResponse carries a Stripe-hosted session URL.
type SessionURLResponse struct {
	URL string `json:"url"`
}
