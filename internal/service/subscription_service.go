package service

import (
	"context"
	"math"
	"time"

	"app/internal/clock"
	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// GracePeriodDays is how long a user keeps their old quota after a
// downgrade leaves them over the new plan's limits.
const GracePeriodDays = 14

// SubscriptionService owns the subscription state machine: provider event
// reconciliation and the grace-period engine.
type SubscriptionService interface {
	// GetSubscription returns the user's subscription, creating a default
	// free/active row on first access.
	GetSubscription(ctx context.Context, userID string) (*model.Subscription, error)
	// PlanForUser resolves the user's effective plan. Canceled subscriptions
	// resolve to free.
	PlanForUser(ctx context.Context, userID string) (model.PlanTier, error)

	// ApplySubscriptionSnapshot reconciles a fresh provider snapshot into
	// local state. A downgrade that leaves the user over the new plan's
	// limits starts a grace period instead of applying the plan directly.
	ApplySubscriptionSnapshot(ctx context.Context, userID string, snap model.SubscriptionSnapshot) error
	// HandleSubscriptionDeleted starts a grace period targeting the free
	// plan. Events for unknown subscriptions are dropped.
	HandleSubscriptionDeleted(ctx context.Context, providerSubscriptionID string) error
	// HandlePaymentFailed starts a grace period targeting the user's
	// current plan, so recovering only requires settling the bill.
	HandlePaymentFailed(ctx context.Context, providerSubscriptionID string) error
	// HandlePaymentSucceeded clears a past_due status.
	HandlePaymentSucceeded(ctx context.Context, providerSubscriptionID string) error

	// StartGracePeriod moves the user into grace_period targeting the given
	// plan with a deadline 14 days out. Calling it again while already in
	// grace resets the deadline and target plan; last caller wins.
	StartGracePeriod(ctx context.Context, userID string, targetPlan model.PlanTier) error
	IsInGracePeriod(ctx context.Context, userID string) (bool, error)
	// GracePeriodDaysRemaining returns whole days until the grace deadline
	// (rounded up, clamped at zero), or nil outside grace.
	GracePeriodDaysRemaining(sub *model.Subscription) *int
}

type subscriptionService struct {
	repo      repository.SubscriptionRepository
	usageSvc  UsageService
	clk       clock.Clock
	subLogger zerolog.Logger
}

// NewSubscriptionService creates a new SubscriptionService with a scoped logger.
func NewSubscriptionService(repo repository.SubscriptionRepository, usageSvc UsageService, clk clock.Clock, logger zerolog.Logger) SubscriptionService {
	return &subscriptionService{
		repo:      repo,
		usageSvc:  usageSvc,
		clk:       clk,
		subLogger: logger.With().Str("service", "SubscriptionService").Logger(),
	}
}

func (s *subscriptionService) GetSubscription(ctx context.Context, userID string) (*model.Subscription, error) {
	sub, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		s.subLogger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch subscription")
		return nil, err
	}
	if sub != nil {
		return sub, nil
	}
	if err := s.repo.UpsertDefault(ctx, userID); err != nil {
		s.subLogger.Error().Err(err).Str("user_id", userID).Msg("Failed to create default subscription")
		return nil, err
	}
	return s.repo.FindByUserID(ctx, userID)
}

func (s *subscriptionService) PlanForUser(ctx context.Context, userID string) (model.PlanTier, error) {
	sub, err := s.GetSubscription(ctx, userID)
	if err != nil {
		return model.PlanFree, err
	}
	if sub.Status == model.StatusCanceled {
		return model.PlanFree, nil
	}
	return sub.Plan, nil
}

func (s *subscriptionService) ApplySubscriptionSnapshot(ctx context.Context, userID string, snap model.SubscriptionSnapshot) error {
	current, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		s.subLogger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch subscription for reconciliation")
		return err
	}
	prevPlan := model.PlanFree
	if current != nil {
		prevPlan = current.Plan
	}

	status := model.MapProviderStatus(snap.ProviderStatus)

	if model.IsDowngrade(prevPlan, snap.Plan) {
		over, err := s.usageSvc.IsOverLimits(ctx, userID, snap.Plan)
		if err != nil {
			s.subLogger.Error().Err(err).Str("user_id", userID).Msg("Failed to check usage against downgrade target")
			return err
		}
		if over {
			s.subLogger.Info().
				Str("user_id", userID).
				Str("from_plan", string(prevPlan)).
				Str("to_plan", string(snap.Plan)).
				Msg("Downgrade leaves user over limits, starting grace period")
			return s.StartGracePeriod(ctx, userID, snap.Plan)
		}
	}

	if err := s.repo.UpsertFromProvider(ctx, userID, snap.Plan, status, snap.ProviderSubscriptionID, snap.PriceID, snap.PeriodStart, snap.PeriodEnd, snap.CancelAtPeriodEnd); err != nil {
		s.subLogger.Error().Err(err).Str("user_id", userID).Str("plan", string(snap.Plan)).Msg("Failed to upsert subscription from provider")
		return err
	}
	return nil
}

func (s *subscriptionService) HandleSubscriptionDeleted(ctx context.Context, providerSubscriptionID string) error {
	sub, err := s.repo.FindByStripeSubscriptionID(ctx, providerSubscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		s.subLogger.Warn().Str("subscription_id", providerSubscriptionID).Msg("Deletion event for unknown subscription, dropping")
		return nil
	}
	return s.StartGracePeriod(ctx, sub.UserID, model.PlanFree)
}

func (s *subscriptionService) HandlePaymentFailed(ctx context.Context, providerSubscriptionID string) error {
	sub, err := s.repo.FindByStripeSubscriptionID(ctx, providerSubscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		s.subLogger.Warn().Str("subscription_id", providerSubscriptionID).Msg("Payment failure for unknown subscription, dropping")
		return nil
	}
	s.subLogger.Info().Str("user_id", sub.UserID).Str("plan", string(sub.Plan)).Msg("Payment failed, starting grace period on current plan")
	return s.StartGracePeriod(ctx, sub.UserID, sub.Plan)
}

func (s *subscriptionService) HandlePaymentSucceeded(ctx context.Context, providerSubscriptionID string) error {
	sub, err := s.repo.FindByStripeSubscriptionID(ctx, providerSubscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		s.subLogger.Warn().Str("subscription_id", providerSubscriptionID).Msg("Payment success for unknown subscription, dropping")
		return nil
	}
	if sub.Status != model.StatusPastDue {
		return nil
	}
	if err := s.repo.SetStatus(ctx, sub.ID, model.StatusActive); err != nil {
		s.subLogger.Error().Err(err).Str("user_id", sub.UserID).Msg("Failed to reactivate subscription after payment")
		return err
	}
	return nil
}

func (s *subscriptionService) StartGracePeriod(ctx context.Context, userID string, targetPlan model.PlanTier) error {
	endsAt := s.clk.Now().Add(GracePeriodDays * 24 * time.Hour)
	if err := s.repo.StartGracePeriod(ctx, userID, targetPlan, endsAt); err != nil {
		s.subLogger.Error().Err(err).Str("user_id", userID).Str("target_plan", string(targetPlan)).Msg("Failed to start grace period")
		return err
	}
	s.subLogger.Info().
		Str("user_id", userID).
		Str("target_plan", string(targetPlan)).
		Time("ends_at", endsAt).
		Msg("Grace period started")
	return nil
}

func (s *subscriptionService) IsInGracePeriod(ctx context.Context, userID string) (bool, error) {
	sub, err := s.GetSubscription(ctx, userID)
	if err != nil {
		return false, err
	}
	return sub.Status == model.StatusGracePeriod, nil
}

func (s *subscriptionService) GracePeriodDaysRemaining(sub *model.Subscription) *int {
	if sub == nil || sub.Status != model.StatusGracePeriod || sub.GracePeriodEndsAt == nil {
		return nil
	}
	remaining := sub.GracePeriodEndsAt.Sub(s.clk.Now())
	days := int(math.Ceil(remaining.Hours() / 24))
	if days < 0 {
		days = 0
	}
	return &days
}
