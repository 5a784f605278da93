package service

import (
	"context"
	"time"

	"app/internal/clock"
	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// UsageService maintains the per-user monthly usage ledger.
type UsageService interface {
	// CurrentUsage returns the user's counters for the current billing
	// period. A user with no row yet gets a zeroed record; reading never
	// creates one.
	CurrentUsage(ctx context.Context, userID string) (*model.Usage, error)
	Increment(ctx context.Context, userID string, field model.UsageField, amount int64) error
	Decrement(ctx context.Context, userID string, field model.UsageField, amount int64) error
	// IsOverLimits reports whether the user's current usage exceeds the
	// given plan's storage or upload quota.
	IsOverLimits(ctx context.Context, userID string, plan model.PlanTier) (bool, error)
	// PeriodStart returns the current billing period key, the first day of
	// the current calendar month in UTC.
	PeriodStart() time.Time
}

type usageService struct {
	repo        repository.UsageRepository
	clk         clock.Clock
	usageLogger zerolog.Logger
}

// NewUsageService creates a new UsageService with a scoped logger.
func NewUsageService(repo repository.UsageRepository, clk clock.Clock, logger zerolog.Logger) UsageService {
	return &usageService{
		repo:        repo,
		clk:         clk,
		usageLogger: logger.With().Str("service", "UsageService").Logger(),
	}
}

func (s *usageService) PeriodStart() time.Time {
	now := s.clk.Now().UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func (s *usageService) CurrentUsage(ctx context.Context, userID string) (*model.Usage, error) {
	period := s.PeriodStart()
	usage, err := s.repo.FindCurrent(ctx, userID, period)
	if err != nil {
		s.usageLogger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch usage")
		return nil, err
	}
	if usage == nil {
		return &model.Usage{UserID: userID, PeriodStart: period}, nil
	}
	return usage, nil
}

func (s *usageService) Increment(ctx context.Context, userID string, field model.UsageField, amount int64) error {
	if err := s.repo.Apply(ctx, userID, s.PeriodStart(), field, amount); err != nil {
		s.usageLogger.Error().Err(err).Str("user_id", userID).Str("field", string(field)).Int64("amount", amount).Msg("Failed to increment usage")
		return err
	}
	return nil
}

func (s *usageService) Decrement(ctx context.Context, userID string, field model.UsageField, amount int64) error {
	if err := s.repo.Apply(ctx, userID, s.PeriodStart(), field, -amount); err != nil {
		s.usageLogger.Error().Err(err).Str("user_id", userID).Str("field", string(field)).Int64("amount", amount).Msg("Failed to decrement usage")
		return err
	}
	return nil
}

func (s *usageService) IsOverLimits(ctx context.Context, userID string, plan model.PlanTier) (bool, error) {
	usage, err := s.CurrentUsage(ctx, userID)
	if err != nil {
		return false, err
	}
	limits := model.LimitsFor(plan)
	return usage.StorageBytes > limits.MaxStorageBytes || usage.UploadCount > limits.MaxUploadsPerPeriod, nil
}
