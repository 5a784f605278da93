package service

import (
	"context"
	"time"

	"app/internal/model"
	"app/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RequestLogService records per-request API usage for the dashboard.
type RequestLogService interface {
	// Record inserts a log row in the background; it never blocks or fails
	// the request being logged.
	Record(l model.RequestLog)
	List(ctx context.Context, userID string, limit int, before *time.Time) ([]model.RequestLog, bool, error)
	Stats(ctx context.Context, userID string, since time.Time) (model.RequestStats, error)
}

type requestLogService struct {
	repo      repository.RequestLogRepository
	logLogger zerolog.Logger
}

// NewRequestLogService creates a new RequestLogService with a scoped logger.
func NewRequestLogService(repo repository.RequestLogRepository, logger zerolog.Logger) RequestLogService {
	return &requestLogService{
		repo:      repo,
		logLogger: logger.With().Str("service", "RequestLogService").Logger(),
	}
}

func (s *requestLogService) Record(l model.RequestLog) {
	l.ID = uuid.NewString()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.repo.Create(ctx, &l); err != nil {
			s.logLogger.Warn().Err(err).Str("endpoint", l.Endpoint).Msg("Failed to record request log")
		}
	}()
}

func (s *requestLogService) List(ctx context.Context, userID string, limit int, before *time.Time) ([]model.RequestLog, bool, error) {
	logs, hasMore, err := s.repo.FindByUser(ctx, userID, limit, before)
	if err != nil {
		s.logLogger.Error().Err(err).Str("user_id", userID).Msg("Failed to list request logs")
		return nil, false, err
	}
	return logs, hasMore, nil
}

func (s *requestLogService) Stats(ctx context.Context, userID string, since time.Time) (model.RequestStats, error) {
	stats, err := s.repo.Stats(ctx, userID, since)
	if err != nil {
		s.logLogger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch request stats")
		return model.RequestStats{}, err
	}
	return stats, nil
}
