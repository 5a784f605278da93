package service

import (
	"context"

	"app/internal/clock"
	"app/internal/model"
	"app/internal/repository"
	"app/internal/storage"

	"github.com/rs/zerolog"
)

const sweepBatchSize = 100

// SweeperService runs the scheduled maintenance passes: expired-file cleanup
// and grace-period finalization. Both are driven by cron endpoints.
type SweeperService interface {
	// SweepExpiredFiles soft-deletes files past their expiry. The storage
	// object is removed before the record is stamped, so a storage failure
	// leaves the file live for the next run. Returns the number deleted.
	SweepExpiredFiles(ctx context.Context) (int, error)
	// SweepGracePeriods finalizes overdue grace periods. If the user's
	// storage fits the target plan nothing is deleted; otherwise files go
	// largest first until enough space is freed. The subscription always
	// leaves the grace_period status. Returns the number finalized.
	SweepGracePeriods(ctx context.Context) (int, error)
}

type sweeperService struct {
	fileRepo      repository.FileRepository
	subRepo       repository.SubscriptionRepository
	store         storage.ObjectStorage
	usageSvc      UsageService
	clk           clock.Clock
	sweeperLogger zerolog.Logger
}

// NewSweeperService creates a new SweeperService with a scoped logger.
func NewSweeperService(fileRepo repository.FileRepository, subRepo repository.SubscriptionRepository, store storage.ObjectStorage, usageSvc UsageService, clk clock.Clock, logger zerolog.Logger) SweeperService {
	return &sweeperService{
		fileRepo:      fileRepo,
		subRepo:       subRepo,
		store:         store,
		usageSvc:      usageSvc,
		clk:           clk,
		sweeperLogger: logger.With().Str("service", "SweeperService").Logger(),
	}
}

func (s *sweeperService) SweepExpiredFiles(ctx context.Context) (int, error) {
	files, err := s.fileRepo.FindExpired(ctx, s.clk.Now(), sweepBatchSize)
	if err != nil {
		s.sweeperLogger.Error().Err(err).Msg("Failed to fetch expired files")
		return 0, err
	}

	deleted := 0
	for _, f := range files {
		if err := s.deleteFile(ctx, f); err != nil {
			// Leave the record live; the next run retries it.
			s.sweeperLogger.Error().Err(err).Str("file_id", f.ID).Msg("Failed to sweep expired file")
			continue
		}
		deleted++
	}
	if deleted > 0 {
		s.sweeperLogger.Info().Int("deleted", deleted).Msg("Expired files swept")
	}
	return deleted, nil
}

func (s *sweeperService) SweepGracePeriods(ctx context.Context) (int, error) {
	subs, err := s.subRepo.FindExpiredGracePeriods(ctx, s.clk.Now(), sweepBatchSize)
	if err != nil {
		s.sweeperLogger.Error().Err(err).Msg("Failed to fetch expired grace periods")
		return 0, err
	}

	completed := 0
	for _, sub := range subs {
		if err := s.finalizeGracePeriod(ctx, sub); err != nil {
			s.sweeperLogger.Error().Err(err).Str("user_id", sub.UserID).Msg("Failed to finalize grace period")
			continue
		}
		completed++
	}
	if completed > 0 {
		s.sweeperLogger.Info().Int("completed", completed).Msg("Grace periods finalized")
	}
	return completed, nil
}

// finalizeGracePeriod enforces the target plan's storage quota and completes
// the grace period. The row's plan column already holds the target plan.
func (s *sweeperService) finalizeGracePeriod(ctx context.Context, sub model.Subscription) error {
	limits := model.LimitsFor(sub.Plan)
	usage, err := s.usageSvc.CurrentUsage(ctx, sub.UserID)
	if err != nil {
		return err
	}

	bytesToFree := usage.StorageBytes - limits.MaxStorageBytes
	if bytesToFree > 0 {
		freed, err := s.freeStorage(ctx, sub.UserID, bytesToFree)
		if err != nil {
			return err
		}
		if freed > 0 {
			if err := s.usageSvc.Decrement(ctx, sub.UserID, model.UsageStorageBytes, freed); err != nil {
				s.sweeperLogger.Error().Err(err).Str("user_id", sub.UserID).Msg("Failed to release storage usage after enforcement")
			}
		}
		s.sweeperLogger.Info().
			Str("user_id", sub.UserID).
			Str("target_plan", string(sub.Plan)).
			Int64("bytes_to_free", bytesToFree).
			Int64("bytes_freed", freed).
			Msg("Enforced storage quota for grace period")
	}

	return s.subRepo.CompleteGracePeriod(ctx, sub.ID)
}

// freeStorage deletes the user's files largest first until bytesToFree is
// met or the files run out, and returns the bytes actually freed.
func (s *sweeperService) freeStorage(ctx context.Context, userID string, bytesToFree int64) (int64, error) {
	files, err := s.fileRepo.FindByUserSortedBySize(ctx, userID)
	if err != nil {
		return 0, err
	}

	var freed int64
	for _, f := range files {
		if freed >= bytesToFree {
			break
		}
		if err := s.store.Delete(ctx, f.StorageKey); err != nil {
			s.sweeperLogger.Error().Err(err).Str("file_id", f.ID).Msg("Failed to delete object during enforcement")
			continue
		}
		deleted, err := s.fileRepo.SoftDelete(ctx, f.ID)
		if err != nil {
			s.sweeperLogger.Error().Err(err).Str("file_id", f.ID).Msg("Failed to soft delete file during enforcement")
			continue
		}
		if deleted {
			freed += f.SizeBytes
		}
	}
	return freed, nil
}

// deleteFile removes one file's object and record, releasing its ledger
// usage when this call is the one that stamped the record.
func (s *sweeperService) deleteFile(ctx context.Context, f model.StoredFile) error {
	if err := s.store.Delete(ctx, f.StorageKey); err != nil {
		return err
	}
	deleted, err := s.fileRepo.SoftDelete(ctx, f.ID)
	if err != nil {
		return err
	}
	if deleted {
		if err := s.usageSvc.Decrement(ctx, f.UserID, model.UsageStorageBytes, f.SizeBytes); err != nil {
			s.sweeperLogger.Error().Err(err).Str("file_id", f.ID).Msg("Failed to release storage usage for expired file")
		}
	}
	return nil
}
