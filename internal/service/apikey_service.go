package service

import (
	"context"

	"app/internal/apperr"
	"app/internal/model"
	"app/internal/repository"
	"app/internal/util"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CreatedAPIKey is the one-time response to key creation. Key is the full
// secret material and is never retrievable again.
type CreatedAPIKey struct {
	APIKey model.APIKey
	Key    string
}

// APIKeyService manages API key lifecycle and credential resolution.
type APIKeyService interface {
	// Create mints a new key, enforcing the plan's key limit.
	Create(ctx context.Context, userID string, plan model.PlanTier, keyType model.APIKeyType, name *string, allowedOrigins []string) (*CreatedAPIKey, error)
	List(ctx context.Context, userID string) ([]model.APIKey, error)
	UpdateOrigins(ctx context.Context, id, userID string, origins []string) (*model.APIKey, error)
	Revoke(ctx context.Context, id, userID string) error
	// Resolve authenticates a presented credential. Unknown, malformed, and
	// revoked keys all return unauthorized. Last-used stamping happens in
	// the background.
	Resolve(ctx context.Context, key string) (*model.APIKey, error)
}

type apiKeyService struct {
	repo      repository.APIKeyRepository
	keyLogger zerolog.Logger
}

// NewAPIKeyService creates a new APIKeyService with a scoped logger.
func NewAPIKeyService(repo repository.APIKeyRepository, logger zerolog.Logger) APIKeyService {
	return &apiKeyService{
		repo:      repo,
		keyLogger: logger.With().Str("service", "APIKeyService").Logger(),
	}
}

func (s *apiKeyService) Create(ctx context.Context, userID string, plan model.PlanTier, keyType model.APIKeyType, name *string, allowedOrigins []string) (*CreatedAPIKey, error) {
	limits := model.LimitsFor(plan)
	count, err := s.repo.CountByUser(ctx, userID)
	if err != nil {
		s.keyLogger.Error().Err(err).Str("user_id", userID).Msg("Failed to count api keys")
		return nil, err
	}
	if count >= limits.MaxAPIKeys {
		return nil, apperr.APIKeyLimit(limits.MaxAPIKeys)
	}

	generated := util.GenerateAPIKey(string(keyType))
	created, err := s.repo.Create(ctx, &model.APIKey{
		ID:             uuid.NewString(),
		UserID:         userID,
		KeyHash:        generated.Hash,
		KeyPrefix:      generated.Prefix,
		Name:           name,
		Type:           keyType,
		AllowedOrigins: allowedOrigins,
	})
	if err != nil {
		s.keyLogger.Error().Err(err).Str("user_id", userID).Msg("Failed to create api key")
		return nil, err
	}
	return &CreatedAPIKey{APIKey: *created, Key: generated.Key}, nil
}

func (s *apiKeyService) List(ctx context.Context, userID string) ([]model.APIKey, error) {
	keys, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		s.keyLogger.Error().Err(err).Str("user_id", userID).Msg("Failed to list api keys")
		return nil, err
	}
	return keys, nil
}

func (s *apiKeyService) UpdateOrigins(ctx context.Context, id, userID string, origins []string) (*model.APIKey, error) {
	key, err := s.repo.UpdateOrigins(ctx, id, userID, origins)
	if err != nil {
		s.keyLogger.Error().Err(err).Str("key_id", id).Msg("Failed to update api key origins")
		return nil, err
	}
	if key == nil {
		return nil, apperr.NotFound("API key not found")
	}
	return key, nil
}

func (s *apiKeyService) Revoke(ctx context.Context, id, userID string) error {
	if err := s.repo.Revoke(ctx, id, userID); err != nil {
		s.keyLogger.Error().Err(err).Str("key_id", id).Msg("Failed to revoke api key")
		return err
	}
	return nil
}

func (s *apiKeyService) Resolve(ctx context.Context, key string) (*model.APIKey, error) {
	if !util.ValidKeyFormat(key) {
		return nil, apperr.Unauthorized()
	}
	found, err := s.repo.FindByHash(ctx, util.HashKey(key))
	if err != nil {
		s.keyLogger.Error().Err(err).Msg("Failed to resolve api key")
		return nil, err
	}
	if found == nil {
		return nil, apperr.Unauthorized()
	}
	go func() {
		if err := s.repo.UpdateLastUsed(context.Background(), found.ID); err != nil {
			s.keyLogger.Warn().Err(err).Str("key_id", found.ID).Msg("Failed to stamp api key last_used_at")
		}
	}()
	return found, nil
}
