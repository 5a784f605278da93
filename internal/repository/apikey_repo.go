package repository

import (
	"context"
	"errors"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// APIKeyRepository stores API keys. Revocation is a soft delete on
// revoked_at; revoked keys never resolve again.
type APIKeyRepository interface {
	FindByHash(ctx context.Context, hash string) (*model.APIKey, error)
	FindByUser(ctx context.Context, userID string) ([]model.APIKey, error)
	Create(ctx context.Context, k *model.APIKey) (*model.APIKey, error)
	UpdateLastUsed(ctx context.Context, id string) error
	UpdateOrigins(ctx context.Context, id, userID string, origins []string) (*model.APIKey, error)
	Revoke(ctx context.Context, id, userID string) error
	CountByUser(ctx context.Context, userID string) (int, error)
}

type apiKeyRepo struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepo creates a new APIKeyRepository.
func NewAPIKeyRepo(pool *pgxpool.Pool) APIKeyRepository {
	return &apiKeyRepo{pool: pool}
}

const apiKeyColumns = `
        id, user_id, key_hash, key_prefix, name, type, allowed_origins,
        last_used_at, revoked_at, created_at`

func scanAPIKey(row pgx.Row) (*model.APIKey, error) {
	var k model.APIKey
	err := row.Scan(
		&k.ID,
		&k.UserID,
		&k.KeyHash,
		&k.KeyPrefix,
		&k.Name,
		&k.Type,
		&k.AllowedOrigins,
		&k.LastUsedAt,
		&k.RevokedAt,
		&k.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (r *apiKeyRepo) FindByHash(ctx context.Context, hash string) (*model.APIKey, error) {
	q := `SELECT` + apiKeyColumns + ` FROM api_keys WHERE key_hash = $1 AND revoked_at IS NULL`
	k, err := scanAPIKey(r.pool.QueryRow(ctx, q, hash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch api key by hash: %w", err)
	}
	return k, nil
}

func (r *apiKeyRepo) FindByUser(ctx context.Context, userID string) ([]model.APIKey, error) {
	q := `SELECT` + apiKeyColumns + `
        FROM api_keys
        WHERE user_id = $1 AND revoked_at IS NULL
        ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch api keys for user %s: %w", userID, err)
	}
	defer rows.Close()

	var keys []model.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, *k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api keys: %w", err)
	}
	return keys, nil
}

func (r *apiKeyRepo) Create(ctx context.Context, k *model.APIKey) (*model.APIKey, error) {
	q := `
        INSERT INTO api_keys (id, user_id, key_hash, key_prefix, name, type, allowed_origins)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING` + apiKeyColumns
	created, err := scanAPIKey(r.pool.QueryRow(ctx, q,
		k.ID, k.UserID, k.KeyHash, k.KeyPrefix, k.Name, k.Type, k.AllowedOrigins,
	))
	if err != nil {
		return nil, fmt.Errorf("create api key for user %s: %w", k.UserID, err)
	}
	return created, nil
}

func (r *apiKeyRepo) UpdateLastUsed(ctx context.Context, id string) error {
	const q = `UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`
	if _, err := r.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("update last used for api key %s: %w", id, err)
	}
	return nil
}

func (r *apiKeyRepo) UpdateOrigins(ctx context.Context, id, userID string, origins []string) (*model.APIKey, error) {
	q := `
        UPDATE api_keys
        SET allowed_origins = $3
        WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL
        RETURNING` + apiKeyColumns
	k, err := scanAPIKey(r.pool.QueryRow(ctx, q, id, userID, origins))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update origins for api key %s: %w", id, err)
	}
	return k, nil
}

func (r *apiKeyRepo) Revoke(ctx context.Context, id, userID string) error {
	const q = `UPDATE api_keys SET revoked_at = NOW() WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL`
	if _, err := r.pool.Exec(ctx, q, id, userID); err != nil {
		return fmt.Errorf("revoke api key %s: %w", id, err)
	}
	return nil
}

func (r *apiKeyRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	const q = `SELECT COUNT(*) FROM api_keys WHERE user_id = $1 AND revoked_at IS NULL`
	var count int
	if err := r.pool.QueryRow(ctx, q, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count api keys for user %s: %w", userID, err)
	}
	return count, nil
}
