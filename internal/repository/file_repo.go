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

// FolderSizeRow is one non-null folder value with its file size, used to
// aggregate subfolder statistics in the service layer.
type FolderSizeRow struct {
	Folder    string
	SizeBytes int64
}

// FileRepository stores file records. Deletion is always a soft delete
// guarded on deleted_at IS NULL so repeated sweep runs are safe.
type FileRepository interface {
	Create(ctx context.Context, f *model.StoredFile) (*model.StoredFile, error)
	FindByIDAndUser(ctx context.Context, id, userID string) (*model.StoredFile, error)
	// FindByUser lists non-deleted files newest first. folderPrefix, when
	// non-empty, matches folders starting with the prefix. before, when
	// non-nil, returns only files created strictly before it (cursor
	// pagination). Returns at most limit rows plus a hasMore flag.
	FindByUser(ctx context.Context, userID string, folderPrefix string, limit int, before *time.Time) ([]model.StoredFile, bool, error)
	// FindInFolder lists non-deleted files exactly in the given folder
	// (nil folder means the root level).
	FindInFolder(ctx context.Context, userID string, folder *string, limit int, before *time.Time) ([]model.StoredFile, bool, error)
	FindFolderSizes(ctx context.Context, userID string) ([]FolderSizeRow, error)
	// SoftDelete stamps deleted_at if the row is not already deleted.
	// Returns false when another caller got there first.
	SoftDelete(ctx context.Context, id string) (bool, error)
	// FindExpired returns up to limit non-deleted files whose expires_at is
	// before cutoff, oldest expiry first so retried batches stay stable.
	FindExpired(ctx context.Context, cutoff time.Time, limit int) ([]model.StoredFile, error)
	// FindByUserSortedBySize returns the user's non-deleted files largest
	// first, for grace-period enforcement deletion.
	FindByUserSortedBySize(ctx context.Context, userID string) ([]model.StoredFile, error)
}

type fileRepo struct {
	pool *pgxpool.Pool
}

// NewFileRepo creates a new FileRepository.
func NewFileRepo(pool *pgxpool.Pool) FileRepository {
	return &fileRepo{pool: pool}
}

const fileColumns = `
        id, user_id, name, storage_key, folder, size_bytes, mime_type,
        is_private, expires_at, deleted_at, created_at`

func scanFile(row pgx.Row) (*model.StoredFile, error) {
	var f model.StoredFile
	err := row.Scan(
		&f.ID,
		&f.UserID,
		&f.Name,
		&f.StorageKey,
		&f.Folder,
		&f.SizeBytes,
		&f.MimeType,
		&f.IsPrivate,
		&f.ExpiresAt,
		&f.DeletedAt,
		&f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *fileRepo) Create(ctx context.Context, f *model.StoredFile) (*model.StoredFile, error) {
	q := `
        INSERT INTO files (id, user_id, name, storage_key, folder, size_bytes, mime_type, is_private, expires_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING` + fileColumns
	created, err := scanFile(r.pool.QueryRow(ctx, q,
		f.ID, f.UserID, f.Name, f.StorageKey, f.Folder, f.SizeBytes, f.MimeType, f.IsPrivate, f.ExpiresAt,
	))
	if err != nil {
		return nil, fmt.Errorf("create file record %s: %w", f.ID, err)
	}
	return created, nil
}

func (r *fileRepo) FindByIDAndUser(ctx context.Context, id, userID string) (*model.StoredFile, error) {
	q := `SELECT` + fileColumns + `
        FROM files
        WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`
	f, err := scanFile(r.pool.QueryRow(ctx, q, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch file %s: %w", id, err)
	}
	return f, nil
}

func (r *fileRepo) FindByUser(ctx context.Context, userID string, folderPrefix string, limit int, before *time.Time) ([]model.StoredFile, bool, error) {
	q := `SELECT` + fileColumns + `
        FROM files
        WHERE user_id = $1
          AND deleted_at IS NULL
          AND ($2 = '' OR folder ILIKE $2 || '%')
          AND ($3::timestamptz IS NULL OR created_at < $3)
        ORDER BY created_at DESC
        LIMIT $4`
	return r.listFiles(ctx, q, limit, userID, folderPrefix, before)
}

func (r *fileRepo) FindInFolder(ctx context.Context, userID string, folder *string, limit int, before *time.Time) ([]model.StoredFile, bool, error) {
	q := `SELECT` + fileColumns + `
        FROM files
        WHERE user_id = $1
          AND deleted_at IS NULL
          AND (($2::text IS NULL AND folder IS NULL) OR folder = $2)
          AND ($3::timestamptz IS NULL OR created_at < $3)
        ORDER BY created_at DESC
        LIMIT $4`
	return r.listFiles(ctx, q, limit, userID, folder, before)
}

// listFiles runs a paginated file query asking for limit+1 rows to detect
// whether more pages remain.
func (r *fileRepo) listFiles(ctx context.Context, q string, limit int, args ...interface{}) ([]model.StoredFile, bool, error) {
	args = append(args, limit+1)
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []model.StoredFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, false, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate files: %w", err)
	}
	hasMore := len(files) > limit
	if hasMore {
		files = files[:limit]
	}
	return files, hasMore, nil
}

func (r *fileRepo) FindFolderSizes(ctx context.Context, userID string) ([]FolderSizeRow, error) {
	const q = `
        SELECT folder, size_bytes
        FROM files
        WHERE user_id = $1
          AND deleted_at IS NULL
          AND folder IS NOT NULL
    `
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch folder sizes for user %s: %w", userID, err)
	}
	defer rows.Close()

	var result []FolderSizeRow
	for rows.Next() {
		var row FolderSizeRow
		if err := rows.Scan(&row.Folder, &row.SizeBytes); err != nil {
			return nil, fmt.Errorf("scan folder size: %w", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate folder sizes: %w", err)
	}
	return result, nil
}

func (r *fileRepo) SoftDelete(ctx context.Context, id string) (bool, error) {
	const q = `UPDATE files SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, fmt.Errorf("soft delete file %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *fileRepo) FindExpired(ctx context.Context, cutoff time.Time, limit int) ([]model.StoredFile, error) {
	q := `SELECT` + fileColumns + `
        FROM files
        WHERE expires_at < $1
          AND deleted_at IS NULL
        ORDER BY expires_at
        LIMIT $2`
	rows, err := r.pool.Query(ctx, q, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch expired files: %w", err)
	}
	defer rows.Close()

	var files []model.StoredFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired file: %w", err)
		}
		files = append(files, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired files: %w", err)
	}
	return files, nil
}

func (r *fileRepo) FindByUserSortedBySize(ctx context.Context, userID string) ([]model.StoredFile, error) {
	q := `SELECT` + fileColumns + `
        FROM files
        WHERE user_id = $1
          AND deleted_at IS NULL
        ORDER BY size_bytes DESC`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch files by size for user %s: %w", userID, err)
	}
	defer rows.Close()

	var files []model.StoredFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files by size: %w", err)
	}
	return files, nil
}
