package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"app/internal/apperr"
	"app/internal/clock"
	"app/internal/model"
	"app/internal/repository"
	"app/internal/storage"
	"app/internal/util"

	"github.com/rs/zerolog"
)

// UploadInput carries one upload request into the service.
type UploadInput struct {
	Name        string
	Size        int64
	ContentType string
	Body        io.Reader
	Folder      *string
	Private     bool
	// Expires is an optional relative expiry like "12h" or "30d".
	Expires string
}

// FileService owns upload admission, file metadata, and deletion. Quota
// checks read a usage snapshot and then increment; two concurrent uploads
// can both pass the check, so a user may briefly land slightly over quota.
type FileService interface {
	Upload(ctx context.Context, userID string, plan model.PlanTier, in UploadInput) (*model.StoredFile, error)
	GetFile(ctx context.Context, userID, fileID string) (*model.StoredFile, error)
	// ListFiles returns files newest first, optionally filtered by folder
	// prefix, with an opaque cursor for the next page.
	ListFiles(ctx context.Context, userID, folderPrefix string, limit int, cursor string) ([]model.StoredFile, string, error)
	// ListFolderContents returns the direct subfolders (with aggregate size
	// and file count) and the files at the given folder level.
	ListFolderContents(ctx context.Context, userID string, folder *string, limit int, cursor string) ([]model.FolderInfo, []model.StoredFile, string, error)
	DeleteFile(ctx context.Context, userID, fileID string) error
	// CreateSignedURL issues a time-limited download URL for a file and
	// counts one full-object fetch against the bandwidth ledger.
	CreateSignedURL(ctx context.Context, userID, fileID string, expiresIn time.Duration) (string, error)
	// FileURL returns the permanent public URL for a file.
	FileURL(f *model.StoredFile) string
}

type fileService struct {
	repo       repository.FileRepository
	store      storage.ObjectStorage
	usageSvc   UsageService
	clk        clock.Clock
	fileLogger zerolog.Logger
}

// NewFileService creates a new FileService with a scoped logger.
func NewFileService(repo repository.FileRepository, store storage.ObjectStorage, usageSvc UsageService, clk clock.Clock, logger zerolog.Logger) FileService {
	return &fileService{
		repo:       repo,
		store:      store,
		usageSvc:   usageSvc,
		clk:        clk,
		fileLogger: logger.With().Str("service", "FileService").Logger(),
	}
}

func (s *fileService) Upload(ctx context.Context, userID string, plan model.PlanTier, in UploadInput) (*model.StoredFile, error) {
	limits := model.LimitsFor(plan)
	if in.Size > limits.MaxFileSizeBytes {
		return nil, apperr.FileTooLarge(limits.MaxFileSizeBytes)
	}

	usage, err := s.usageSvc.CurrentUsage(ctx, userID)
	if err != nil {
		return nil, err
	}
	if usage.StorageBytes+in.Size > limits.MaxStorageBytes {
		return nil, apperr.StorageLimit()
	}
	if usage.UploadCount >= limits.MaxUploadsPerPeriod {
		return nil, apperr.UploadLimit()
	}

	var expiresAt *time.Time
	if in.Expires != "" {
		t, err := util.ParseExpiry(in.Expires, s.clk.Now())
		if err != nil {
			return nil, apperr.BadRequest("Invalid expires format, expected e.g. 12h or 30d")
		}
		expiresAt = &t
	}

	id := util.GenerateFileID()
	key := storageKey(userID, in.Folder, id, in.Name)

	if err := s.store.Put(ctx, key, in.Body, in.Size, in.ContentType); err != nil {
		return nil, err
	}

	created, err := s.repo.Create(ctx, &model.StoredFile{
		ID:         id,
		UserID:     userID,
		Name:       in.Name,
		StorageKey: key,
		Folder:     in.Folder,
		SizeBytes:  in.Size,
		MimeType:   in.ContentType,
		IsPrivate:  in.Private,
		ExpiresAt:  expiresAt,
	})
	if err != nil {
		// The object is already in the bucket; best-effort cleanup so it
		// does not become orphaned.
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.fileLogger.Error().Err(delErr).Str("key", key).Msg("Failed to clean up object after record insert failure")
		}
		return nil, err
	}

	if err := s.usageSvc.Increment(ctx, userID, model.UsageStorageBytes, in.Size); err != nil {
		s.fileLogger.Error().Err(err).Str("user_id", userID).Str("file_id", id).Msg("Failed to record storage usage for upload")
	}
	if err := s.usageSvc.Increment(ctx, userID, model.UsageUploadCount, 1); err != nil {
		s.fileLogger.Error().Err(err).Str("user_id", userID).Str("file_id", id).Msg("Failed to record upload count")
	}

	return created, nil
}

// storageKey builds the object key userID/[folder/]fileID/fileName.
func storageKey(userID string, folder *string, fileID, name string) string {
	if folder != nil && *folder != "" {
		return fmt.Sprintf("%s/%s/%s/%s", userID, *folder, fileID, name)
	}
	return fmt.Sprintf("%s/%s/%s", userID, fileID, name)
}

func (s *fileService) GetFile(ctx context.Context, userID, fileID string) (*model.StoredFile, error) {
	f, err := s.repo.FindByIDAndUser(ctx, fileID, userID)
	if err != nil {
		s.fileLogger.Error().Err(err).Str("file_id", fileID).Msg("Failed to fetch file")
		return nil, err
	}
	if f == nil {
		return nil, apperr.NotFound("File not found")
	}
	return f, nil
}

func (s *fileService) ListFiles(ctx context.Context, userID, folderPrefix string, limit int, cursor string) ([]model.StoredFile, string, error) {
	before, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", apperr.BadRequest("Invalid cursor")
	}
	files, hasMore, err := s.repo.FindByUser(ctx, userID, folderPrefix, limit, before)
	if err != nil {
		s.fileLogger.Error().Err(err).Str("user_id", userID).Msg("Failed to list files")
		return nil, "", err
	}
	return files, nextCursor(files, hasMore), nil
}

func (s *fileService) ListFolderContents(ctx context.Context, userID string, folder *string, limit int, cursor string) ([]model.FolderInfo, []model.StoredFile, string, error) {
	before, err := decodeCursor(cursor)
	if err != nil {
		return nil, nil, "", apperr.BadRequest("Invalid cursor")
	}
	files, hasMore, err := s.repo.FindInFolder(ctx, userID, folder, limit, before)
	if err != nil {
		s.fileLogger.Error().Err(err).Str("user_id", userID).Msg("Failed to list folder files")
		return nil, nil, "", err
	}

	rows, err := s.repo.FindFolderSizes(ctx, userID)
	if err != nil {
		s.fileLogger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch folder sizes")
		return nil, nil, "", err
	}

	prefix := ""
	if folder != nil && *folder != "" {
		prefix = *folder + "/"
	}
	agg := make(map[string]*model.FolderInfo)
	for _, row := range rows {
		if !strings.HasPrefix(row.Folder, prefix) || row.Folder == strings.TrimSuffix(prefix, "/") {
			continue
		}
		rest := strings.TrimPrefix(row.Folder, prefix)
		if rest == "" {
			continue
		}
		child := rest
		if i := strings.Index(rest, "/"); i >= 0 {
			child = rest[:i]
		}
		info, ok := agg[child]
		if !ok {
			info = &model.FolderInfo{Name: child}
			agg[child] = info
		}
		info.SizeBytes += row.SizeBytes
		info.FileCount++
	}

	folders := make([]model.FolderInfo, 0, len(agg))
	for _, info := range agg {
		folders = append(folders, *info)
	}
	sort.Slice(folders, func(i, j int) bool { return folders[i].Name < folders[j].Name })

	return folders, files, nextCursor(files, hasMore), nil
}

func (s *fileService) DeleteFile(ctx context.Context, userID, fileID string) error {
	f, err := s.GetFile(ctx, userID, fileID)
	if err != nil {
		return err
	}
	// Storage first: if the object delete fails the record stays live and
	// the whole operation can be retried.
	if err := s.store.Delete(ctx, f.StorageKey); err != nil {
		return err
	}
	deleted, err := s.repo.SoftDelete(ctx, f.ID)
	if err != nil {
		return err
	}
	if deleted {
		if err := s.usageSvc.Decrement(ctx, userID, model.UsageStorageBytes, f.SizeBytes); err != nil {
			s.fileLogger.Error().Err(err).Str("file_id", f.ID).Msg("Failed to release storage usage after delete")
		}
	}
	return nil
}

func (s *fileService) CreateSignedURL(ctx context.Context, userID, fileID string, expiresIn time.Duration) (string, error) {
	f, err := s.GetFile(ctx, userID, fileID)
	if err != nil {
		return "", err
	}
	url, err := s.store.SignedURL(ctx, f.StorageKey, expiresIn)
	if err != nil {
		return "", err
	}
	if err := s.usageSvc.Increment(ctx, userID, model.UsageBandwidthBytes, f.SizeBytes); err != nil {
		s.fileLogger.Error().Err(err).Str("file_id", f.ID).Msg("Failed to record bandwidth usage")
	}
	return url, nil
}

func (s *fileService) FileURL(f *model.StoredFile) string {
	return s.store.PublicURL(f.StorageKey)
}

func decodeCursor(cursor string) (*time.Time, error) {
	if cursor == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func encodeCursor(t time.Time) string {
	return base64.StdEncoding.EncodeToString([]byte(t.Format(time.RFC3339Nano)))
}

func nextCursor(files []model.StoredFile, hasMore bool) string {
	if !hasMore || len(files) == 0 {
		return ""
	}
	return encodeCursor(files[len(files)-1].CreatedAt)
}
