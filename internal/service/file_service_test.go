package service

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"app/internal/apperr"
	"app/internal/clock"
	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

type fileRepoFake struct {
	files     []*model.StoredFile
	createErr error
	// forceSoftDeleteMiss simulates a concurrent delete winning the
	// soft-delete race.
	forceSoftDeleteMiss bool
	createdAt           time.Time
}

func newFileRepoFake() *fileRepoFake {
	return &fileRepoFake{createdAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fileRepoFake) Create(ctx context.Context, file *model.StoredFile) (*model.StoredFile, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.createdAt = f.createdAt.Add(time.Second)
	stored := *file
	stored.CreatedAt = f.createdAt
	f.files = append(f.files, &stored)
	copied := stored
	return &copied, nil
}

func (f *fileRepoFake) FindByIDAndUser(ctx context.Context, id, userID string) (*model.StoredFile, error) {
	for _, file := range f.files {
		if file.ID == id && file.UserID == userID && file.DeletedAt == nil {
			copied := *file
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fileRepoFake) FindByUser(ctx context.Context, userID string, folderPrefix string, limit int, before *time.Time) ([]model.StoredFile, bool, error) {
	var out []model.StoredFile
	for _, file := range f.files {
		if file.UserID != userID || file.DeletedAt != nil {
			continue
		}
		if folderPrefix != "" && (file.Folder == nil || !strings.HasPrefix(*file.Folder, folderPrefix)) {
			continue
		}
		if before != nil && !file.CreatedAt.Before(*before) {
			continue
		}
		out = append(out, *file)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}
	return out, hasMore, nil
}

func (f *fileRepoFake) FindInFolder(ctx context.Context, userID string, folder *string, limit int, before *time.Time) ([]model.StoredFile, bool, error) {
	var out []model.StoredFile
	for _, file := range f.files {
		if file.UserID != userID || file.DeletedAt != nil {
			continue
		}
		switch {
		case folder == nil && file.Folder != nil:
			continue
		case folder != nil && (file.Folder == nil || *file.Folder != *folder):
			continue
		}
		if before != nil && !file.CreatedAt.Before(*before) {
			continue
		}
		out = append(out, *file)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}
	return out, hasMore, nil
}

func (f *fileRepoFake) FindFolderSizes(ctx context.Context, userID string) ([]repository.FolderSizeRow, error) {
	var rows []repository.FolderSizeRow
	for _, file := range f.files {
		if file.UserID != userID || file.DeletedAt != nil || file.Folder == nil {
			continue
		}
		rows = append(rows, repository.FolderSizeRow{Folder: *file.Folder, SizeBytes: file.SizeBytes})
	}
	return rows, nil
}

func (f *fileRepoFake) SoftDelete(ctx context.Context, id string) (bool, error) {
	if f.forceSoftDeleteMiss {
		return false, nil
	}
	for _, file := range f.files {
		if file.ID == id && file.DeletedAt == nil {
			now := time.Now()
			file.DeletedAt = &now
			return true, nil
		}
	}
	return false, nil
}

func (f *fileRepoFake) FindExpired(ctx context.Context, cutoff time.Time, limit int) ([]model.StoredFile, error) {
	var out []model.StoredFile
	for _, file := range f.files {
		if file.DeletedAt == nil && file.ExpiresAt != nil && file.ExpiresAt.Before(cutoff) {
			out = append(out, *file)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fileRepoFake) FindByUserSortedBySize(ctx context.Context, userID string) ([]model.StoredFile, error) {
	var out []model.StoredFile
	for _, file := range f.files {
		if file.UserID == userID && file.DeletedAt == nil {
			out = append(out, *file)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SizeBytes > out[j].SizeBytes })
	return out, nil
}

type storeFake struct {
	objects map[string]bool
	putErr  error
	delErr  error
	deleted []string
}

func newStoreFake() *storeFake {
	return &storeFake{objects: make(map[string]bool)}
}

func (s *storeFake) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.objects[key] = true
	return nil
}

func (s *storeFake) Delete(ctx context.Context, key string) error {
	if s.delErr != nil {
		return s.delErr
	}
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *storeFake) SignedURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	return "https://bucket.example.com/signed/" + key, nil
}

func (s *storeFake) PublicURL(key string) string {
	return "https://cdn.example.com/" + key
}

func (s *storeFake) HealthCheck(ctx context.Context) error { return nil }

// usageLedgerFake satisfies UsageService with in-memory counters.
type usageLedgerFake struct {
	counters map[model.UsageField]int64
}

func newUsageLedgerFake() *usageLedgerFake {
	return &usageLedgerFake{counters: make(map[model.UsageField]int64)}
}

func (f *usageLedgerFake) CurrentUsage(ctx context.Context, userID string) (*model.Usage, error) {
	return &model.Usage{
		UserID:         userID,
		StorageBytes:   f.counters[model.UsageStorageBytes],
		BandwidthBytes: f.counters[model.UsageBandwidthBytes],
		UploadCount:    f.counters[model.UsageUploadCount],
	}, nil
}

func (f *usageLedgerFake) Increment(ctx context.Context, userID string, field model.UsageField, amount int64) error {
	f.counters[field] += amount
	return nil
}

func (f *usageLedgerFake) Decrement(ctx context.Context, userID string, field model.UsageField, amount int64) error {
	f.counters[field] -= amount
	if f.counters[field] < 0 {
		f.counters[field] = 0
	}
	return nil
}

func (f *usageLedgerFake) IsOverLimits(ctx context.Context, userID string, plan model.PlanTier) (bool, error) {
	limits := model.LimitsFor(plan)
	return f.counters[model.UsageStorageBytes] > limits.MaxStorageBytes ||
		f.counters[model.UsageUploadCount] > limits.MaxUploadsPerPeriod, nil
}

func (f *usageLedgerFake) PeriodStart() time.Time {
	return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
}

func newFileServiceForTest(repo *fileRepoFake, store *storeFake, ledger *usageLedgerFake) FileService {
	clk := clock.NewFake(time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC))
	return NewFileService(repo, store, ledger, clk, zerolog.Nop())
}

func basicUpload(name string, size int64) UploadInput {
	return UploadInput{
		Name:        name,
		Size:        size,
		ContentType: "application/octet-stream",
		Body:        strings.NewReader("data"),
	}
}

func TestUploadRejectsOversizeFile(t *testing.T) {
	repo := newFileRepoFake()
	store := newStoreFake()
	ledger := newUsageLedgerFake()
	svc := newFileServiceForTest(repo, store, ledger)

	_, err := svc.Upload(context.Background(), "u1", model.PlanFree, basicUpload("big.bin", 11<<20))
	if apperr.From(err).Code != apperr.CodeFileTooLarge {
		t.Fatalf("error code = %q, want %q", apperr.From(err).Code, apperr.CodeFileTooLarge)
	}
	if len(store.objects) != 0 {
		t.Fatal("rejected upload must not reach storage")
	}
	if ledger.counters[model.UsageUploadCount] != 0 {
		t.Fatal("rejected upload must not touch the ledger")
	}
}

func TestUploadRejectsWhenStorageFull(t *testing.T) {
	repo := newFileRepoFake()
	store := newStoreFake()
	ledger := newUsageLedgerFake()
	ledger.counters[model.UsageStorageBytes] = model.LimitsFor(model.PlanFree).MaxStorageBytes - 100
	svc := newFileServiceForTest(repo, store, ledger)

	_, err := svc.Upload(context.Background(), "u1", model.PlanFree, basicUpload("doc.pdf", 200))
	if apperr.From(err).Code != apperr.CodeStorageLimit {
		t.Fatalf("error code = %q, want %q", apperr.From(err).Code, apperr.CodeStorageLimit)
	}
	if len(store.objects) != 0 {
		t.Fatal("rejected upload must not reach storage")
	}
}

func TestUploadRejectsWhenUploadCountExhausted(t *testing.T) {
	repo := newFileRepoFake()
	store := newStoreFake()
	ledger := newUsageLedgerFake()
	ledger.counters[model.UsageUploadCount] = model.LimitsFor(model.PlanFree).MaxUploadsPerPeriod
	svc := newFileServiceForTest(repo, store, ledger)

	_, err := svc.Upload(context.Background(), "u1", model.PlanFree, basicUpload("doc.pdf", 200))
	if apperr.From(err).Code != apperr.CodeUploadLimit {
		t.Fatalf("error code = %q, want %q", apperr.From(err).Code, apperr.CodeUploadLimit)
	}
}

func TestUploadRejectsInvalidExpiry(t *testing.T) {
	repo := newFileRepoFake()
	store := newStoreFake()
	svc := newFileServiceForTest(repo, store, newUsageLedgerFake())

	in := basicUpload("doc.pdf", 200)
	in.Expires = "tomorrow"
	_, err := svc.Upload(context.Background(), "u1", model.PlanFree, in)
	if apperr.From(err).Code != apperr.CodeBadRequest {
		t.Fatalf("error code = %q, want %q", apperr.From(err).Code, apperr.CodeBadRequest)
	}
	if len(store.objects) != 0 {
		t.Fatal("rejected upload must not reach storage")
	}
}

func TestUploadStoresObjectAndRecordsUsage(t *testing.T) {
	repo := newFileRepoFake()
	store := newStoreFake()
	ledger := newUsageLedgerFake()
	svc := newFileServiceForTest(repo, store, ledger)

	folder := "reports"
	in := basicUpload("q2.pdf", 5000)
	in.Folder = &folder
	created, err := svc.Upload(context.Background(), "u1", model.PlanFree, in)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	wantPrefix := "u1/reports/" + created.ID + "/"
	if !strings.HasPrefix(created.StorageKey, wantPrefix) || !strings.HasSuffix(created.StorageKey, "/q2.pdf") {
		t.Fatalf("storage key = %q, want %sq2.pdf", created.StorageKey, wantPrefix)
	}
	if !store.objects[created.StorageKey] {
		t.Fatal("object missing from storage")
	}
	if ledger.counters[model.UsageStorageBytes] != 5000 {
		t.Fatalf("storage ledger = %d, want 5000", ledger.counters[model.UsageStorageBytes])
	}
	if ledger.counters[model.UsageUploadCount] != 1 {
		t.Fatalf("upload ledger = %d, want 1", ledger.counters[model.UsageUploadCount])
	}
}

func TestUploadCleansUpObjectWhenRecordInsertFails(t *testing.T) {
	repo := newFileRepoFake()
	repo.createErr = errors.New("insert failed")
	store := newStoreFake()
	ledger := newUsageLedgerFake()
	svc := newFileServiceForTest(repo, store, ledger)

	_, err := svc.Upload(context.Background(), "u1", model.PlanFree, basicUpload("doc.pdf", 200))
	if err == nil {
		t.Fatal("expected error from record insert")
	}
	if len(store.objects) != 0 {
		t.Fatal("orphaned object left in storage after insert failure")
	}
	if ledger.counters[model.UsageStorageBytes] != 0 {
		t.Fatal("failed upload must not touch the ledger")
	}
}

func TestDeleteFileStorageFailureKeepsRecord(t *testing.T) {
	repo := newFileRepoFake()
	store := newStoreFake()
	ledger := newUsageLedgerFake()
	svc := newFileServiceForTest(repo, store, ledger)

	created, err := svc.Upload(context.Background(), "u1", model.PlanFree, basicUpload("doc.pdf", 200))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	store.delErr = errors.New("storage unavailable")
	if err := svc.DeleteFile(context.Background(), "u1", created.ID); err == nil {
		t.Fatal("expected error when object delete fails")
	}

	// The record survives so the delete can be retried.
	got, err := svc.GetFile(context.Background(), "u1", created.ID)
	if err != nil || got == nil {
		t.Fatalf("file should still be live, got %v err %v", got, err)
	}
	if ledger.counters[model.UsageStorageBytes] != 200 {
		t.Fatalf("storage ledger = %d, want 200 untouched", ledger.counters[model.UsageStorageBytes])
	}
}

func TestDeleteFileReleasesStorage(t *testing.T) {
	repo := newFileRepoFake()
	store := newStoreFake()
	ledger := newUsageLedgerFake()
	svc := newFileServiceForTest(repo, store, ledger)
	ctx := context.Background()

	created, err := svc.Upload(ctx, "u1", model.PlanFree, basicUpload("doc.pdf", 200))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if err := svc.DeleteFile(ctx, "u1", created.ID); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}

	if ledger.counters[model.UsageStorageBytes] != 0 {
		t.Fatalf("storage ledger = %d, want 0", ledger.counters[model.UsageStorageBytes])
	}
	if _, err := svc.GetFile(ctx, "u1", created.ID); apperr.From(err).Code != apperr.CodeNotFound {
		t.Fatal("deleted file should not be found")
	}
}

func TestDeleteFileSkipsDecrementWhenRaceLost(t *testing.T) {
	repo := newFileRepoFake()
	store := newStoreFake()
	ledger := newUsageLedgerFake()
	svc := newFileServiceForTest(repo, store, ledger)
	ctx := context.Background()

	created, err := svc.Upload(ctx, "u1", model.PlanFree, basicUpload("doc.pdf", 200))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	repo.forceSoftDeleteMiss = true
	if err := svc.DeleteFile(ctx, "u1", created.ID); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if ledger.counters[model.UsageStorageBytes] != 200 {
		t.Fatalf("losing the soft-delete race must not decrement, ledger = %d", ledger.counters[model.UsageStorageBytes])
	}
}

func TestCreateSignedURLChargesBandwidth(t *testing.T) {
	repo := newFileRepoFake()
	store := newStoreFake()
	ledger := newUsageLedgerFake()
	svc := newFileServiceForTest(repo, store, ledger)
	ctx := context.Background()

	created, err := svc.Upload(ctx, "u1", model.PlanFree, basicUpload("doc.pdf", 4096))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	url, err := svc.CreateSignedURL(ctx, "u1", created.ID, time.Hour)
	if err != nil {
		t.Fatalf("CreateSignedURL: %v", err)
	}
	if !strings.Contains(url, created.StorageKey) {
		t.Fatalf("signed URL %q does not reference the object", url)
	}
	if ledger.counters[model.UsageBandwidthBytes] != 4096 {
		t.Fatalf("bandwidth ledger = %d, want 4096", ledger.counters[model.UsageBandwidthBytes])
	}
}

func TestListFilesPaginates(t *testing.T) {
	repo := newFileRepoFake()
	store := newStoreFake()
	svc := newFileServiceForTest(repo, store, newUsageLedgerFake())
	ctx := context.Background()

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		if _, err := svc.Upload(ctx, "u1", model.PlanFree, basicUpload(name, 10)); err != nil {
			t.Fatalf("Upload %s: %v", name, err)
		}
	}

	page1, cursor, err := svc.ListFiles(ctx, "u1", "", 2, "")
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(page1) != 2 || cursor == "" {
		t.Fatalf("page 1 = %d files, cursor %q; want 2 files and a cursor", len(page1), cursor)
	}
	if page1[0].Name != "c.txt" {
		t.Fatalf("first file = %s, want newest first", page1[0].Name)
	}

	page2, cursor2, err := svc.ListFiles(ctx, "u1", "", 2, cursor)
	if err != nil {
		t.Fatalf("ListFiles page 2: %v", err)
	}
	if len(page2) != 1 || cursor2 != "" {
		t.Fatalf("page 2 = %d files, cursor %q; want 1 file and no cursor", len(page2), cursor2)
	}
	if page2[0].Name != "a.txt" {
		t.Fatalf("page 2 file = %s, want a.txt", page2[0].Name)
	}
}

func TestListFilesRejectsMalformedCursor(t *testing.T) {
	svc := newFileServiceForTest(newFileRepoFake(), newStoreFake(), newUsageLedgerFake())

	_, _, err := svc.ListFiles(context.Background(), "u1", "", 10, "not-base64!!")
	if apperr.From(err).Code != apperr.CodeBadRequest {
		t.Fatalf("error code = %q, want %q", apperr.From(err).Code, apperr.CodeBadRequest)
	}
}

func TestListFolderContentsAggregatesDirectChildren(t *testing.T) {
	repo := newFileRepoFake()
	store := newStoreFake()
	svc := newFileServiceForTest(repo, store, newUsageLedgerFake())
	ctx := context.Background()

	uploads := []struct {
		name   string
		folder string
		size   int64
	}{
		{"root.txt", "", 10},
		{"a.txt", "docs", 100},
		{"b.txt", "docs/2025", 200},
		{"c.txt", "pics", 50},
	}
	for _, u := range uploads {
		in := basicUpload(u.name, u.size)
		if u.folder != "" {
			folder := u.folder
			in.Folder = &folder
		}
		if _, err := svc.Upload(ctx, "u1", model.PlanPro, in); err != nil {
			t.Fatalf("Upload %s: %v", u.name, err)
		}
	}

	folders, files, _, err := svc.ListFolderContents(ctx, "u1", nil, 50, "")
	if err != nil {
		t.Fatalf("ListFolderContents: %v", err)
	}

	if len(files) != 1 || files[0].Name != "root.txt" {
		t.Fatalf("root files = %+v, want just root.txt", files)
	}
	if len(folders) != 2 {
		t.Fatalf("folders = %+v, want docs and pics", folders)
	}
	if folders[0].Name != "docs" || folders[0].SizeBytes != 300 || folders[0].FileCount != 2 {
		t.Fatalf("docs aggregate = %+v, want size 300 across 2 files", folders[0])
	}
	if folders[1].Name != "pics" || folders[1].SizeBytes != 50 || folders[1].FileCount != 1 {
		t.Fatalf("pics aggregate = %+v, want size 50 with 1 file", folders[1])
	}
}
