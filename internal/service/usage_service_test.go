package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"app/internal/clock"
	"app/internal/model"

	"github.com/rs/zerolog"
)

type usageRepoFake struct {
	rows map[string]*model.Usage
}

func newUsageRepoFake() *usageRepoFake {
	return &usageRepoFake{rows: make(map[string]*model.Usage)}
}

func usageRowKey(userID string, period time.Time) string {
	return fmt.Sprintf("%s|%s", userID, period.Format("2006-01-02"))
}

func (f *usageRepoFake) FindCurrent(ctx context.Context, userID string, periodStart time.Time) (*model.Usage, error) {
	row, ok := f.rows[usageRowKey(userID, periodStart)]
	if !ok {
		return nil, nil
	}
	copied := *row
	return &copied, nil
}

func (f *usageRepoFake) Apply(ctx context.Context, userID string, periodStart time.Time, field model.UsageField, delta int64) error {
	if !field.Valid() {
		return fmt.Errorf("invalid usage field: %s", field)
	}
	k := usageRowKey(userID, periodStart)
	row, ok := f.rows[k]
	if !ok {
		row = &model.Usage{UserID: userID, PeriodStart: periodStart}
		f.rows[k] = row
	}
	apply := func(current int64) int64 {
		next := current + delta
		if next < 0 {
			return 0
		}
		return next
	}
	switch field {
	case model.UsageStorageBytes:
		row.StorageBytes = apply(row.StorageBytes)
	case model.UsageBandwidthBytes:
		row.BandwidthBytes = apply(row.BandwidthBytes)
	case model.UsageUploadCount:
		row.UploadCount = apply(row.UploadCount)
	}
	return nil
}

func TestCurrentUsageDefaultsToZeroedPeriod(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 15, 13, 45, 0, 0, time.UTC))
	svc := NewUsageService(newUsageRepoFake(), clk, zerolog.Nop())

	usage, err := svc.CurrentUsage(context.Background(), "u1")
	if err != nil {
		t.Fatalf("CurrentUsage: %v", err)
	}
	wantPeriod := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if !usage.PeriodStart.Equal(wantPeriod) {
		t.Fatalf("period start = %v, want %v", usage.PeriodStart, wantPeriod)
	}
	if usage.StorageBytes != 0 || usage.BandwidthBytes != 0 || usage.UploadCount != 0 {
		t.Fatalf("fresh usage should be zeroed, got %+v", usage)
	}
}

func TestIncrementAndDecrement(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC))
	svc := NewUsageService(newUsageRepoFake(), clk, zerolog.Nop())
	ctx := context.Background()

	if err := svc.Increment(ctx, "u1", model.UsageStorageBytes, 1000); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if err := svc.Decrement(ctx, "u1", model.UsageStorageBytes, 400); err != nil {
		t.Fatalf("Decrement: %v", err)
	}

	usage, err := svc.CurrentUsage(ctx, "u1")
	if err != nil {
		t.Fatalf("CurrentUsage: %v", err)
	}
	if usage.StorageBytes != 600 {
		t.Fatalf("storage = %d, want 600", usage.StorageBytes)
	}
}

func TestDecrementClampsAtZero(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC))
	svc := NewUsageService(newUsageRepoFake(), clk, zerolog.Nop())
	ctx := context.Background()

	if err := svc.Increment(ctx, "u1", model.UsageStorageBytes, 100); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	// Two concurrent deletes of the same file can both decrement; the
	// counter must not go negative.
	if err := svc.Decrement(ctx, "u1", model.UsageStorageBytes, 300); err != nil {
		t.Fatalf("Decrement: %v", err)
	}

	usage, _ := svc.CurrentUsage(ctx, "u1")
	if usage.StorageBytes != 0 {
		t.Fatalf("storage = %d, want 0", usage.StorageBytes)
	}
}

func TestPeriodRolloverStartsFresh(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 28, 0, 0, 0, 0, time.UTC))
	svc := NewUsageService(newUsageRepoFake(), clk, zerolog.Nop())
	ctx := context.Background()

	if err := svc.Increment(ctx, "u1", model.UsageUploadCount, 5); err != nil {
		t.Fatalf("Increment: %v", err)
	}

	clk.Set(time.Date(2025, 7, 1, 0, 0, 1, 0, time.UTC))
	usage, err := svc.CurrentUsage(ctx, "u1")
	if err != nil {
		t.Fatalf("CurrentUsage: %v", err)
	}
	if usage.UploadCount != 0 {
		t.Fatalf("upload count after rollover = %d, want 0", usage.UploadCount)
	}
	wantPeriod := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	if !usage.PeriodStart.Equal(wantPeriod) {
		t.Fatalf("period start = %v, want %v", usage.PeriodStart, wantPeriod)
	}
}

func TestIsOverLimits(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC))
	svc := NewUsageService(newUsageRepoFake(), clk, zerolog.Nop())
	ctx := context.Background()
	freeStorage := model.LimitsFor(model.PlanFree).MaxStorageBytes

	over, err := svc.IsOverLimits(ctx, "u1", model.PlanFree)
	if err != nil || over {
		t.Fatalf("zero usage should be within limits, over=%v err=%v", over, err)
	}

	if err := svc.Increment(ctx, "u1", model.UsageStorageBytes, freeStorage); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	over, _ = svc.IsOverLimits(ctx, "u1", model.PlanFree)
	if over {
		t.Fatal("usage exactly at the limit is not over")
	}

	if err := svc.Increment(ctx, "u1", model.UsageStorageBytes, 1); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	over, _ = svc.IsOverLimits(ctx, "u1", model.PlanFree)
	if !over {
		t.Fatal("usage above the storage limit should be over")
	}

	over, _ = svc.IsOverLimits(ctx, "u1", model.PlanHobby)
	if over {
		t.Fatal("the same usage fits the hobby plan")
	}
}
