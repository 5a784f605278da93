package service

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"app/internal/clock"
	"app/internal/model"

	"github.com/rs/zerolog"
)

type subRepoFake struct {
	byUser map[string]*model.Subscription
	nextID int
}

func newSubRepoFake() *subRepoFake {
	return &subRepoFake{byUser: make(map[string]*model.Subscription)}
}

func (f *subRepoFake) FindByUserID(ctx context.Context, userID string) (*model.Subscription, error) {
	sub, ok := f.byUser[userID]
	if !ok {
		return nil, nil
	}
	copied := *sub
	return &copied, nil
}

func (f *subRepoFake) FindByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*model.Subscription, error) {
	for _, sub := range f.byUser {
		if sub.StripeSubscriptionID != nil && *sub.StripeSubscriptionID == stripeSubscriptionID {
			copied := *sub
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *subRepoFake) findByID(id string) *model.Subscription {
	for _, sub := range f.byUser {
		if sub.ID == id {
			return sub
		}
	}
	return nil
}

func (f *subRepoFake) UpsertFromProvider(ctx context.Context, userID string, plan model.PlanTier, status model.SubscriptionStatus, stripeSubscriptionID, stripePriceID string, periodStart, periodEnd *time.Time, cancelAtPeriodEnd bool) error {
	sub, ok := f.byUser[userID]
	if !ok {
		f.nextID++
		sub = &model.Subscription{ID: fmt.Sprintf("sub_%d", f.nextID), UserID: userID}
		f.byUser[userID] = sub
	}
	sub.Plan = plan
	sub.Status = status
	sub.StripeSubscriptionID = &stripeSubscriptionID
	sub.StripePriceID = &stripePriceID
	if periodStart != nil {
		sub.CurrentPeriodStart = periodStart
	}
	if periodEnd != nil {
		sub.CurrentPeriodEnd = periodEnd
	}
	sub.CancelAtPeriodEnd = cancelAtPeriodEnd
	sub.GracePeriodEndsAt = nil
	return nil
}

func (f *subRepoFake) UpsertDefault(ctx context.Context, userID string) error {
	if _, ok := f.byUser[userID]; ok {
		return nil
	}
	f.nextID++
	f.byUser[userID] = &model.Subscription{
		ID:     fmt.Sprintf("sub_%d", f.nextID),
		UserID: userID,
		Plan:   model.PlanFree,
		Status: model.StatusActive,
	}
	return nil
}

func (f *subRepoFake) StartGracePeriod(ctx context.Context, userID string, targetPlan model.PlanTier, endsAt time.Time) error {
	sub, ok := f.byUser[userID]
	if !ok {
		return nil
	}
	sub.Status = model.StatusGracePeriod
	sub.Plan = targetPlan
	sub.GracePeriodEndsAt = &endsAt
	sub.CancelAtPeriodEnd = false
	return nil
}

func (f *subRepoFake) CompleteGracePeriod(ctx context.Context, id string) error {
	if sub := f.findByID(id); sub != nil {
		sub.Status = model.StatusCanceled
		sub.GracePeriodEndsAt = nil
	}
	return nil
}

func (f *subRepoFake) SetStatus(ctx context.Context, id string, status model.SubscriptionStatus) error {
	if sub := f.findByID(id); sub != nil {
		sub.Status = status
	}
	return nil
}

func (f *subRepoFake) FindExpiredGracePeriods(ctx context.Context, cutoff time.Time, limit int) ([]model.Subscription, error) {
	var out []model.Subscription
	for _, sub := range f.byUser {
		if sub.Status == model.StatusGracePeriod && sub.GracePeriodEndsAt != nil && sub.GracePeriodEndsAt.Before(cutoff) {
			out = append(out, *sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GracePeriodEndsAt.Before(*out[j].GracePeriodEndsAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// usageOverFake satisfies UsageService with a fixed IsOverLimits answer.
type usageOverFake struct {
	over bool
}

func (f *usageOverFake) CurrentUsage(ctx context.Context, userID string) (*model.Usage, error) {
	return &model.Usage{UserID: userID}, nil
}

func (f *usageOverFake) Increment(ctx context.Context, userID string, field model.UsageField, amount int64) error {
	return nil
}

func (f *usageOverFake) Decrement(ctx context.Context, userID string, field model.UsageField, amount int64) error {
	return nil
}

func (f *usageOverFake) IsOverLimits(ctx context.Context, userID string, plan model.PlanTier) (bool, error) {
	return f.over, nil
}

func (f *usageOverFake) PeriodStart() time.Time {
	return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
}

func newSubService(repo *subRepoFake, over bool, clk clock.Clock) SubscriptionService {
	return NewSubscriptionService(repo, &usageOverFake{over: over}, clk, zerolog.Nop())
}

func seedProviderSub(repo *subRepoFake, userID, providerID string, plan model.PlanTier, status model.SubscriptionStatus) {
	repo.nextID++
	repo.byUser[userID] = &model.Subscription{
		ID:                   fmt.Sprintf("sub_%d", repo.nextID),
		UserID:               userID,
		Plan:                 plan,
		Status:               status,
		StripeSubscriptionID: &providerID,
	}
}

func TestGetSubscriptionCreatesFreeDefault(t *testing.T) {
	repo := newSubRepoFake()
	svc := newSubService(repo, false, clock.NewFake(time.Now()))

	sub, err := svc.GetSubscription(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	if sub.Plan != model.PlanFree || sub.Status != model.StatusActive {
		t.Fatalf("default subscription = %s/%s, want free/active", sub.Plan, sub.Status)
	}
}

func TestPlanForUserResolvesCanceledToFree(t *testing.T) {
	repo := newSubRepoFake()
	seedProviderSub(repo, "u1", "stripe_1", model.PlanPro, model.StatusCanceled)
	svc := newSubService(repo, false, clock.NewFake(time.Now()))

	plan, err := svc.PlanForUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("PlanForUser: %v", err)
	}
	if plan != model.PlanFree {
		t.Fatalf("plan = %s, want free", plan)
	}
}

func TestApplySnapshotUpsertsActiveState(t *testing.T) {
	repo := newSubRepoFake()
	svc := newSubService(repo, false, clock.NewFake(time.Now()))

	snap := model.SubscriptionSnapshot{
		ProviderSubscriptionID: "stripe_1",
		PriceID:                "price_pro",
		Plan:                   model.PlanPro,
		ProviderStatus:         "active",
	}
	if err := svc.ApplySubscriptionSnapshot(context.Background(), "u1", snap); err != nil {
		t.Fatalf("ApplySubscriptionSnapshot: %v", err)
	}

	sub := repo.byUser["u1"]
	if sub == nil {
		t.Fatal("no subscription row created")
	}
	if sub.Plan != model.PlanPro || sub.Status != model.StatusActive {
		t.Fatalf("subscription = %s/%s, want pro/active", sub.Plan, sub.Status)
	}
}

func TestApplySnapshotDowngradeOverLimitsStartsGrace(t *testing.T) {
	repo := newSubRepoFake()
	seedProviderSub(repo, "u1", "stripe_1", model.PlanPro, model.StatusActive)
	clk := clock.NewFake(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	svc := newSubService(repo, true, clk)

	snap := model.SubscriptionSnapshot{
		ProviderSubscriptionID: "stripe_1",
		Plan:                   model.PlanHobby,
		ProviderStatus:         "active",
	}
	if err := svc.ApplySubscriptionSnapshot(context.Background(), "u1", snap); err != nil {
		t.Fatalf("ApplySubscriptionSnapshot: %v", err)
	}

	sub := repo.byUser["u1"]
	if sub.Status != model.StatusGracePeriod {
		t.Fatalf("status = %s, want grace_period", sub.Status)
	}
	if sub.Plan != model.PlanHobby {
		t.Fatalf("grace target plan = %s, want hobby", sub.Plan)
	}
	wantDeadline := clk.Now().Add(GracePeriodDays * 24 * time.Hour)
	if sub.GracePeriodEndsAt == nil || !sub.GracePeriodEndsAt.Equal(wantDeadline) {
		t.Fatalf("deadline = %v, want %v", sub.GracePeriodEndsAt, wantDeadline)
	}
}

func TestApplySnapshotDowngradeWithinLimitsApplies(t *testing.T) {
	repo := newSubRepoFake()
	seedProviderSub(repo, "u1", "stripe_1", model.PlanPro, model.StatusActive)
	svc := newSubService(repo, false, clock.NewFake(time.Now()))

	snap := model.SubscriptionSnapshot{
		ProviderSubscriptionID: "stripe_1",
		Plan:                   model.PlanHobby,
		ProviderStatus:         "active",
	}
	if err := svc.ApplySubscriptionSnapshot(context.Background(), "u1", snap); err != nil {
		t.Fatalf("ApplySubscriptionSnapshot: %v", err)
	}

	sub := repo.byUser["u1"]
	if sub.Plan != model.PlanHobby || sub.Status != model.StatusActive {
		t.Fatalf("subscription = %s/%s, want hobby/active", sub.Plan, sub.Status)
	}
}

func TestApplySnapshotCanceledStatusAppliesDirectly(t *testing.T) {
	repo := newSubRepoFake()
	seedProviderSub(repo, "u1", "stripe_1", model.PlanPro, model.StatusActive)
	svc := newSubService(repo, false, clock.NewFake(time.Now()))

	snap := model.SubscriptionSnapshot{
		ProviderSubscriptionID: "stripe_1",
		Plan:                   model.PlanPro,
		ProviderStatus:         "canceled",
	}
	if err := svc.ApplySubscriptionSnapshot(context.Background(), "u1", snap); err != nil {
		t.Fatalf("ApplySubscriptionSnapshot: %v", err)
	}

	// Only the subscription.deleted event starts a grace period; a canceled
	// status in a snapshot is written through like any other field.
	sub := repo.byUser["u1"]
	if sub.Status != model.StatusCanceled {
		t.Fatalf("status = %s, want canceled applied directly", sub.Status)
	}
	if sub.GracePeriodEndsAt != nil {
		t.Fatalf("grace deadline = %v, want none", sub.GracePeriodEndsAt)
	}

	// The canceled row still resolves to the free plan.
	plan, err := svc.PlanForUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("PlanForUser: %v", err)
	}
	if plan != model.PlanFree {
		t.Fatalf("plan = %s, want free", plan)
	}
}

func TestApplySnapshotActiveClearsGraceDeadline(t *testing.T) {
	repo := newSubRepoFake()
	seedProviderSub(repo, "u1", "stripe_1", model.PlanFree, model.StatusGracePeriod)
	deadline := time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)
	repo.byUser["u1"].GracePeriodEndsAt = &deadline
	svc := newSubService(repo, false, clock.NewFake(time.Now()))

	snap := model.SubscriptionSnapshot{
		ProviderSubscriptionID: "stripe_2",
		Plan:                   model.PlanHobby,
		ProviderStatus:         "active",
	}
	if err := svc.ApplySubscriptionSnapshot(context.Background(), "u1", snap); err != nil {
		t.Fatalf("ApplySubscriptionSnapshot: %v", err)
	}

	sub := repo.byUser["u1"]
	if sub.Status != model.StatusActive || sub.Plan != model.PlanHobby {
		t.Fatalf("subscription = %s/%s, want active/hobby", sub.Status, sub.Plan)
	}
	if sub.GracePeriodEndsAt != nil {
		t.Fatal("resubscribing should clear the grace deadline")
	}
}

func TestHandleSubscriptionDeletedStartsGraceToFree(t *testing.T) {
	repo := newSubRepoFake()
	seedProviderSub(repo, "u1", "stripe_1", model.PlanPro, model.StatusActive)
	svc := newSubService(repo, false, clock.NewFake(time.Now()))

	if err := svc.HandleSubscriptionDeleted(context.Background(), "stripe_1"); err != nil {
		t.Fatalf("HandleSubscriptionDeleted: %v", err)
	}

	sub := repo.byUser["u1"]
	if sub.Status != model.StatusGracePeriod || sub.Plan != model.PlanFree {
		t.Fatalf("subscription = %s/%s, want grace_period/free", sub.Status, sub.Plan)
	}
}

func TestHandlePaymentFailedKeepsCurrentPlanAsTarget(t *testing.T) {
	repo := newSubRepoFake()
	seedProviderSub(repo, "u1", "stripe_1", model.PlanPro, model.StatusActive)
	svc := newSubService(repo, false, clock.NewFake(time.Now()))

	if err := svc.HandlePaymentFailed(context.Background(), "stripe_1"); err != nil {
		t.Fatalf("HandlePaymentFailed: %v", err)
	}

	sub := repo.byUser["u1"]
	if sub.Status != model.StatusGracePeriod {
		t.Fatalf("status = %s, want grace_period", sub.Status)
	}
	if sub.Plan != model.PlanPro {
		t.Fatalf("grace target = %s, want the current pro plan", sub.Plan)
	}
}

func TestProviderEventsForUnknownSubscriptionsAreDropped(t *testing.T) {
	repo := newSubRepoFake()
	svc := newSubService(repo, false, clock.NewFake(time.Now()))
	ctx := context.Background()

	if err := svc.HandleSubscriptionDeleted(ctx, "stripe_missing"); err != nil {
		t.Fatalf("HandleSubscriptionDeleted: %v", err)
	}
	if err := svc.HandlePaymentFailed(ctx, "stripe_missing"); err != nil {
		t.Fatalf("HandlePaymentFailed: %v", err)
	}
	if err := svc.HandlePaymentSucceeded(ctx, "stripe_missing"); err != nil {
		t.Fatalf("HandlePaymentSucceeded: %v", err)
	}
	if len(repo.byUser) != 0 {
		t.Fatal("unknown provider events must not create rows")
	}
}

func TestHandlePaymentSucceededOnlyClearsPastDue(t *testing.T) {
	repo := newSubRepoFake()
	seedProviderSub(repo, "u1", "stripe_1", model.PlanPro, model.StatusPastDue)
	seedProviderSub(repo, "u2", "stripe_2", model.PlanFree, model.StatusGracePeriod)
	svc := newSubService(repo, false, clock.NewFake(time.Now()))
	ctx := context.Background()

	if err := svc.HandlePaymentSucceeded(ctx, "stripe_1"); err != nil {
		t.Fatalf("HandlePaymentSucceeded: %v", err)
	}
	if repo.byUser["u1"].Status != model.StatusActive {
		t.Fatalf("past_due subscription should become active, got %s", repo.byUser["u1"].Status)
	}

	if err := svc.HandlePaymentSucceeded(ctx, "stripe_2"); err != nil {
		t.Fatalf("HandlePaymentSucceeded: %v", err)
	}
	if repo.byUser["u2"].Status != model.StatusGracePeriod {
		t.Fatalf("grace_period subscription should be untouched, got %s", repo.byUser["u2"].Status)
	}
}

func TestStartGracePeriodLastCallerWins(t *testing.T) {
	repo := newSubRepoFake()
	seedProviderSub(repo, "u1", "stripe_1", model.PlanPro, model.StatusActive)
	clk := clock.NewFake(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	svc := newSubService(repo, false, clk)
	ctx := context.Background()

	if err := svc.StartGracePeriod(ctx, "u1", model.PlanFree); err != nil {
		t.Fatalf("StartGracePeriod: %v", err)
	}
	first := *repo.byUser["u1"].GracePeriodEndsAt
	wantFirst := clk.Now().Add(GracePeriodDays * 24 * time.Hour)
	if !first.Equal(wantFirst) {
		t.Fatalf("deadline = %v, want %v", first, wantFirst)
	}

	// Re-entering resets the countdown, even for the same target.
	clk.Advance(48 * time.Hour)
	if err := svc.StartGracePeriod(ctx, "u1", model.PlanFree); err != nil {
		t.Fatalf("StartGracePeriod again: %v", err)
	}
	wantReset := clk.Now().Add(GracePeriodDays * 24 * time.Hour)
	if !repo.byUser["u1"].GracePeriodEndsAt.Equal(wantReset) {
		t.Fatalf("deadline = %v, want %v reset from the latest call", repo.byUser["u1"].GracePeriodEndsAt, wantReset)
	}

	// A different target also overwrites the plan.
	if err := svc.StartGracePeriod(ctx, "u1", model.PlanHobby); err != nil {
		t.Fatalf("StartGracePeriod new target: %v", err)
	}
	if repo.byUser["u1"].Plan != model.PlanHobby {
		t.Fatalf("target plan = %s, want hobby", repo.byUser["u1"].Plan)
	}
}

func TestGracePeriodDaysRemaining(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := newSubService(newSubRepoFake(), false, clk)

	deadline := clk.Now().Add(13*24*time.Hour + time.Hour)
	sub := &model.Subscription{Status: model.StatusGracePeriod, GracePeriodEndsAt: &deadline}
	if got := svc.GracePeriodDaysRemaining(sub); got == nil || *got != 14 {
		t.Fatalf("days remaining = %v, want 14 (partial days round up)", got)
	}

	past := clk.Now().Add(-time.Hour)
	sub.GracePeriodEndsAt = &past
	if got := svc.GracePeriodDaysRemaining(sub); got == nil || *got != 0 {
		t.Fatalf("days remaining past deadline = %v, want 0", got)
	}

	active := &model.Subscription{Status: model.StatusActive}
	if got := svc.GracePeriodDaysRemaining(active); got != nil {
		t.Fatalf("days remaining for active subscription = %v, want nil", got)
	}
}
