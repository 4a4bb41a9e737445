package usage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/quanghuyng/feastly-backend/pkg/config"
	"github.com/quanghuyng/feastly-backend/pkg/db/models"
	"github.com/quanghuyng/feastly-backend/pkg/enums"
	pkgerrors "github.com/quanghuyng/feastly-backend/pkg/errors"
)

type fakeSubscriptionSource struct {
	byUser map[uuid.UUID]*models.Subscription
	byID   map[uuid.UUID]*models.Subscription
	err    error
}

func (f *fakeSubscriptionSource) FindActiveByUserID(_ context.Context, userID uuid.UUID) (*models.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byUser[userID], nil
}

func (f *fakeSubscriptionSource) FindByID(_ context.Context, id uuid.UUID) (*models.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byID[id], nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:usage_%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	plans := `
CREATE TABLE IF NOT EXISTS plans (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL DEFAULT 'active',
  monthly_price TEXT NOT NULL DEFAULT '0',
  yearly_price TEXT,
  currency_code TEXT NOT NULL DEFAULT 'VND',
  sort_order INTEGER NOT NULL DEFAULT 0,
  max_recipe_generations INTEGER NOT NULL DEFAULT 0,
  max_video_generations INTEGER NOT NULL DEFAULT 0,
  max_community_posts INTEGER NOT NULL DEFAULT 0,
  max_community_comments INTEGER NOT NULL DEFAULT 0,
  capabilities TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	subscriptions := `
CREATE TABLE IF NOT EXISTS subscriptions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL UNIQUE,
  plan_id TEXT NOT NULL,
  status TEXT NOT NULL,
  billing_cycle TEXT NOT NULL,
  start_date DATETIME NOT NULL,
  next_billing_date DATETIME NOT NULL,
  end_date DATETIME,
  auto_renew INTEGER NOT NULL DEFAULT 1,
  canceled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	usageQuotas := `
CREATE TABLE IF NOT EXISTS usage_quotas (
  id TEXT PRIMARY KEY,
  subscription_id TEXT NOT NULL,
  feature TEXT NOT NULL,
  remaining INTEGER NOT NULL DEFAULT 0,
  limit_value INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (subscription_id, feature)
);`
	for _, ddl := range []string{plans, subscriptions, usageQuotas} {
		require.NoError(t, gdb.Exec(ddl).Error)
	}
	return gdb
}

func proPlan() *models.Plan {
	return &models.Plan{
		ID:                   uuid.New(),
		Name:                 "Pro",
		Status:               enums.PlanStatusActive,
		MaxRecipeGenerations: 50,
		MaxVideoGenerations:  10,
		MaxCommunityPosts:    30,
		MaxCommunityComments: 100,
	}
}

func seedSubscription(t *testing.T, gdb *gorm.DB, plan *models.Plan, userID uuid.UUID) *models.Subscription {
	t.Helper()
	require.NoError(t, gdb.Create(plan).Error)
	sub := &models.Subscription{
		ID:              uuid.New(),
		UserID:          userID,
		PlanID:          plan.ID,
		Status:          enums.SubscriptionStatusActive,
		BillingCycle:    enums.BillingCycleMonthly,
		StartDate:       time.Now().UTC(),
		NextBillingDate: time.Now().UTC().AddDate(0, 1, 0),
		AutoRenew:       true,
		Plan:            plan,
	}
	require.NoError(t, gdb.Omit("Plan", "Quotas").Create(sub).Error)
	return sub
}

func newTestService(t *testing.T, gdb *gorm.DB, subs *fakeSubscriptionSource) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:          NewRepository(gdb),
		Subscriptions: subs,
		FreeTier: config.FreeTierConfig{
			RecipeGenerations: 5,
			VideoGenerations:  1,
			CommunityPosts:    3,
			CommunityComments: 10,
		},
	})
	require.NoError(t, err)
	return svc
}

func TestCheckWithoutSubscriptionFallsBackToFreeTier(t *testing.T) {
	gdb := openTestDB(t)
	svc := newTestService(t, gdb, &fakeSubscriptionSource{})

	result, err := svc.Check(context.Background(), uuid.New(), enums.FeatureTypeRecipeGeneration)
	require.NoError(t, err)
	assert.False(t, result.CanUse)
	assert.Equal(t, 0, result.Remaining)
	assert.Equal(t, 5, result.Total)
	assert.Equal(t, "Pro", result.SuggestedPlan)
}

func TestCheckReportsQuotaForActiveSubscription(t *testing.T) {
	gdb := openTestDB(t)
	userID := uuid.New()
	sub := seedSubscription(t, gdb, proPlan(), userID)
	subs := &fakeSubscriptionSource{
		byUser: map[uuid.UUID]*models.Subscription{userID: sub},
		byID:   map[uuid.UUID]*models.Subscription{sub.ID: sub},
	}
	svc := newTestService(t, gdb, subs)

	require.NoError(t, svc.ResetForSubscription(context.Background(), sub.ID))

	result, err := svc.Check(context.Background(), userID, enums.FeatureTypeVideoGeneration)
	require.NoError(t, err)
	assert.True(t, result.CanUse)
	assert.Equal(t, 10, result.Remaining)
	assert.Equal(t, 10, result.Total)
	assert.Empty(t, result.SuggestedPlan)
}

func TestDecrementConsumesOneUnit(t *testing.T) {
	gdb := openTestDB(t)
	userID := uuid.New()
	sub := seedSubscription(t, gdb, proPlan(), userID)
	subs := &fakeSubscriptionSource{
		byUser: map[uuid.UUID]*models.Subscription{userID: sub},
		byID:   map[uuid.UUID]*models.Subscription{sub.ID: sub},
	}
	svc := newTestService(t, gdb, subs)
	require.NoError(t, svc.ResetForSubscription(context.Background(), sub.ID))

	require.NoError(t, svc.Decrement(context.Background(), userID, enums.FeatureTypeVideoGeneration, 1))

	result, err := svc.Check(context.Background(), userID, enums.FeatureTypeVideoGeneration)
	require.NoError(t, err)
	assert.Equal(t, 9, result.Remaining)
}

func TestDecrementExhaustedQuotaFailsWithUpgradeHint(t *testing.T) {
	gdb := openTestDB(t)
	userID := uuid.New()
	sub := seedSubscription(t, gdb, proPlan(), userID)
	subs := &fakeSubscriptionSource{
		byUser: map[uuid.UUID]*models.Subscription{userID: sub},
		byID:   map[uuid.UUID]*models.Subscription{sub.ID: sub},
	}
	svc := newTestService(t, gdb, subs)
	require.NoError(t, svc.ResetForSubscription(context.Background(), sub.ID))

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, svc.Decrement(ctx, userID, enums.FeatureTypeVideoGeneration, 1))
	}

	err := svc.Decrement(ctx, userID, enums.FeatureTypeVideoGeneration, 1)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeQuotaExceeded))

	result, checkErr := svc.Check(ctx, userID, enums.FeatureTypeVideoGeneration)
	require.NoError(t, checkErr)
	assert.False(t, result.CanUse)
	assert.Equal(t, 0, result.Remaining)
	assert.Equal(t, "Premium", result.SuggestedPlan)
}

func TestConcurrentDecrementsNeverOversell(t *testing.T) {
	gdb := openTestDB(t)
	userID := uuid.New()
	sub := seedSubscription(t, gdb, proPlan(), userID)
	subs := &fakeSubscriptionSource{
		byUser: map[uuid.UUID]*models.Subscription{userID: sub},
		byID:   map[uuid.UUID]*models.Subscription{sub.ID: sub},
	}
	svc := newTestService(t, gdb, subs)
	require.NoError(t, svc.ResetForSubscription(context.Background(), sub.ID))

	const workers = 25
	var wg sync.WaitGroup
	successes := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.Decrement(context.Background(), userID, enums.FeatureTypeVideoGeneration, 1); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	assert.Equal(t, 10, len(successes), "only the plan limit may be consumed")

	var quota models.UsageQuota
	require.NoError(t, gdb.Where(
		"subscription_id = ? AND feature = ?", sub.ID, enums.FeatureTypeVideoGeneration,
	).First(&quota).Error)
	assert.Equal(t, 0, quota.Remaining)
}

func TestResetForSubscriptionRestoresPlanLimits(t *testing.T) {
	gdb := openTestDB(t)
	userID := uuid.New()
	sub := seedSubscription(t, gdb, proPlan(), userID)
	subs := &fakeSubscriptionSource{
		byUser: map[uuid.UUID]*models.Subscription{userID: sub},
		byID:   map[uuid.UUID]*models.Subscription{sub.ID: sub},
	}
	svc := newTestService(t, gdb, subs)
	ctx := context.Background()
	require.NoError(t, svc.ResetForSubscription(ctx, sub.ID))

	for i := 0; i < 4; i++ {
		require.NoError(t, svc.Decrement(ctx, userID, enums.FeatureTypeVideoGeneration, 1))
	}
	require.NoError(t, svc.ResetForSubscription(ctx, sub.ID))

	result, err := svc.Check(ctx, userID, enums.FeatureTypeVideoGeneration)
	require.NoError(t, err)
	assert.Equal(t, 10, result.Remaining)
	assert.Equal(t, 10, result.Total)
}

func TestHasCapability(t *testing.T) {
	gdb := openTestDB(t)
	userID := uuid.New()
	plan := proPlan()
	plan.Capabilities = []string{string(enums.CapabilityPremiumTemplates)}
	sub := seedSubscription(t, gdb, plan, userID)
	subs := &fakeSubscriptionSource{byUser: map[uuid.UUID]*models.Subscription{userID: sub}}
	svc := newTestService(t, gdb, subs)

	got, err := svc.HasCapability(context.Background(), userID, enums.CapabilityPremiumTemplates)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = svc.HasCapability(context.Background(), userID, enums.CapabilityPrioritySupport)
	require.NoError(t, err)
	assert.False(t, got)

	got, err = svc.HasCapability(context.Background(), uuid.New(), enums.CapabilityPremiumTemplates)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestOverviewWithoutSubscriptionShowsFreeCeilings(t *testing.T) {
	gdb := openTestDB(t)
	svc := newTestService(t, gdb, &fakeSubscriptionSource{})

	snapshot, err := svc.Overview(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "Free", snapshot.PlanName)
	require.Len(t, snapshot.Features, len(enums.AllFeatureTypes()))
	for _, row := range snapshot.Features {
		assert.Equal(t, 0, row.Remaining)
	}
}
