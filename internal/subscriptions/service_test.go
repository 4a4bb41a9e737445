package subscriptions

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/quanghuyng/feastly-backend/internal/usage"
	"github.com/quanghuyng/feastly-backend/pkg/db/models"
	"github.com/quanghuyng/feastly-backend/pkg/enums"
	pkgerrors "github.com/quanghuyng/feastly-backend/pkg/errors"
)

type fakePlanCatalog struct {
	plans map[uuid.UUID]*models.Plan
}

func (f *fakePlanCatalog) GetActive(_ context.Context, id uuid.UUID) (*models.Plan, error) {
	plan, ok := f.plans[id]
	if !ok || plan.Status != enums.PlanStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	return plan, nil
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:subs_%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	ddl := []string{`
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
);`, `
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
);`, `
CREATE TABLE IF NOT EXISTS usage_quotas (
  id TEXT PRIMARY KEY,
  subscription_id TEXT NOT NULL,
  feature TEXT NOT NULL,
  remaining INTEGER NOT NULL DEFAULT 0,
  limit_value INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (subscription_id, feature)
);`}
	for _, stmt := range ddl {
		require.NoError(t, gdb.Exec(stmt).Error)
	}
	return gdb
}

func seedPlan(t *testing.T, gdb *gorm.DB, name string, videoLimit int) *models.Plan {
	t.Helper()
	plan := &models.Plan{
		ID:                   uuid.New(),
		Name:                 name,
		Status:               enums.PlanStatusActive,
		MaxRecipeGenerations: 50,
		MaxVideoGenerations:  videoLimit,
		MaxCommunityPosts:    30,
		MaxCommunityComments: 100,
	}
	require.NoError(t, gdb.Create(plan).Error)
	return plan
}

func newLifecycleService(t *testing.T, gdb *gorm.DB, catalog *fakePlanCatalog) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:              NewRepository(gdb),
		Quotas:            usage.NewRepository(gdb),
		Plans:             catalog,
		TransactionRunner: gormTxRunner{db: gdb},
	})
	require.NoError(t, err)
	return svc
}

func quotaFor(t *testing.T, gdb *gorm.DB, subID uuid.UUID, feature enums.FeatureType) models.UsageQuota {
	t.Helper()
	var quota models.UsageQuota
	require.NoError(t, gdb.Where(
		"subscription_id = ? AND feature = ?", subID, feature,
	).First(&quota).Error)
	return quota
}

func TestCreateInitializesQuotasFromPlan(t *testing.T) {
	gdb := openTestDB(t)
	plan := seedPlan(t, gdb, "Pro", 10)
	catalog := &fakePlanCatalog{plans: map[uuid.UUID]*models.Plan{plan.ID: plan}}
	svc := newLifecycleService(t, gdb, catalog)

	userID := uuid.New()
	sub, err := svc.Create(context.Background(), CreateInput{
		UserID:       userID,
		PlanID:       plan.ID,
		BillingCycle: enums.BillingCycleMonthly,
		AutoRenew:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusActive, sub.Status)
	assert.True(t, sub.NextBillingDate.After(sub.StartDate))
	assert.WithinDuration(t, sub.StartDate.AddDate(0, 1, 0), sub.NextBillingDate, time.Second)

	quota := quotaFor(t, gdb, sub.ID, enums.FeatureTypeVideoGeneration)
	assert.Equal(t, 10, quota.Remaining)
	assert.Equal(t, 10, quota.LimitValue)
}

func TestCreateRejectsDuplicateActiveSubscription(t *testing.T) {
	gdb := openTestDB(t)
	plan := seedPlan(t, gdb, "Pro", 10)
	catalog := &fakePlanCatalog{plans: map[uuid.UUID]*models.Plan{plan.ID: plan}}
	svc := newLifecycleService(t, gdb, catalog)

	userID := uuid.New()
	input := CreateInput{UserID: userID, PlanID: plan.ID, BillingCycle: enums.BillingCycleMonthly, AutoRenew: true}
	_, err := svc.Create(context.Background(), input)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), input)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict))
}

func TestCreateAfterCancelReusesRow(t *testing.T) {
	gdb := openTestDB(t)
	plan := seedPlan(t, gdb, "Pro", 10)
	catalog := &fakePlanCatalog{plans: map[uuid.UUID]*models.Plan{plan.ID: plan}}
	svc := newLifecycleService(t, gdb, catalog)
	ctx := context.Background()

	userID := uuid.New()
	input := CreateInput{UserID: userID, PlanID: plan.ID, BillingCycle: enums.BillingCycleMonthly, AutoRenew: true}
	first, err := svc.Create(ctx, input)
	require.NoError(t, err)

	canceled, err := svc.Cancel(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusCanceled, canceled.Status)
	assert.NotNil(t, canceled.CanceledAt)
	assert.False(t, canceled.AutoRenew)

	second, err := svc.Create(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "re-subscribe must reuse the existing row")
	assert.Equal(t, enums.SubscriptionStatusActive, second.Status)
	assert.Nil(t, second.CanceledAt)

	var count int64
	require.NoError(t, gdb.Model(&models.Subscription{}).Where("user_id = ?", userID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestUpdatePlanChangeResetsQuotas(t *testing.T) {
	gdb := openTestDB(t)
	planA := seedPlan(t, gdb, "Pro", 10)
	planB := seedPlan(t, gdb, "Premium", 50)
	catalog := &fakePlanCatalog{plans: map[uuid.UUID]*models.Plan{planA.ID: planA, planB.ID: planB}}
	svc := newLifecycleService(t, gdb, catalog)
	ctx := context.Background()

	userID := uuid.New()
	sub, err := svc.Create(ctx, CreateInput{UserID: userID, PlanID: planA.ID, BillingCycle: enums.BillingCycleMonthly, AutoRenew: true})
	require.NoError(t, err)

	// Drain the counter to zero before upgrading.
	require.NoError(t, gdb.Model(&models.UsageQuota{}).
		Where("subscription_id = ? AND feature = ?", sub.ID, enums.FeatureTypeVideoGeneration).
		Update("remaining", 0).Error)

	updated, err := svc.Update(ctx, userID, UpdateInput{PlanID: &planB.ID})
	require.NoError(t, err)
	assert.Equal(t, planB.ID, updated.PlanID)

	quota := quotaFor(t, gdb, sub.ID, enums.FeatureTypeVideoGeneration)
	assert.Equal(t, 50, quota.Remaining)
	assert.Equal(t, 50, quota.LimitValue)
}

func TestUpdateBillingCycleRecomputesFromStartDate(t *testing.T) {
	gdb := openTestDB(t)
	plan := seedPlan(t, gdb, "Pro", 10)
	catalog := &fakePlanCatalog{plans: map[uuid.UUID]*models.Plan{plan.ID: plan}}
	svc := newLifecycleService(t, gdb, catalog)
	ctx := context.Background()

	userID := uuid.New()
	sub, err := svc.Create(ctx, CreateInput{UserID: userID, PlanID: plan.ID, BillingCycle: enums.BillingCycleMonthly, AutoRenew: true})
	require.NoError(t, err)

	yearly := enums.BillingCycleYearly
	updated, err := svc.Update(ctx, userID, UpdateInput{BillingCycle: &yearly})
	require.NoError(t, err)
	assert.Equal(t, enums.BillingCycleYearly, updated.BillingCycle)
	assert.WithinDuration(t, sub.StartDate.AddDate(1, 0, 0), updated.NextBillingDate, time.Second)
}

func TestActivateFromPaymentIsIdempotent(t *testing.T) {
	gdb := openTestDB(t)
	plan := seedPlan(t, gdb, "Pro", 10)
	catalog := &fakePlanCatalog{plans: map[uuid.UUID]*models.Plan{plan.ID: plan}}
	svc := newLifecycleService(t, gdb, catalog)
	ctx := context.Background()

	userID := uuid.New()
	sub, err := svc.Create(ctx, CreateInput{UserID: userID, PlanID: plan.ID, BillingCycle: enums.BillingCycleMonthly, AutoRenew: true})
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, userID)
	require.NoError(t, err)

	require.NoError(t, svc.ActivateFromPayment(ctx, sub.ID))
	require.NoError(t, svc.ActivateFromPayment(ctx, sub.ID))

	got, err := svc.GetByUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusActive, got.Status)
}

func TestMarkPastDueOnlyTouchesActiveSubscriptions(t *testing.T) {
	gdb := openTestDB(t)
	plan := seedPlan(t, gdb, "Pro", 10)
	catalog := &fakePlanCatalog{plans: map[uuid.UUID]*models.Plan{plan.ID: plan}}
	svc := newLifecycleService(t, gdb, catalog)
	ctx := context.Background()

	userID := uuid.New()
	sub, err := svc.Create(ctx, CreateInput{UserID: userID, PlanID: plan.ID, BillingCycle: enums.BillingCycleMonthly, AutoRenew: true})
	require.NoError(t, err)

	require.NoError(t, svc.MarkPastDue(ctx, sub.ID))
	got, err := svc.GetByUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusPastDue, got.Status)

	_, err = svc.Cancel(ctx, userID)
	require.NoError(t, err)
	require.NoError(t, svc.MarkPastDue(ctx, sub.ID))
	got, err = svc.GetByUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusCanceled, got.Status)
}

func TestRolloverDueRenewsAndExpires(t *testing.T) {
	gdb := openTestDB(t)
	plan := seedPlan(t, gdb, "Pro", 10)
	catalog := &fakePlanCatalog{plans: map[uuid.UUID]*models.Plan{plan.ID: plan}}
	svc := newLifecycleService(t, gdb, catalog)
	ctx := context.Background()

	renewing, err := svc.Create(ctx, CreateInput{UserID: uuid.New(), PlanID: plan.ID, BillingCycle: enums.BillingCycleMonthly, AutoRenew: true})
	require.NoError(t, err)
	lapsing, err := svc.Create(ctx, CreateInput{UserID: uuid.New(), PlanID: plan.ID, BillingCycle: enums.BillingCycleMonthly, AutoRenew: false})
	require.NoError(t, err)

	// Push both billing dates into the past and drain the renewing quota.
	past := time.Now().UTC().AddDate(0, 0, -1)
	require.NoError(t, gdb.Model(&models.Subscription{}).
		Where("id IN ?", []uuid.UUID{renewing.ID, lapsing.ID}).
		Update("next_billing_date", past).Error)
	require.NoError(t, gdb.Model(&models.UsageQuota{}).
		Where("subscription_id = ?", renewing.ID).
		Update("remaining", 0).Error)

	processed, err := svc.RolloverDue(ctx, time.Now().UTC(), 50)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)

	var renewed models.Subscription
	require.NoError(t, gdb.First(&renewed, "id = ?", renewing.ID).Error)
	assert.Equal(t, enums.SubscriptionStatusActive, renewed.Status)
	assert.True(t, renewed.NextBillingDate.After(past))
	quota := quotaFor(t, gdb, renewing.ID, enums.FeatureTypeVideoGeneration)
	assert.Equal(t, 10, quota.Remaining)

	var expired models.Subscription
	require.NoError(t, gdb.First(&expired, "id = ?", lapsing.ID).Error)
	assert.Equal(t, enums.SubscriptionStatusExpired, expired.Status)
	assert.NotNil(t, expired.EndDate)
}

func TestResetAllActiveQuotas(t *testing.T) {
	gdb := openTestDB(t)
	plan := seedPlan(t, gdb, "Pro", 10)
	catalog := &fakePlanCatalog{plans: map[uuid.UUID]*models.Plan{plan.ID: plan}}
	svc := newLifecycleService(t, gdb, catalog)
	ctx := context.Background()

	first, err := svc.Create(ctx, CreateInput{UserID: uuid.New(), PlanID: plan.ID, BillingCycle: enums.BillingCycleMonthly, AutoRenew: true})
	require.NoError(t, err)
	second, err := svc.Create(ctx, CreateInput{UserID: uuid.New(), PlanID: plan.ID, BillingCycle: enums.BillingCycleMonthly, AutoRenew: true})
	require.NoError(t, err)

	require.NoError(t, gdb.Model(&models.UsageQuota{}).
		Where("subscription_id IN ?", []uuid.UUID{first.ID, second.ID}).
		Update("remaining", 0).Error)

	reset, err := svc.ResetAllActiveQuotas(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, reset)

	for _, sub := range []*models.Subscription{first, second} {
		quota := quotaFor(t, gdb, sub.ID, enums.FeatureTypeVideoGeneration)
		assert.Equal(t, 10, quota.Remaining)
	}
}
