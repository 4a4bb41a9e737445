package subscriptions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/quanghuyng/feastly-backend/internal/usage"
	"github.com/quanghuyng/feastly-backend/pkg/db/models"
	"github.com/quanghuyng/feastly-backend/pkg/enums"
	pkgerrors "github.com/quanghuyng/feastly-backend/pkg/errors"
	"github.com/quanghuyng/feastly-backend/pkg/logger"
)

// planCatalog is the slice of the plan service this package needs.
type planCatalog interface {
	GetActive(ctx context.Context, id uuid.UUID) (*models.Plan, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CreateInput captures a new subscription purchase.
type CreateInput struct {
	UserID       uuid.UUID
	PlanID       uuid.UUID
	BillingCycle enums.BillingCycle
	AutoRenew    bool
}

// UpdateInput patches an existing subscription. Nil fields are untouched.
type UpdateInput struct {
	PlanID       *uuid.UUID
	Status       *enums.SubscriptionStatus
	BillingCycle *enums.BillingCycle
	AutoRenew    *bool
}

// Service owns the subscription state machine and the quota
// (re)initialization that rides along with plan changes and cycle rolls.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Subscription, error)
	Update(ctx context.Context, userID uuid.UUID, input UpdateInput) (*models.Subscription, error)
	Cancel(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	GetByUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	ActivateFromPayment(ctx context.Context, subscriptionID uuid.UUID) error
	MarkPastDue(ctx context.Context, subscriptionID uuid.UUID) error
	RolloverDue(ctx context.Context, now time.Time, batchSize int) (int, error)
	ResetAllActiveQuotas(ctx context.Context) (int, error)
}

// ServiceParams groups dependencies for the subscription service.
type ServiceParams struct {
	Repo              Repository
	Quotas            usage.Repository
	Plans             planCatalog
	TransactionRunner txRunner
	Log               *logger.Logger
}

type service struct {
	repo     Repository
	quotas   usage.Repository
	plans    planCatalog
	txRunner txRunner
	log      *logger.Logger
}

// NewService validates params and returns the lifecycle service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscriptions: repository is required")
	}
	if params.Quotas == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscriptions: quota repository is required")
	}
	if params.Plans == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscriptions: plan catalog is required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscriptions: transaction runner is required")
	}
	if params.Log == nil {
		params.Log = logger.New(logger.Options{ServiceName: "subscriptions"})
	}
	return &service{
		repo:     params.Repo,
		quotas:   params.Quotas,
		plans:    params.Plans,
		txRunner: params.TransactionRunner,
		log:      params.Log,
	}, nil
}

// Create starts a paid subscription. A prior CANCELED or EXPIRED row for the
// same user is reused, so the one-row-per-user invariant holds across
// re-subscribes.
func (s *service) Create(ctx context.Context, input CreateInput) (*models.Subscription, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.PlanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan id is required")
	}
	if !input.BillingCycle.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid billing cycle %q", input.BillingCycle))
	}

	plan, err := s.plans.GetActive(ctx, input.PlanID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByUserID(ctx, input.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if existing.IsActive() {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "an active subscription already exists for this user")
	}

	now := time.Now().UTC()
	sub := existing
	if sub == nil {
		sub = &models.Subscription{ID: uuid.New(), UserID: input.UserID}
	}
	sub.PlanID = plan.ID
	sub.Status = enums.SubscriptionStatusActive
	sub.BillingCycle = input.BillingCycle
	sub.StartDate = now
	sub.NextBillingDate = input.BillingCycle.Next(now)
	sub.AutoRenew = input.AutoRenew
	sub.EndDate = nil
	sub.CanceledAt = nil

	if err := s.saveWithQuotaReset(ctx, sub, plan); err != nil {
		return nil, err
	}
	sub.Plan = plan

	s.log.Info(
		s.log.WithFields(ctx, map[string]any{
			"subscription_id": sub.ID.String(),
			"plan":            plan.Name,
			"billing_cycle":   string(sub.BillingCycle),
		}),
		"subscription created",
	)
	return sub, nil
}

// Update patches the subscription. A plan change resets every quota to the
// new plan's limits; a billing cycle change recomputes the next billing date
// from the original start date, not from now.
func (s *service) Update(ctx context.Context, userID uuid.UUID, input UpdateInput) (*models.Subscription, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	sub, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no subscription for this user")
	}

	var newPlan *models.Plan
	if input.PlanID != nil && *input.PlanID != sub.PlanID {
		newPlan, err = s.plans.GetActive(ctx, *input.PlanID)
		if err != nil {
			return nil, err
		}
		sub.PlanID = newPlan.ID
	}
	if input.Status != nil {
		if !input.Status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid status %q", *input.Status))
		}
		sub.Status = *input.Status
		if *input.Status == enums.SubscriptionStatusCanceled {
			now := time.Now().UTC()
			sub.CanceledAt = &now
			sub.AutoRenew = false
		}
	}
	if input.BillingCycle != nil && *input.BillingCycle != sub.BillingCycle {
		if !input.BillingCycle.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid billing cycle %q", *input.BillingCycle))
		}
		sub.BillingCycle = *input.BillingCycle
		sub.NextBillingDate = input.BillingCycle.Next(sub.StartDate)
	}
	if input.AutoRenew != nil {
		sub.AutoRenew = *input.AutoRenew
	}

	if newPlan != nil {
		if err := s.saveWithQuotaReset(ctx, sub, newPlan); err != nil {
			return nil, err
		}
		sub.Plan = newPlan
	} else if err := s.repo.Save(ctx, sub); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save subscription")
	}
	return sub, nil
}

func (s *service) Cancel(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	status := enums.SubscriptionStatusCanceled
	autoRenew := false
	return s.Update(ctx, userID, UpdateInput{Status: &status, AutoRenew: &autoRenew})
}

func (s *service) GetByUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	sub, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no subscription for this user")
	}
	return sub, nil
}

// ActivateFromPayment flips the subscription to ACTIVE after a successful
// payment reconciliation. Activating an already active subscription is a
// no-op, so replayed webhooks are harmless here.
func (s *service) ActivateFromPayment(ctx context.Context, subscriptionID uuid.UUID) error {
	sub, err := s.repo.FindByID(ctx, subscriptionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	if sub.Status == enums.SubscriptionStatusActive {
		return nil
	}
	sub.Status = enums.SubscriptionStatusActive
	sub.EndDate = nil
	if err := s.repo.Save(ctx, sub); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save subscription")
	}
	s.log.Info(
		s.log.WithField(ctx, "subscription_id", subscriptionID.String()),
		"subscription activated by payment",
	)
	return nil
}

// MarkPastDue records a failed renewal charge against an active
// subscription. Non-active subscriptions are left alone.
func (s *service) MarkPastDue(ctx context.Context, subscriptionID uuid.UUID) error {
	sub, err := s.repo.FindByID(ctx, subscriptionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	if sub.Status != enums.SubscriptionStatusActive {
		return nil
	}
	sub.Status = enums.SubscriptionStatusPastDue
	if err := s.repo.Save(ctx, sub); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save subscription")
	}
	return nil
}

// RolloverDue advances every active subscription whose billing date has
// passed. Auto-renewing subscriptions get their date rolled and quotas
// refilled; the rest expire. Returns the number of subscriptions touched.
func (s *service) RolloverDue(ctx context.Context, now time.Time, batchSize int) (int, error) {
	due, err := s.repo.ListDueForRenewal(ctx, now, batchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list due subscriptions")
	}

	var errs error
	processed := 0
	for i := range due {
		sub := &due[i]
		if err := s.rolloverOne(ctx, sub, now); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("subscription %s: %w", sub.ID, err))
			continue
		}
		processed++
	}
	return processed, errs
}

func (s *service) rolloverOne(ctx context.Context, sub *models.Subscription, now time.Time) error {
	if !sub.AutoRenew {
		sub.Status = enums.SubscriptionStatusExpired
		end := now
		sub.EndDate = &end
		if err := s.repo.Save(ctx, sub); err != nil {
			return err
		}
		s.log.Info(
			s.log.WithField(ctx, "subscription_id", sub.ID.String()),
			"subscription expired at end of cycle",
		)
		return nil
	}

	// Roll from the scheduled date, not from now, so late cron runs do
	// not drift the billing anchor.
	sub.NextBillingDate = sub.BillingCycle.Next(sub.NextBillingDate)
	if sub.Plan == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "subscription has no plan loaded")
	}
	return s.saveWithQuotaReset(ctx, sub, sub.Plan)
}

// ResetAllActiveQuotas refills every active subscription's counters to its
// plan limits. Administrative operation; failures are collected per
// subscription rather than aborting the sweep.
func (s *service) ResetAllActiveQuotas(ctx context.Context) (int, error) {
	subs, err := s.repo.ListByStatus(ctx, enums.SubscriptionStatusActive, 0)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list active subscriptions")
	}
	var errs error
	reset := 0
	for i := range subs {
		sub := &subs[i]
		if sub.Plan == nil {
			errs = multierr.Append(errs, fmt.Errorf("subscription %s: plan not loaded", sub.ID))
			continue
		}
		if err := s.quotas.ResetAll(ctx, sub.ID, planLimits(sub.Plan)); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("subscription %s: %w", sub.ID, err))
			continue
		}
		reset++
	}
	return reset, errs
}

// saveWithQuotaReset persists the subscription and refills its quotas in one
// transaction, so a decrement never observes a saved subscription with stale
// counters.
func (s *service) saveWithQuotaReset(ctx context.Context, sub *models.Subscription, plan *models.Plan) error {
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Save(ctx, sub); err != nil {
			return err
		}
		return s.quotas.WithTx(tx).ResetAll(ctx, sub.ID, planLimits(plan))
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save subscription with quotas")
	}
	return nil
}

func planLimits(plan *models.Plan) map[enums.FeatureType]int {
	limits := make(map[enums.FeatureType]int, len(enums.AllFeatureTypes()))
	for _, feature := range enums.AllFeatureTypes() {
		limits[feature] = plan.FeatureLimit(feature)
	}
	return limits
}
