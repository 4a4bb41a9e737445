package usage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/quanghuyng/feastly-backend/pkg/config"
	"github.com/quanghuyng/feastly-backend/pkg/db/models"
	"github.com/quanghuyng/feastly-backend/pkg/enums"
	pkgerrors "github.com/quanghuyng/feastly-backend/pkg/errors"
	"github.com/quanghuyng/feastly-backend/pkg/logger"
)

const (
	suggestedPlanForFreeTier = "Pro"
	suggestedPlanForPaidTier = "Premium"
)

// CheckResult reports whether a feature can be used right now and how much
// allowance is left in the current cycle.
type CheckResult struct {
	CanUse        bool   `json:"canUse"`
	Remaining     int    `json:"remaining"`
	Total         int    `json:"total"`
	SuggestedPlan string `json:"suggestedPlan,omitempty"`
}

// FeatureSnapshot is one row of the per-user usage overview.
type FeatureSnapshot struct {
	Feature   enums.FeatureType `json:"feature"`
	Remaining int               `json:"remaining"`
	Total     int               `json:"total"`
}

// Snapshot is the full usage overview for a user.
type Snapshot struct {
	PlanName string            `json:"planName"`
	Features []FeatureSnapshot `json:"features"`
}

// subscriptionSource is the slice of the subscription repository this
// service needs. Lookups must preload the plan.
type subscriptionSource interface {
	FindActiveByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
}

// Service is the usage ledger. All quota reads and writes for feature
// access go through here.
type Service interface {
	Check(ctx context.Context, userID uuid.UUID, feature enums.FeatureType) (*CheckResult, error)
	Decrement(ctx context.Context, userID uuid.UUID, feature enums.FeatureType, amount int) error
	ResetForSubscription(ctx context.Context, subscriptionID uuid.UUID) error
	HasCapability(ctx context.Context, userID uuid.UUID, capability enums.Capability) (bool, error)
	Overview(ctx context.Context, userID uuid.UUID) (*Snapshot, error)
}

// ServiceParams carries the dependencies for NewService.
type ServiceParams struct {
	Repo          Repository
	Subscriptions subscriptionSource
	FreeTier      config.FreeTierConfig
	Log           *logger.Logger
}

type service struct {
	repo          Repository
	subscriptions subscriptionSource
	freeTier      config.FreeTierConfig
	log           *logger.Logger
}

// NewService validates params and returns the usage service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "usage: repository is required")
	}
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "usage: subscription source is required")
	}
	if params.Log == nil {
		params.Log = logger.New(logger.Options{ServiceName: "usage"})
	}
	return &service{
		repo:          params.Repo,
		subscriptions: params.Subscriptions,
		freeTier:      params.FreeTier,
		log:           params.Log,
	}, nil
}

func (s *service) Check(ctx context.Context, userID uuid.UUID, feature enums.FeatureType) (*CheckResult, error) {
	if !feature.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown feature %q", feature))
	}
	sub, err := s.subscriptions.FindActiveByUserID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil {
		return s.freeTierResult(feature), nil
	}
	quota, err := s.repo.Find(ctx, sub.ID, feature)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load quota")
	}
	if quota == nil {
		// Plan does not include this feature at all.
		return &CheckResult{SuggestedPlan: suggestedPlanForPaidTier}, nil
	}
	result := &CheckResult{
		CanUse:    quota.Remaining > 0,
		Remaining: quota.Remaining,
		Total:     quota.LimitValue,
	}
	if !result.CanUse {
		result.SuggestedPlan = s.suggestUpgrade(sub)
	}
	return result, nil
}

func (s *service) Decrement(ctx context.Context, userID uuid.UUID, feature enums.FeatureType, amount int) error {
	if !feature.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown feature %q", feature))
	}
	if amount <= 0 {
		amount = 1
	}
	sub, err := s.subscriptions.FindActiveByUserID(ctx, userID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil {
		return s.quotaExceeded(feature, s.freeTierResult(feature))
	}
	consumed, err := s.repo.ConsumeIfAvailable(ctx, sub.ID, feature, amount)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume quota")
	}
	if !consumed {
		check, checkErr := s.Check(ctx, userID, feature)
		if checkErr != nil {
			check = &CheckResult{SuggestedPlan: s.suggestUpgrade(sub)}
		}
		s.log.Warn(s.log.WithFeature(ctx, string(feature)), "usage quota exhausted")
		return s.quotaExceeded(feature, check)
	}
	return nil
}

func (s *service) ResetForSubscription(ctx context.Context, subscriptionID uuid.UUID) error {
	sub, err := s.subscriptions.FindByID(ctx, subscriptionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	if sub.Plan == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "subscription has no plan loaded")
	}
	limits := make(map[enums.FeatureType]int, len(enums.AllFeatureTypes()))
	for _, feature := range enums.AllFeatureTypes() {
		limits[feature] = sub.Plan.FeatureLimit(feature)
	}
	if err := s.repo.ResetAll(ctx, subscriptionID, limits); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset quotas")
	}
	s.log.Info(
		s.log.WithField(ctx, "subscription_id", subscriptionID.String()),
		"quotas reset to plan limits",
	)
	return nil
}

func (s *service) HasCapability(ctx context.Context, userID uuid.UUID, capability enums.Capability) (bool, error) {
	sub, err := s.subscriptions.FindActiveByUserID(ctx, userID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil || sub.Plan == nil {
		return false, nil
	}
	return sub.Plan.HasCapability(capability), nil
}

func (s *service) Overview(ctx context.Context, userID uuid.UUID) (*Snapshot, error) {
	sub, err := s.subscriptions.FindActiveByUserID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil {
		snapshot := &Snapshot{PlanName: "Free"}
		for _, feature := range enums.AllFeatureTypes() {
			snapshot.Features = append(snapshot.Features, FeatureSnapshot{
				Feature: feature,
				Total:   s.freeTierCeiling(feature),
			})
		}
		return snapshot, nil
	}
	quotas, err := s.repo.ListBySubscription(ctx, sub.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list quotas")
	}
	snapshot := &Snapshot{}
	if sub.Plan != nil {
		snapshot.PlanName = sub.Plan.Name
	}
	for _, quota := range quotas {
		snapshot.Features = append(snapshot.Features, FeatureSnapshot{
			Feature:   quota.Feature,
			Remaining: quota.Remaining,
			Total:     quota.LimitValue,
		})
	}
	return snapshot, nil
}

// freeTierResult is the answer for users without an active subscription.
// Free-tier counters are not persisted, so the ledger always reports them
// as spent and points at the entry paid plan.
func (s *service) freeTierResult(feature enums.FeatureType) *CheckResult {
	return &CheckResult{
		Total:         s.freeTierCeiling(feature),
		SuggestedPlan: suggestedPlanForFreeTier,
	}
}

func (s *service) freeTierCeiling(feature enums.FeatureType) int {
	switch feature {
	case enums.FeatureTypeRecipeGeneration:
		return s.freeTier.RecipeGenerations
	case enums.FeatureTypeVideoGeneration:
		return s.freeTier.VideoGenerations
	case enums.FeatureTypeCommunityPost:
		return s.freeTier.CommunityPosts
	case enums.FeatureTypeCommunityComment:
		return s.freeTier.CommunityComments
	default:
		return 0
	}
}

func (s *service) suggestUpgrade(sub *models.Subscription) string {
	if sub == nil || sub.Plan == nil || sub.Plan.Name == "" || sub.Plan.Name == "Free" {
		return suggestedPlanForFreeTier
	}
	return suggestedPlanForPaidTier
}

func (s *service) quotaExceeded(feature enums.FeatureType, check *CheckResult) error {
	details := map[string]any{
		"feature":   string(feature),
		"remaining": 0,
	}
	if check != nil {
		details["total"] = check.Total
		if check.SuggestedPlan != "" {
			details["suggestedPlan"] = check.SuggestedPlan
		}
	}
	return pkgerrors.New(pkgerrors.CodeQuotaExceeded, "usage limit reached for this billing cycle").
		WithDetails(details)
}
