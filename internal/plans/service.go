package plans

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quanghuyng/feastly-backend/pkg/db/models"
	"github.com/quanghuyng/feastly-backend/pkg/enums"
	pkgerrors "github.com/quanghuyng/feastly-backend/pkg/errors"
	pkgredis "github.com/quanghuyng/feastly-backend/pkg/redis"
)

// Service is the read surface of the plan catalog. Every other component
// resolves feature limits through it.
type Service interface {
	ListActive(ctx context.Context) ([]models.Plan, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Plan, error)
	GetActive(ctx context.Context, id uuid.UUID) (*models.Plan, error)
	Upsert(ctx context.Context, plan *models.Plan) error
}

// ServiceParams groups dependencies for the plan catalog service.
type ServiceParams struct {
	Repo     Repository
	Cache    pkgredis.Cache
	CacheTTL time.Duration
}

type service struct {
	repo  Repository
	cache *catalogCache
}

// NewService builds a plan catalog service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("plan repository required")
	}
	return &service{
		repo:  params.Repo,
		cache: newCatalogCache(params.Cache, params.CacheTTL),
	}, nil
}

func (s *service) ListActive(ctx context.Context) ([]models.Plan, error) {
	if plans, ok := s.cache.getList(ctx); ok {
		return plans, nil
	}
	status := enums.PlanStatusActive
	plans, err := s.repo.List(ctx, &status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list plans")
	}
	s.cache.setList(ctx, plans)
	return plans, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan id is required")
	}
	if plan, ok := s.cache.getPlan(ctx, id.String()); ok {
		return plan, nil
	}
	plan, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find plan")
	}
	if plan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	s.cache.setPlan(ctx, plan)
	return plan, nil
}

// GetActive returns the plan only when it can still be subscribed to.
func (s *service) GetActive(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	plan, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if plan.Status != enums.PlanStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan is not active")
	}
	return plan, nil
}

func (s *service) Upsert(ctx context.Context, plan *models.Plan) error {
	if plan == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "plan is required")
	}
	if strings.TrimSpace(plan.Name) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "plan name is required")
	}
	if !plan.Status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid plan status %q", plan.Status))
	}
	if plan.MonthlyPrice.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "monthly price must not be negative")
	}
	if err := s.repo.Upsert(ctx, plan); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert plan")
	}
	if err := s.cache.invalidate(ctx, plan.ID.String()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "invalidate plan cache")
	}
	return nil
}
