package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	paymentsvc "github.com/quanghuyng/feastly-backend/internal/payments"
	plansvc "github.com/quanghuyng/feastly-backend/internal/plans"
	subsvc "github.com/quanghuyng/feastly-backend/internal/subscriptions"
	usagesvc "github.com/quanghuyng/feastly-backend/internal/usage"
	pkgauth "github.com/quanghuyng/feastly-backend/pkg/auth"
	"github.com/quanghuyng/feastly-backend/pkg/config"
	"github.com/quanghuyng/feastly-backend/pkg/db/models"
	"github.com/quanghuyng/feastly-backend/pkg/enums"
	"github.com/quanghuyng/feastly-backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubPlanService struct{}

func (stubPlanService) ListActive(context.Context) ([]models.Plan, error) { return nil, nil }
func (stubPlanService) Get(context.Context, uuid.UUID) (*models.Plan, error) {
	return &models.Plan{ID: uuid.New(), Name: "Pro"}, nil
}
func (stubPlanService) GetActive(context.Context, uuid.UUID) (*models.Plan, error) {
	return nil, nil
}
func (stubPlanService) Upsert(context.Context, *models.Plan) error { return nil }

type stubSubscriptionService struct{}

func (stubSubscriptionService) Create(context.Context, subsvc.CreateInput) (*models.Subscription, error) {
	return &models.Subscription{}, nil
}
func (stubSubscriptionService) Update(context.Context, uuid.UUID, subsvc.UpdateInput) (*models.Subscription, error) {
	return &models.Subscription{}, nil
}
func (stubSubscriptionService) Cancel(context.Context, uuid.UUID) (*models.Subscription, error) {
	return &models.Subscription{}, nil
}
func (stubSubscriptionService) GetByUser(context.Context, uuid.UUID) (*models.Subscription, error) {
	return &models.Subscription{}, nil
}
func (stubSubscriptionService) ActivateFromPayment(context.Context, uuid.UUID) error { return nil }
func (stubSubscriptionService) MarkPastDue(context.Context, uuid.UUID) error         { return nil }
func (stubSubscriptionService) RolloverDue(context.Context, time.Time, int) (int, error) {
	return 0, nil
}
func (stubSubscriptionService) ResetAllActiveQuotas(context.Context) (int, error) { return 0, nil }

type stubUsageService struct{}

func (stubUsageService) Check(context.Context, uuid.UUID, enums.FeatureType) (*usagesvc.CheckResult, error) {
	return &usagesvc.CheckResult{CanUse: true, Remaining: 1, Total: 1}, nil
}
func (stubUsageService) Decrement(context.Context, uuid.UUID, enums.FeatureType, int) error {
	return nil
}
func (stubUsageService) ResetForSubscription(context.Context, uuid.UUID) error { return nil }
func (stubUsageService) HasCapability(context.Context, uuid.UUID, enums.Capability) (bool, error) {
	return true, nil
}
func (stubUsageService) Overview(context.Context, uuid.UUID) (*usagesvc.Snapshot, error) {
	return &usagesvc.Snapshot{}, nil
}

type stubPaymentService struct{}

func (stubPaymentService) CreatePayment(context.Context, paymentsvc.CreatePaymentInput) (*models.PaymentTransaction, error) {
	return &models.PaymentTransaction{}, nil
}
func (stubPaymentService) GetPayment(context.Context, uuid.UUID, uuid.UUID) (*models.PaymentTransaction, error) {
	return &models.PaymentTransaction{}, nil
}
func (stubPaymentService) HandleWebhook(context.Context, paymentsvc.WebhookEvent) error { return nil }
func (stubPaymentService) Refund(context.Context, paymentsvc.RefundInput) (*models.PaymentTransaction, error) {
	return &models.PaymentTransaction{}, nil
}
func (stubPaymentService) GetStats(context.Context, *time.Time, *time.Time) (*paymentsvc.Stats, error) {
	return &paymentsvc.Stats{}, nil
}

var _ plansvc.Service = stubPlanService{}

func testRouter(t *testing.T) (http.Handler, config.JWTConfig) {
	t.Helper()
	jwtCfg := config.JWTConfig{Secret: "secret", Issuer: "feastly", ExpirationMinutes: 60}
	cfg := &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: jwtCfg,
	}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	handler := NewRouter(Deps{
		Config:        cfg,
		Logger:        logg,
		DB:            stubPinger{},
		Redis:         stubPinger{},
		Plans:         stubPlanService{},
		Subscriptions: stubSubscriptionService{},
		Usage:         stubUsageService{},
		Payments:      stubPaymentService{},
	})
	return handler, jwtCfg
}

func bearerToken(t *testing.T, cfg config.JWTConfig, role enums.UserRole) string {
	t.Helper()
	token, err := pkgauth.MintAccessToken(cfg, time.Now(), pkgauth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return "Bearer " + token
}

func TestRouterHealthIsPublic(t *testing.T) {
	handler, _ := testRouter(t)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}

func TestRouterProtectedRoutesRequireAuth(t *testing.T) {
	handler, jwtCfg := testRouter(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil)
	req.Header.Set("Authorization", bearerToken(t, jwtCfg, enums.UserRoleUser))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token got %d", rec.Code)
	}
}

func TestRouterAdminRoutesRejectUsers(t *testing.T) {
	handler, jwtCfg := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/payments/stats", nil)
	req.Header.Set("Authorization", bearerToken(t, jwtCfg, enums.UserRoleUser))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for user role got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/admin/v1/payments/stats", nil)
	req.Header.Set("Authorization", bearerToken(t, jwtCfg, enums.UserRoleAdmin))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin got %d", rec.Code)
	}
}

func TestRouterEntitledRouteConsumesQuota(t *testing.T) {
	handler, jwtCfg := testRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/recipes/generate", nil)
	req.Header.Set("Authorization", bearerToken(t, jwtCfg, enums.UserRoleUser))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d: %s", rec.Code, rec.Body.String())
	}
}
