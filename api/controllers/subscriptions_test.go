package controllers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/quanghuyng/feastly-backend/api/middleware"
	subsvc "github.com/quanghuyng/feastly-backend/internal/subscriptions"
	"github.com/quanghuyng/feastly-backend/pkg/db/models"
	"github.com/quanghuyng/feastly-backend/pkg/enums"
	pkgerrors "github.com/quanghuyng/feastly-backend/pkg/errors"
	"github.com/quanghuyng/feastly-backend/pkg/logger"
)

type stubSubscriptionService struct {
	created   *subsvc.CreateInput
	sub       *models.Subscription
	createErr error
}

func (s *stubSubscriptionService) Create(_ context.Context, input subsvc.CreateInput) (*models.Subscription, error) {
	s.created = &input
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.sub, nil
}

func (s *stubSubscriptionService) Update(context.Context, uuid.UUID, subsvc.UpdateInput) (*models.Subscription, error) {
	return s.sub, nil
}

func (s *stubSubscriptionService) Cancel(context.Context, uuid.UUID) (*models.Subscription, error) {
	return s.sub, nil
}

func (s *stubSubscriptionService) GetByUser(context.Context, uuid.UUID) (*models.Subscription, error) {
	return s.sub, nil
}

func (s *stubSubscriptionService) ActivateFromPayment(context.Context, uuid.UUID) error { return nil }
func (s *stubSubscriptionService) MarkPastDue(context.Context, uuid.UUID) error         { return nil }

func (s *stubSubscriptionService) RolloverDue(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func (s *stubSubscriptionService) ResetAllActiveQuotas(context.Context) (int, error) {
	return 0, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard})
}

func TestCreateSubscription(t *testing.T) {
	logg := testLogger()
	userID := uuid.New()
	planID := uuid.New()

	post := func(ctx context.Context, body string, svc subsvc.Service) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req = req.WithContext(ctx)
		rec := httptest.NewRecorder()
		CreateSubscription(svc, logg).ServeHTTP(rec, req)
		return rec
	}

	t.Run("missing user", func(t *testing.T) {
		rec := post(context.Background(), `{"plan_id":"`+planID.String()+`","billing_cycle":"MONTHLY"}`, &stubSubscriptionService{})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 got %d", rec.Code)
		}
	})

	t.Run("invalid cycle", func(t *testing.T) {
		ctx := middleware.WithUserID(context.Background(), userID.String())
		rec := post(ctx, `{"plan_id":"`+planID.String()+`","billing_cycle":"WEEKLY"}`, &stubSubscriptionService{})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 got %d", rec.Code)
		}
	})

	t.Run("success defaults auto renew on", func(t *testing.T) {
		stub := &stubSubscriptionService{sub: &models.Subscription{ID: uuid.New(), UserID: userID}}
		ctx := middleware.WithUserID(context.Background(), userID.String())
		rec := post(ctx, `{"plan_id":"`+planID.String()+`","billing_cycle":"YEARLY"}`, stub)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
		}
		if stub.created == nil {
			t.Fatal("service not called")
		}
		if !stub.created.AutoRenew {
			t.Fatal("auto renew should default to true")
		}
		if stub.created.BillingCycle != enums.BillingCycleYearly {
			t.Fatalf("unexpected cycle %s", stub.created.BillingCycle)
		}
	})

	t.Run("conflict surfaces as 409", func(t *testing.T) {
		stub := &stubSubscriptionService{createErr: pkgerrors.New(pkgerrors.CodeConflict, "subscription already active")}
		ctx := middleware.WithUserID(context.Background(), userID.String())
		rec := post(ctx, `{"plan_id":"`+planID.String()+`","billing_cycle":"MONTHLY"}`, stub)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409 got %d", rec.Code)
		}
	})
}

func TestGetSubscriptionNotFound(t *testing.T) {
	logg := testLogger()
	ctx := middleware.WithUserID(context.Background(), uuid.NewString())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/me", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	GetSubscription(&stubSubscriptionService{}, logg).ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}
