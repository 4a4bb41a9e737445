package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/quanghuyng/feastly-backend/api/responses"
	"github.com/quanghuyng/feastly-backend/api/validators"
	paymentsvc "github.com/quanghuyng/feastly-backend/internal/payments"
	plansvc "github.com/quanghuyng/feastly-backend/internal/plans"
	subsvc "github.com/quanghuyng/feastly-backend/internal/subscriptions"
	"github.com/quanghuyng/feastly-backend/pkg/db/models"
	"github.com/quanghuyng/feastly-backend/pkg/enums"
	pkgerrors "github.com/quanghuyng/feastly-backend/pkg/errors"
	"github.com/quanghuyng/feastly-backend/pkg/logger"
)

type upsertPlanRequest struct {
	ID                   *string  `json:"id,omitempty" validate:"omitempty,uuid"`
	Name                 string   `json:"name" validate:"required"`
	Status               string   `json:"status" validate:"required,oneof=active inactive"`
	MonthlyPrice         string   `json:"monthly_price" validate:"required"`
	YearlyPrice          *string  `json:"yearly_price,omitempty"`
	CurrencyCode         string   `json:"currency_code,omitempty"`
	SortOrder            int      `json:"sort_order,omitempty"`
	MaxRecipeGenerations int      `json:"max_recipe_generations" validate:"min=0"`
	MaxVideoGenerations  int      `json:"max_video_generations" validate:"min=0"`
	MaxCommunityPosts    int      `json:"max_community_posts" validate:"min=0"`
	MaxCommunityComments int      `json:"max_community_comments" validate:"min=0"`
	Capabilities         []string `json:"capabilities,omitempty"`
}

type refundRequest struct {
	Amount *string `json:"amount,omitempty"`
	Reason string  `json:"reason,omitempty"`
}

// AdminUpsertPlan creates or updates a catalog plan.
func AdminUpsertPlan(svc plansvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload upsertPlanRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := enums.ParsePlanStatus(strings.TrimSpace(payload.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		monthly, err := decimal.NewFromString(strings.TrimSpace(payload.MonthlyPrice))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid monthly price"))
			return
		}

		plan := &models.Plan{
			Name:                 strings.TrimSpace(payload.Name),
			Status:               status,
			MonthlyPrice:         monthly,
			CurrencyCode:         strings.TrimSpace(payload.CurrencyCode),
			SortOrder:            payload.SortOrder,
			MaxRecipeGenerations: payload.MaxRecipeGenerations,
			MaxVideoGenerations:  payload.MaxVideoGenerations,
			MaxCommunityPosts:    payload.MaxCommunityPosts,
			MaxCommunityComments: payload.MaxCommunityComments,
			Capabilities:         pq.StringArray(payload.Capabilities),
		}

		if payload.ID != nil {
			id, err := uuid.Parse(*payload.ID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid plan id"))
				return
			}
			plan.ID = id
		}

		if payload.YearlyPrice != nil {
			yearly, err := decimal.NewFromString(strings.TrimSpace(*payload.YearlyPrice))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid yearly price"))
				return
			}
			plan.YearlyPrice = &yearly
		}

		if err := svc.Upsert(r.Context(), plan); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, plan)
	}
}

// AdminRefundPayment refunds a settled transaction through its gateway.
func AdminRefundPayment(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		paymentID, err := uuid.Parse(chi.URLParam(r, "paymentID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment id"))
			return
		}

		var payload refundRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := paymentsvc.RefundInput{PaymentID: paymentID, Reason: strings.TrimSpace(payload.Reason)}
		if payload.Amount != nil {
			amount, err := decimal.NewFromString(strings.TrimSpace(*payload.Amount))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount"))
				return
			}
			input.Amount = &amount
		}

		tx, err := svc.Refund(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, tx)
	}
}

// AdminResetQuotas refills the quota ledger for every active
// subscription. Meant for incident recovery, not routine use.
func AdminResetQuotas(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := svc.ResetAllActiveQuotas(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int{"subscriptionsReset": count})
	}
}

// AdminPaymentStats aggregates the payment ledger over an optional window.
func AdminPaymentStats(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start, err := parseTimeParam(r, "start")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		end, err := parseTimeParam(r, "end")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		stats, err := svc.GetStats(r.Context(), start, end)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}

func parseTimeParam(r *http.Request, name string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name+" timestamp")
	}
	return &ts, nil
}
