package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/quanghuyng/feastly-backend/api/middleware"
	"github.com/quanghuyng/feastly-backend/api/responses"
	"github.com/quanghuyng/feastly-backend/api/validators"
	subsvc "github.com/quanghuyng/feastly-backend/internal/subscriptions"
	"github.com/quanghuyng/feastly-backend/pkg/enums"
	pkgerrors "github.com/quanghuyng/feastly-backend/pkg/errors"
	"github.com/quanghuyng/feastly-backend/pkg/logger"
)

type createSubscriptionRequest struct {
	PlanID       string `json:"plan_id" validate:"required,uuid"`
	BillingCycle string `json:"billing_cycle" validate:"required,oneof=MONTHLY YEARLY"`
	AutoRenew    *bool  `json:"auto_renew,omitempty"`
}

type updateSubscriptionRequest struct {
	PlanID       *string `json:"plan_id,omitempty" validate:"omitempty,uuid"`
	Status       *string `json:"status,omitempty"`
	BillingCycle *string `json:"billing_cycle,omitempty" validate:"omitempty,oneof=MONTHLY YEARLY"`
	AutoRenew    *bool   `json:"auto_renew,omitempty"`
}

func callerID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}
	return id, nil
}

// CreateSubscription subscribes the caller to a plan.
func CreateSubscription(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createSubscriptionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		planID, err := uuid.Parse(payload.PlanID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid plan id"))
			return
		}

		cycle, err := enums.ParseBillingCycle(strings.TrimSpace(payload.BillingCycle))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid billing cycle"))
			return
		}

		autoRenew := true
		if payload.AutoRenew != nil {
			autoRenew = *payload.AutoRenew
		}

		sub, err := svc.Create(r.Context(), subsvc.CreateInput{
			UserID:       userID,
			PlanID:       planID,
			BillingCycle: cycle,
			AutoRenew:    autoRenew,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, sub)
	}
}

// GetSubscription returns the caller's subscription, if any.
func GetSubscription(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.GetByUser(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if sub == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "no subscription for this user"))
			return
		}
		responses.WriteSuccess(w, sub)
	}
}

// UpdateSubscription patches the caller's subscription.
func UpdateSubscription(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateSubscriptionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := subsvc.UpdateInput{AutoRenew: payload.AutoRenew}
		if payload.PlanID != nil {
			planID, err := uuid.Parse(*payload.PlanID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid plan id"))
				return
			}
			input.PlanID = &planID
		}
		if payload.Status != nil {
			status, err := enums.ParseSubscriptionStatus(strings.TrimSpace(*payload.Status))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			input.Status = &status
		}
		if payload.BillingCycle != nil {
			cycle, err := enums.ParseBillingCycle(strings.TrimSpace(*payload.BillingCycle))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid billing cycle"))
				return
			}
			input.BillingCycle = &cycle
		}

		sub, err := svc.Update(r.Context(), userID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sub)
	}
}

// CancelSubscription cancels the caller's subscription. The caller drops to
// the free tier immediately; the paid period is not run out.
func CancelSubscription(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.Cancel(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sub)
	}
}
