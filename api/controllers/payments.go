package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quanghuyng/feastly-backend/api/responses"
	"github.com/quanghuyng/feastly-backend/api/validators"
	paymentsvc "github.com/quanghuyng/feastly-backend/internal/payments"
	"github.com/quanghuyng/feastly-backend/pkg/enums"
	pkgerrors "github.com/quanghuyng/feastly-backend/pkg/errors"
	"github.com/quanghuyng/feastly-backend/pkg/logger"
)

type createPaymentRequest struct {
	SubscriptionID string `json:"subscription_id" validate:"required,uuid"`
	Amount         string `json:"amount" validate:"required"`
	CurrencyCode   string `json:"currency_code,omitempty"`
	Provider       string `json:"provider" validate:"required,oneof=STRIPE MOMO ZALOPAY"`
	Description    string `json:"description,omitempty"`
}

// CreatePayment records a pending checkout and initializes it with the
// chosen gateway.
func CreatePayment(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		subscriptionID, err := uuid.Parse(payload.SubscriptionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid subscription id"))
			return
		}

		amount, err := decimal.NewFromString(strings.TrimSpace(payload.Amount))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount"))
			return
		}

		provider, err := enums.ParsePaymentProvider(strings.TrimSpace(payload.Provider))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid provider"))
			return
		}

		tx, err := svc.CreatePayment(r.Context(), paymentsvc.CreatePaymentInput{
			UserID:         userID,
			SubscriptionID: subscriptionID,
			Amount:         amount,
			CurrencyCode:   strings.TrimSpace(payload.CurrencyCode),
			Provider:       provider,
			Description:    strings.TrimSpace(payload.Description),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, tx)
	}
}

// GetPayment returns one of the caller's transactions.
func GetPayment(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		paymentID, err := uuid.Parse(chi.URLParam(r, "paymentID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment id"))
			return
		}

		tx, err := svc.GetPayment(r.Context(), userID, paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, tx)
	}
}
