package controllers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/quanghuyng/feastly-backend/api/responses"
	paymentsvc "github.com/quanghuyng/feastly-backend/internal/payments"
	"github.com/quanghuyng/feastly-backend/pkg/enums"
	pkgerrors "github.com/quanghuyng/feastly-backend/pkg/errors"
	"github.com/quanghuyng/feastly-backend/pkg/logger"
)

// webhookEnvelope covers the fields the gateways disagree on. Stripe
// sends type/data.object.id, the Vietnamese gateways send flat order
// identifiers.
type webhookEnvelope struct {
	Type       string `json:"type"`
	EventType  string `json:"eventType"`
	OrderID    string `json:"orderId"`
	AppTransID string `json:"app_trans_id"`
	ExternalID string `json:"externalId"`
	Data       struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

func (e webhookEnvelope) eventType() string {
	if e.Type != "" {
		return e.Type
	}
	return e.EventType
}

func (e webhookEnvelope) externalID() string {
	for _, candidate := range []string{e.ExternalID, e.Data.Object.ID, e.OrderID, e.AppTransID} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

func signatureFor(provider enums.PaymentProvider, r *http.Request) string {
	switch provider {
	case enums.PaymentProviderStripe:
		return r.Header.Get("Stripe-Signature")
	default:
		return r.Header.Get("X-Signature")
	}
}

// PaymentWebhook receives gateway callbacks for any registered provider.
// Replays and unknown transactions are acknowledged so the gateway stops
// retrying; only signature failures are rejected.
func PaymentWebhook(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		provider, err := enums.ParsePaymentProvider(strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "provider"))))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown provider"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		var envelope webhookEnvelope
		if err := json.Unmarshal(payload, &envelope); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event"))
			return
		}

		event := paymentsvc.WebhookEvent{
			Provider:   provider,
			EventType:  envelope.eventType(),
			ExternalID: envelope.externalID(),
			Payload:    payload,
			Signature:  signatureFor(provider, r),
		}

		if err := svc.HandleWebhook(ctx, event); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "received"})
	}
}
