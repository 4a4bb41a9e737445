package providers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/quanghuyng/feastly-backend/pkg/config"
	"github.com/quanghuyng/feastly-backend/pkg/enums"
	pkgerrors "github.com/quanghuyng/feastly-backend/pkg/errors"
)

// Currencies Stripe treats as zero-decimal; amounts are sent as-is instead
// of in hundredths.
var zeroDecimalCurrencies = map[string]bool{
	"VND": true,
	"JPY": true,
	"KRW": true,
}

var stripeEventStatuses = map[string]enums.PaymentStatus{
	"payment_intent.succeeded":      enums.PaymentStatusSuccess,
	"payment_intent.payment_failed": enums.PaymentStatusFailed,
	"payment_intent.canceled":       enums.PaymentStatusFailed,
	"charge.refunded":               enums.PaymentStatusRefunded,
}

type stripeProvider struct {
	webhookSecret string
}

// NewStripe configures the global Stripe client and returns the provider.
func NewStripe(cfg config.StripeConfig) (Provider, error) {
	secretKey := strings.TrimSpace(cfg.SecretKey)
	if secretKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe secret key is required")
	}
	webhookSecret := strings.TrimSpace(cfg.WebhookSecret)
	if webhookSecret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe webhook secret is required")
	}
	stripe.Key = secretKey
	return &stripeProvider{webhookSecret: webhookSecret}, nil
}

func (p *stripeProvider) Name() enums.PaymentProvider {
	return enums.PaymentProviderStripe
}

func (p *stripeProvider) Initialize(ctx context.Context, input InitializeInput) (*InitializeResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(minorUnits(input.Amount, input.CurrencyCode)),
		Currency: stripe.String(strings.ToLower(input.CurrencyCode)),
		Metadata: map[string]string{
			"transaction_id": input.TransactionID.String(),
			"user_id":        input.UserID.String(),
		},
	}
	if input.Description != "" {
		params.Description = stripe.String(input.Description)
	}
	params.Context = ctx

	intent, err := paymentintent.New(params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe payment intent")
	}

	raw, _ := json.Marshal(map[string]string{
		"client_secret": intent.ClientSecret,
	})
	return &InitializeResult{
		ExternalID: intent.ID,
		Raw:        raw,
	}, nil
}

func (p *stripeProvider) VerifySignature(payload []byte, signature string) error {
	if _, err := webhook.ConstructEvent(payload, signature, p.webhookSecret); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "stripe signature verification failed")
	}
	return nil
}

func (p *stripeProvider) MapEventStatus(eventType string) (enums.PaymentStatus, bool) {
	status, ok := stripeEventStatuses[eventType]
	return status, ok
}

func (p *stripeProvider) Refund(ctx context.Context, externalID string, amount decimal.Decimal, currencyCode, reason string) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(externalID),
	}
	if amount.IsPositive() {
		params.Amount = stripe.Int64(minorUnits(amount, currencyCode))
	}
	params.Context = ctx
	if _, err := refund.New(params); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe refund")
	}
	return nil
}

func minorUnits(amount decimal.Decimal, currency string) int64 {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return amount.Round(0).IntPart()
	}
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
