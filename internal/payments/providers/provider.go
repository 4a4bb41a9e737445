package providers

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quanghuyng/feastly-backend/pkg/enums"
	pkgerrors "github.com/quanghuyng/feastly-backend/pkg/errors"
)

// InitializeInput is what a gateway needs to open a checkout session.
type InitializeInput struct {
	TransactionID uuid.UUID
	UserID        uuid.UUID
	Amount        decimal.Decimal
	CurrencyCode  string
	Description   string
}

// InitializeResult normalizes the gateway's checkout handle. ExternalID is
// the provider-side reference all later webhooks carry.
type InitializeResult struct {
	ExternalID  string
	RedirectURL string
	QRCodeURL   string
	Raw         json.RawMessage
}

// Provider abstracts one payment gateway. Implementations normalize the
// gateway's event vocabulary into canonical payment statuses; everything
// provider-specific stays behind this interface.
type Provider interface {
	Name() enums.PaymentProvider
	Initialize(ctx context.Context, input InitializeInput) (*InitializeResult, error)
	VerifySignature(payload []byte, signature string) error
	MapEventStatus(eventType string) (enums.PaymentStatus, bool)
	Refund(ctx context.Context, externalID string, amount decimal.Decimal, currencyCode, reason string) error
}

// Registry resolves providers by name.
type Registry struct {
	providers map[enums.PaymentProvider]Provider
}

// NewRegistry indexes the given providers.
func NewRegistry(providers ...Provider) *Registry {
	indexed := make(map[enums.PaymentProvider]Provider, len(providers))
	for _, p := range providers {
		if p != nil {
			indexed[p.Name()] = p
		}
	}
	return &Registry{providers: indexed}
}

// Get returns the provider or a validation error for unknown names.
func (r *Registry) Get(name enums.PaymentProvider) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment provider "+name.String())
	}
	return p, nil
}
