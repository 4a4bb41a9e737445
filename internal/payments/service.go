package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quanghuyng/feastly-backend/internal/payments/providers"
	"github.com/quanghuyng/feastly-backend/pkg/db/models"
	"github.com/quanghuyng/feastly-backend/pkg/enums"
	pkgerrors "github.com/quanghuyng/feastly-backend/pkg/errors"
	"github.com/quanghuyng/feastly-backend/pkg/logger"
	"github.com/quanghuyng/feastly-backend/pkg/metrics"
)

const (
	webhookOutcomeApplied   = "applied"
	webhookOutcomeDuplicate = "duplicate"
	webhookOutcomeUnknown   = "unknown"
	webhookOutcomeRejected  = "rejected"
	webhookOutcomeError     = "error"
)

// lifecycleManager is the slice of the subscription service the reconciler
// drives on status transitions.
type lifecycleManager interface {
	ActivateFromPayment(ctx context.Context, subscriptionID uuid.UUID) error
	MarkPastDue(ctx context.Context, subscriptionID uuid.UUID) error
}

type subscriptionSource interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
}

type webhookGuard interface {
	CheckAndMark(ctx context.Context, provider enums.PaymentProvider, externalID, eventType string) (bool, error)
	Release(ctx context.Context, provider enums.PaymentProvider, externalID, eventType string) error
}

// CreatePaymentInput starts a checkout against a gateway.
type CreatePaymentInput struct {
	UserID         uuid.UUID
	SubscriptionID uuid.UUID
	Amount         decimal.Decimal
	CurrencyCode   string
	Provider       enums.PaymentProvider
	Description    string
}

// WebhookEvent is one normalized provider callback.
type WebhookEvent struct {
	Provider   enums.PaymentProvider
	EventType  string
	ExternalID string
	Payload    []byte
	Signature  string
}

// RefundInput reverses a successful charge at the gateway. Amount nil means
// full refund.
type RefundInput struct {
	PaymentID uuid.UUID
	Amount    *decimal.Decimal
	Reason    string
}

// Service reconciles externally processed payments with the local ledger
// and drives subscription activation on success.
type Service interface {
	CreatePayment(ctx context.Context, input CreatePaymentInput) (*models.PaymentTransaction, error)
	GetPayment(ctx context.Context, userID, paymentID uuid.UUID) (*models.PaymentTransaction, error)
	HandleWebhook(ctx context.Context, event WebhookEvent) error
	Refund(ctx context.Context, input RefundInput) (*models.PaymentTransaction, error)
	GetStats(ctx context.Context, start, end *time.Time) (*Stats, error)
}

// ServiceParams groups dependencies for the payment service.
type ServiceParams struct {
	Repo          Repository
	Providers     *providers.Registry
	Subscriptions subscriptionSource
	Lifecycle     lifecycleManager
	Guard         webhookGuard
	Metrics       *metrics.AccessMetrics
	Log           *logger.Logger
}

type service struct {
	repo          Repository
	providers     *providers.Registry
	subscriptions subscriptionSource
	lifecycle     lifecycleManager
	guard         webhookGuard
	metrics       *metrics.AccessMetrics
	log           *logger.Logger
}

// NewService validates params and returns the payment reconciler.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payments: repository is required")
	}
	if params.Providers == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payments: provider registry is required")
	}
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payments: subscription source is required")
	}
	if params.Lifecycle == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payments: lifecycle manager is required")
	}
	if params.Guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payments: webhook guard is required")
	}
	if params.Log == nil {
		params.Log = logger.New(logger.Options{ServiceName: "payments"})
	}
	return &service{
		repo:          params.Repo,
		providers:     params.Providers,
		subscriptions: params.Subscriptions,
		lifecycle:     params.Lifecycle,
		guard:         params.Guard,
		metrics:       params.Metrics,
		log:           params.Log,
	}, nil
}

// CreatePayment persists a PENDING row before touching the gateway, so a
// gateway failure still leaves an auditable FAILED transaction behind.
func (s *service) CreatePayment(ctx context.Context, input CreatePaymentInput) (*models.PaymentTransaction, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.SubscriptionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	provider, err := s.providers.Get(input.Provider)
	if err != nil {
		return nil, err
	}

	sub, err := s.subscriptions.FindByID(ctx, input.SubscriptionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	if sub.UserID != input.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "subscription does not belong to this user")
	}

	currency := input.CurrencyCode
	if currency == "" {
		currency = "VND"
	}
	tx := &models.PaymentTransaction{
		ID:             uuid.New(),
		UserID:         input.UserID,
		SubscriptionID: input.SubscriptionID,
		Amount:         input.Amount,
		CurrencyCode:   currency,
		Provider:       input.Provider,
		Status:         enums.PaymentStatusPending,
	}
	if err := s.repo.Create(ctx, tx); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment transaction")
	}

	result, err := provider.Initialize(ctx, providers.InitializeInput{
		TransactionID: tx.ID,
		UserID:        input.UserID,
		Amount:        input.Amount,
		CurrencyCode:  currency,
		Description:   input.Description,
	})
	if err != nil {
		reason := err.Error()
		tx.Status = enums.PaymentStatusFailed
		tx.FailureReason = &reason
		if saveErr := s.repo.Update(ctx, tx); saveErr != nil {
			s.log.Error(ctx, "mark payment failed after initializer error", saveErr)
		}
		return nil, err
	}

	tx.ExternalID = result.ExternalID
	if len(result.Raw) > 0 {
		tx.Metadata = json.RawMessage(result.Raw)
	}
	if err := s.repo.Update(ctx, tx); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store external reference")
	}

	s.log.Info(
		s.log.WithFields(ctx, map[string]any{
			"transaction_id": tx.ID.String(),
			"provider":       tx.Provider.String(),
		}),
		"payment initialized",
	)
	return tx, nil
}

// GetPayment returns one transaction, scoped to its owner.
func (s *service) GetPayment(ctx context.Context, userID, paymentID uuid.UUID) (*models.PaymentTransaction, error) {
	tx, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transaction")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	if tx.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment does not belong to this user")
	}
	return tx, nil
}

// HandleWebhook applies one provider callback to the ledger. Deliveries are
// deduped by (provider, externalID, eventType); unknown transactions and
// unknown event types are acknowledged without mutating state so providers
// stop retrying.
func (s *service) HandleWebhook(ctx context.Context, event WebhookEvent) error {
	provider, err := s.providers.Get(event.Provider)
	if err != nil {
		return err
	}
	ctx = s.log.WithProvider(ctx, event.Provider.String())

	if err := provider.VerifySignature(event.Payload, event.Signature); err != nil {
		s.countWebhook(event.Provider, webhookOutcomeRejected)
		return err
	}

	duplicate, err := s.guard.CheckAndMark(ctx, event.Provider, event.ExternalID, event.EventType)
	if err != nil {
		return err
	}
	if duplicate {
		s.countWebhook(event.Provider, webhookOutcomeDuplicate)
		s.log.Info(ctx, "duplicate webhook delivery dropped")
		return nil
	}

	if err := s.applyWebhook(ctx, provider, event); err != nil {
		// Free the marker so the provider's retry can land.
		if releaseErr := s.guard.Release(ctx, event.Provider, event.ExternalID, event.EventType); releaseErr != nil {
			s.log.Error(ctx, "release webhook idempotency marker", releaseErr)
		}
		s.countWebhook(event.Provider, webhookOutcomeError)
		return err
	}
	return nil
}

func (s *service) applyWebhook(ctx context.Context, provider providers.Provider, event WebhookEvent) error {
	tx, err := s.repo.FindByExternalID(ctx, event.Provider, event.ExternalID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transaction")
	}
	if tx == nil {
		// Never fabricate a transaction from a webhook.
		s.countWebhook(event.Provider, webhookOutcomeUnknown)
		s.log.Warn(ctx, fmt.Sprintf("webhook for unknown external id %q", event.ExternalID))
		return nil
	}

	status, known := provider.MapEventStatus(event.EventType)
	if !known {
		s.countWebhook(event.Provider, webhookOutcomeUnknown)
		s.log.Warn(ctx, fmt.Sprintf("unhandled webhook event type %q", event.EventType))
		return nil
	}
	if status == tx.Status {
		// A retry after a failed lifecycle hook lands here with the status
		// already persisted but the subscription untouched. Both hooks are
		// no-ops once the subscription has caught up, so re-running them is
		// the only way the retry can finish the job.
		if err := s.applyLifecycle(ctx, status, tx.SubscriptionID); err != nil {
			return err
		}
		s.countWebhook(event.Provider, webhookOutcomeDuplicate)
		return nil
	}

	now := time.Now().UTC()
	tx.Status = status
	tx.ProcessedAt = &now
	if err := s.repo.Update(ctx, tx); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
	}

	if err := s.applyLifecycle(ctx, status, tx.SubscriptionID); err != nil {
		return err
	}

	s.countWebhook(event.Provider, webhookOutcomeApplied)
	s.log.Info(
		s.log.WithFields(ctx, map[string]any{
			"transaction_id": tx.ID.String(),
			"status":         status.String(),
		}),
		"payment status reconciled",
	)
	return nil
}

// applyLifecycle propagates a terminal payment status to the subscription.
func (s *service) applyLifecycle(ctx context.Context, status enums.PaymentStatus, subscriptionID uuid.UUID) error {
	switch status {
	case enums.PaymentStatusSuccess:
		return s.lifecycle.ActivateFromPayment(ctx, subscriptionID)
	case enums.PaymentStatusFailed:
		return s.lifecycle.MarkPastDue(ctx, subscriptionID)
	}
	return nil
}

// Refund reverses a successful charge. The subscription and its quotas are
// deliberately left untouched; a refund is not a cancellation.
func (s *service) Refund(ctx context.Context, input RefundInput) (*models.PaymentTransaction, error) {
	if input.PaymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	tx, err := s.repo.FindByID(ctx, input.PaymentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transaction")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	if tx.Status != enums.PaymentStatusSuccess {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only successful payments can be refunded")
	}

	provider, err := s.providers.Get(tx.Provider)
	if err != nil {
		return nil, err
	}
	amount := tx.Amount
	if input.Amount != nil {
		if input.Amount.IsNegative() || input.Amount.GreaterThan(tx.Amount) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount exceeds the charge")
		}
		amount = *input.Amount
	}
	if err := provider.Refund(ctx, tx.ExternalID, amount, tx.CurrencyCode, input.Reason); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	tx.Status = enums.PaymentStatusRefunded
	tx.RefundedAmount = &amount
	tx.ProcessedAt = &now
	if input.Reason != "" {
		reason := input.Reason
		tx.RefundReason = &reason
	}
	if err := s.repo.Update(ctx, tx); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund")
	}
	return tx, nil
}

func (s *service) GetStats(ctx context.Context, start, end *time.Time) (*Stats, error) {
	if start != nil && end != nil && end.Before(*start) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "end date precedes start date")
	}
	stats, err := s.repo.Aggregate(ctx, start, end)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate payments")
	}
	return stats, nil
}

func (s *service) countWebhook(provider enums.PaymentProvider, outcome string) {
	if s.metrics != nil {
		s.metrics.IncWebhook(provider.String(), outcome)
	}
}
