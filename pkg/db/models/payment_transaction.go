package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quanghuyng/feastly-backend/pkg/enums"
)

// PaymentTransaction is the append-mostly ledger of payment attempts.
// ExternalID is the provider's reference and doubles as the idempotency
// key for webhook replays; it is unique per provider.
type PaymentTransaction struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID         uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	SubscriptionID uuid.UUID             `gorm:"column:subscription_id;type:uuid;not null;index"`
	Amount         decimal.Decimal       `gorm:"column:amount;type:numeric(14,2);not null"`
	CurrencyCode   string                `gorm:"column:currency_code;not null;default:'VND'"`
	Provider       enums.PaymentProvider `gorm:"column:provider;not null;uniqueIndex:idx_payment_tx_provider_external"`
	ExternalID     string                `gorm:"column:external_id;uniqueIndex:idx_payment_tx_provider_external"`
	Status         enums.PaymentStatus   `gorm:"column:status;not null;default:'PENDING'"`
	Metadata       json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	FailureReason  *string               `gorm:"column:failure_reason"`
	RefundedAmount *decimal.Decimal      `gorm:"column:refunded_amount;type:numeric(14,2)"`
	RefundReason   *string               `gorm:"column:refund_reason"`
	ProcessedAt    *time.Time            `gorm:"column:processed_at"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
