package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/quanghuyng/feastly-backend/pkg/enums"
)

// Subscription is the one-per-user aggregate this core protects. The
// per-feature usage counters live in UsageQuota rows keyed by subscription.
type Subscription struct {
	ID              uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID          uuid.UUID                `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	PlanID          uuid.UUID                `gorm:"column:plan_id;type:uuid;not null;index"`
	Status          enums.SubscriptionStatus `gorm:"column:status;not null;default:'ACTIVE'"`
	BillingCycle    enums.BillingCycle       `gorm:"column:billing_cycle;not null;default:'MONTHLY'"`
	StartDate       time.Time                `gorm:"column:start_date;not null"`
	NextBillingDate time.Time                `gorm:"column:next_billing_date;not null;index"`
	EndDate         *time.Time               `gorm:"column:end_date"`
	AutoRenew       bool                     `gorm:"column:auto_renew;not null;default:true"`
	CanceledAt      *time.Time               `gorm:"column:canceled_at"`
	CreatedAt       time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                `gorm:"column:updated_at;autoUpdateTime"`

	Plan   *Plan        `gorm:"foreignKey:PlanID"`
	Quotas []UsageQuota `gorm:"foreignKey:SubscriptionID"`
}

// IsActive reports whether the subscription currently grants paid access.
func (s *Subscription) IsActive() bool {
	return s != nil && s.Status == enums.SubscriptionStatusActive
}

// UsageQuota is the remaining-uses counter for one feature in the current
// billing cycle. The decrement path relies on a single conditional UPDATE
// against this row, so the counter can never be driven below zero by
// concurrent consumers.
type UsageQuota struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SubscriptionID uuid.UUID         `gorm:"column:subscription_id;type:uuid;not null;uniqueIndex:idx_usage_quotas_sub_feature"`
	Feature        enums.FeatureType `gorm:"column:feature;not null;uniqueIndex:idx_usage_quotas_sub_feature"`
	Remaining      int               `gorm:"column:remaining;not null;default:0"`
	LimitValue     int               `gorm:"column:limit_value;not null;default:0"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the table to the name the migrations create; gorm's
// pluralizer does not pluralize "quota" and would otherwise map this
// model to "usage_quota".
func (UsageQuota) TableName() string {
	return "usage_quotas"
}
