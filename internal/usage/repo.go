package usage

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/quanghuyng/feastly-backend/pkg/db/models"
	"github.com/quanghuyng/feastly-backend/pkg/enums"
)

// Repository manages persistence for per-feature usage counters.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]models.UsageQuota, error)
	Find(ctx context.Context, subscriptionID uuid.UUID, feature enums.FeatureType) (*models.UsageQuota, error)
	ConsumeIfAvailable(ctx context.Context, subscriptionID uuid.UUID, feature enums.FeatureType, amount int) (bool, error)
	ResetAll(ctx context.Context, subscriptionID uuid.UUID, limits map[enums.FeatureType]int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a usage repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]models.UsageQuota, error) {
	var quotas []models.UsageQuota
	if err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("feature ASC").
		Find(&quotas).Error; err != nil {
		return nil, err
	}
	return quotas, nil
}

func (r *repository) Find(ctx context.Context, subscriptionID uuid.UUID, feature enums.FeatureType) (*models.UsageQuota, error) {
	var quota models.UsageQuota
	if err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND feature = ?", subscriptionID, feature).
		First(&quota).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &quota, nil
}

// ConsumeIfAvailable decrements the counter as a single conditional UPDATE.
// The WHERE clause on remaining guards the check and the write in one
// statement, so concurrent consumers can never drive the counter negative
// or double-spend the last unit.
func (r *repository) ConsumeIfAvailable(ctx context.Context, subscriptionID uuid.UUID, feature enums.FeatureType, amount int) (bool, error) {
	if amount <= 0 {
		amount = 1
	}
	result := r.db.WithContext(ctx).
		Model(&models.UsageQuota{}).
		Where("subscription_id = ? AND feature = ? AND remaining > 0", subscriptionID, feature).
		UpdateColumn("remaining", gorm.Expr(
			"CASE WHEN remaining > ? THEN remaining - ? ELSE 0 END", amount, amount,
		))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ResetAll upserts every feature counter back to the plan limit. The whole
// batch runs as one statement, so in-flight conditional decrements either
// land before the reset or against the fresh counters, never in between.
func (r *repository) ResetAll(ctx context.Context, subscriptionID uuid.UUID, limits map[enums.FeatureType]int) error {
	rows := make([]models.UsageQuota, 0, len(limits))
	for _, feature := range enums.AllFeatureTypes() {
		limit, ok := limits[feature]
		if !ok {
			limit = 0
		}
		rows = append(rows, models.UsageQuota{
			ID:             uuid.New(),
			SubscriptionID: subscriptionID,
			Feature:        feature,
			Remaining:      limit,
			LimitValue:     limit,
		})
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subscription_id"}, {Name: "feature"}},
			DoUpdates: clause.AssignmentColumns([]string{"remaining", "limit_value", "updated_at"}),
		}).
		Create(&rows).Error
}
