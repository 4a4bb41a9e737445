package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/quanghuyng/feastly-backend/pkg/db/models"
	"github.com/quanghuyng/feastly-backend/pkg/enums"
)

// Stats aggregates the transaction ledger over a window.
type Stats struct {
	TotalTransactions int64           `json:"totalTransactions"`
	Succeeded         int64           `json:"succeeded"`
	Failed            int64           `json:"failed"`
	Refunded          int64           `json:"refunded"`
	Pending           int64           `json:"pending"`
	Revenue           decimal.Decimal `json:"revenue"`
	SuccessRate       float64         `json:"successRate"`
}

// Repository manages the payment transaction ledger. Rows are never
// deleted.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error)
	FindByExternalID(ctx context.Context, provider enums.PaymentProvider, externalID string) (*models.PaymentTransaction, error)
	Create(ctx context.Context, tx *models.PaymentTransaction) error
	Update(ctx context.Context, tx *models.PaymentTransaction) error
	Aggregate(ctx context.Context, start, end *time.Time) (*Stats, error)
	ExpireStalePending(ctx context.Context, olderThan time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment repository bound to the database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&tx).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

func (r *repository) FindByExternalID(ctx context.Context, provider enums.PaymentProvider, externalID string) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	if err := r.db.WithContext(ctx).
		Where("provider = ? AND external_id = ?", provider, externalID).
		First(&tx).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

func (r *repository) Create(ctx context.Context, tx *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *repository) Update(ctx context.Context, tx *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Save(tx).Error
}

// ExpireStalePending fails PENDING transactions whose checkout window has
// lapsed without a webhook. The provider never confirmed, so the charge is
// treated as abandoned.
func (r *repository) ExpireStalePending(ctx context.Context, olderThan time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("status = ? AND created_at <= ?", enums.PaymentStatusPending, olderThan).
		Updates(map[string]any{
			"status":         enums.PaymentStatusFailed,
			"failure_reason": "checkout window expired without provider confirmation",
		})
	return result.RowsAffected, result.Error
}

func (r *repository) Aggregate(ctx context.Context, start, end *time.Time) (*Stats, error) {
	query := r.db.WithContext(ctx).Model(&models.PaymentTransaction{})
	if start != nil {
		query = query.Where("created_at >= ?", *start)
	}
	if end != nil {
		query = query.Where("created_at <= ?", *end)
	}

	var rows []struct {
		Status enums.PaymentStatus
		Count  int64
		Total  decimal.Decimal
	}
	if err := query.
		Select("status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	stats := &Stats{Revenue: decimal.Zero}
	for _, row := range rows {
		stats.TotalTransactions += row.Count
		switch row.Status {
		case enums.PaymentStatusSuccess:
			stats.Succeeded = row.Count
			stats.Revenue = stats.Revenue.Add(row.Total)
		case enums.PaymentStatusFailed:
			stats.Failed = row.Count
		case enums.PaymentStatusRefunded:
			stats.Refunded = row.Count
		case enums.PaymentStatusPending:
			stats.Pending = row.Count
		}
	}
	if terminal := stats.Succeeded + stats.Failed + stats.Refunded; terminal > 0 {
		stats.SuccessRate = float64(stats.Succeeded+stats.Refunded) / float64(terminal)
	}
	return stats, nil
}
