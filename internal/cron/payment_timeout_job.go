package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/quanghuyng/feastly-backend/pkg/logger"
)

const defaultCheckoutTTL = 24 * time.Hour

type stalePaymentExpirer interface {
	ExpireStalePending(ctx context.Context, olderThan time.Time) (int64, error)
}

// PaymentTimeoutJob fails PENDING transactions whose checkout was abandoned.
// Providers only push webhooks for completed or failed charges; a checkout
// the user walked away from would otherwise stay PENDING forever.
type PaymentTimeoutJob struct {
	payments stalePaymentExpirer
	ttl      time.Duration
	logg     *logger.Logger
	now      func() time.Time
}

// NewPaymentTimeoutJob wires the job. ttl <= 0 falls back to 24h.
func NewPaymentTimeoutJob(payments stalePaymentExpirer, ttl time.Duration, logg *logger.Logger) (*PaymentTimeoutJob, error) {
	if payments == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if ttl <= 0 {
		ttl = defaultCheckoutTTL
	}
	return &PaymentTimeoutJob{
		payments: payments,
		ttl:      ttl,
		logg:     logg,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Name implements Job.
func (j *PaymentTimeoutJob) Name() string { return "payment_timeout" }

// Run implements Job.
func (j *PaymentTimeoutJob) Run(ctx context.Context) error {
	expired, err := j.payments.ExpireStalePending(ctx, j.now().Add(-j.ttl))
	if err != nil {
		return err
	}
	if expired > 0 {
		j.logg.Info(
			j.logg.WithField(ctx, "expired", expired),
			"abandoned checkouts marked failed",
		)
	}
	return nil
}
