package cron

import (
	"context"
	"fmt"
	"time"
)

const rolloverBatchSize = 200

// billingRoller is the slice of the subscription service the job drives.
type billingRoller interface {
	RolloverDue(ctx context.Context, now time.Time, batchSize int) (int, error)
}

// BillingRolloverJob advances every subscription whose billing date has
// passed: auto-renewing ones get a fresh cycle and refilled quotas, the
// rest expire.
type BillingRolloverJob struct {
	subscriptions billingRoller
	now           func() time.Time
}

// NewBillingRolloverJob wires the job. nowFn may be nil.
func NewBillingRolloverJob(subscriptions billingRoller, nowFn func() time.Time) (*BillingRolloverJob, error) {
	if subscriptions == nil {
		return nil, fmt.Errorf("subscription service required")
	}
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &BillingRolloverJob{subscriptions: subscriptions, now: nowFn}, nil
}

// Name implements Job.
func (j *BillingRolloverJob) Name() string { return "billing_rollover" }

// Run drains due subscriptions in batches until none remain.
func (j *BillingRolloverJob) Run(ctx context.Context) error {
	now := j.now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		processed, err := j.subscriptions.RolloverDue(ctx, now, rolloverBatchSize)
		if err != nil {
			return err
		}
		if processed < rolloverBatchSize {
			return nil
		}
	}
}
