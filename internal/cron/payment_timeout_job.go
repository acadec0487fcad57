package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/taxcredit-backend/pkg/logger"
)

const (
	defaultPendingTTL  = 24 * time.Hour
	pendingCancelBatch = 100
)

type stalePaymentCanceler interface {
	CancelStalePending(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

type PaymentTimeoutJobParams struct {
	Logger     *logger.Logger
	Payments   stalePaymentCanceler
	PendingTTL time.Duration
}

// NewPaymentTimeoutJob builds the job that cancels checkouts left unpaid past
// PendingTTL, which restores their reserved inventory.
func NewPaymentTimeoutJob(params PaymentTimeoutJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	ttl := params.PendingTTL
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	return &paymentTimeoutJob{
		logg:     params.Logger,
		payments: params.Payments,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

type paymentTimeoutJob struct {
	logg     *logger.Logger
	payments stalePaymentCanceler
	ttl      time.Duration
	now      func() time.Time
}

func (j *paymentTimeoutJob) Name() string { return "order-payment-timeout" }

func (j *paymentTimeoutJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	canceled, err := j.payments.CancelStalePending(ctx, cutoff, pendingCancelBatch)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":   cutoff,
		"canceled": canceled,
	})
	if err != nil {
		return fmt.Errorf("cancel stale pending orders: %w", err)
	}
	j.logg.Info(logCtx, "pending payment timeout sweep complete")
	return nil
}
