package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/donations-backend/internal/payments"
	"github.com/angelmondragon/donations-backend/pkg/logger"
)

const (
	defaultSweepAge   = 30 * time.Minute
	defaultSweepBatch = 100
)

type pendingSweeper interface {
	SweepPending(ctx context.Context, cutoff time.Time, limit int) (payments.SweepResult, error)
}

type PendingPaymentSweepJobParams struct {
	Logger   *logger.Logger
	Payments pendingSweeper
	MinAge   time.Duration
	Batch    int
}

// NewPendingPaymentSweepJob resolves orders left pending by a failed create
// call or a lost webhook. It only asks the gateway and hands the answer to
// the reconciliation engine.
func NewPendingPaymentSweepJob(params PendingPaymentSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	minAge := params.MinAge
	if minAge <= 0 {
		minAge = defaultSweepAge
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &pendingPaymentSweepJob{
		logg:     params.Logger,
		payments: params.Payments,
		minAge:   minAge,
		batch:    batch,
		now:      time.Now,
	}, nil
}

type pendingPaymentSweepJob struct {
	logg     *logger.Logger
	payments pendingSweeper
	minAge   time.Duration
	batch    int
	now      func() time.Time
}

func (j *pendingPaymentSweepJob) Name() string { return "pending-payment-sweep" }

func (j *pendingPaymentSweepJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.minAge)
	result, err := j.payments.SweepPending(ctx, cutoff, j.batch)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"checked": result.Checked,
		"settled": result.Settled,
		"pending": result.Pending,
		"errored": result.Errored,
	})
	if err != nil {
		j.logg.Warn(logCtx, "pending payment sweep finished with errors")
		return fmt.Errorf("pending payment sweep: %w", err)
	}
	j.logg.Info(logCtx, "pending payment sweep complete")
	return nil
}
