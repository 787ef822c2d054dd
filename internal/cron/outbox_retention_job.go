package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/donations-backend/pkg/enums"
	"github.com/angelmondragon/donations-backend/pkg/logger"
)

const defaultOutboxRetention = 30 * 24 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type publishedEventPruner interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
}

type deadLetterCounter interface {
	CountByReason(tx *gorm.DB) (map[enums.OutboxDLQErrorReason]int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository publishedEventPruner
	// DeadLetters is optional. When set, a non-empty DLQ is reported on
	// every run.
	DeadLetters deadLetterCounter
	Retention   time.Duration
}

type outboxRetentionJob struct {
	logg      *logger.Logger
	db        txRunner
	events    publishedEventPruner
	dlq       deadLetterCounter
	retention time.Duration
	now       func() time.Time
}

// NewOutboxRetentionJob prunes payment events published more than the
// retention ago. Unpublished rows and the DLQ are never deleted here.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Repository == nil:
		return nil, fmt.Errorf("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:      params.Logger,
		db:        params.DB,
		events:    params.Repository,
		dlq:       params.DeadLetters,
		retention: params.Retention,
		now:       time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultOutboxRetention
	}
	return job, nil
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var pruned int64
	var backlog map[enums.OutboxDLQErrorReason]int64

	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := j.events.DeletePublishedBefore(tx, cutoff)
		if err != nil {
			return err
		}
		pruned = n
		if j.dlq != nil {
			backlog, err = j.dlq.CountByReason(tx)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}

	ctx = j.logg.WithFields(ctx, map[string]any{"cutoff": cutoff, "rows_deleted": pruned})
	j.logg.Info(ctx, "outbox retention cleanup complete")

	var dead int64
	for _, n := range backlog {
		dead += n
	}
	if dead > 0 {
		j.logg.Warn(j.logg.WithFields(ctx, map[string]any{"dlq_total": dead, "dlq_by_reason": backlog}), "payment events waiting in dlq")
	}
	return nil
}
