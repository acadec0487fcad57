package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/taxcredit-backend/pkg/logger"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

const (
	outboxRetentionDays       = 30
	notificationRetentionDays = 90
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type notificationPruner interface {
	DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type RetentionJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Outbox        outboxPruner
	Notifications notificationPruner
	OutboxDays    int
	InboxDays     int
}

// NewRetentionJob prunes published outbox rows and read inbox notifications.
func NewRetentionJob(params RetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	outboxDays := params.OutboxDays
	if outboxDays <= 0 {
		outboxDays = outboxRetentionDays
	}
	inboxDays := params.InboxDays
	if inboxDays <= 0 {
		inboxDays = notificationRetentionDays
	}
	return &retentionJob{
		logg:       params.Logger,
		db:         params.DB,
		outbox:     params.Outbox,
		inbox:      params.Notifications,
		outboxDays: outboxDays,
		inboxDays:  inboxDays,
		now:        time.Now,
	}, nil
}

type retentionJob struct {
	logg       *logger.Logger
	db         txRunner
	outbox     outboxPruner
	inbox      notificationPruner
	outboxDays int
	inboxDays  int
	now        func() time.Time
}

func (j *retentionJob) Name() string { return "retention" }

// Run prunes each table in its own transaction so one failure does not
// block the other.
func (j *retentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	sweeps := []struct {
		table string
		days  int
		prune func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
	}{
		{table: "outbox_events", days: j.outboxDays, prune: j.outbox.DeletePublishedBefore},
		{table: "notifications", days: j.inboxDays, prune: j.inbox.DeleteOlderThan},
	}

	var errs error
	for _, sweep := range sweeps {
		cutoff := now.Add(-time.Duration(sweep.days) * 24 * time.Hour)
		var deleted int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			rows, err := sweep.prune(ctx, tx, cutoff)
			deleted = rows
			return err
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("prune %s: %w", sweep.table, err))
			continue
		}
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"table":          sweep.table,
			"cutoff":         cutoff,
			"retention_days": sweep.days,
			"rows_deleted":   deleted,
		}), "retention sweep complete")
	}
	return errs
}
