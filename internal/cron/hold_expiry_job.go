package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/taxcredit-backend/pkg/logger"
)

const (
	defaultHoldReclaimBatch = 200
	maxHoldReclaimPasses    = 10
)

type holdReclaimer interface {
	ReclaimExpired(ctx context.Context, limit int) (int, error)
}

type HoldExpiryJobParams struct {
	Logger    *logger.Logger
	Holds     holdReclaimer
	BatchSize int
}

// NewHoldExpiryJob builds the job that returns lapsed hold amounts to their lots.
func NewHoldExpiryJob(params HoldExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Holds == nil {
		return nil, fmt.Errorf("hold reclaimer required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultHoldReclaimBatch
	}
	return &holdExpiryJob{logg: params.Logger, holds: params.Holds, batch: batch}, nil
}

type holdExpiryJob struct {
	logg  *logger.Logger
	holds holdReclaimer
	batch int
}

func (j *holdExpiryJob) Name() string { return "hold-expiry" }

// Run drains lapsed holds a batch at a time. A short batch means the backlog
// is empty.
func (j *holdExpiryJob) Run(ctx context.Context) error {
	total := 0
	for pass := 0; pass < maxHoldReclaimPasses; pass++ {
		n, err := j.holds.ReclaimExpired(ctx, j.batch)
		total += n
		if err != nil {
			return fmt.Errorf("reclaim expired holds: %w", err)
		}
		if n < j.batch {
			break
		}
	}
	j.logg.Info(j.logg.WithField(ctx, "reclaimed", total), "hold expiry sweep complete")
	return nil
}
