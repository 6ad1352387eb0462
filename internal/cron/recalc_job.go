package cron

import (
	"context"
	"fmt"

	"github.com/tierlink/tierlink-backend/pkg/logger"
)

type recalcRunner interface {
	Run(ctx context.Context) error
}

// NewRecalculateJob wraps the commission recalculation pass as a cron job.
func NewRecalculateJob(logg *logger.Logger, recalc recalcRunner) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if recalc == nil {
		return nil, fmt.Errorf("recalc service required")
	}
	return &recalculateJob{logg: logg, recalc: recalc}, nil
}

type recalculateJob struct {
	logg   *logger.Logger
	recalc recalcRunner
}

func (j *recalculateJob) Name() string { return "recalculate-tiers" }

func (j *recalculateJob) Run(ctx context.Context) error {
	if err := j.recalc.Run(ctx); err != nil {
		return fmt.Errorf("recalculate tiers: %w", err)
	}
	return nil
}
