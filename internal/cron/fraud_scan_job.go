package cron

import (
	"context"
	"fmt"

	"github.com/tierlink/tierlink-backend/pkg/logger"
)

type fraudScanner interface {
	Scan(ctx context.Context) error
}

// NewFraudScanJob wraps the fraud detection sweep as a cron job.
func NewFraudScanJob(logg *logger.Logger, scanner fraudScanner) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if scanner == nil {
		return nil, fmt.Errorf("fraud service required")
	}
	return &fraudScanJob{logg: logg, scanner: scanner}, nil
}

type fraudScanJob struct {
	logg    *logger.Logger
	scanner fraudScanner
}

func (j *fraudScanJob) Name() string { return "fraud-scan" }

func (j *fraudScanJob) Run(ctx context.Context) error {
	if err := j.scanner.Scan(ctx); err != nil {
		return fmt.Errorf("fraud scan: %w", err)
	}
	return nil
}
