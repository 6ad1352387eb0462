package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/tierlink/tierlink-backend/pkg/logger"
)

type stubRunner struct {
	err  error
	runs int
}

func (s *stubRunner) Run(context.Context) error {
	s.runs++
	return s.err
}

func (s *stubRunner) Scan(context.Context) error {
	s.runs++
	return s.err
}

func TestRecalculateJobDelegates(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	runner := &stubRunner{}
	job, err := NewRecalculateJob(logg, runner)
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if job.Name() != "recalculate-tiers" {
		t.Fatalf("unexpected name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if runner.runs != 1 {
		t.Fatalf("expected 1 run, got %d", runner.runs)
	}
}

func TestFraudScanJobWrapsFailure(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	scanErr := errors.New("scan blew up")
	runner := &stubRunner{err: scanErr}
	job, err := NewFraudScanJob(logg, runner)
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if job.Name() != "fraud-scan" {
		t.Fatalf("unexpected name %q", job.Name())
	}
	err = job.Run(context.Background())
	if !errors.Is(err, scanErr) {
		t.Fatalf("expected wrapped scan error, got %v", err)
	}
}
