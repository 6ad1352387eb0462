package controllers

import (
	"context"
	"net/http"

	"github.com/tierlink/tierlink-backend/api/responses"
	pkgerrors "github.com/tierlink/tierlink-backend/pkg/errors"
	"github.com/tierlink/tierlink-backend/pkg/logger"
)

type cronRunner interface {
	RunOnce(ctx context.Context) error
}

// TriggerCron runs the full scheduled job pass on demand. The handler sits
// behind the cron token middleware; another worker holding the lock is not
// an error, the pass is simply skipped.
func TriggerCron(runner cronRunner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if runner == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cron service unavailable"))
			return
		}
		if err := runner.RunOnce(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"triggered": true})
	}
}

type jobRunner interface {
	Run(ctx context.Context) error
}

type fraudScanner interface {
	Scan(ctx context.Context) error
}

// TriggerFraudScan runs the fraud detection sweep on demand.
func TriggerFraudScan(svc fraudScanner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fraud service unavailable"))
			return
		}
		if err := svc.Scan(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"job": "fraud-scan", "status": "completed"})
	}
}

// TriggerJob runs one named job directly, outside the distributed lock.
// Used for targeted manual reruns after a config change.
func TriggerJob(name string, runner jobRunner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if runner == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "job unavailable"))
			return
		}
		if err := runner.Run(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"job": name, "status": "completed"})
	}
}
