package controllers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/tierlink/tierlink-backend/api/responses"
	"github.com/tierlink/tierlink-backend/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// Liveness reports that the process is up. No dependency checks.
func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}

// Readiness checks the database and cache before reporting ready. A nil
// dependency is skipped so the cron worker can share the handler.
func Readiness(database, cache pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if database != nil {
			if err := database.Ping(ctx); err != nil {
				writeUnready(ctx, w, logg, "database", err)
				return
			}
		}
		if cache != nil {
			if err := cache.Ping(ctx); err != nil {
				writeUnready(ctx, w, logg, "cache", err)
				return
			}
		}

		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}

func writeUnready(ctx context.Context, w http.ResponseWriter, logg *logger.Logger, dependency string, err error) {
	if logg != nil {
		logg.Error(logg.WithField(ctx, "dependency", dependency), "readiness check failed", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "dependency": dependency})
}
