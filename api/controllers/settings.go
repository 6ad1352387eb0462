package controllers

import (
	"context"
	"net/http"

	"github.com/tierlink/tierlink-backend/api/responses"
	"github.com/tierlink/tierlink-backend/api/validators"
	"github.com/tierlink/tierlink-backend/internal/settings"
	pkgerrors "github.com/tierlink/tierlink-backend/pkg/errors"
	"github.com/tierlink/tierlink-backend/pkg/logger"
)

type recalcTrigger interface {
	Run(ctx context.Context) error
}

// GetSettings returns the stored program configuration.
func GetSettings(svc settings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		values, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, values)
	}
}

type updateSettingsRequest struct {
	Values map[string]string `json:"values" validate:"required,min=1"`
}

// UpdateSettings validates and stores configuration values. The tier
// table may change commission thresholds, so a successful write triggers
// a full recalculation pass.
func UpdateSettings(svc settings.Service, recalc recalcTrigger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settings service unavailable"))
			return
		}

		var req updateSettingsRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Update(r.Context(), req.Values); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if recalc != nil {
			if err := recalc.Run(r.Context()); err != nil && logg != nil {
				logg.Error(r.Context(), "recalculation after settings change failed", err)
			}
		}

		values, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, values)
	}
}
