package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/tierlink/tierlink-backend/api/responses"
	"github.com/tierlink/tierlink-backend/api/validators"
	"github.com/tierlink/tierlink-backend/internal/activity"
	pkgerrors "github.com/tierlink/tierlink-backend/pkg/errors"
	"github.com/tierlink/tierlink-backend/pkg/logger"
)

// ListActivity returns the activity feed, optionally for one affiliate.
func ListActivity(svc activity.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var items []activity.EntryDTO
		if raw := strings.TrimSpace(r.URL.Query().Get("affiliateId")); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid affiliate id"))
				return
			}
			items, err = svc.ListByAffiliate(r.Context(), id, limit)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		} else {
			items, err = svc.List(r.Context(), limit)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		responses.WriteSuccess(w, listEnvelope[activity.EntryDTO]{Items: items})
	}
}
