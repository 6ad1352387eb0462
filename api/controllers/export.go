package controllers

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tierlink/tierlink-backend/api/responses"
	"github.com/tierlink/tierlink-backend/internal/export"
	pkgerrors "github.com/tierlink/tierlink-backend/pkg/errors"
	"github.com/tierlink/tierlink-backend/pkg/logger"
)

// ExportCSV streams one of the program tables as a CSV attachment. The
// path parameter picks the table: affiliates, conversions, or payouts.
func ExportCSV(svc *export.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "export service unavailable"))
			return
		}

		resource := chi.URLParam(r, "resource")
		var write func(context.Context, io.Writer) error
		switch resource {
		case "affiliates":
			write = svc.Affiliates
		case "conversions":
			write = svc.Conversions
		case "payouts":
			write = svc.Payouts
		default:
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "unknown export resource"))
			return
		}

		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+resource+`.csv"`)
		if err := write(r.Context(), w); err != nil && logg != nil {
			// headers are already sent; log and cut the stream short
			logg.Error(r.Context(), "csv export failed mid-stream", err)
		}
	}
}
