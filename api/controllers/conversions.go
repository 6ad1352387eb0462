package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tierlink/tierlink-backend/api/responses"
	"github.com/tierlink/tierlink-backend/api/validators"
	"github.com/tierlink/tierlink-backend/internal/conversions"
	pkgerrors "github.com/tierlink/tierlink-backend/pkg/errors"
	"github.com/tierlink/tierlink-backend/pkg/logger"
)

type createConversionRequest struct {
	AffiliateID   string `json:"affiliateId" validate:"required,uuid"`
	OrderID       string `json:"orderId" validate:"required,max=64"`
	Amount        string `json:"amount" validate:"required"`
	Currency      string `json:"currency" validate:"omitempty,len=3"`
	CustomerEmail string `json:"customerEmail" validate:"omitempty,email"`
}

// CreateConversion records a manually entered sale.
func CreateConversion(svc conversions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "conversion service unavailable"))
			return
		}

		var req createConversionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		affiliateID, err := uuid.Parse(req.AffiliateID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid affiliate id"))
			return
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount"))
			return
		}

		created, err := svc.Create(r.Context(), conversions.CreateInput{
			AffiliateID:   affiliateID,
			OrderID:       req.OrderID,
			Amount:        amount,
			Currency:      strings.ToUpper(strings.TrimSpace(req.Currency)),
			CustomerEmail: req.CustomerEmail,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

// ListConversions returns paginated conversions with optional filters.
func ListConversions(svc conversions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := paginationParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var affiliateID *uuid.UUID
		if raw := strings.TrimSpace(r.URL.Query().Get("affiliateId")); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid affiliate id"))
				return
			}
			affiliateID = &id
		}
		status := strings.TrimSpace(r.URL.Query().Get("status"))

		items, next, err := svc.List(r.Context(), affiliateID, status, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, listEnvelope[conversions.ConversionDTO]{Items: items, NextCursor: next})
	}
}

type updateConversionRequest struct {
	Amount *string `json:"amount"`
	Status *string `json:"status" validate:"omitempty,oneof=pending approved paid"`
}

// UpdateConversion edits the amount or status of a recorded sale.
func UpdateConversion(svc conversions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateConversionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := conversions.UpdateInput{Status: req.Status}
		if req.Amount != nil {
			amount, err := decimal.NewFromString(strings.TrimSpace(*req.Amount))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount"))
				return
			}
			input.Amount = &amount
		}

		updated, err := svc.Update(r.Context(), id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

// DeleteConversion removes a recorded sale and triggers recalculation.
func DeleteConversion(svc conversions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"deleted": true})
	}
}
