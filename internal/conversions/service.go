package conversions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tierlink/tierlink-backend/pkg/db"
	"github.com/tierlink/tierlink-backend/pkg/db/models"
	"github.com/tierlink/tierlink-backend/pkg/enums"
	pkgerrors "github.com/tierlink/tierlink-backend/pkg/errors"
	"github.com/tierlink/tierlink-backend/pkg/logger"
	"github.com/tierlink/tierlink-backend/pkg/pagination"
)

type conversionRepository interface {
	Create(ctx context.Context, conversion *models.Conversion) error
	UpsertByOrderID(ctx context.Context, conversion *models.Conversion) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Conversion, error)
	Update(ctx context.Context, conversion *models.Conversion) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByOrderID(ctx context.Context, orderID string) (int64, error)
	List(ctx context.Context, affiliateID *uuid.UUID, status *enums.ConversionStatus, params pagination.Params) ([]models.Conversion, error)
}

type recalcTrigger interface {
	Run(ctx context.Context) error
}

// ConversionDTO is the API shape of one conversion.
type ConversionDTO struct {
	ID            uuid.UUID       `json:"id"`
	AffiliateID   uuid.UUID       `json:"affiliateId"`
	OrderID       string          `json:"orderId"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
	LineItems     json.RawMessage `json:"lineItems,omitempty"`
	CustomerEmail *string         `json:"customerEmail,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// CreateInput is the manual-entry payload.
type CreateInput struct {
	AffiliateID   uuid.UUID
	OrderID       string
	Amount        decimal.Decimal
	Currency      string
	CustomerEmail string
}

// UpdateInput captures the editable conversion fields.
type UpdateInput struct {
	Amount *decimal.Decimal
	Status *string
}

// UpsertOrderInput is the webhook-driven write shape.
type UpsertOrderInput struct {
	AffiliateID   uuid.UUID
	OrderID       string
	Amount        decimal.Decimal
	Currency      string
	LineItems     json.RawMessage
	CustomerEmail string
}

// Service exposes conversion operations. Every mutation triggers the full
// tier recalculation pass.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*ConversionDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*ConversionDTO, error)
	List(ctx context.Context, affiliateID *uuid.UUID, status string, params pagination.Params) ([]ConversionDTO, string, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*ConversionDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
	UpsertOrder(ctx context.Context, input UpsertOrderInput) error
	DeleteOrder(ctx context.Context, orderID string) (bool, error)
}

type service struct {
	repo   conversionRepository
	recalc recalcTrigger
	logg   *logger.Logger
}

// NewService builds a conversion service.
func NewService(repo conversionRepository, recalc recalcTrigger, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("conversion repository required")
	}
	if logg == nil {
		logg = logger.New(logger.Options{ServiceName: "conversions"})
	}
	return &service{repo: repo, recalc: recalc, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*ConversionDTO, error) {
	if input.AffiliateID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "affiliate id is required")
	}
	orderID := strings.TrimSpace(input.OrderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	conversion := &models.Conversion{
		AffiliateID: input.AffiliateID,
		OrderID:     orderID,
		Amount:      input.Amount.Round(2),
		Currency:    currencyOrDefault(input.Currency),
		Status:      enums.ConversionStatusPending,
	}
	if email := strings.TrimSpace(input.CustomerEmail); email != "" {
		conversion.CustomerEmail = &email
	}

	if err := s.repo.Create(ctx, conversion); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "a conversion for this order already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create conversion")
	}

	s.triggerRecalc(ctx)
	return toDTO(conversion), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*ConversionDTO, error) {
	conversion, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return toDTO(conversion), nil
}

func (s *service) List(ctx context.Context, affiliateID *uuid.UUID, status string, params pagination.Params) ([]ConversionDTO, string, error) {
	var filter *enums.ConversionStatus
	if strings.TrimSpace(status) != "" {
		parsed, err := enums.ParseConversionStatus(status)
		if err != nil {
			return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
		}
		filter = &parsed
	}

	rows, err := s.repo.List(ctx, affiliateID, filter, params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list conversions")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	nextCursor := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	out := make([]ConversionDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *toDTO(&rows[i]))
	}
	return out, nextCursor, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*ConversionDTO, error) {
	conversion, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Amount != nil {
		if !input.Amount.IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
		}
		conversion.Amount = input.Amount.Round(2)
	}
	if input.Status != nil {
		status, err := enums.ParseConversionStatus(*input.Status)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid conversion status")
		}
		conversion.Status = status
	}

	if err := s.repo.Update(ctx, conversion); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update conversion")
	}
	s.triggerRecalc(ctx)
	return toDTO(conversion), nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete conversion")
	}
	s.triggerRecalc(ctx)
	return nil
}

// UpsertOrder writes a webhook-delivered order. Replays of the same order
// id overwrite in place rather than duplicating.
func (s *service) UpsertOrder(ctx context.Context, input UpsertOrderInput) error {
	if input.AffiliateID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "affiliate id is required")
	}
	orderID := strings.TrimSpace(input.OrderID)
	if orderID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	conversion := &models.Conversion{
		AffiliateID: input.AffiliateID,
		OrderID:     orderID,
		Amount:      input.Amount.Round(2),
		Currency:    currencyOrDefault(input.Currency),
		Status:      enums.ConversionStatusPending,
		LineItems:   input.LineItems,
	}
	if email := strings.TrimSpace(input.CustomerEmail); email != "" {
		conversion.CustomerEmail = &email
	}

	if err := s.repo.UpsertByOrderID(ctx, conversion); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert conversion")
	}
	s.triggerRecalc(ctx)
	return nil
}

// DeleteOrder removes the conversion for a refunded order. Unknown orders
// are a no-op and report false.
func (s *service) DeleteOrder(ctx context.Context, orderID string) (bool, error) {
	removed, err := s.repo.DeleteByOrderID(ctx, orderID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete conversion")
	}
	if removed == 0 {
		return false, nil
	}
	s.triggerRecalc(ctx)
	return true, nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Conversion, error) {
	conversion, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "conversion not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load conversion")
	}
	return conversion, nil
}

// triggerRecalc runs the full tier pass. Failures are logged and swallowed
// so the mutation that triggered them still succeeds.
func (s *service) triggerRecalc(ctx context.Context) {
	if s.recalc == nil {
		return
	}
	if err := s.recalc.Run(ctx); err != nil {
		s.logg.Error(ctx, "tier recalculation failed", err)
	}
}

func toDTO(conversion *models.Conversion) *ConversionDTO {
	return &ConversionDTO{
		ID:            conversion.ID,
		AffiliateID:   conversion.AffiliateID,
		OrderID:       conversion.OrderID,
		Amount:        conversion.Amount,
		Currency:      conversion.Currency,
		Status:        conversion.Status.String(),
		LineItems:     conversion.LineItems,
		CustomerEmail: conversion.CustomerEmail,
		CreatedAt:     conversion.CreatedAt,
	}
}

func currencyOrDefault(currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return "USD"
	}
	return currency
}
