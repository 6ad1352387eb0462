// Package payouts moves earned commission to affiliates, either through the
// external payment processor or as store credit.
package payouts

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tierlink/tierlink-backend/pkg/db/models"
	"github.com/tierlink/tierlink-backend/pkg/enums"
	"github.com/tierlink/tierlink-backend/pkg/pagination"
)

// Repository handles payout persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to payout operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create persists a new payout row.
func (r *Repository) Create(ctx context.Context, payout *models.Payout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

// FindByID loads one payout.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).First(&payout, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

// FindByRefCode loads a payout by its processor reference code.
func (r *Repository) FindByRefCode(ctx context.Context, refCode string) (*models.Payout, error) {
	var payout models.Payout
	err := r.db.WithContext(ctx).
		Where("ref_code = ?", strings.TrimSpace(refCode)).
		First(&payout).Error
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

// Update saves the provided payout.
func (r *Repository) Update(ctx context.Context, payout *models.Payout) error {
	if payout == nil {
		return gorm.ErrInvalidValue
	}
	return r.db.WithContext(ctx).Save(payout).Error
}

// UpdateStatus transitions a payout, stamping paid_at for completions.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.PayoutStatus, paidAt *time.Time) error {
	updates := map[string]any{"status": status}
	if paidAt != nil {
		updates["paid_at"] = *paidAt
	}
	return r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// List returns a page of payouts, newest first.
func (r *Repository) List(ctx context.Context, affiliateID *uuid.UUID, params pagination.Params) ([]models.Payout, error) {
	query := r.db.WithContext(ctx).
		Order("created_at desc, id desc").
		Limit(pagination.LimitWithBuffer(params.Limit))
	if affiliateID != nil {
		query = query.Where("affiliate_id = ?", *affiliateID)
	}
	if cursor, err := pagination.ParseCursor(params.Cursor); err == nil && cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	var payouts []models.Payout
	if err := query.Find(&payouts).Error; err != nil {
		return nil, err
	}
	return payouts, nil
}
