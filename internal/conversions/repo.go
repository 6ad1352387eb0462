// Package conversions records sales attributed to affiliates. The order id
// is the idempotency key: webhook-driven writes upsert on it so replayed
// deliveries cannot double-count revenue.
package conversions

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tierlink/tierlink-backend/pkg/db/models"
	"github.com/tierlink/tierlink-backend/pkg/enums"
	"github.com/tierlink/tierlink-backend/pkg/pagination"
)

// Repository handles conversion persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to conversion operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create persists a new conversion row.
func (r *Repository) Create(ctx context.Context, conversion *models.Conversion) error {
	return r.db.WithContext(ctx).Create(conversion).Error
}

// UpsertByOrderID inserts the conversion or, when the order id already
// exists, overwrites its amount, line items, and attribution. Status is
// insert-only: a re-delivered order must not knock an admin-approved row
// back to pending. The conflict target is the unique order_id constraint,
// so concurrent deliveries of the same order cannot create duplicates.
func (r *Repository) UpsertByOrderID(ctx context.Context, conversion *models.Conversion) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "order_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"affiliate_id", "amount", "currency", "line_items", "customer_email", "updated_at",
			}),
		}).
		Create(conversion).Error
}

// FindByID loads one conversion.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Conversion, error) {
	var conversion models.Conversion
	if err := r.db.WithContext(ctx).First(&conversion, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &conversion, nil
}

// FindByOrderID loads a conversion by its storefront order id.
func (r *Repository) FindByOrderID(ctx context.Context, orderID string) (*models.Conversion, error) {
	var conversion models.Conversion
	err := r.db.WithContext(ctx).
		Where("order_id = ?", strings.TrimSpace(orderID)).
		First(&conversion).Error
	if err != nil {
		return nil, err
	}
	return &conversion, nil
}

// Update saves the provided conversion.
func (r *Repository) Update(ctx context.Context, conversion *models.Conversion) error {
	if conversion == nil {
		return gorm.ErrInvalidValue
	}
	return r.db.WithContext(ctx).Save(conversion).Error
}

// Delete removes one conversion.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Conversion{}, "id = ?", id).Error
}

// DeleteByOrderID removes the conversion for an order. Returns the number
// of rows removed so refund handling can distinguish unknown orders.
func (r *Repository) DeleteByOrderID(ctx context.Context, orderID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("order_id = ?", strings.TrimSpace(orderID)).
		Delete(&models.Conversion{})
	return result.RowsAffected, result.Error
}

// List returns a page of conversions, newest first.
func (r *Repository) List(ctx context.Context, affiliateID *uuid.UUID, status *enums.ConversionStatus, params pagination.Params) ([]models.Conversion, error) {
	query := r.db.WithContext(ctx).
		Order("created_at desc, id desc").
		Limit(pagination.LimitWithBuffer(params.Limit))
	if affiliateID != nil {
		query = query.Where("affiliate_id = ?", *affiliateID)
	}
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	if cursor, err := pagination.ParseCursor(params.Cursor); err == nil && cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	var conversions []models.Conversion
	if err := query.Find(&conversions).Error; err != nil {
		return nil, err
	}
	return conversions, nil
}

// CountByAffiliate counts an affiliate's lifetime conversions.
func (r *Repository) CountByAffiliate(ctx context.Context, affiliateID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Conversion{}).
		Where("affiliate_id = ?", affiliateID).
		Count(&count).Error
	return count, err
}

// RevenueSince sums unpaid-or-paid revenue (pending, approved, and paid
// rows all count toward tier placement) for one affiliate from a point in
// time.
func (r *Repository) RevenueSince(ctx context.Context, affiliateID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	return r.sumAmount(ctx, r.db.WithContext(ctx).
		Model(&models.Conversion{}).
		Where("affiliate_id = ? AND created_at >= ?", affiliateID, since))
}

// RevenueTotal sums an affiliate's lifetime revenue.
func (r *Repository) RevenueTotal(ctx context.Context, affiliateID uuid.UUID) (decimal.Decimal, error) {
	return r.sumAmount(ctx, r.db.WithContext(ctx).
		Model(&models.Conversion{}).
		Where("affiliate_id = ?", affiliateID))
}

// MarkStatusByAffiliate transitions every conversion in the from status to
// the to status for one affiliate. Used when a payout completes.
func (r *Repository) MarkStatusByAffiliate(ctx context.Context, affiliateID uuid.UUID, from, to enums.ConversionStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Conversion{}).
		Where("affiliate_id = ? AND status = ?", affiliateID, from).
		Update("status", to).Error
}

func (r *Repository) sumAmount(_ context.Context, query *gorm.DB) (decimal.Decimal, error) {
	var total *string
	if err := query.Select("SUM(amount)").Scan(&total).Error; err != nil {
		return decimal.Zero, err
	}
	if total == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(*total)
}
