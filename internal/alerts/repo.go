// Package alerts surfaces click-traffic anomalies to the admin dashboard.
package alerts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tierlink/tierlink-backend/pkg/db/models"
	"github.com/tierlink/tierlink-backend/pkg/enums"
)

// Repository handles alert persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to alert operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create persists a new alert row.
func (r *Repository) Create(ctx context.Context, alert *models.Alert) error {
	return r.db.WithContext(ctx).Create(alert).Error
}

// FindByID loads one alert.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Alert, error) {
	var alert models.Alert
	if err := r.db.WithContext(ctx).First(&alert, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &alert, nil
}

// List returns alerts newest first. When undismissedOnly is set, dismissed
// rows are excluded.
func (r *Repository) List(ctx context.Context, undismissedOnly bool, limit int) ([]models.Alert, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := r.db.WithContext(ctx).Order("created_at desc").Limit(limit)
	if undismissedOnly {
		query = query.Where("dismissed_at IS NULL")
	}
	var alerts []models.Alert
	if err := query.Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}

// HasUndismissedSince reports whether an undismissed alert of the given type
// already exists for the affiliate inside the window.
func (r *Repository) HasUndismissedSince(ctx context.Context, affiliateID uuid.UUID, alertType enums.AlertType, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Alert{}).
		Where("affiliate_id = ? AND type = ? AND dismissed_at IS NULL AND created_at >= ?",
			affiliateID, alertType, since).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Dismiss stamps the alert as handled.
func (r *Repository) Dismiss(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Alert{}).
		Where("id = ?", id).
		Update("dismissed_at", at).Error
}

// DeleteByAffiliateWithTx removes an affiliate's alerts inside a transaction.
func (r *Repository) DeleteByAffiliateWithTx(tx *gorm.DB, affiliateID uuid.UUID) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	return tx.Where("affiliate_id = ?", affiliateID).Delete(&models.Alert{}).Error
}
