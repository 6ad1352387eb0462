// Package activity records the per-affiliate audit trail.
package activity

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tierlink/tierlink-backend/pkg/db/models"
	"github.com/tierlink/tierlink-backend/pkg/enums"
)

// Repository handles activity persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to activity operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create appends one entry.
func (r *Repository) Create(ctx context.Context, entry *models.ActivityEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListByAffiliate returns entries newest first, optionally filtered by type.
func (r *Repository) ListByAffiliate(ctx context.Context, affiliateID uuid.UUID, limit int) ([]models.ActivityEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var entries []models.ActivityEntry
	err := r.db.WithContext(ctx).
		Where("affiliate_id = ?", affiliateID).
		Order("created_at desc").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// List returns the most recent entries across all affiliates.
func (r *Repository) List(ctx context.Context, limit int) ([]models.ActivityEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var entries []models.ActivityEntry
	err := r.db.WithContext(ctx).
		Order("created_at desc").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// CreateWithTx appends an entry inside an existing transaction.
func (r *Repository) CreateWithTx(tx *gorm.DB, entry *models.ActivityEntry) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	return tx.Create(entry).Error
}

// DeleteByAffiliateWithTx removes an affiliate's trail inside a transaction.
// Used by the hard cleanup path when an affiliate is deleted.
func (r *Repository) DeleteByAffiliateWithTx(tx *gorm.DB, affiliateID uuid.UUID) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	return tx.Where("affiliate_id = ?", affiliateID).Delete(&models.ActivityEntry{}).Error
}

// CountByType reports how many entries of one type exist for an affiliate.
func (r *Repository) CountByType(ctx context.Context, affiliateID uuid.UUID, entryType enums.ActivityType) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ActivityEntry{}).
		Where("affiliate_id = ? AND type = ?", affiliateID, entryType).
		Count(&count).Error
	return count, err
}
