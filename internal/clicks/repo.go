// Package clicks records referral-link hits and evaluates the traffic
// rules that raise admin alerts.
package clicks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tierlink/tierlink-backend/pkg/db/models"
)

// Repository handles click persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to click operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create appends one click row.
func (r *Repository) Create(ctx context.Context, click *models.Click) error {
	return r.db.WithContext(ctx).Create(click).Error
}

// CountByAffiliateSince counts clicks for one affiliate inside a window.
func (r *Repository) CountByAffiliateSince(ctx context.Context, affiliateID uuid.UUID, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Click{}).
		Where("affiliate_id = ? AND created_at >= ?", affiliateID, since).
		Count(&count).Error
	return count, err
}

// CountByIPSince counts clicks from one IP across all affiliates inside a window.
func (r *Repository) CountByIPSince(ctx context.Context, ip string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Click{}).
		Where("ip = ? AND created_at >= ?", ip, since).
		Count(&count).Error
	return count, err
}

// CountByAffiliate counts an affiliate's lifetime clicks.
func (r *Repository) CountByAffiliate(ctx context.Context, affiliateID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Click{}).
		Where("affiliate_id = ?", affiliateID).
		Count(&count).Error
	return count, err
}

// IPShare holds a per-IP click count for one affiliate.
type IPShare struct {
	IP    string
	Count int64
}

// TopIPByAffiliate returns the single IP with the most clicks for an affiliate.
func (r *Repository) TopIPByAffiliate(ctx context.Context, affiliateID uuid.UUID) (*IPShare, error) {
	var share IPShare
	err := r.db.WithContext(ctx).
		Model(&models.Click{}).
		Select("ip, COUNT(*) AS count").
		Where("affiliate_id = ?", affiliateID).
		Group("ip").
		Order("count desc").
		Limit(1).
		Scan(&share).Error
	if err != nil {
		return nil, err
	}
	if share.IP == "" {
		return nil, nil
	}
	return &share, nil
}
