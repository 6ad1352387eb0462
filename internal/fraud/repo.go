// Package fraud runs the periodic scan that flags suspicious affiliate
// accounts from their click-to-sale profile.
package fraud

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tierlink/tierlink-backend/pkg/db/models"
	"github.com/tierlink/tierlink-backend/pkg/enums"
)

// Repository handles fraud flag persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to fraud flag operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create persists a new flag.
func (r *Repository) Create(ctx context.Context, flag *models.FraudFlag) error {
	return r.db.WithContext(ctx).Create(flag).Error
}

// FindByID loads one flag.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.FraudFlag, error) {
	var flag models.FraudFlag
	if err := r.db.WithContext(ctx).First(&flag, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &flag, nil
}

// List returns flags newest first. When unresolvedOnly is set, resolved
// rows are excluded.
func (r *Repository) List(ctx context.Context, unresolvedOnly bool, limit int) ([]models.FraudFlag, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := r.db.WithContext(ctx).Order("created_at desc").Limit(limit)
	if unresolvedOnly {
		query = query.Where("resolved_at IS NULL")
	}
	var flags []models.FraudFlag
	if err := query.Find(&flags).Error; err != nil {
		return nil, err
	}
	return flags, nil
}

// HasUnresolved reports whether an open flag of the given type exists for
// the affiliate.
func (r *Repository) HasUnresolved(ctx context.Context, affiliateID uuid.UUID, flagType enums.FraudFlagType) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.FraudFlag{}).
		Where("affiliate_id = ? AND type = ? AND resolved_at IS NULL", affiliateID, flagType).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Resolve stamps the flag as handled.
func (r *Repository) Resolve(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.FraudFlag{}).
		Where("id = ?", id).
		Update("resolved_at", at).Error
}
