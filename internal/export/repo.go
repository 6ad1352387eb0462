package export

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/tierlink/tierlink-backend/pkg/db/models"
)

// Repository reads full tables for CSV export, oldest rows first.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds an export repository.
func NewRepository(db *gorm.DB) (*Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db required")
	}
	return &Repository{db: db}, nil
}

func (r *Repository) ListAffiliates(ctx context.Context) ([]models.Affiliate, error) {
	var affiliates []models.Affiliate
	err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Find(&affiliates).Error
	return affiliates, err
}

func (r *Repository) ListConversions(ctx context.Context) ([]models.Conversion, error) {
	var conversions []models.Conversion
	err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Find(&conversions).Error
	return conversions, err
}

func (r *Repository) ListPayouts(ctx context.Context) ([]models.Payout, error) {
	var payouts []models.Payout
	err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Find(&payouts).Error
	return payouts, err
}
