package affiliates

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

// Repository handles affiliate persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to affiliate operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create persists a new affiliate row.
func (r *Repository) Create(ctx context.Context, affiliate *models.Affiliate) error {
	return r.db.WithContext(ctx).Create(affiliate).Error
}

// FindByID loads an affiliate by UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	if err := r.db.WithContext(ctx).First(&affiliate, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &affiliate, nil
}

// FindByEmail loads an affiliate by email, case-insensitive.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	err := r.db.WithContext(ctx).
		Where("lower(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&affiliate).Error
	if err != nil {
		return nil, err
	}
	return &affiliate, nil
}

// FindBySlug loads an affiliate by its current slug.
func (r *Repository) FindBySlug(ctx context.Context, slug string) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	err := r.db.WithContext(ctx).
		Where("slug = ?", strings.ToLower(strings.TrimSpace(slug))).
		First(&affiliate).Error
	if err != nil {
		return nil, err
	}
	return &affiliate, nil
}

// FindByReferralCode loads an affiliate by referral code, case-insensitive.
func (r *Repository) FindByReferralCode(ctx context.Context, code string) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	err := r.db.WithContext(ctx).
		Where("upper(referral_code) = ?", strings.ToUpper(strings.TrimSpace(code))).
		First(&affiliate).Error
	if err != nil {
		return nil, err
	}
	return &affiliate, nil
}

// FindByCoupon loads the affiliate owning the coupon code, case-insensitive.
func (r *Repository) FindByCoupon(ctx context.Context, coupon string) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	err := r.db.WithContext(ctx).
		Where("EXISTS (SELECT 1 FROM unnest(coupon_codes) AS c WHERE lower(c) = ?)",
			strings.ToLower(strings.TrimSpace(coupon))).
		First(&affiliate).Error
	if err != nil {
		return nil, err
	}
	return &affiliate, nil
}

// FindBySlugHistory resolves a retired slug to its affiliate.
func (r *Repository) FindBySlugHistory(ctx context.Context, slug string) (*models.Affiliate, error) {
	var history models.SlugHistory
	err := r.db.WithContext(ctx).
		Where("slug = ?", strings.ToLower(strings.TrimSpace(slug))).
		First(&history).Error
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, history.AffiliateID)
}

// List returns a page of affiliates, newest first, optionally filtered by status.
func (r *Repository) List(ctx context.Context, status *enums.AffiliateStatus, params pagination.Params) ([]models.Affiliate, error) {
	query := r.db.WithContext(ctx).
		Order("created_at desc, id desc").
		Limit(pagination.LimitWithBuffer(params.Limit))
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	if cursor, err := pagination.ParseCursor(params.Cursor); err == nil && cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	var affiliates []models.Affiliate
	if err := query.Find(&affiliates).Error; err != nil {
		return nil, err
	}
	return affiliates, nil
}

// ListActive returns every non-deleted active affiliate. Used by the
// recalculation pass and the fraud scan.
func (r *Repository) ListActive(ctx context.Context) ([]models.Affiliate, error) {
	var affiliates []models.Affiliate
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.AffiliateStatusActive).
		Order("created_at asc").
		Find(&affiliates).Error
	if err != nil {
		return nil, err
	}
	return affiliates, nil
}

// ListByParent returns every non-deleted affiliate recruited by the given
// affiliate. Used for the level-2 override figure in stats.
func (r *Repository) ListByParent(ctx context.Context, parentID uuid.UUID) ([]models.Affiliate, error) {
	var affiliates []models.Affiliate
	err := r.db.WithContext(ctx).
		Where("parent_id = ?", parentID).
		Order("created_at asc").
		Find(&affiliates).Error
	if err != nil {
		return nil, err
	}
	return affiliates, nil
}

// Update saves the provided affiliate.
func (r *Repository) Update(ctx context.Context, affiliate *models.Affiliate) error {
	if affiliate == nil {
		return gorm.ErrInvalidValue
	}
	return r.db.WithContext(ctx).Save(affiliate).Error
}

// UpdateTierIndex sets only the tier index column.
func (r *Repository) UpdateTierIndex(ctx context.Context, id uuid.UUID, tierIndex int) error {
	return r.db.WithContext(ctx).
		Model(&models.Affiliate{}).
		Where("id = ?", id).
		Update("tier_index", tierIndex).Error
}

// SlugTaken reports whether the slug is in use by a live affiliate or
// retained in slug history.
func (r *Repository) SlugTaken(ctx context.Context, slug string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Affiliate{}).
		Where("slug = ?", slug).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}
	err = r.db.WithContext(ctx).
		Model(&models.SlugHistory{}).
		Where("slug = ?", slug).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// RecordSlugHistory retains a retired slug so old links keep working.
func (r *Repository) RecordSlugHistory(ctx context.Context, slug string, affiliateID uuid.UUID) error {
	return r.db.WithContext(ctx).Create(&models.SlugHistory{
		Slug:        slug,
		AffiliateID: affiliateID,
	}).Error
}

// SoftDeleteWithTx marks the affiliate deleted inside a transaction.
func (r *Repository) SoftDeleteWithTx(tx *gorm.DB, id uuid.UUID) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	return tx.Where("id = ?", id).Delete(&models.Affiliate{}).Error
}

// Archive stamps the affiliate archived without deleting it.
func (r *Repository) Archive(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Affiliate{}).
		Where("id = ?", id).
		Update("archived_at", at).Error
}

// AddStoreCredit increments the balance atomically.
func (r *Repository) AddStoreCredit(ctx context.Context, id uuid.UUID, amount string) error {
	return r.db.WithContext(ctx).
		Model(&models.Affiliate{}).
		Where("id = ?", id).
		Update("store_credit", gorm.Expr("store_credit + ?", amount)).Error
}
