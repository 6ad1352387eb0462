package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tierlink/tierlink-backend/pkg/enums"
)

// Affiliate represents a marketer enrolled in the program.
type Affiliate struct {
	ID           uuid.UUID             `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name         string                `gorm:"column:name;not null"`
	Email        string                `gorm:"column:email;not null"`
	Slug         *string               `gorm:"column:slug"`
	ReferralCode *string               `gorm:"column:referral_code"`
	Status       enums.AffiliateStatus `gorm:"column:status;not null;default:'pending'"`
	TierIndex    int                   `gorm:"column:tier_index;not null;default:0"`
	ParentID     *uuid.UUID            `gorm:"column:parent_id;type:uuid;index"`
	CouponCodes  pq.StringArray        `gorm:"column:coupon_codes;type:text[]"`
	StoreCredit  decimal.Decimal       `gorm:"column:store_credit;type:numeric(12,2);not null;default:0"`
	PayoutMethod enums.PayoutMethod    `gorm:"column:payout_method;not null;default:'processor'"`
	Idap         *string               `gorm:"column:idap"`
	ArchivedAt   *time.Time            `gorm:"column:archived_at"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time             `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt    gorm.DeletedAt        `gorm:"column:deleted_at;index"`
}
