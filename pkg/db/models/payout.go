package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tierlink/tierlink-backend/pkg/enums"
)

// Payout records a payment to an affiliate. RefCode is the reference the
// external processor echoes back in its status webhook.
type Payout struct {
	ID          uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	AffiliateID uuid.UUID          `gorm:"column:affiliate_id;type:uuid;not null;index"`
	Amount      decimal.Decimal    `gorm:"column:amount;type:numeric(12,2);not null"`
	Method      enums.PayoutMethod `gorm:"column:method;not null"`
	RefCode     string             `gorm:"column:ref_code;not null;unique"`
	Status      enums.PayoutStatus `gorm:"column:status;not null;default:'pending'"`
	PaidAt      *time.Time         `gorm:"column:paid_at"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
