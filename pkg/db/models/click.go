package models

import (
	"time"

	"github.com/google/uuid"
)

// Click is an append-only record of a referral-link hit.
type Click struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	AffiliateID uuid.UUID `gorm:"column:affiliate_id;type:uuid;not null;index"`
	IP          string    `gorm:"column:ip;not null;index"`
	UserAgent   string    `gorm:"column:user_agent"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime;index"`
}
