package models

import (
	"time"

	"github.com/google/uuid"
)

// SlugHistory retains previous slugs so stale inbound links keep redirecting.
type SlugHistory struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Slug        string    `gorm:"column:slug;not null;unique"`
	AffiliateID uuid.UUID `gorm:"column:affiliate_id;type:uuid;not null;index"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}
