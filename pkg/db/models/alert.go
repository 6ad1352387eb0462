package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tierlink/tierlink-backend/pkg/enums"
)

// Alert is a click-traffic anomaly surfaced to the admin dashboard.
type Alert struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Type        enums.AlertType `gorm:"column:type;not null;index"`
	AffiliateID uuid.UUID       `gorm:"column:affiliate_id;type:uuid;not null;index"`
	Message     string          `gorm:"column:message;not null"`
	DismissedAt *time.Time      `gorm:"column:dismissed_at"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}
