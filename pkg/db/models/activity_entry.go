package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tierlink/tierlink-backend/pkg/enums"
)

// ActivityEntry is one line of the per-affiliate audit trail.
type ActivityEntry struct {
	ID          uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	AffiliateID uuid.UUID          `gorm:"column:affiliate_id;type:uuid;not null;index"`
	Type        enums.ActivityType `gorm:"column:type;not null;index"`
	Metadata    json.RawMessage    `gorm:"column:metadata;type:jsonb"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime;index"`
}
