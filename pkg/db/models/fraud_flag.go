package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tierlink/tierlink-backend/pkg/enums"
)

// FraudFlag marks an account the periodic scan considers suspicious.
type FraudFlag struct {
	ID          uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	AffiliateID uuid.UUID           `gorm:"column:affiliate_id;type:uuid;not null;index"`
	Type        enums.FraudFlagType `gorm:"column:type;not null;index"`
	Details     string              `gorm:"column:details"`
	ResolvedAt  *time.Time          `gorm:"column:resolved_at"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
}
