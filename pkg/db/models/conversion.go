package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tierlink/tierlink-backend/pkg/enums"
)

// Conversion is a recorded sale attributed to an affiliate. OrderID is the
// idempotency key for webhook-driven ingestion.
type Conversion struct {
	ID            uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	AffiliateID   uuid.UUID              `gorm:"column:affiliate_id;type:uuid;not null;index"`
	OrderID       string                 `gorm:"column:order_id;not null;unique"`
	Amount        decimal.Decimal        `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency      string                 `gorm:"column:currency;not null;default:'USD'"`
	Status        enums.ConversionStatus `gorm:"column:status;not null;default:'pending'"`
	LineItems     json.RawMessage        `gorm:"column:line_items;type:jsonb"`
	CustomerEmail *string                `gorm:"column:customer_email"`
	CreatedAt     time.Time              `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt     time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
