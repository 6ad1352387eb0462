package affiliates

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tierlink/tierlink-backend/pkg/db/models"
)

// AffiliateDTO is the API shape of one affiliate.
type AffiliateDTO struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	Slug         *string         `json:"slug,omitempty"`
	ReferralCode *string         `json:"referralCode,omitempty"`
	Status       string          `json:"status"`
	TierIndex    int             `json:"tierIndex"`
	TierName     string          `json:"tierName,omitempty"`
	ParentID     *uuid.UUID      `json:"parentId,omitempty"`
	CouponCodes  []string        `json:"couponCodes,omitempty"`
	StoreCredit  decimal.Decimal `json:"storeCredit"`
	PayoutMethod string          `json:"payoutMethod"`
	ArchivedAt   *time.Time      `json:"archivedAt,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// StatsDTO aggregates an affiliate's performance numbers.
type StatsDTO struct {
	AffiliateID     uuid.UUID       `json:"affiliateId"`
	TierIndex       int             `json:"tierIndex"`
	TierName        string          `json:"tierName"`
	Clicks          int64           `json:"clicks"`
	Conversions     int64           `json:"conversions"`
	MonthRevenue    decimal.Decimal `json:"monthRevenue"`
	LifetimeRevenue decimal.Decimal `json:"lifetimeRevenue"`
	MonthCommission decimal.Decimal `json:"monthCommission"`
	// MonthOverride is the level-2 amount earned on recruits' sales this
	// month, at each recruit's own tier percentage.
	MonthOverride decimal.Decimal `json:"monthOverride"`
	// Level3Defined is set when the tier table carries a level-3 override
	// percentage. That percentage is never included in any total.
	Level3Defined bool `json:"level3Defined"`
}

func toDTO(affiliate *models.Affiliate, tierName string) *AffiliateDTO {
	if affiliate == nil {
		return nil
	}
	return &AffiliateDTO{
		ID:           affiliate.ID,
		Name:         affiliate.Name,
		Email:        affiliate.Email,
		Slug:         affiliate.Slug,
		ReferralCode: affiliate.ReferralCode,
		Status:       affiliate.Status.String(),
		TierIndex:    affiliate.TierIndex,
		TierName:     tierName,
		ParentID:     affiliate.ParentID,
		CouponCodes:  []string(affiliate.CouponCodes),
		StoreCredit:  affiliate.StoreCredit,
		PayoutMethod: affiliate.PayoutMethod.String(),
		ArchivedAt:   affiliate.ArchivedAt,
		CreatedAt:    affiliate.CreatedAt,
	}
}
