package woowebhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tierlink/tierlink-backend/internal/conversions"
	"github.com/tierlink/tierlink-backend/pkg/db/models"
	pkgerrors "github.com/tierlink/tierlink-backend/pkg/errors"
	"github.com/tierlink/tierlink-backend/pkg/logger"
	"github.com/tierlink/tierlink-backend/pkg/woocommerce"
)

// ReferralMetaKey is the order meta field the storefront tracking snippet
// writes the captured referral value into.
const ReferralMetaKey = "referral_ref"

type refResolver interface {
	ResolveAttribution(ctx context.Context, ref string) (*models.Affiliate, error)
}

type couponResolver interface {
	FindByCoupon(ctx context.Context, coupon string) (*models.Affiliate, error)
}

type conversionWriter interface {
	UpsertOrder(ctx context.Context, input conversions.UpsertOrderInput) error
	DeleteOrder(ctx context.Context, orderID string) (bool, error)
}

// ServiceParams configure the order webhook service.
type ServiceParams struct {
	Affiliates  refResolver
	Coupons     couponResolver
	Conversions conversionWriter
	Logger      *logger.Logger
}

// Service turns WooCommerce order events into conversion writes.
type Service struct {
	affiliates  refResolver
	coupons     couponResolver
	conversions conversionWriter
	logg        *logger.Logger
}

// NewService builds the order webhook service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Affiliates == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "affiliate resolver required")
	}
	if params.Coupons == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "coupon resolver required")
	}
	if params.Conversions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "conversion service required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.New(logger.Options{ServiceName: "woo-webhook"})
	}
	return &Service{
		affiliates:  params.Affiliates,
		coupons:     params.Coupons,
		conversions: params.Conversions,
		logg:        logg,
	}, nil
}

// VerifySignature checks the X-WC-Webhook-Signature header value against
// the raw request body. WooCommerce signs payloads with HMAC-SHA256 over
// the body, base64 encoded.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Outcome describes what an order event produced, for logging and metrics.
type Outcome string

const (
	OutcomeRecorded     Outcome = "recorded"
	OutcomeRemoved      Outcome = "removed"
	OutcomeUnattributed Outcome = "unattributed"
	OutcomeIgnored      Outcome = "ignored"
)

// HandleOrder routes one order event. Completed and processing orders are
// recorded as conversions; refunded and cancelled orders remove the
// matching conversion. Orders that cannot be attributed to an affiliate
// are acknowledged and skipped.
func (s *Service) HandleOrder(ctx context.Context, order *woocommerce.Order) (Outcome, error) {
	if order == nil || order.ID == 0 {
		return OutcomeIgnored, pkgerrors.New(pkgerrors.CodeValidation, "order payload missing")
	}
	ctx = s.logg.WithOrderID(ctx, strconv.FormatInt(order.ID, 10))

	switch strings.ToLower(order.Status) {
	case "completed", "processing":
		return s.recordOrder(ctx, order)
	case "refunded", "cancelled", "failed", "trash":
		removed, err := s.conversions.DeleteOrder(ctx, strconv.FormatInt(order.ID, 10))
		if err != nil {
			return OutcomeIgnored, err
		}
		if !removed {
			s.logg.Info(ctx, "order removal for unknown conversion ignored")
			return OutcomeIgnored, nil
		}
		s.logg.Info(ctx, "conversion removed for reversed order")
		return OutcomeRemoved, nil
	default:
		return OutcomeIgnored, nil
	}
}

func (s *Service) recordOrder(ctx context.Context, order *woocommerce.Order) (Outcome, error) {
	affiliate, err := s.attribute(ctx, order)
	if err != nil {
		return OutcomeIgnored, err
	}
	if affiliate == nil {
		s.logg.Info(ctx, "order has no referral attribution; skipping")
		return OutcomeUnattributed, nil
	}

	amount, err := decimal.NewFromString(order.Total)
	if err != nil {
		return OutcomeIgnored, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order total")
	}

	input := conversions.UpsertOrderInput{
		AffiliateID:   affiliate.ID,
		OrderID:       strconv.FormatInt(order.ID, 10),
		Amount:        amount,
		Currency:      order.Currency,
		LineItems:     order.Items,
		CustomerEmail: order.Billing.Email,
	}
	if err := s.conversions.UpsertOrder(ctx, input); err != nil {
		return OutcomeIgnored, err
	}
	ctx = s.logg.WithAffiliateID(ctx, affiliate.ID.String())
	s.logg.Info(ctx, "conversion recorded from order webhook")
	return OutcomeRecorded, nil
}

// attribute resolves the owning affiliate: the referral meta field wins,
// then the order's coupon codes are tried in sequence.
func (s *Service) attribute(ctx context.Context, order *woocommerce.Order) (*models.Affiliate, error) {
	if ref := order.MetaString(ReferralMetaKey); ref != "" {
		affiliate, err := s.affiliates.ResolveAttribution(ctx, ref)
		if err == nil {
			return affiliate, nil
		}
		if !isNotFound(err) {
			return nil, err
		}
	}
	for _, coupon := range order.Coupons {
		if coupon.Code == "" {
			continue
		}
		affiliate, err := s.coupons.FindByCoupon(ctx, coupon.Code)
		if err == nil {
			return affiliate, nil
		}
		if !isNotFound(err) {
			return nil, err
		}
	}
	return nil, nil
}

func isNotFound(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true
	}
	if perr := pkgerrors.As(err); perr != nil {
		return perr.Code() == pkgerrors.CodeNotFound
	}
	return false
}
