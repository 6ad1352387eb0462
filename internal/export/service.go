package export

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tierlink/tierlink-backend/internal/settings"
	"github.com/tierlink/tierlink-backend/internal/tiers"
	"github.com/tierlink/tierlink-backend/pkg/db/models"
	pkgerrors "github.com/tierlink/tierlink-backend/pkg/errors"
)

type exportSource interface {
	ListAffiliates(ctx context.Context) ([]models.Affiliate, error)
	ListConversions(ctx context.Context) ([]models.Conversion, error)
	ListPayouts(ctx context.Context) ([]models.Payout, error)
}

type tierSource interface {
	Snapshot(ctx context.Context) (*settings.Snapshot, error)
}

// Service streams program data as CSV. Every field is quoted so the
// output survives commas in names and coupon lists.
type Service struct {
	source exportSource
	tiers  tierSource
}

// NewService builds the export service.
func NewService(source exportSource, tierSrc tierSource) (*Service, error) {
	if source == nil {
		return nil, fmt.Errorf("export source required")
	}
	if tierSrc == nil {
		return nil, fmt.Errorf("tier source required")
	}
	return &Service{source: source, tiers: tierSrc}, nil
}

// Affiliates writes the affiliate roster as CSV.
func (s *Service) Affiliates(ctx context.Context, w io.Writer) error {
	affiliates, err := s.source.ListAffiliates(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list affiliates")
	}
	table := s.tierTable(ctx)

	if err := writeRow(w, "id", "name", "email", "slug", "status", "tier", "referral_code", "parent_id", "coupon_codes", "store_credit", "payout_method", "created_at"); err != nil {
		return err
	}
	for _, a := range affiliates {
		row := []string{
			a.ID.String(),
			a.Name,
			a.Email,
			strValue(a.Slug),
			a.Status.String(),
			table.NameAt(a.TierIndex),
			strValue(a.ReferralCode),
			uuidValue(a.ParentID),
			strings.Join(a.CouponCodes, ";"),
			a.StoreCredit.StringFixed(2),
			a.PayoutMethod.String(),
			formatTime(a.CreatedAt),
		}
		if err := writeRow(w, row...); err != nil {
			return err
		}
	}
	return nil
}

// Conversions writes all recorded conversions as CSV.
func (s *Service) Conversions(ctx context.Context, w io.Writer) error {
	conversions, err := s.source.ListConversions(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list conversions")
	}

	if err := writeRow(w, "id", "affiliate_id", "order_id", "amount", "currency", "status", "customer_email", "created_at"); err != nil {
		return err
	}
	for _, c := range conversions {
		row := []string{
			c.ID.String(),
			c.AffiliateID.String(),
			c.OrderID,
			c.Amount.StringFixed(2),
			c.Currency,
			c.Status.String(),
			strValue(c.CustomerEmail),
			formatTime(c.CreatedAt),
		}
		if err := writeRow(w, row...); err != nil {
			return err
		}
	}
	return nil
}

// Payouts writes the payout ledger as CSV.
func (s *Service) Payouts(ctx context.Context, w io.Writer) error {
	payouts, err := s.source.ListPayouts(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payouts")
	}

	if err := writeRow(w, "id", "affiliate_id", "amount", "method", "status", "ref_code", "paid_at", "created_at"); err != nil {
		return err
	}
	for _, p := range payouts {
		paidAt := ""
		if p.PaidAt != nil {
			paidAt = formatTime(*p.PaidAt)
		}
		row := []string{
			p.ID.String(),
			p.AffiliateID.String(),
			p.Amount.StringFixed(2),
			p.Method.String(),
			p.Status.String(),
			p.RefCode,
			paidAt,
			formatTime(p.CreatedAt),
		}
		if err := writeRow(w, row...); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) tierTable(ctx context.Context) tiers.Table {
	snapshot, err := s.tiers.Snapshot(ctx)
	if err != nil || snapshot == nil {
		return tiers.DefaultTable()
	}
	return snapshot.TierTable
}

// writeRow emits one CSV record with every field quoted. Interior quotes
// are doubled per RFC 4180.
func writeRow(w io.Writer, fields ...string) error {
	quoted := make([]string, len(fields))
	for i, field := range fields {
		quoted[i] = `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
	}
	if _, err := io.WriteString(w, strings.Join(quoted, ",")+"\n"); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write csv row")
	}
	return nil
}

func strValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func uuidValue(v *uuid.UUID) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
