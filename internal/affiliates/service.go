// Package affiliates manages the affiliate lifecycle: public applications,
// admin review, slug and referral-code allocation, and account teardown.
package affiliates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tierlink/tierlink-backend/internal/activity"
	"github.com/tierlink/tierlink-backend/internal/settings"
	"github.com/tierlink/tierlink-backend/internal/tiers"
	"github.com/tierlink/tierlink-backend/pkg/db/models"
	"github.com/tierlink/tierlink-backend/pkg/enums"
	pkgerrors "github.com/tierlink/tierlink-backend/pkg/errors"
	"github.com/tierlink/tierlink-backend/pkg/logger"
	"github.com/tierlink/tierlink-backend/pkg/mailer"
	"github.com/tierlink/tierlink-backend/pkg/pagination"
)

const referralCodeAttempts = 8

type affiliateRepository interface {
	Create(ctx context.Context, affiliate *models.Affiliate) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Affiliate, error)
	FindByEmail(ctx context.Context, email string) (*models.Affiliate, error)
	FindBySlug(ctx context.Context, slug string) (*models.Affiliate, error)
	FindByReferralCode(ctx context.Context, code string) (*models.Affiliate, error)
	FindBySlugHistory(ctx context.Context, slug string) (*models.Affiliate, error)
	List(ctx context.Context, status *enums.AffiliateStatus, params pagination.Params) ([]models.Affiliate, error)
	ListByParent(ctx context.Context, parentID uuid.UUID) ([]models.Affiliate, error)
	Update(ctx context.Context, affiliate *models.Affiliate) error
	SlugTaken(ctx context.Context, slug string) (bool, error)
	RecordSlugHistory(ctx context.Context, slug string, affiliateID uuid.UUID) error
	SoftDeleteWithTx(tx *gorm.DB, id uuid.UUID) error
}

type dependentCleanup interface {
	DeleteByAffiliateWithTx(tx *gorm.DB, affiliateID uuid.UUID) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type emailSender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

type clickCounter interface {
	CountByAffiliate(ctx context.Context, affiliateID uuid.UUID) (int64, error)
}

type conversionStats interface {
	CountByAffiliate(ctx context.Context, affiliateID uuid.UUID) (int64, error)
	RevenueSince(ctx context.Context, affiliateID uuid.UUID, since time.Time) (decimal.Decimal, error)
	RevenueTotal(ctx context.Context, affiliateID uuid.UUID) (decimal.Decimal, error)
}

// ApplyInput is the public application payload.
type ApplyInput struct {
	Name         string
	Email        string
	ReferralCode string
}

// UpdateInput captures the admin-editable affiliate fields.
type UpdateInput struct {
	Name         *string
	Slug         *string
	CouponCodes  *[]string
	PayoutMethod *string
	Idap         *string
	ParentID     *uuid.UUID
	Archived     *bool
}

// Service exposes affiliate operations.
type Service interface {
	Apply(ctx context.Context, input ApplyInput) (*AffiliateDTO, error)
	List(ctx context.Context, status string, params pagination.Params) ([]AffiliateDTO, string, error)
	Get(ctx context.Context, id uuid.UUID) (*AffiliateDTO, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*AffiliateDTO, error)
	Approve(ctx context.Context, id uuid.UUID) (*AffiliateDTO, error)
	Reject(ctx context.Context, id uuid.UUID) (*AffiliateDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Stats(ctx context.Context, id uuid.UUID) (*StatsDTO, error)
	// ResolveRedirect maps a slug (current or retired) to the affiliate and
	// reports whether the caller should issue a permanent redirect to the
	// canonical slug.
	ResolveRedirect(ctx context.Context, slug string) (*models.Affiliate, bool, error)
	ResolveAttribution(ctx context.Context, ref string) (*models.Affiliate, error)
}

type service struct {
	repo        affiliateRepository
	activity    activity.Service
	settings    settings.Service
	tx          txRunner
	alerts      dependentCleanup
	audit       dependentCleanup
	mail        emailSender
	clicks      clickCounter
	conversions conversionStats
	adminEmail  string
	logg        *logger.Logger
	now         func() time.Time
}

// ServiceDeps wires the collaborators an affiliate service needs.
type ServiceDeps struct {
	Repo        affiliateRepository
	Activity    activity.Service
	Settings    settings.Service
	Tx          txRunner
	Alerts      dependentCleanup
	Audit       dependentCleanup
	Mail        emailSender
	Clicks      clickCounter
	Conversions conversionStats
	AdminEmail  string
	Logger      *logger.Logger
}

// NewService builds an affiliate service.
func NewService(deps ServiceDeps) (Service, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("affiliate repository required")
	}
	if deps.Activity == nil {
		return nil, fmt.Errorf("activity service required")
	}
	if deps.Settings == nil {
		return nil, fmt.Errorf("settings service required")
	}
	if deps.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	logg := deps.Logger
	if logg == nil {
		logg = logger.New(logger.Options{ServiceName: "affiliates"})
	}
	return &service{
		repo:        deps.Repo,
		activity:    deps.Activity,
		settings:    deps.Settings,
		tx:          deps.Tx,
		alerts:      deps.Alerts,
		audit:       deps.Audit,
		mail:        deps.Mail,
		clicks:      deps.Clicks,
		conversions: deps.Conversions,
		adminEmail:  deps.AdminEmail,
		logg:        logg,
		now:         time.Now,
	}, nil
}

func (s *service) Apply(ctx context.Context, input ApplyInput) (*AffiliateDTO, error) {
	name := strings.TrimSpace(input.Name)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if !strings.Contains(email, "@") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a valid email is required")
	}

	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "an affiliate with this email already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup affiliate")
	}

	affiliate := &models.Affiliate{
		Name:         name,
		Email:        email,
		Status:       enums.AffiliateStatusPending,
		PayoutMethod: enums.PayoutMethodProcessor,
		StoreCredit:  decimal.Zero,
	}

	if code := strings.TrimSpace(input.ReferralCode); code != "" {
		parent, err := s.repo.FindByReferralCode(ctx, code)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup recruiter")
			}
			// unknown recruiter codes are ignored, the application still goes through
		} else if parent.Status == enums.AffiliateStatusActive {
			affiliate.ParentID = &parent.ID
		}
	}

	if err := s.repo.Create(ctx, affiliate); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create affiliate")
	}

	if err := s.activity.Log(ctx, affiliate.ID, enums.ActivityTypeApplied, map[string]string{"email": email}); err != nil {
		s.logg.Error(ctx, "record application activity failed", err)
	}
	s.notifyAdmin(ctx, affiliate)

	return s.withTierName(ctx, affiliate), nil
}

func (s *service) List(ctx context.Context, status string, params pagination.Params) ([]AffiliateDTO, string, error) {
	var filter *enums.AffiliateStatus
	if strings.TrimSpace(status) != "" {
		parsed, err := enums.ParseAffiliateStatus(status)
		if err != nil {
			return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
		}
		filter = &parsed
	}

	rows, err := s.repo.List(ctx, filter, params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list affiliates")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	nextCursor := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	table := s.tierTable(ctx)
	out := make([]AffiliateDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *toDTO(&rows[i], table.NameAt(rows[i].TierIndex)))
	}
	return out, nextCursor, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*AffiliateDTO, error) {
	affiliate, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.withTierName(ctx, affiliate), nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*AffiliateDTO, error) {
	affiliate, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
		}
		affiliate.Name = name
	}
	if input.Slug != nil {
		if err := s.changeSlug(ctx, affiliate, *input.Slug); err != nil {
			return nil, err
		}
	}
	if input.CouponCodes != nil {
		affiliate.CouponCodes = pq.StringArray(normalizeCoupons(*input.CouponCodes))
	}
	if input.PayoutMethod != nil {
		method, err := enums.ParsePayoutMethod(*input.PayoutMethod)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payout method")
		}
		affiliate.PayoutMethod = method
	}
	if input.Idap != nil {
		idap := strings.TrimSpace(*input.Idap)
		if idap == "" {
			affiliate.Idap = nil
		} else {
			affiliate.Idap = &idap
		}
	}
	if input.ParentID != nil {
		if err := s.assignParent(ctx, affiliate, *input.ParentID); err != nil {
			return nil, err
		}
	}
	if input.Archived != nil {
		if *input.Archived && affiliate.ArchivedAt == nil {
			at := s.now()
			affiliate.ArchivedAt = &at
			if err := s.activity.Log(ctx, affiliate.ID, enums.ActivityTypeArchived, nil); err != nil {
				s.logg.Error(ctx, "record archive activity failed", err)
			}
		} else if !*input.Archived {
			affiliate.ArchivedAt = nil
		}
	}

	if err := s.repo.Update(ctx, affiliate); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update affiliate")
	}
	return s.withTierName(ctx, affiliate), nil
}

func (s *service) Approve(ctx context.Context, id uuid.UUID) (*AffiliateDTO, error) {
	affiliate, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if affiliate.Status != enums.AffiliateStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only pending affiliates can be approved")
	}

	slug, err := allocateSlug(ctx, s.repo, affiliate.Name)
	if err != nil {
		return nil, err
	}
	code, err := s.allocateReferralCode(ctx)
	if err != nil {
		return nil, err
	}

	affiliate.Slug = &slug
	affiliate.ReferralCode = &code
	affiliate.Status = enums.AffiliateStatusActive
	if err := s.repo.Update(ctx, affiliate); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approve affiliate")
	}

	if err := s.activity.Log(ctx, affiliate.ID, enums.ActivityTypeApproved, map[string]string{"slug": slug}); err != nil {
		s.logg.Error(ctx, "record approval activity failed", err)
	}
	s.sendWelcome(ctx, affiliate)

	return s.withTierName(ctx, affiliate), nil
}

func (s *service) Reject(ctx context.Context, id uuid.UUID) (*AffiliateDTO, error) {
	affiliate, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if affiliate.Status != enums.AffiliateStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only pending affiliates can be rejected")
	}

	affiliate.Status = enums.AffiliateStatusRejected
	if err := s.repo.Update(ctx, affiliate); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject affiliate")
	}
	if err := s.activity.Log(ctx, affiliate.ID, enums.ActivityTypeRejected, nil); err != nil {
		s.logg.Error(ctx, "record rejection activity failed", err)
	}
	return s.withTierName(ctx, affiliate), nil
}

// Delete soft-deletes the affiliate and removes its alerts and audit trail
// in one transaction.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if s.alerts != nil {
			if err := s.alerts.DeleteByAffiliateWithTx(tx, id); err != nil {
				return err
			}
		}
		if s.audit != nil {
			if err := s.audit.DeleteByAffiliateWithTx(tx, id); err != nil {
				return err
			}
		}
		return s.repo.SoftDeleteWithTx(tx, id)
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete affiliate")
	}
	return nil
}

func (s *service) Stats(ctx context.Context, id uuid.UUID) (*StatsDTO, error) {
	affiliate, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	table := s.tierTable(ctx)

	stats := &StatsDTO{
		AffiliateID:     affiliate.ID,
		TierIndex:       affiliate.TierIndex,
		TierName:        table.NameAt(affiliate.TierIndex),
		MonthRevenue:    decimal.Zero,
		LifetimeRevenue: decimal.Zero,
		MonthCommission: decimal.Zero,
		MonthOverride:   decimal.Zero,
		Level3Defined:   table.Level3Defined(),
	}

	if s.clicks != nil {
		clicks, err := s.clicks.CountByAffiliate(ctx, id)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count clicks")
		}
		stats.Clicks = clicks
	}
	if s.conversions != nil {
		count, err := s.conversions.CountByAffiliate(ctx, id)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count conversions")
		}
		stats.Conversions = count

		monthStart := startOfMonth(s.now())
		month, err := s.conversions.RevenueSince(ctx, id, monthStart)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum monthly revenue")
		}
		stats.MonthRevenue = month

		total, err := s.conversions.RevenueTotal(ctx, id)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum lifetime revenue")
		}
		stats.LifetimeRevenue = total

		commission, err := tiers.Commission(month, table, affiliate.TierIndex)
		if err == nil {
			stats.MonthCommission = commission
		}

		override, err := s.monthOverride(ctx, id, table, monthStart)
		if err != nil {
			return nil, err
		}
		stats.MonthOverride = override
	}
	return stats, nil
}

// monthOverride sums the level-2 override earned on recruits' current-month
// revenue. The percentage comes from each recruit's own tier.
func (s *service) monthOverride(ctx context.Context, id uuid.UUID, table tiers.Table, since time.Time) (decimal.Decimal, error) {
	recruits, err := s.repo.ListByParent(ctx, id)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list recruits")
	}

	total := decimal.Zero
	for i := range recruits {
		recruit := &recruits[i]
		if recruit.Status != enums.AffiliateStatusActive {
			continue
		}
		revenue, err := s.conversions.RevenueSince(ctx, recruit.ID, since)
		if err != nil {
			return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum recruit revenue")
		}
		override, err := tiers.Override(revenue, table, recruit.TierIndex)
		if err != nil {
			continue
		}
		total = total.Add(override)
	}
	return total, nil
}

func (s *service) ResolveRedirect(ctx context.Context, slug string) (*models.Affiliate, bool, error) {
	affiliate, err := s.repo.FindBySlug(ctx, slug)
	if err == nil {
		return affiliate, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup slug")
	}

	affiliate, err = s.repo.FindBySlugHistory(ctx, slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, pkgerrors.New(pkgerrors.CodeNotFound, "unknown referral link")
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup slug history")
	}
	return affiliate, true, nil
}

// ResolveAttribution maps a stored referral value (slug or referral code)
// to its affiliate.
func (s *service) ResolveAttribution(ctx context.Context, ref string) (*models.Affiliate, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "empty referral reference")
	}

	affiliate, err := s.repo.FindBySlug(ctx, ref)
	if err == nil {
		return affiliate, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup slug")
	}

	affiliate, err = s.repo.FindByReferralCode(ctx, ref)
	if err == nil {
		return affiliate, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup referral code")
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "unknown referral reference")
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Affiliate, error) {
	affiliate, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "affiliate not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load affiliate")
	}
	return affiliate, nil
}

func (s *service) changeSlug(ctx context.Context, affiliate *models.Affiliate, requested string) error {
	slug := Slugify(requested)
	if affiliate.Slug != nil && *affiliate.Slug == slug {
		return nil
	}
	taken, err := s.repo.SlugTaken(ctx, slug)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check slug availability")
	}
	if taken {
		return pkgerrors.New(pkgerrors.CodeConflict, "slug is already in use")
	}

	if affiliate.Slug != nil {
		if err := s.repo.RecordSlugHistory(ctx, *affiliate.Slug, affiliate.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record slug history")
		}
		if err := s.activity.Log(ctx, affiliate.ID, enums.ActivityTypeSlugChanged,
			map[string]string{"from": *affiliate.Slug, "to": slug}); err != nil {
			s.logg.Error(ctx, "record slug change activity failed", err)
		}
	}
	affiliate.Slug = &slug
	return nil
}

func (s *service) assignParent(ctx context.Context, affiliate *models.Affiliate, parentID uuid.UUID) error {
	if parentID == uuid.Nil {
		affiliate.ParentID = nil
		return nil
	}
	if parentID == affiliate.ID {
		return pkgerrors.New(pkgerrors.CodeValidation, "an affiliate cannot recruit itself")
	}
	parent, err := s.load(ctx, parentID)
	if err != nil {
		return err
	}
	// reject a two-node cycle; deeper cycles cannot form because parents
	// are only ever set to existing chains
	if parent.ParentID != nil && *parent.ParentID == affiliate.ID {
		return pkgerrors.New(pkgerrors.CodeValidation, "recruiter chain would form a cycle")
	}
	affiliate.ParentID = &parent.ID
	return nil
}

func (s *service) allocateReferralCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < referralCodeAttempts; attempt++ {
		code, err := generateReferralCode()
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate referral code")
		}
		_, err = s.repo.FindByReferralCode(ctx, code)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return code, nil
		}
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check referral code")
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeInternal, "could not allocate a unique referral code")
}

func (s *service) tierTable(ctx context.Context) tiers.Table {
	snap, err := s.settings.Snapshot(ctx)
	if err != nil || snap == nil {
		return tiers.DefaultTable()
	}
	return snap.TierTable
}

func (s *service) withTierName(ctx context.Context, affiliate *models.Affiliate) *AffiliateDTO {
	return toDTO(affiliate, s.tierTable(ctx).NameAt(affiliate.TierIndex))
}

func (s *service) notifyAdmin(ctx context.Context, affiliate *models.Affiliate) {
	if s.mail == nil || s.adminEmail == "" {
		return
	}
	err := s.mail.Send(ctx, mailer.Message{
		ToEmail:  s.adminEmail,
		Subject:  "New affiliate application",
		TextBody: fmt.Sprintf("%s <%s> applied to the affiliate program.", affiliate.Name, affiliate.Email),
	})
	if err != nil {
		s.logg.Error(ctx, "admin notification email failed", err)
	}
}

func (s *service) sendWelcome(ctx context.Context, affiliate *models.Affiliate) {
	if s.mail == nil {
		return
	}
	slug := ""
	if affiliate.Slug != nil {
		slug = *affiliate.Slug
	}
	err := s.mail.Send(ctx, mailer.Message{
		ToEmail:  affiliate.Email,
		ToName:   affiliate.Name,
		Subject:  "Welcome to the affiliate program",
		TextBody: fmt.Sprintf("Your application was approved. Your referral link slug is %q.", slug),
	})
	if err != nil {
		s.logg.Error(ctx, "welcome email failed", err)
	}
}

func normalizeCoupons(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		key := strings.ToLower(code)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, code)
	}
	return out
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
