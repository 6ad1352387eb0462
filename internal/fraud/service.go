package fraud

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/tierlink/tierlink-backend/internal/clicks"
	"github.com/tierlink/tierlink-backend/pkg/db/models"
	"github.com/tierlink/tierlink-backend/pkg/enums"
	pkgerrors "github.com/tierlink/tierlink-backend/pkg/errors"
)

// Scan thresholds.
const (
	// HighClickMinimum clicks with zero sales flags an account.
	HighClickMinimum = 100
	// DuplicateIPMinimum clicks are required before the single-IP share
	// rule applies.
	DuplicateIPMinimum = 20
	// DuplicateIPShare is the fraction of clicks from one IP that trips
	// the rule.
	DuplicateIPShare = 0.5
)

type flagRepository interface {
	Create(ctx context.Context, flag *models.FraudFlag) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.FraudFlag, error)
	List(ctx context.Context, unresolvedOnly bool, limit int) ([]models.FraudFlag, error)
	HasUnresolved(ctx context.Context, affiliateID uuid.UUID, flagType enums.FraudFlagType) (bool, error)
	Resolve(ctx context.Context, id uuid.UUID, at time.Time) error
}

type affiliateSource interface {
	ListActive(ctx context.Context) ([]models.Affiliate, error)
}

type clickSource interface {
	CountByAffiliate(ctx context.Context, affiliateID uuid.UUID) (int64, error)
	TopIPByAffiliate(ctx context.Context, affiliateID uuid.UUID) (*clicks.IPShare, error)
}

type salesSource interface {
	CountByAffiliate(ctx context.Context, affiliateID uuid.UUID) (int64, error)
}

// FlagDTO is the API shape of one fraud flag.
type FlagDTO struct {
	ID          uuid.UUID  `json:"id"`
	AffiliateID uuid.UUID  `json:"affiliateId"`
	Type        string     `json:"type"`
	Details     string     `json:"details,omitempty"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Service runs the fraud scan and manages flags.
type Service interface {
	Scan(ctx context.Context) error
	List(ctx context.Context, unresolvedOnly bool, limit int) ([]FlagDTO, error)
	Resolve(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo       flagRepository
	affiliates affiliateSource
	clicks     clickSource
	sales      salesSource
	now        func() time.Time
}

// NewService builds the fraud service.
func NewService(repo flagRepository, affiliates affiliateSource, clickSrc clickSource, sales salesSource) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("fraud flag repository required")
	}
	if affiliates == nil {
		return nil, fmt.Errorf("affiliate source required")
	}
	if clickSrc == nil {
		return nil, fmt.Errorf("click source required")
	}
	if sales == nil {
		return nil, fmt.Errorf("sales source required")
	}
	return &service{
		repo:       repo,
		affiliates: affiliates,
		clicks:     clickSrc,
		sales:      sales,
		now:        time.Now,
	}, nil
}

// Scan evaluates every active affiliate. Per-affiliate failures are
// collected and the scan continues.
func (s *service) Scan(ctx context.Context) error {
	affiliates, err := s.affiliates.ListActive(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list affiliates")
	}

	var combined error
	for i := range affiliates {
		if err := s.scanOne(ctx, affiliates[i].ID); err != nil {
			combined = multierr.Append(combined,
				fmt.Errorf("affiliate %s: %w", affiliates[i].ID, err))
		}
	}
	return combined
}

func (s *service) scanOne(ctx context.Context, affiliateID uuid.UUID) error {
	clickCount, err := s.clicks.CountByAffiliate(ctx, affiliateID)
	if err != nil {
		return fmt.Errorf("count clicks: %w", err)
	}

	if clickCount >= HighClickMinimum {
		sales, err := s.sales.CountByAffiliate(ctx, affiliateID)
		if err != nil {
			return fmt.Errorf("count sales: %w", err)
		}
		if sales == 0 {
			details := fmt.Sprintf("%d clicks with no sales", clickCount)
			if err := s.flag(ctx, affiliateID, enums.FraudFlagTypeHighClickRatio, details); err != nil {
				return err
			}
		}
	}

	if clickCount >= DuplicateIPMinimum {
		top, err := s.clicks.TopIPByAffiliate(ctx, affiliateID)
		if err != nil {
			return fmt.Errorf("top ip: %w", err)
		}
		if top != nil && float64(top.Count) >= DuplicateIPShare*float64(clickCount) {
			details := fmt.Sprintf("%d of %d clicks from %s", top.Count, clickCount, top.IP)
			if err := s.flag(ctx, affiliateID, enums.FraudFlagTypeDuplicateIP, details); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *service) flag(ctx context.Context, affiliateID uuid.UUID, flagType enums.FraudFlagType, details string) error {
	exists, err := s.repo.HasUnresolved(ctx, affiliateID, flagType)
	if err != nil {
		return fmt.Errorf("check existing flags: %w", err)
	}
	if exists {
		return nil
	}
	flag := &models.FraudFlag{
		AffiliateID: affiliateID,
		Type:        flagType,
		Details:     details,
	}
	if err := s.repo.Create(ctx, flag); err != nil {
		return fmt.Errorf("create flag: %w", err)
	}
	return nil
}

func (s *service) List(ctx context.Context, unresolvedOnly bool, limit int) ([]FlagDTO, error) {
	flags, err := s.repo.List(ctx, unresolvedOnly, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list fraud flags")
	}
	out := make([]FlagDTO, 0, len(flags))
	for _, flag := range flags {
		out = append(out, FlagDTO{
			ID:          flag.ID,
			AffiliateID: flag.AffiliateID,
			Type:        flag.Type.String(),
			Details:     flag.Details,
			ResolvedAt:  flag.ResolvedAt,
			CreatedAt:   flag.CreatedAt,
		})
	}
	return out, nil
}

func (s *service) Resolve(ctx context.Context, id uuid.UUID) error {
	flag, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "fraud flag not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load fraud flag")
	}
	if flag.ResolvedAt != nil {
		return nil
	}
	if err := s.repo.Resolve(ctx, id, s.now()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve fraud flag")
	}
	return nil
}
