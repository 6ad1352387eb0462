// Package recalc recomputes every active affiliate's tier placement from
// current-month revenue. It runs after any conversion mutation, after a
// settings change, and on a schedule.
package recalc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/tierlink/tierlink-backend/internal/settings"
	"github.com/tierlink/tierlink-backend/internal/tiers"
	"github.com/tierlink/tierlink-backend/pkg/db/models"
	"github.com/tierlink/tierlink-backend/pkg/enums"
	pkgerrors "github.com/tierlink/tierlink-backend/pkg/errors"
	"github.com/tierlink/tierlink-backend/pkg/logger"
)

type affiliateSource interface {
	ListActive(ctx context.Context) ([]models.Affiliate, error)
	UpdateTierIndex(ctx context.Context, id uuid.UUID, tierIndex int) error
}

type revenueSource interface {
	RevenueSince(ctx context.Context, affiliateID uuid.UUID, since time.Time) (decimal.Decimal, error)
}

type activityLogger interface {
	Log(ctx context.Context, affiliateID uuid.UUID, entryType enums.ActivityType, metadata any) error
}

type snapshotSource interface {
	Snapshot(ctx context.Context) (*settings.Snapshot, error)
}

// Service runs the full tier recalculation pass.
type Service interface {
	Run(ctx context.Context) error
}

type service struct {
	affiliates affiliateSource
	revenue    revenueSource
	activity   activityLogger
	settings   snapshotSource
	logg       *logger.Logger
	now        func() time.Time
}

// NewService builds the recalculation service.
func NewService(affiliates affiliateSource, revenue revenueSource, activity activityLogger, snap snapshotSource, logg *logger.Logger) (Service, error) {
	if affiliates == nil {
		return nil, fmt.Errorf("affiliate source required")
	}
	if revenue == nil {
		return nil, fmt.Errorf("revenue source required")
	}
	if activity == nil {
		return nil, fmt.Errorf("activity logger required")
	}
	if snap == nil {
		return nil, fmt.Errorf("settings source required")
	}
	if logg == nil {
		logg = logger.New(logger.Options{ServiceName: "recalc"})
	}
	return &service{
		affiliates: affiliates,
		revenue:    revenue,
		activity:   activity,
		settings:   snap,
		logg:       logg,
		now:        time.Now,
	}, nil
}

// Run walks every active affiliate. Per-affiliate failures are collected
// and the pass continues; the combined error is returned at the end.
func (s *service) Run(ctx context.Context) error {
	snap, err := s.settings.Snapshot(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settings")
	}
	table := snap.TierTable

	affiliates, err := s.affiliates.ListActive(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list affiliates")
	}

	monthStart := startOfMonth(s.now())
	var combined error
	for i := range affiliates {
		if err := s.recalculateOne(ctx, &affiliates[i], table, monthStart); err != nil {
			combined = multierr.Append(combined,
				fmt.Errorf("affiliate %s: %w", affiliates[i].ID, err))
		}
	}
	return combined
}

func (s *service) recalculateOne(ctx context.Context, affiliate *models.Affiliate, table tiers.Table, monthStart time.Time) error {
	revenue, err := s.revenue.RevenueSince(ctx, affiliate.ID, monthStart)
	if err != nil {
		return fmt.Errorf("sum revenue: %w", err)
	}

	newIndex, err := tiers.ResolveIndex(revenue, table)
	if err != nil {
		return fmt.Errorf("resolve tier: %w", err)
	}
	if newIndex == affiliate.TierIndex {
		return nil
	}

	if err := s.affiliates.UpdateTierIndex(ctx, affiliate.ID, newIndex); err != nil {
		return fmt.Errorf("update tier index: %w", err)
	}

	// only upgrades leave a trace in the activity log; downgrades are
	// persisted silently
	if newIndex > affiliate.TierIndex {
		err := s.activity.Log(ctx, affiliate.ID, enums.ActivityTypeTierUpgrade, map[string]any{
			"from":     affiliate.TierIndex,
			"to":       newIndex,
			"tierName": table.NameAt(newIndex),
		})
		if err != nil {
			s.logg.Error(ctx, "record tier upgrade activity failed", err)
		}
	}
	affiliate.TierIndex = newIndex
	return nil
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
