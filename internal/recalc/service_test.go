package recalc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tierlink/tierlink-backend/internal/settings"
	"github.com/tierlink/tierlink-backend/internal/tiers"
	"github.com/tierlink/tierlink-backend/pkg/db/models"
	"github.com/tierlink/tierlink-backend/pkg/enums"
)

type fakeAffiliateSource struct {
	affiliates []models.Affiliate
	updated    map[uuid.UUID]int
	failFor    map[uuid.UUID]error
}

func (f *fakeAffiliateSource) ListActive(_ context.Context) ([]models.Affiliate, error) {
	return f.affiliates, nil
}

func (f *fakeAffiliateSource) UpdateTierIndex(_ context.Context, id uuid.UUID, tierIndex int) error {
	if err, ok := f.failFor[id]; ok {
		return err
	}
	if f.updated == nil {
		f.updated = make(map[uuid.UUID]int)
	}
	f.updated[id] = tierIndex
	return nil
}

type fakeRevenueSource struct {
	revenue map[uuid.UUID]decimal.Decimal
}

func (f *fakeRevenueSource) RevenueSince(_ context.Context, affiliateID uuid.UUID, _ time.Time) (decimal.Decimal, error) {
	if amount, ok := f.revenue[affiliateID]; ok {
		return amount, nil
	}
	return decimal.Zero, nil
}

type fakeActivityLogger struct {
	logged []enums.ActivityType
	byID   map[uuid.UUID]int
}

func (f *fakeActivityLogger) Log(_ context.Context, affiliateID uuid.UUID, entryType enums.ActivityType, _ any) error {
	f.logged = append(f.logged, entryType)
	if f.byID == nil {
		f.byID = make(map[uuid.UUID]int)
	}
	f.byID[affiliateID]++
	return nil
}

type fakeSnapshotSource struct{ table tiers.Table }

func (f *fakeSnapshotSource) Snapshot(_ context.Context) (*settings.Snapshot, error) {
	return &settings.Snapshot{TierTable: f.table}, nil
}

func defaultFixture(t *testing.T, affs []models.Affiliate, revenue map[uuid.UUID]decimal.Decimal) (Service, *fakeAffiliateSource, *fakeActivityLogger) {
	t.Helper()
	source := &fakeAffiliateSource{affiliates: affs}
	logged := &fakeActivityLogger{}
	svc, err := NewService(source, &fakeRevenueSource{revenue: revenue}, logged,
		&fakeSnapshotSource{table: tiers.DefaultTable()}, nil)
	require.NoError(t, err)
	return svc, source, logged
}

func TestRunUpgradesAndLogsOnce(t *testing.T) {
	id := uuid.New()
	affs := []models.Affiliate{{ID: id, TierIndex: 0}}
	revenue := map[uuid.UUID]decimal.Decimal{id: decimal.NewFromInt(1500)}

	svc, source, logged := defaultFixture(t, affs, revenue)
	require.NoError(t, svc.Run(context.Background()))

	assert.Equal(t, 1, source.updated[id])
	require.Len(t, logged.logged, 1)
	assert.Equal(t, enums.ActivityTypeTierUpgrade, logged.logged[0])
	assert.Equal(t, 1, logged.byID[id], "exactly one upgrade entry")
}

func TestRunDowngradeSilent(t *testing.T) {
	id := uuid.New()
	affs := []models.Affiliate{{ID: id, TierIndex: 2}}
	revenue := map[uuid.UUID]decimal.Decimal{id: decimal.NewFromInt(100)}

	svc, source, logged := defaultFixture(t, affs, revenue)
	require.NoError(t, svc.Run(context.Background()))

	assert.Equal(t, 0, source.updated[id], "downgrade persisted")
	assert.Empty(t, logged.logged, "downgrades log nothing")
}

func TestRunNoChangeNoWrite(t *testing.T) {
	id := uuid.New()
	affs := []models.Affiliate{{ID: id, TierIndex: 1}}
	revenue := map[uuid.UUID]decimal.Decimal{id: decimal.NewFromInt(2000)}

	svc, source, logged := defaultFixture(t, affs, revenue)
	require.NoError(t, svc.Run(context.Background()))

	_, wrote := source.updated[id]
	assert.False(t, wrote, "unchanged tier skips the write")
	assert.Empty(t, logged.logged)
}

func TestRunContinuesPastFailures(t *testing.T) {
	broken := uuid.New()
	healthy := uuid.New()
	affs := []models.Affiliate{
		{ID: broken, TierIndex: 0},
		{ID: healthy, TierIndex: 0},
	}
	revenue := map[uuid.UUID]decimal.Decimal{
		broken:  decimal.NewFromInt(6000),
		healthy: decimal.NewFromInt(6000),
	}

	source := &fakeAffiliateSource{
		affiliates: affs,
		failFor:    map[uuid.UUID]error{broken: errors.New("connection reset")},
	}
	logged := &fakeActivityLogger{}
	svc, err := NewService(source, &fakeRevenueSource{revenue: revenue}, logged,
		&fakeSnapshotSource{table: tiers.DefaultTable()}, nil)
	require.NoError(t, err)

	err = svc.Run(context.Background())
	require.Error(t, err, "the broken affiliate surfaces in the combined error")
	assert.Contains(t, err.Error(), broken.String())

	assert.Equal(t, 2, source.updated[healthy], "the pass continues past failures")
	assert.Equal(t, 1, logged.byID[healthy])
}
