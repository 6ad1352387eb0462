package payouts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tierlink/tierlink-backend/pkg/db/models"
	"github.com/tierlink/tierlink-backend/pkg/enums"
	pkgerrors "github.com/tierlink/tierlink-backend/pkg/errors"
	"github.com/tierlink/tierlink-backend/pkg/pagination"
	"github.com/tierlink/tierlink-backend/pkg/tipalti"
)

type memPayoutRepo struct {
	rows map[uuid.UUID]*models.Payout
}

func newMemPayoutRepo() *memPayoutRepo {
	return &memPayoutRepo{rows: make(map[uuid.UUID]*models.Payout)}
}

func (m *memPayoutRepo) Create(_ context.Context, payout *models.Payout) error {
	payout.ID = uuid.New()
	payout.CreatedAt = time.Now()
	m.rows[payout.ID] = payout
	return nil
}

func (m *memPayoutRepo) FindByRefCode(_ context.Context, refCode string) (*models.Payout, error) {
	for _, row := range m.rows {
		if row.RefCode == refCode {
			cpy := *row
			return &cpy, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memPayoutRepo) UpdateStatus(_ context.Context, id uuid.UUID, status enums.PayoutStatus, paidAt *time.Time) error {
	if row, ok := m.rows[id]; ok {
		row.Status = status
		row.PaidAt = paidAt
	}
	return nil
}

func (m *memPayoutRepo) List(_ context.Context, affiliateID *uuid.UUID, _ pagination.Params) ([]models.Payout, error) {
	var out []models.Payout
	for _, row := range m.rows {
		if affiliateID != nil && row.AffiliateID != *affiliateID {
			continue
		}
		out = append(out, *row)
	}
	return out, nil
}

type fakeAffiliates struct {
	rows    map[uuid.UUID]*models.Affiliate
	credits map[uuid.UUID]string
}

func (f *fakeAffiliates) FindByID(_ context.Context, id uuid.UUID) (*models.Affiliate, error) {
	if row, ok := f.rows[id]; ok {
		cpy := *row
		return &cpy, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeAffiliates) AddStoreCredit(_ context.Context, id uuid.UUID, amount string) error {
	if f.credits == nil {
		f.credits = make(map[uuid.UUID]string)
	}
	f.credits[id] = amount
	return nil
}

type fakeMarker struct {
	calls []uuid.UUID
}

func (f *fakeMarker) MarkStatusByAffiliate(_ context.Context, affiliateID uuid.UUID, _, _ enums.ConversionStatus) error {
	f.calls = append(f.calls, affiliateID)
	return nil
}

type fakeLogger struct {
	types []enums.ActivityType
}

func (f *fakeLogger) Log(_ context.Context, _ uuid.UUID, entryType enums.ActivityType, _ any) error {
	f.types = append(f.types, entryType)
	return nil
}

type fakeProcessor struct {
	requests []tipalti.PaymentRequest
	err      error
}

func (f *fakeProcessor) SubmitPayment(_ context.Context, req tipalti.PaymentRequest) error {
	if f.err != nil {
		return f.err
	}
	f.requests = append(f.requests, req)
	return nil
}

func activeAffiliate(method enums.PayoutMethod, idap string) *models.Affiliate {
	affiliate := &models.Affiliate{
		ID:           uuid.New(),
		Name:         "Jane",
		Email:        "jane@example.com",
		Status:       enums.AffiliateStatusActive,
		PayoutMethod: method,
	}
	if idap != "" {
		affiliate.Idap = &idap
	}
	return affiliate
}

type payoutFixture struct {
	svc       Service
	repo      *memPayoutRepo
	marker    *fakeMarker
	logged    *fakeLogger
	processor *fakeProcessor
	affs      *fakeAffiliates
}

func newPayoutFixture(t *testing.T, affiliate *models.Affiliate) *payoutFixture {
	t.Helper()
	repo := newMemPayoutRepo()
	affs := &fakeAffiliates{rows: map[uuid.UUID]*models.Affiliate{affiliate.ID: affiliate}}
	marker := &fakeMarker{}
	logged := &fakeLogger{}
	processor := &fakeProcessor{}

	svc, err := NewService(ServiceDeps{
		Repo:        repo,
		Affiliates:  affs,
		Conversions: marker,
		Activity:    logged,
		Processor:   processor,
	})
	require.NoError(t, err)
	return &payoutFixture{svc: svc, repo: repo, marker: marker, logged: logged, processor: processor, affs: affs}
}

func TestSubmitProcessorPayout(t *testing.T) {
	affiliate := activeAffiliate(enums.PayoutMethodProcessor, "payee-1")
	f := newPayoutFixture(t, affiliate)

	dto, err := f.svc.Submit(context.Background(), SubmitInput{
		AffiliateID: affiliate.ID,
		Amount:      decimal.RequireFromString("150.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusSubmitted.String(), dto.Status)
	require.Len(t, f.processor.requests, 1)
	assert.Equal(t, "payee-1", f.processor.requests[0].Idap)
	assert.Equal(t, dto.RefCode, f.processor.requests[0].RefCode)
	assert.Equal(t, []enums.ActivityType{enums.ActivityTypePayoutSent}, f.logged.types)
}

func TestSubmitProcessorRejectionSurfacesUpstreamMessage(t *testing.T) {
	affiliate := activeAffiliate(enums.PayoutMethodProcessor, "payee-1")
	f := newPayoutFixture(t, affiliate)
	f.processor.err = pkgerrors.New(pkgerrors.CodeDependency, "payee has not completed onboarding")

	_, err := f.svc.Submit(context.Background(), SubmitInput{
		AffiliateID: affiliate.ID,
		Amount:      decimal.NewFromInt(50),
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeDependency, typed.Code())
	assert.Contains(t, typed.Message(), "onboarding")
	assert.Empty(t, f.repo.rows, "rejected submissions record nothing")
}

func TestSubmitProcessorWithoutIdap(t *testing.T) {
	affiliate := activeAffiliate(enums.PayoutMethodProcessor, "")
	f := newPayoutFixture(t, affiliate)

	_, err := f.svc.Submit(context.Background(), SubmitInput{
		AffiliateID: affiliate.ID,
		Amount:      decimal.NewFromInt(50),
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestSubmitStoreCreditCompletesImmediately(t *testing.T) {
	affiliate := activeAffiliate(enums.PayoutMethodStoreCredit, "")
	f := newPayoutFixture(t, affiliate)

	dto, err := f.svc.Submit(context.Background(), SubmitInput{
		AffiliateID: affiliate.ID,
		Amount:      decimal.RequireFromString("25.50"),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusCompleted.String(), dto.Status)
	assert.NotNil(t, dto.PaidAt)
	assert.Equal(t, "25.50", f.affs.credits[affiliate.ID])
}

func TestSubmitInactiveAffiliate(t *testing.T) {
	affiliate := activeAffiliate(enums.PayoutMethodProcessor, "payee-1")
	affiliate.Status = enums.AffiliateStatusPending
	f := newPayoutFixture(t, affiliate)

	_, err := f.svc.Submit(context.Background(), SubmitInput{
		AffiliateID: affiliate.ID,
		Amount:      decimal.NewFromInt(50),
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestApplyProcessorStatusCompleted(t *testing.T) {
	affiliate := activeAffiliate(enums.PayoutMethodProcessor, "payee-1")
	f := newPayoutFixture(t, affiliate)
	ctx := context.Background()

	dto, err := f.svc.Submit(ctx, SubmitInput{AffiliateID: affiliate.ID, Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)

	known, err := f.svc.ApplyProcessorStatus(ctx, dto.RefCode, "Completed")
	require.NoError(t, err)
	assert.True(t, known)

	stored := f.repo.rows[dto.ID]
	assert.Equal(t, enums.PayoutStatusCompleted, stored.Status)
	assert.NotNil(t, stored.PaidAt)
	assert.Equal(t, []uuid.UUID{affiliate.ID}, f.marker.calls, "approved conversions marked paid")
	assert.Contains(t, f.logged.types, enums.ActivityTypePayoutComplete)
}

func TestApplyProcessorStatusUnknownRef(t *testing.T) {
	affiliate := activeAffiliate(enums.PayoutMethodProcessor, "payee-1")
	f := newPayoutFixture(t, affiliate)

	known, err := f.svc.ApplyProcessorStatus(context.Background(), "po-missing", "completed")
	require.NoError(t, err)
	assert.False(t, known, "unknown reference codes are a no-op")
}

func TestApplyProcessorStatusFailed(t *testing.T) {
	affiliate := activeAffiliate(enums.PayoutMethodProcessor, "payee-1")
	f := newPayoutFixture(t, affiliate)
	ctx := context.Background()

	dto, err := f.svc.Submit(ctx, SubmitInput{AffiliateID: affiliate.ID, Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)

	known, err := f.svc.ApplyProcessorStatus(ctx, dto.RefCode, "failed")
	require.NoError(t, err)
	assert.True(t, known)
	assert.Equal(t, enums.PayoutStatusFailed, f.repo.rows[dto.ID].Status)
	assert.Empty(t, f.marker.calls)
}
