package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tierlink/tierlink-backend/internal/affiliates"
	"github.com/tierlink/tierlink-backend/internal/payouts"
	"github.com/tierlink/tierlink-backend/pkg/db/models"
	pkgerrors "github.com/tierlink/tierlink-backend/pkg/errors"
	"github.com/tierlink/tierlink-backend/pkg/pagination"
)

type fakeAffiliateService struct {
	applyFn func(ctx context.Context, input affiliates.ApplyInput) (*affiliates.AffiliateDTO, error)
}

func (f *fakeAffiliateService) Apply(ctx context.Context, input affiliates.ApplyInput) (*affiliates.AffiliateDTO, error) {
	if f.applyFn != nil {
		return f.applyFn(ctx, input)
	}
	return &affiliates.AffiliateDTO{ID: uuid.New(), Name: input.Name, Email: input.Email, Status: "pending"}, nil
}

func (f *fakeAffiliateService) List(ctx context.Context, status string, params pagination.Params) ([]affiliates.AffiliateDTO, string, error) {
	return []affiliates.AffiliateDTO{}, "", nil
}

func (f *fakeAffiliateService) Get(ctx context.Context, id uuid.UUID) (*affiliates.AffiliateDTO, error) {
	panic("unimplemented")
}

func (f *fakeAffiliateService) Update(ctx context.Context, id uuid.UUID, input affiliates.UpdateInput) (*affiliates.AffiliateDTO, error) {
	panic("unimplemented")
}

func (f *fakeAffiliateService) Approve(ctx context.Context, id uuid.UUID) (*affiliates.AffiliateDTO, error) {
	panic("unimplemented")
}

func (f *fakeAffiliateService) Reject(ctx context.Context, id uuid.UUID) (*affiliates.AffiliateDTO, error) {
	panic("unimplemented")
}

func (f *fakeAffiliateService) Delete(ctx context.Context, id uuid.UUID) error {
	panic("unimplemented")
}

func (f *fakeAffiliateService) Stats(ctx context.Context, id uuid.UUID) (*affiliates.StatsDTO, error) {
	panic("unimplemented")
}

func (f *fakeAffiliateService) ResolveRedirect(ctx context.Context, slug string) (*models.Affiliate, bool, error) {
	panic("unimplemented")
}

func (f *fakeAffiliateService) ResolveAttribution(ctx context.Context, ref string) (*models.Affiliate, error) {
	panic("unimplemented")
}

type fakePayoutService struct {
	submitted []payouts.SubmitInput
	submitErr error
	applyFn   func(ctx context.Context, refCode, status string) (bool, error)
}

func (f *fakePayoutService) Submit(ctx context.Context, input payouts.SubmitInput) (*payouts.PayoutDTO, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, input)
	return &payouts.PayoutDTO{ID: uuid.New(), AffiliateID: input.AffiliateID, Amount: input.Amount}, nil
}

func (f *fakePayoutService) List(ctx context.Context, affiliateID *uuid.UUID, params pagination.Params) ([]payouts.PayoutDTO, string, error) {
	return []payouts.PayoutDTO{}, "", nil
}

func (f *fakePayoutService) ApplyProcessorStatus(ctx context.Context, refCode, status string) (bool, error) {
	if f.applyFn != nil {
		return f.applyFn(ctx, refCode, status)
	}
	return false, nil
}

func TestApplyAffiliateCreates(t *testing.T) {
	handler := ApplyAffiliate(&fakeAffiliateService{}, nil)

	body := `{"name":"Jane Doe","email":"jane@example.com","referralCode":"JANE10"}`
	req := httptest.NewRequest(http.MethodPost, "/api/join", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "jane@example.com") {
		t.Fatalf("expected created affiliate in body, got %s", rec.Body.String())
	}
}

func TestApplyAffiliateRejectsInvalidEmail(t *testing.T) {
	handler := ApplyAffiliate(&fakeAffiliateService{}, nil)

	body := `{"name":"Jane Doe","email":"not-an-email"}`
	req := httptest.NewRequest(http.MethodPost, "/api/join", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestApplyAffiliateSurfacesDuplicate(t *testing.T) {
	svc := &fakeAffiliateService{
		applyFn: func(ctx context.Context, input affiliates.ApplyInput) (*affiliates.AffiliateDTO, error) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "an application for this email already exists")
		},
	}
	handler := ApplyAffiliate(svc, nil)

	body := `{"name":"Jane Doe","email":"jane@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/api/join", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func payoutRouter(svc payouts.Service) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/affiliates/{id}/payouts", SubmitPayout(svc, nil))
	return r
}

func TestSubmitPayoutCreates(t *testing.T) {
	svc := &fakePayoutService{}
	router := payoutRouter(svc)

	id := uuid.New()
	body := `{"amount":"120.50","currency":"usd"}`
	req := httptest.NewRequest(http.MethodPost, "/api/affiliates/"+id.String()+"/payouts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if len(svc.submitted) != 1 {
		t.Fatalf("expected one submission, got %d", len(svc.submitted))
	}
	if svc.submitted[0].AffiliateID != id {
		t.Fatalf("expected affiliate %s, got %s", id, svc.submitted[0].AffiliateID)
	}
	if svc.submitted[0].Currency != "USD" {
		t.Fatalf("expected currency upcased, got %q", svc.submitted[0].Currency)
	}
}

func TestSubmitPayoutRejectsBadAmount(t *testing.T) {
	router := payoutRouter(&fakePayoutService{})

	req := httptest.NewRequest(http.MethodPost, "/api/affiliates/"+uuid.NewString()+"/payouts", strings.NewReader(`{"amount":"abc"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSubmitPayoutSurfacesProcessorFailure(t *testing.T) {
	svc := &fakePayoutService{submitErr: pkgerrors.New(pkgerrors.CodeDependency, "tipalti rejected the payment")}
	router := payoutRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/affiliates/"+uuid.NewString()+"/payouts", strings.NewReader(`{"amount":"50.00"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "tipalti rejected the payment") {
		t.Fatalf("expected upstream message surfaced, got %s", rec.Body.String())
	}
}
