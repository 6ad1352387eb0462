package routes

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tierlink/tierlink-backend/internal/activity"
	"github.com/tierlink/tierlink-backend/internal/affiliates"
	"github.com/tierlink/tierlink-backend/internal/alerts"
	"github.com/tierlink/tierlink-backend/internal/conversions"
	"github.com/tierlink/tierlink-backend/internal/fraud"
	"github.com/tierlink/tierlink-backend/internal/payouts"
	"github.com/tierlink/tierlink-backend/internal/settings"
	woowebhook "github.com/tierlink/tierlink-backend/internal/webhooks/woocommerce"
	pkgauth "github.com/tierlink/tierlink-backend/pkg/auth"
	"github.com/tierlink/tierlink-backend/pkg/config"
	"github.com/tierlink/tierlink-backend/pkg/db/models"
	"github.com/tierlink/tierlink-backend/pkg/enums"
	"github.com/tierlink/tierlink-backend/pkg/logger"
	"github.com/tierlink/tierlink-backend/pkg/pagination"
)

const adminEmail = "ops@example.com"

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubAffiliates struct {
	slug string
}

func (s stubAffiliates) Apply(ctx context.Context, input affiliates.ApplyInput) (*affiliates.AffiliateDTO, error) {
	return &affiliates.AffiliateDTO{ID: uuid.New(), Name: input.Name, Email: input.Email, Status: string(enums.AffiliateStatusPending)}, nil
}

func (stubAffiliates) List(ctx context.Context, status string, params pagination.Params) ([]affiliates.AffiliateDTO, string, error) {
	return []affiliates.AffiliateDTO{}, "", nil
}

func (stubAffiliates) Get(ctx context.Context, id uuid.UUID) (*affiliates.AffiliateDTO, error) {
	return &affiliates.AffiliateDTO{ID: id}, nil
}

func (stubAffiliates) Update(ctx context.Context, id uuid.UUID, input affiliates.UpdateInput) (*affiliates.AffiliateDTO, error) {
	return &affiliates.AffiliateDTO{ID: id}, nil
}

func (stubAffiliates) Approve(ctx context.Context, id uuid.UUID) (*affiliates.AffiliateDTO, error) {
	return &affiliates.AffiliateDTO{ID: id}, nil
}

func (stubAffiliates) Reject(ctx context.Context, id uuid.UUID) (*affiliates.AffiliateDTO, error) {
	return &affiliates.AffiliateDTO{ID: id}, nil
}

func (stubAffiliates) Delete(ctx context.Context, id uuid.UUID) error { return nil }

func (stubAffiliates) Stats(ctx context.Context, id uuid.UUID) (*affiliates.StatsDTO, error) {
	return &affiliates.StatsDTO{}, nil
}

func (s stubAffiliates) ResolveRedirect(ctx context.Context, slug string) (*models.Affiliate, bool, error) {
	current := s.slug
	return &models.Affiliate{ID: uuid.New(), Slug: &current}, false, nil
}

func (s stubAffiliates) ResolveAttribution(ctx context.Context, ref string) (*models.Affiliate, error) {
	current := s.slug
	return &models.Affiliate{ID: uuid.New(), Slug: &current}, nil
}

type stubConversions struct{}

func (stubConversions) Create(ctx context.Context, input conversions.CreateInput) (*conversions.ConversionDTO, error) {
	return &conversions.ConversionDTO{ID: uuid.New()}, nil
}

func (stubConversions) Get(ctx context.Context, id uuid.UUID) (*conversions.ConversionDTO, error) {
	return &conversions.ConversionDTO{ID: id}, nil
}

func (stubConversions) List(ctx context.Context, affiliateID *uuid.UUID, status string, params pagination.Params) ([]conversions.ConversionDTO, string, error) {
	return []conversions.ConversionDTO{}, "", nil
}

func (stubConversions) Update(ctx context.Context, id uuid.UUID, input conversions.UpdateInput) (*conversions.ConversionDTO, error) {
	return &conversions.ConversionDTO{ID: id}, nil
}

func (stubConversions) Delete(ctx context.Context, id uuid.UUID) error { return nil }

func (stubConversions) UpsertOrder(ctx context.Context, input conversions.UpsertOrderInput) error {
	return nil
}

func (stubConversions) DeleteOrder(ctx context.Context, orderID string) (bool, error) {
	return false, nil
}

type stubPayouts struct{}

func (stubPayouts) Submit(ctx context.Context, input payouts.SubmitInput) (*payouts.PayoutDTO, error) {
	return &payouts.PayoutDTO{ID: uuid.New()}, nil
}

func (stubPayouts) List(ctx context.Context, affiliateID *uuid.UUID, params pagination.Params) ([]payouts.PayoutDTO, string, error) {
	return []payouts.PayoutDTO{}, "", nil
}

func (stubPayouts) ApplyProcessorStatus(ctx context.Context, refCode, status string) (bool, error) {
	return true, nil
}

type stubAlerts struct{}

func (stubAlerts) Raise(ctx context.Context, affiliateID uuid.UUID, alertType enums.AlertType, message string, window time.Duration) (bool, error) {
	return true, nil
}

func (stubAlerts) List(ctx context.Context, undismissedOnly bool, limit int) ([]alerts.AlertDTO, error) {
	return []alerts.AlertDTO{}, nil
}

func (stubAlerts) Dismiss(ctx context.Context, id uuid.UUID) error { return nil }

type stubFraud struct{}

func (stubFraud) Scan(ctx context.Context) error { return nil }

func (stubFraud) List(ctx context.Context, unresolvedOnly bool, limit int) ([]fraud.FlagDTO, error) {
	return []fraud.FlagDTO{}, nil
}

func (stubFraud) Resolve(ctx context.Context, id uuid.UUID) error { return nil }

type stubActivity struct{}

func (stubActivity) Log(ctx context.Context, affiliateID uuid.UUID, entryType enums.ActivityType, metadata any) error {
	return nil
}

func (stubActivity) LogWithTx(tx *gorm.DB, affiliateID uuid.UUID, entryType enums.ActivityType, metadata any) error {
	return nil
}

func (stubActivity) ListByAffiliate(ctx context.Context, affiliateID uuid.UUID, limit int) ([]activity.EntryDTO, error) {
	return []activity.EntryDTO{}, nil
}

func (stubActivity) List(ctx context.Context, limit int) ([]activity.EntryDTO, error) {
	return []activity.EntryDTO{}, nil
}

type stubSettings struct{}

func (stubSettings) Snapshot(ctx context.Context) (*settings.Snapshot, error) {
	return &settings.Snapshot{CookieDays: 30}, nil
}

func (stubSettings) List(ctx context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}

func (stubSettings) Update(ctx context.Context, values map[string]string) error { return nil }

func (stubSettings) IsAdminEmail(ctx context.Context, email string) (bool, error) {
	return strings.EqualFold(email, adminEmail), nil
}

type stubClicks struct{}

func (stubClicks) Record(ctx context.Context, affiliateID uuid.UUID, ip, userAgent string) error {
	return nil
}

type stubRecalc struct {
	ran *bool
}

func (s stubRecalc) Run(ctx context.Context) error {
	if s.ran != nil {
		*s.ran = true
	}
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		App:   config.AppConfig{Env: "test", Port: "0"},
		Admin: config.AdminConfig{JWTSecret: "test-secret", CronToken: "cron-secret"},
		Referral: config.ReferralConfig{
			StorefrontURL: "https://store.example.com",
			CookieName:    "ref",
			CookieDays:    30,
		},
		WooCommerce: config.WooCommerceConfig{WebhookSecret: "wh-secret"},
	}
}

func newTestRouter(t *testing.T, cfg *config.Config, recalcRan *bool) http.Handler {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})

	woo, err := woowebhook.NewService(woowebhook.ServiceParams{
		Affiliates:  stubAffiliates{slug: "jane-doe"},
		Coupons:     couponMiss{},
		Conversions: stubConversions{},
		Logger:      logg,
	})
	if err != nil {
		t.Fatalf("webhook service: %v", err)
	}

	return NewRouter(Deps{
		Config:      cfg,
		Logger:      logg,
		Database:    stubPinger{},
		Affiliates:  stubAffiliates{slug: "jane-doe"},
		Conversions: stubConversions{},
		Payouts:     stubPayouts{},
		Alerts:      stubAlerts{},
		Fraud:       stubFraud{},
		Activity:    stubActivity{},
		Settings:    stubSettings{},
		Clicks:      stubClicks{},
		Recalc:      stubRecalc{ran: recalcRan},
		WooWebhook:  woo,
	})
}

type couponMiss struct{}

func (couponMiss) FindByCoupon(ctx context.Context, coupon string) (*models.Affiliate, error) {
	return nil, gorm.ErrRecordNotFound
}

func adminToken(t *testing.T, cfg *config.Config) string {
	t.Helper()
	token, err := pkgauth.MintAdminToken(cfg.Admin, time.Now(), adminEmail, time.Hour)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(t, testConfig(), nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestAdminGroupRejectsMissingToken(t *testing.T) {
	router := newTestRouter(t, testConfig(), nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/affiliates", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestAdminGroupAcceptsAllowlistedToken(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/affiliates", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t, cfg))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestAdminGroupRejectsUnknownEmail(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg, nil)

	token, err := pkgauth.MintAdminToken(cfg.Admin, time.Now(), "intruder@example.com", time.Hour)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/affiliates", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unknown email got %d", resp.Code)
	}
}

func TestJoinCreatesApplication(t *testing.T) {
	router := newTestRouter(t, testConfig(), nil)

	body := `{"name":"Jane Doe","email":"jane@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/api/join", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestReferralRedirectSetsCookie(t *testing.T) {
	router := newTestRouter(t, testConfig(), nil)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/ref/jane-doe", nil))
	if resp.Code != http.StatusFound {
		t.Fatalf("expected 302 got %d", resp.Code)
	}
	if loc := resp.Header().Get("Location"); loc != "https://store.example.com?ref=jane-doe" {
		t.Fatalf("unexpected redirect target %q", loc)
	}

	var found bool
	for _, cookie := range resp.Result().Cookies() {
		if cookie.Name == "ref" && cookie.Value == "jane-doe" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected ref cookie on redirect")
	}
}

func TestCronEndpointsHiddenWithoutToken(t *testing.T) {
	router := newTestRouter(t, testConfig(), nil)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/cron/recalculate", nil))
	if resp.Code != http.StatusUnauthorized && resp.Code != http.StatusNotFound {
		t.Fatalf("expected cron trigger to be rejected, got %d", resp.Code)
	}
}

func TestCronRecalculateRunsWithToken(t *testing.T) {
	var ran bool
	router := newTestRouter(t, testConfig(), &ran)

	req := httptest.NewRequest(http.MethodPost, "/api/cron/recalculate", nil)
	req.Header.Set("X-Cron-Token", "cron-secret")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if !ran {
		t.Fatal("expected recalculation to run")
	}
}

func TestWooWebhookRejectsBadSignature(t *testing.T) {
	router := newTestRouter(t, testConfig(), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/woocommerce", strings.NewReader(`{"id":1}`))
	req.Header.Set("X-WC-Webhook-Signature", "bogus")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestWooWebhookAcksSignedDelivery(t *testing.T) {
	router := newTestRouter(t, testConfig(), nil)

	body := `{"id":4211,"status":"completed","total":"99.50","currency":"USD","meta_data":[{"key":"referral_ref","value":"jane-doe"}]}`
	mac := hmac.New(sha256.New, []byte("wh-secret"))
	mac.Write([]byte(body))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/woocommerce", strings.NewReader(body))
	req.Header.Set("X-WC-Webhook-Signature", signature)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), `"received":true`) {
		t.Fatalf("expected webhook ack, got %s", resp.Body.String())
	}
}

func TestTrackingSnippetServed(t *testing.T) {
	router := newTestRouter(t, testConfig(), nil)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/tracking-snippet.js", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); !strings.Contains(ct, "javascript") {
		t.Fatalf("unexpected content type %q", ct)
	}
}
