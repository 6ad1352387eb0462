package woowebhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tierlink/tierlink-backend/internal/conversions"
	"github.com/tierlink/tierlink-backend/pkg/db/models"
	"github.com/tierlink/tierlink-backend/pkg/woocommerce"
)

type fakeResolver struct {
	byRef map[string]*models.Affiliate
}

func (f *fakeResolver) ResolveAttribution(_ context.Context, ref string) (*models.Affiliate, error) {
	if affiliate, ok := f.byRef[ref]; ok {
		return affiliate, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type fakeCoupons struct {
	byCode map[string]*models.Affiliate
}

func (f *fakeCoupons) FindByCoupon(_ context.Context, code string) (*models.Affiliate, error) {
	if affiliate, ok := f.byCode[code]; ok {
		return affiliate, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type fakeConversions struct {
	upserts []conversions.UpsertOrderInput
	deletes []string
	known   map[string]bool
}

func (f *fakeConversions) UpsertOrder(_ context.Context, input conversions.UpsertOrderInput) error {
	f.upserts = append(f.upserts, input)
	return nil
}

func (f *fakeConversions) DeleteOrder(_ context.Context, orderID string) (bool, error) {
	f.deletes = append(f.deletes, orderID)
	return f.known[orderID], nil
}

func newWebhookTest(t *testing.T, resolver *fakeResolver, coupons *fakeCoupons, writer *fakeConversions) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Affiliates:  resolver,
		Coupons:     coupons,
		Conversions: writer,
	})
	require.NoError(t, err)
	return svc
}

func metaItem(key, value string) woocommerce.OrderMetaItem {
	raw, _ := json.Marshal(value)
	return woocommerce.OrderMetaItem{Key: key, Value: raw}
}

func TestHandleOrderRecordsReferralMetaAttribution(t *testing.T) {
	affiliate := &models.Affiliate{ID: uuid.New()}
	writer := &fakeConversions{}
	svc := newWebhookTest(t,
		&fakeResolver{byRef: map[string]*models.Affiliate{"jane-doe": affiliate}},
		&fakeCoupons{},
		writer)

	outcome, err := svc.HandleOrder(context.Background(), &woocommerce.Order{
		ID:       4211,
		Status:   "completed",
		Total:    "199.99",
		Currency: "USD",
		Billing:  woocommerce.OrderBilling{Email: "buyer@example.com"},
		Meta:     []woocommerce.OrderMetaItem{metaItem(ReferralMetaKey, "jane-doe")},
		Items:    json.RawMessage(`[{"name":"Widget"}]`),
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRecorded, outcome)
	require.Len(t, writer.upserts, 1)
	got := writer.upserts[0]
	assert.Equal(t, affiliate.ID, got.AffiliateID)
	assert.Equal(t, "4211", got.OrderID)
	assert.Equal(t, "199.99", got.Amount.String())
	assert.Equal(t, "USD", got.Currency)
	assert.Equal(t, "buyer@example.com", got.CustomerEmail)
	assert.JSONEq(t, `[{"name":"Widget"}]`, string(got.LineItems))
}

func TestHandleOrderFallsBackToCoupon(t *testing.T) {
	affiliate := &models.Affiliate{ID: uuid.New()}
	writer := &fakeConversions{}
	svc := newWebhookTest(t,
		&fakeResolver{},
		&fakeCoupons{byCode: map[string]*models.Affiliate{"JANE20": affiliate}},
		writer)

	outcome, err := svc.HandleOrder(context.Background(), &woocommerce.Order{
		ID:      88,
		Status:  "processing",
		Total:   "50.00",
		Coupons: []woocommerce.OrderCoupon{{Code: "OTHER"}, {Code: "JANE20"}},
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRecorded, outcome)
	require.Len(t, writer.upserts, 1)
	assert.Equal(t, affiliate.ID, writer.upserts[0].AffiliateID)
}

func TestHandleOrderUnattributedIsAcknowledged(t *testing.T) {
	writer := &fakeConversions{}
	svc := newWebhookTest(t, &fakeResolver{}, &fakeCoupons{}, writer)

	outcome, err := svc.HandleOrder(context.Background(), &woocommerce.Order{
		ID:     7,
		Status: "completed",
		Total:  "10.00",
		Meta:   []woocommerce.OrderMetaItem{metaItem(ReferralMetaKey, "nobody")},
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnattributed, outcome)
	assert.Empty(t, writer.upserts)
}

func TestHandleOrderRefundRemovesConversion(t *testing.T) {
	writer := &fakeConversions{known: map[string]bool{"4211": true}}
	svc := newWebhookTest(t, &fakeResolver{}, &fakeCoupons{}, writer)

	outcome, err := svc.HandleOrder(context.Background(), &woocommerce.Order{ID: 4211, Status: "refunded"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRemoved, outcome)
	assert.Equal(t, []string{"4211"}, writer.deletes)
}

func TestHandleOrderRefundForUnknownOrderIsNoop(t *testing.T) {
	writer := &fakeConversions{}
	svc := newWebhookTest(t, &fakeResolver{}, &fakeCoupons{}, writer)

	outcome, err := svc.HandleOrder(context.Background(), &woocommerce.Order{ID: 999, Status: "refunded"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
}

func TestHandleOrderIgnoresOtherStatuses(t *testing.T) {
	writer := &fakeConversions{}
	svc := newWebhookTest(t, &fakeResolver{}, &fakeCoupons{}, writer)

	outcome, err := svc.HandleOrder(context.Background(), &woocommerce.Order{ID: 5, Status: "pending", Total: "1.00"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Empty(t, writer.upserts)
	assert.Empty(t, writer.deletes)
}

func TestHandleOrderRejectsBadTotal(t *testing.T) {
	affiliate := &models.Affiliate{ID: uuid.New()}
	writer := &fakeConversions{}
	svc := newWebhookTest(t,
		&fakeResolver{byRef: map[string]*models.Affiliate{"jane-doe": affiliate}},
		&fakeCoupons{},
		writer)

	_, err := svc.HandleOrder(context.Background(), &woocommerce.Order{
		ID:     12,
		Status: "completed",
		Total:  "not-a-number",
		Meta:   []woocommerce.OrderMetaItem{metaItem(ReferralMetaKey, "jane-doe")},
	})
	require.Error(t, err)
	assert.Empty(t, writer.upserts)
}

func TestVerifySignature(t *testing.T) {
	secret := "wh-secret"
	body := []byte(`{"id":4211}`)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	assert.True(t, VerifySignature(secret, body, signature))
	assert.False(t, VerifySignature(secret, body, "tampered"))
	assert.False(t, VerifySignature(secret, []byte(`{"id":1}`), signature))
	assert.False(t, VerifySignature("", body, signature))
	assert.False(t, VerifySignature(secret, body, ""))
}
