package tipalti

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tierlink/tierlink-backend/pkg/config"
	pkgerrors "github.com/tierlink/tierlink-backend/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(config.TipaltiConfig{
		PayerName: "TierlinkTest",
		MasterKey: "master-key",
	}, WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, server
}

func TestNewClientRequiresCredentials(t *testing.T) {
	if _, err := NewClient(config.TipaltiConfig{MasterKey: "k"}); err == nil {
		t.Fatal("expected error without payer name")
	}
	if _, err := NewClient(config.TipaltiConfig{PayerName: "p"}); err == nil {
		t.Fatal("expected error without master key")
	}
}

func TestSubmitPaymentSignsAndSucceeds(t *testing.T) {
	var received paymentOrderXML
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := xml.Unmarshal(body, &received); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`<PaymentOrderResult><Status>OK</Status></PaymentOrderResult>`))
	})

	err := client.SubmitPayment(context.Background(), PaymentRequest{
		Idap:     "aff-123",
		RefCode:  "PAY-1",
		Amount:   decimal.RequireFromString("42.50"),
		Currency: "usd",
	})
	if err != nil {
		t.Fatalf("submit payment: %v", err)
	}
	if received.Amount != "42.50" {
		t.Fatalf("expected fixed-point amount, got %s", received.Amount)
	}
	if received.Currency != "USD" {
		t.Fatalf("expected uppercased currency, got %s", received.Currency)
	}
	if received.Key == "" {
		t.Fatal("expected request key to be signed")
	}
	if received.Key != client.sign("aff-123", received.Time) {
		t.Fatal("signature does not match request contents")
	}
}

func TestSubmitPaymentSurfacesProcessorError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<PaymentOrderResult><Status>Rejected</Status><ErrorMessage>payee not payable</ErrorMessage></PaymentOrderResult>`))
	})

	err := client.SubmitPayment(context.Background(), PaymentRequest{
		Idap:    "aff-123",
		RefCode: "PAY-2",
		Amount:  decimal.NewFromInt(10),
	})
	if err == nil {
		t.Fatal("expected error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if typed.Message() != "payee not payable" {
		t.Fatalf("expected upstream message verbatim, got %q", typed.Message())
	}
}

func TestSubmitPaymentValidatesInput(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	err := client.SubmitPayment(context.Background(), PaymentRequest{RefCode: "x", Amount: decimal.NewFromInt(1)})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	err = client.SubmitPayment(context.Background(), PaymentRequest{Idap: "a", RefCode: "x", Amount: decimal.Zero})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for zero amount, got %v", err)
	}
}

func TestGetPayeeStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<PayeeStatus><Idap>aff-123</Idap><Payable>true</Payable></PayeeStatus>`))
	})

	status, err := client.GetPayeeStatus(context.Background(), "aff-123")
	if err != nil {
		t.Fatalf("payee status: %v", err)
	}
	if !status.Payable || status.Idap != "aff-123" {
		t.Fatalf("unexpected status: %+v", status)
	}
}
