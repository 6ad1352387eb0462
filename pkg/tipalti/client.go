package tipalti

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tierlink/tierlink-backend/pkg/config"
	pkgerrors "github.com/tierlink/tierlink-backend/pkg/errors"
)

const (
	defaultTimeout            = 15 * time.Second
	responseReadLimit   int64 = 1 << 16
	paymentsEndpoint          = "/v5/payments"
	payeeStatusEndpoint       = "/v5/payees/status"
)

var (
	errPayerNameRequired = errors.New("tipalti payer name is required")
	errMasterKeyRequired = errors.New("tipalti master key is required")
)

// Client speaks the payout processor's legacy XML-over-HTTP protocol. Every
// request is authenticated with an HMAC over payer name, idap and timestamp.
type Client struct {
	httpClient *http.Client
	baseURL    string
	payerName  string
	masterKey  string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds the payout client from configuration.
func NewClient(cfg config.TipaltiConfig, opts ...Option) (*Client, error) {
	payerName := strings.TrimSpace(cfg.PayerName)
	if payerName == "" {
		return nil, errPayerNameRequired
	}
	masterKey := strings.TrimSpace(cfg.MasterKey)
	if masterKey == "" {
		return nil, errMasterKeyRequired
	}

	client := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		payerName:  payerName,
		masterKey:  masterKey,
	}
	if client.baseURL == "" {
		client.baseURL = "https://api.tipalti.com"
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// PaymentRequest describes one payment instruction.
type PaymentRequest struct {
	Idap     string
	RefCode  string
	Amount   decimal.Decimal
	Currency string
}

type paymentOrderXML struct {
	XMLName  xml.Name `xml:"PaymentOrder"`
	Payer    string   `xml:"PayerName"`
	Idap     string   `xml:"Idap"`
	RefCode  string   `xml:"RefCode"`
	Amount   string   `xml:"Amount"`
	Currency string   `xml:"Currency"`
	Time     string   `xml:"Timestamp"`
	Key      string   `xml:"Key"`
}

type paymentResultXML struct {
	XMLName xml.Name `xml:"PaymentOrderResult"`
	Status  string   `xml:"Status"`
	Error   string   `xml:"ErrorMessage"`
}

// PayeeStatus reports whether a payee finished onboarding and is payable.
type PayeeStatus struct {
	Idap    string
	Payable bool
	Reason  string
}

type payeeStatusXML struct {
	XMLName xml.Name `xml:"PayeeStatus"`
	Idap    string   `xml:"Idap"`
	Payable bool     `xml:"Payable"`
	Reason  string   `xml:"Reason"`
}

// SubmitPayment sends one payment instruction and returns the processor error
// message verbatim when the order is rejected.
func (c *Client) SubmitPayment(ctx context.Context, req PaymentRequest) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "payout client not configured")
	}
	if strings.TrimSpace(req.Idap) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payee idap is required")
	}
	if strings.TrimSpace(req.RefCode) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment ref code is required")
	}
	if !req.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}

	now := time.Now().UTC().Format(time.RFC3339)
	payload := paymentOrderXML{
		Payer:    c.payerName,
		Idap:     req.Idap,
		RefCode:  req.RefCode,
		Amount:   req.Amount.StringFixed(2),
		Currency: strings.ToUpper(req.Currency),
		Time:     now,
		Key:      c.sign(req.Idap, now),
	}
	if payload.Currency == "" {
		payload.Currency = "USD"
	}

	var result paymentResultXML
	if err := c.post(ctx, paymentsEndpoint, payload, &result); err != nil {
		return err
	}
	if !strings.EqualFold(result.Status, "OK") {
		msg := result.Error
		if msg == "" {
			msg = fmt.Sprintf("payment rejected with status %q", result.Status)
		}
		return pkgerrors.New(pkgerrors.CodeDependency, msg)
	}
	return nil
}

// GetPayeeStatus fetches onboarding/payability state for the given idap.
func (c *Client) GetPayeeStatus(ctx context.Context, idap string) (*PayeeStatus, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payout client not configured")
	}
	if strings.TrimSpace(idap) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payee idap is required")
	}

	now := time.Now().UTC().Format(time.RFC3339)
	payload := struct {
		XMLName xml.Name `xml:"PayeeStatusRequest"`
		Payer   string   `xml:"PayerName"`
		Idap    string   `xml:"Idap"`
		Time    string   `xml:"Timestamp"`
		Key     string   `xml:"Key"`
	}{
		Payer: c.payerName,
		Idap:  idap,
		Time:  now,
		Key:   c.sign(idap, now),
	}

	var result payeeStatusXML
	if err := c.post(ctx, payeeStatusEndpoint, payload, &result); err != nil {
		return nil, err
	}
	return &PayeeStatus{Idap: result.Idap, Payable: result.Payable, Reason: result.Reason}, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, dest any) error {
	body, err := xml.Marshal(payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode payout request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build payout request")
	}
	req.Header.Set("Content-Type", "application/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "call payout processor")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read payout response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("payout processor responded %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}
	if dest != nil {
		if err := xml.Unmarshal(raw, dest); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payout response")
		}
	}
	return nil
}

// sign builds the per-request authentication key: HMAC-SHA256 over
// payer name + idap + timestamp with the master key.
func (c *Client) sign(idap, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(c.masterKey))
	mac.Write([]byte(c.payerName + idap + timestamp))
	return hex.EncodeToString(mac.Sum(nil))
}
