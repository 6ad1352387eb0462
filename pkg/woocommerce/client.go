package woocommerce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/tierlink/tierlink-backend/pkg/errors"
)

const (
	defaultTimeout          = 10 * time.Second
	responseReadLimit int64 = 1 << 20
	apiPrefix               = "/wp-json/wc/v3"
)

var (
	errBaseURLRequired     = errors.New("woocommerce base url is required")
	errCredentialsRequired = errors.New("woocommerce consumer key/secret are required")
)

// Client wraps the storefront REST API used to enrich conversions.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	consumerKey    string
	consumerSecret string
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

// NewClient builds the storefront client.
func NewClient(baseURL, consumerKey, consumerSecret string, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, errBaseURLRequired
	}
	if strings.TrimSpace(consumerKey) == "" || strings.TrimSpace(consumerSecret) == "" {
		return nil, errCredentialsRequired
	}

	client := &Client{
		httpClient:     &http.Client{Timeout: defaultTimeout},
		baseURL:        base,
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Order is the subset of the storefront order payload the program reads.
type Order struct {
	ID       int64           `json:"id"`
	Status   string          `json:"status"`
	Total    string          `json:"total"`
	Currency string          `json:"currency"`
	Billing  OrderBilling    `json:"billing"`
	Coupons  []OrderCoupon   `json:"coupon_lines"`
	Meta     []OrderMetaItem `json:"meta_data"`
	Items    json.RawMessage `json:"line_items"`
}

type OrderBilling struct {
	Email string `json:"email"`
}

type OrderCoupon struct {
	Code string `json:"code"`
}

type OrderMetaItem struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// MetaString returns the string value of the named order meta key.
func (o Order) MetaString(key string) string {
	for _, item := range o.Meta {
		if !strings.EqualFold(item.Key, key) {
			continue
		}
		var value string
		if err := json.Unmarshal(item.Value, &value); err == nil {
			return value
		}
	}
	return ""
}

// GetOrder fetches a single order by its storefront id.
func (c *Client) GetOrder(ctx context.Context, orderID int64) (*Order, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "storefront client not configured")
	}
	var order Order
	path := fmt.Sprintf("%s/orders/%d", apiPrefix, orderID)
	if err := c.get(ctx, path, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// ListCoupons fetches coupon definitions (used to validate affiliate coupon codes).
func (c *Client) ListCoupons(ctx context.Context, code string) ([]OrderCoupon, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "storefront client not configured")
	}
	query := url.Values{}
	if strings.TrimSpace(code) != "" {
		query.Set("code", code)
	}
	var coupons []OrderCoupon
	if err := c.get(ctx, apiPrefix+"/coupons", query, &coupons); err != nil {
		return nil, err
	}
	return coupons, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, dest any) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("consumer_key", c.consumerKey)
	query.Set("consumer_secret", c.consumerSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build storefront request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "call storefront")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read storefront response")
	}
	if resp.StatusCode == http.StatusNotFound {
		return pkgerrors.New(pkgerrors.CodeNotFound, "storefront resource not found")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("storefront responded %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}
	if dest != nil {
		if err := json.Unmarshal(raw, dest); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode storefront response")
		}
	}
	return nil
}
