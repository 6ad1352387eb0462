// Package mailer sends transactional email through a JSON mail API.
// Sends are best effort: callers log failures and continue.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/tierlink/tierlink-backend/pkg/errors"
)

const (
	defaultSendPath = "/v3/mail/send"
	defaultTimeout  = 10 * time.Second
)

// Client posts messages to the configured mail provider.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	fromEmail  string
	fromName   string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient builds a mail client. A client with an empty API key is
// returned as nil so callers can treat mail as disabled.
func NewClient(baseURL, apiKey, fromEmail, fromName string, opts ...Option) *Client {
	if strings.TrimSpace(apiKey) == "" {
		return nil
	}
	client := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		fromEmail:  fromEmail,
		fromName:   fromName,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

// Message is a single transactional email.
type Message struct {
	ToEmail  string
	ToName   string
	Subject  string
	HTMLBody string
	TextBody string
}

type sendPayload struct {
	Personalizations []personalization `json:"personalizations"`
	From             address           `json:"from"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
}

type personalization struct {
	To []address `json:"to"`
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Send delivers one message. A nil client is a no-op.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if c == nil {
		return nil
	}
	if strings.TrimSpace(msg.ToEmail) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient email is required")
	}

	payload := sendPayload{
		Personalizations: []personalization{{To: []address{{Email: msg.ToEmail, Name: msg.ToName}}}},
		From:             address{Email: c.fromEmail, Name: c.fromName},
		Subject:          msg.Subject,
	}
	if msg.TextBody != "" {
		payload.Content = append(payload.Content, content{Type: "text/plain", Value: msg.TextBody})
	}
	if msg.HTMLBody != "" {
		payload.Content = append(payload.Content, content{Type: "text/html", Value: msg.HTMLBody})
	}
	if len(payload.Content) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "message body is required")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode mail payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+defaultSendPath, bytes.NewReader(body))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build mail request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mail provider unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("mail provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))))
	}
	return nil
}
