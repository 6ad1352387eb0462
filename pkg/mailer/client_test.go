package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	pkgerrors "github.com/tierlink/tierlink-backend/pkg/errors"
)

func TestNewClientDisabledWithoutKey(t *testing.T) {
	if client := NewClient("https://mail.example", "", "no-reply@example.com", "TierLink"); client != nil {
		t.Fatal("expected nil client without api key")
	}
	// nil client sends are no-ops
	var disabled *Client
	if err := disabled.Send(context.Background(), Message{ToEmail: "a@b.c", Subject: "x", TextBody: "y"}); err != nil {
		t.Fatalf("nil client send: %v", err)
	}
}

func TestSendPostsPayload(t *testing.T) {
	var got sendPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key-123" {
			t.Fatalf("missing auth header: %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewClient(server.URL, "key-123", "no-reply@example.com", "TierLink", WithHTTPClient(server.Client()))
	err := client.Send(context.Background(), Message{
		ToEmail:  "affiliate@example.com",
		ToName:   "Jane",
		Subject:  "Welcome aboard",
		HTMLBody: "<p>hello</p>",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.Subject != "Welcome aboard" {
		t.Fatalf("unexpected subject %q", got.Subject)
	}
	if len(got.Personalizations) != 1 || got.Personalizations[0].To[0].Email != "affiliate@example.com" {
		t.Fatalf("unexpected recipients: %+v", got.Personalizations)
	}
	if got.From.Email != "no-reply@example.com" {
		t.Fatalf("unexpected sender: %+v", got.From)
	}
}

func TestSendValidatesInput(t *testing.T) {
	client := NewClient("https://mail.example", "key", "no-reply@example.com", "TierLink")

	err := client.Send(context.Background(), Message{Subject: "x", TextBody: "y"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for missing recipient, got %v", err)
	}

	err = client.Send(context.Background(), Message{ToEmail: "a@b.c", Subject: "x"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for empty body, got %v", err)
	}
}

func TestSendSurfacesProviderFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":[{"message":"bad api key"}]}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "no-reply@example.com", "TierLink", WithHTTPClient(server.Client()))
	err := client.Send(context.Background(), Message{ToEmail: "a@b.c", Subject: "x", TextBody: "y"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
}
