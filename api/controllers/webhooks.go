package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tierlink/tierlink-backend/api/responses"
	"github.com/tierlink/tierlink-backend/internal/payouts"
	woowebhook "github.com/tierlink/tierlink-backend/internal/webhooks/woocommerce"
	pkgerrors "github.com/tierlink/tierlink-backend/pkg/errors"
	"github.com/tierlink/tierlink-backend/pkg/logger"
	"github.com/tierlink/tierlink-backend/pkg/metrics"
	"github.com/tierlink/tierlink-backend/pkg/woocommerce"
)

const (
	wooSignatureHeader = "X-WC-Webhook-Signature"
	wooDeliveryHeader  = "X-WC-Webhook-Delivery-ID"
)

// maxWebhookBody caps webhook payload reads at 1 MiB.
const maxWebhookBody = 1 << 20

// deliveryDedupTTL is how long a webhook delivery id is remembered.
const deliveryDedupTTL = 24 * time.Hour

// deliveryGuard remembers webhook delivery ids so a duplicate delivery is
// acknowledged without reprocessing. Backed by redis SetNX.
type deliveryGuard interface {
	IdempotencyKey(scope, id string) string
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
}

// WooCommerceWebhook verifies the delivery signature and hands the order
// event to the webhook service. Internal processing failures are logged and
// still acknowledged so the store does not retry forever; only signature
// mismatches are rejected.
func WooCommerceWebhook(svc *woowebhook.Service, secret string, guard deliveryGuard, hooks *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read webhook body"))
			return
		}

		if !woowebhook.VerifySignature(secret, body, r.Header.Get(wooSignatureHeader)) {
			if logg != nil {
				logg.Warn(ctx, "rejected woocommerce webhook with bad signature")
			}
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		if deliveryID := strings.TrimSpace(r.Header.Get(wooDeliveryHeader)); guard != nil && deliveryID != "" {
			fresh, err := guard.SetNX(ctx, guard.IdempotencyKey("woocommerce", deliveryID), 1, deliveryDedupTTL)
			if err != nil {
				// guard failure falls through to the DB upsert, which is
				// itself idempotent on the order id
				if logg != nil {
					logg.Error(ctx, "webhook delivery dedup check failed", err)
				}
			} else if !fresh {
				if hooks != nil {
					hooks.Inc("woocommerce", "duplicate")
				}
				responses.WriteWebhookAck(w)
				return
			}
		}

		var order woocommerce.Order
		if err := json.Unmarshal(body, &order); err != nil {
			if logg != nil {
				logg.Error(ctx, "failed to decode woocommerce order payload", err)
			}
			if hooks != nil {
				hooks.Inc("woocommerce", "invalid")
			}
			responses.WriteWebhookAck(w)
			return
		}

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		outcome, err := svc.HandleOrder(ctx, &order)
		if err != nil && logg != nil {
			orderCtx := logg.WithOrderID(ctx, strconv.FormatInt(order.ID, 10))
			logg.Error(orderCtx, "failed to process woocommerce order event", err)
		}
		if hooks != nil {
			hooks.Inc("woocommerce", string(outcome))
		}

		responses.WriteWebhookAck(w)
	}
}

type tipaltiCallback struct {
	RefCode string `json:"refCode"`
	Status  string `json:"status"`
}

// TipaltiWebhook applies a payout processor status callback. Tipalti posts
// form-encoded IPNs; JSON bodies are accepted too for manual replays.
// Unknown reference codes are acknowledged without effect.
func TipaltiWebhook(svc payouts.Service, hooks *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		refCode, status := parseTipaltiCallback(r)
		if refCode == "" || status == "" {
			if logg != nil {
				logg.Warn(ctx, "tipalti callback missing refCode or status")
			}
			if hooks != nil {
				hooks.Inc("tipalti", "invalid")
			}
			responses.WriteWebhookAck(w)
			return
		}

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}

		matched, err := svc.ApplyProcessorStatus(ctx, refCode, status)
		outcome := "applied"
		switch {
		case err != nil:
			outcome = "failed"
			if logg != nil {
				logg.Error(logg.WithField(ctx, "ref_code", refCode), "failed to apply payout processor status", err)
			}
		case !matched:
			outcome = "unmatched"
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "ref_code", refCode), "tipalti callback for unknown payout reference")
			}
		}
		if hooks != nil {
			hooks.Inc("tipalti", outcome)
		}

		responses.WriteWebhookAck(w)
	}
}

func parseTipaltiCallback(r *http.Request) (refCode, status string) {
	contentType := r.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		var payload tipaltiCallback
		if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody)).Decode(&payload); err != nil {
			return "", ""
		}
		return strings.TrimSpace(payload.RefCode), strings.TrimSpace(strings.ToLower(payload.Status))
	}

	if err := r.ParseForm(); err != nil {
		return "", ""
	}
	refCode = strings.TrimSpace(r.PostFormValue("refcode"))
	if refCode == "" {
		refCode = strings.TrimSpace(r.PostFormValue("ref_code"))
	}
	status = strings.TrimSpace(strings.ToLower(r.PostFormValue("status")))
	return refCode, status
}
