package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/vendcare-backend/api/responses"
	"github.com/angelmondragon/vendcare-backend/internal/checkout"
	pkgerrors "github.com/angelmondragon/vendcare-backend/pkg/errors"
	"github.com/angelmondragon/vendcare-backend/pkg/logger"
	"github.com/angelmondragon/vendcare-backend/pkg/outbox/idempotency"
)

const (
	SignatureHeader = "X-Signature"
	consumerName    = "payments-webhook"
	maxPayloadBytes = 64 << 10
)

// PaymentNotifier reconciles a checkout session after a broker callback.
type PaymentNotifier interface {
	HandleWebhook(ctx context.Context, merchantOrderID string) (*checkout.Result, error)
}

type deliveryGuard interface {
	Begin(ctx context.Context, consumer, deliveryID string) (idempotency.Status, error)
	Complete(ctx context.Context, consumer, deliveryID string) error
	Release(ctx context.Context, consumer, deliveryID string) error
}

type paymentEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Payload struct {
		MerchantOrderID string `json:"merchant_order_id"`
		State           string `json:"state"`
	} `json:"payload"`
}

// PaymentsWebhook verifies a broker callback and reconciles the session it names. The
// callback only triggers a status check; its state field is never trusted on its own.
func PaymentsWebhook(svc PaymentNotifier, secret string, guard deliveryGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		if strings.TrimSpace(secret) == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook secret not configured"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := strings.TrimSpace(r.Header.Get(SignatureHeader))
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "signature missing"))
			return
		}
		if !ValidSignature(payload, signature, secret) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "signature mismatch"))
			return
		}

		var event paymentEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload"))
			return
		}
		merchantOrderID := strings.TrimSpace(event.Payload.MerchantOrderID)
		if merchantOrderID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "merchant_order_id is required"))
			return
		}

		deliveryID := strings.TrimSpace(event.ID)
		if deliveryID == "" {
			deliveryID = Sign(payload, "")
		}

		status, err := guard.Begin(ctx, consumerName, deliveryID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		switch status {
		case idempotency.Done:
			responses.WriteSuccess(w, nil)
			return
		case idempotency.InFlight:
			// a non-2xx makes the broker redeliver once the first handler finishes
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "delivery already in progress"))
			return
		}

		result, err := svc.HandleWebhook(ctx, merchantOrderID)
		if err != nil {
			_ = guard.Release(context.WithoutCancel(ctx), consumerName, deliveryID)
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if result.Status == checkout.ResultPending {
			// the broker will call again; let that delivery through
			_ = guard.Release(ctx, consumerName, deliveryID)
		} else if err := guard.Complete(ctx, consumerName, deliveryID); err != nil && logg != nil {
			logg.Error(logg.WithField(ctx, "delivery_id", deliveryID), "failed to record webhook delivery", err)
		}

		if logg != nil {
			logCtx := logg.WithFields(ctx, map[string]any{
				"merchant_order_id": merchantOrderID,
				"delivery_id":       deliveryID,
				"result":            string(result.Status),
			})
			logg.Info(logCtx, "payment webhook processed")
		}
		responses.WriteSuccess(w, map[string]any{
			"session_id": result.SessionID,
			"status":     result.Status,
		})
	}
}

// Sign returns the hex HMAC-SHA256 of payload. An empty secret yields a plain digest.
func Sign(payload []byte, secret string) string {
	if secret == "" {
		sum := sha256.Sum256(payload)
		return hex.EncodeToString(sum[:])
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func ValidSignature(payload []byte, signature, secret string) bool {
	provided, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(signature), "sha256="))
	if err != nil {
		return false
	}
	expected, _ := hex.DecodeString(Sign(payload, secret))
	return hmac.Equal(provided, expected)
}
