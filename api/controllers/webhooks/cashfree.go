package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/donations-backend/api/responses"
	cashfreewebhook "github.com/angelmondragon/donations-backend/internal/webhooks/cashfree"
	"github.com/angelmondragon/donations-backend/pkg/cashfree"
	pkgerrors "github.com/angelmondragon/donations-backend/pkg/errors"
	"github.com/angelmondragon/donations-backend/pkg/logger"
)

const maxWebhookBodyBytes = 1 << 20

type CashfreeWebhookService interface {
	HandleEvent(ctx context.Context, event *cashfree.WebhookEvent) (cashfreewebhook.Result, error)
}

type SignatureVerifier interface {
	VerifyWebhookSignature(rawBody []byte, timestamp, signature string) bool
}

type webhookMetrics interface {
	IncWebhook(result string)
}

// CashfreeWebhook receives payment notifications. The signature is checked
// against the raw body before anything is decoded. Once a delivery is
// verified and well formed it is acknowledged with 200 whatever the
// reconcile outcome, so the gateway does not retry-storm a transient fault.
func CashfreeWebhook(svc CashfreeWebhookService, verifier SignatureVerifier, m webhookMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cashfree client unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		timestamp := r.Header.Get(cashfree.HeaderWebhookTimestamp)
		signature := r.Header.Get(cashfree.HeaderWebhookSignature)
		if !verifier.VerifyWebhookSignature(payload, timestamp, signature) {
			incWebhook(m, "invalid_signature")
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeSignature, "invalid webhook signature"))
			return
		}

		event, err := cashfree.ParseWebhook(payload)
		if err != nil {
			incWebhook(m, "malformed")
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.HandleEvent(ctx, event)
		if err != nil {
			incWebhook(m, "error")
			if logg != nil {
				logg.Error(logg.WithOrderID(ctx, event.OrderID()), "cashfree webhook reconcile failed", err)
			}
			responses.WriteSuccess(w, map[string]string{"status": "accepted"})
			return
		}

		incWebhook(m, string(result))
		responses.WriteSuccess(w, map[string]string{"status": string(result)})
	}
}

func incWebhook(m webhookMetrics, result string) {
	if m != nil {
		m.IncWebhook(result)
	}
}
