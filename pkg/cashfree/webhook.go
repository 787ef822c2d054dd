package cashfree

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/donations-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/donations-backend/pkg/errors"
)

const (
	HeaderWebhookSignature = "x-webhook-signature"
	HeaderWebhookTimestamp = "x-webhook-timestamp"

	// timestamps above this are epoch milliseconds
	millisecondThreshold = int64(1_000_000_000_000)
)

// VerifyWebhookSignature checks base64(HMAC-SHA256(secret, timestamp+body))
// against signature in constant time. Malformed input yields false.
func (c *Client) VerifyWebhookSignature(rawBody []byte, timestamp, signature string) bool {
	if c == nil || c.signingSecret == "" {
		return false
	}
	if !c.withinTolerance(timestamp) {
		return false
	}
	return VerifySignature(c.signingSecret, rawBody, timestamp, signature)
}

// VerifySignature is the stateless form of VerifyWebhookSignature.
func VerifySignature(secret string, rawBody []byte, timestamp, signature string) bool {
	timestamp = strings.TrimSpace(timestamp)
	signature = strings.TrimSpace(signature)
	if secret == "" || timestamp == "" || signature == "" {
		return false
	}
	provided, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(provided) != sha256.Size {
		return false
	}
	return hmac.Equal(provided, computeMAC(secret, rawBody, timestamp))
}

// Sign produces the signature header value for a payload.
func Sign(secret string, rawBody []byte, timestamp string) string {
	return base64.StdEncoding.EncodeToString(computeMAC(secret, rawBody, timestamp))
}

func computeMAC(secret string, rawBody []byte, timestamp string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(rawBody)
	return mac.Sum(nil)
}

func (c *Client) withinTolerance(timestamp string) bool {
	if c.webhookTolerance <= 0 {
		return true
	}
	raw, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil || raw <= 0 {
		return false
	}
	var sent time.Time
	if raw >= millisecondThreshold {
		sent = time.UnixMilli(raw)
	} else {
		sent = time.Unix(raw, 0)
	}
	skew := c.now().Sub(sent)
	if skew < 0 {
		skew = -skew
	}
	return skew <= c.webhookTolerance
}

// WebhookEvent is the subset of the payment webhook payload we act on.
type WebhookEvent struct {
	Type      string `json:"type"`
	EventTime string `json:"event_time"`
	Data      struct {
		Order struct {
			OrderID     string      `json:"order_id"`
			OrderAmount json.Number `json:"order_amount"`
			OrderStatus string      `json:"order_status"`
		} `json:"order"`
		Payment struct {
			CFPaymentID   FlexibleID  `json:"cf_payment_id"`
			PaymentStatus string      `json:"payment_status"`
			PaymentGroup  string      `json:"payment_group"`
			PaymentAmount json.Number `json:"payment_amount"`
		} `json:"payment"`
	} `json:"data"`
}

// OrderID returns the merchant order id the event refers to.
func (e *WebhookEvent) OrderID() string {
	return strings.TrimSpace(e.Data.Order.OrderID)
}

// PaymentID returns the gateway payment id, if present.
func (e *WebhookEvent) PaymentID() string {
	return strings.TrimSpace(e.Data.Payment.CFPaymentID.String())
}

// PaymentMethod returns the payment group (upi, card, ...), if present.
func (e *WebhookEvent) PaymentMethod() string {
	return strings.ToLower(strings.TrimSpace(e.Data.Payment.PaymentGroup))
}

// Status is the order outcome carried by the event. A failed or dropped
// attempt leaves the order ACTIVE for another try, so only a successful
// attempt or the order status itself settles it.
func (e *WebhookEvent) Status() enums.GatewayStatus {
	if MapPaymentStatus(e.Data.Payment.PaymentStatus) == enums.GatewayStatusPaid {
		return enums.GatewayStatusPaid
	}
	if strings.TrimSpace(e.Data.Order.OrderStatus) == "" {
		return enums.GatewayStatusPending
	}
	return MapOrderStatus(e.Data.Order.OrderStatus)
}

// RawStatus is the most specific status string in the event: the attempt's
// payment_status when present, otherwise the order_status.
func (e *WebhookEvent) RawStatus() string {
	if s := strings.TrimSpace(e.Data.Payment.PaymentStatus); s != "" {
		return strings.ToUpper(s)
	}
	return strings.ToUpper(strings.TrimSpace(e.Data.Order.OrderStatus))
}

// ParseWebhook decodes a verified webhook body.
func ParseWebhook(rawBody []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload")
	}
	if event.OrderID() == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook payload missing order id")
	}
	if event.RawStatus() == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook payload missing status")
	}
	return &event, nil
}
