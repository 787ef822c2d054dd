package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/donations-backend/pkg/enums"
)

// PaymentOutcomeEvent is emitted once per order when it reaches a terminal
// status. Downstream consumers (receipts, certificates, member activation)
// key on OrderID.
type PaymentOutcomeEvent struct {
	OrderID       string            `json:"order_id"`
	Flow          enums.PaymentFlow `json:"flow"`
	Status        enums.OrderStatus `json:"status"`
	SubjectRef    *uuid.UUID        `json:"subject_ref,omitempty"`
	Amount        decimal.Decimal   `json:"amount"`
	Currency      enums.Currency    `json:"currency"`
	ReceiptNo     *string           `json:"receipt_no,omitempty"`
	PaymentID     *string           `json:"payment_id,omitempty"`
	PaymentMethod *string           `json:"payment_method,omitempty"`
	GatewayStatus string            `json:"gateway_status"`
	CompletedAt   time.Time         `json:"completed_at"`
}
