package payments

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/donations-backend/pkg/db/models"
	"github.com/angelmondragon/donations-backend/pkg/enums"
	"github.com/angelmondragon/donations-backend/pkg/pagination"
)

// Actor is the authenticated caller. A nil *Actor means a public request.
type Actor struct {
	UserID uuid.UUID
	Role   enums.MemberRole
}

// CustomerInput carries the payer details sent to the gateway.
type CustomerInput struct {
	Name  string
	Email string
	Phone string
}

// CreateOrderInput is a request to open a new payment order.
type CreateOrderInput struct {
	Flow         enums.PaymentFlow
	Actor        *Actor
	Amount       decimal.Decimal
	Customer     CustomerInput
	Purpose      string
	Note         string
	DonorAddress string
	DonorPAN     string
}

// CreateOrderResult is returned to the frontend to open gateway checkout.
type CreateOrderResult struct {
	Order        OrderView  `json:"order"`
	SessionToken string     `json:"payment_session_id"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// OrderView is the API representation of a payment order. Donor PII other
// than the name is not echoed back.
type OrderView struct {
	OrderID        string            `json:"order_id"`
	Flow           enums.PaymentFlow `json:"flow"`
	Status         enums.OrderStatus `json:"status"`
	Amount         decimal.Decimal   `json:"amount"`
	Currency       enums.Currency    `json:"currency"`
	ReceiptNo      *string           `json:"receipt_no,omitempty"`
	GatewayOrderID *string           `json:"gateway_order_id,omitempty"`
	PaymentID      *string           `json:"payment_id,omitempty"`
	PaymentMethod  *string           `json:"payment_method,omitempty"`
	CustomerName   string            `json:"customer_name"`
	Purpose        *string           `json:"purpose,omitempty"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// NewOrderView maps a stored order onto its API shape.
func NewOrderView(order *models.PaymentOrder) OrderView {
	return OrderView{
		OrderID:        order.OrderID,
		Flow:           order.Flow,
		Status:         order.Status,
		Amount:         order.Amount,
		Currency:       order.Currency,
		ReceiptNo:      order.ReceiptNo,
		GatewayOrderID: order.GatewayOrderID,
		PaymentID:      order.PaymentID,
		PaymentMethod:  order.PaymentMethod,
		CustomerName:   order.CustomerName,
		Purpose:        order.Purpose,
		CompletedAt:    order.CompletedAt,
		CreatedAt:      order.CreatedAt,
		UpdatedAt:      order.UpdatedAt,
	}
}

// OrderList wraps a page of orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderView `json:"orders"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// AdminListInput describes the admin list filters.
type AdminListInput struct {
	Flow   *enums.PaymentFlow
	Status *enums.OrderStatus
	From   *time.Time
	To     *time.Time
	// Query matches donor name or email by substring, or a receipt number
	// or order id exactly.
	Query  string
	Params pagination.Params
}

// FlowStats summarizes one flow.
type FlowStats struct {
	Flow         enums.PaymentFlow `json:"flow"`
	Pending      int64             `json:"pending"`
	Success      int64             `json:"success"`
	Failed       int64             `json:"failed"`
	SuccessTotal decimal.Decimal   `json:"success_total"`
}

// StatsResult is the admin reporting view.
type StatsResult struct {
	Flows        []FlowStats     `json:"flows"`
	SuccessTotal decimal.Decimal `json:"success_total"`
	From         *time.Time      `json:"from,omitempty"`
	To           *time.Time      `json:"to,omitempty"`
}

// SweepResult counts what one pending sweep did.
type SweepResult struct {
	Checked int
	Settled int
	Pending int
	Errored int
}
