package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/donations-backend/pkg/enums"
)

// PaymentOrder is one attempted payment. Status leaves pending exactly once
// and ReceiptNo is set in the same statement that moves it to success.
type PaymentOrder struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          string            `gorm:"column:order_id;not null;uniqueIndex"`
	Flow             enums.PaymentFlow `gorm:"column:flow;not null"`
	SubjectRef       *uuid.UUID        `gorm:"column:subject_ref;type:uuid"`
	Amount           decimal.Decimal   `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency         enums.Currency    `gorm:"column:currency;not null"`
	Status           enums.OrderStatus `gorm:"column:status;not null"`
	ReceiptNo        *string           `gorm:"column:receipt_no;uniqueIndex"`
	GatewayOrderID   *string           `gorm:"column:gateway_order_id"`
	PaymentSessionID *string           `gorm:"column:payment_session_id"`
	PaymentID        *string           `gorm:"column:payment_id"`
	PaymentMethod    *string           `gorm:"column:payment_method"`
	GatewayStatus    *string           `gorm:"column:gateway_status"`
	CustomerName     string            `gorm:"column:customer_name;not null"`
	CustomerEmail    string            `gorm:"column:customer_email;not null"`
	CustomerPhone    string            `gorm:"column:customer_phone;not null"`
	Purpose          *string           `gorm:"column:purpose"`
	Note             *string           `gorm:"column:note"`
	DonorAddress     *string           `gorm:"column:donor_address"`
	DonorPAN         *string           `gorm:"column:donor_pan"`
	CompletedAt      *time.Time        `gorm:"column:completed_at"`
	LastCheckedAt    *time.Time        `gorm:"column:last_checked_at"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentOrder) TableName() string {
	return "payment_orders"
}
