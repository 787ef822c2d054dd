package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/donations-backend/pkg/db/models"
	"github.com/angelmondragon/donations-backend/pkg/enums"
	"github.com/angelmondragon/donations-backend/pkg/pagination"
)

// ErrOrderNotFound is returned by lookups for unknown order ids.
var ErrOrderNotFound = errors.New("payment order not found")

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// Repository exposes persistence helpers for payment orders. Status changes
// go exclusively through Transition.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.PaymentOrder) error
	FindByOrderID(ctx context.Context, orderID string) (*models.PaymentOrder, error)
	AttachGatewayOrder(ctx context.Context, orderID, gatewayOrderID, sessionID string) error
	Transition(ctx context.Context, t Transition) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]models.PaymentOrder, *pagination.Cursor, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentOrder, error)
	MarkChecked(ctx context.Context, orderID string, at time.Time) error
	Delete(ctx context.Context, orderID string) (bool, error)
	Stats(ctx context.Context, filter StatsFilter) ([]StatsRow, error)
}

// Transition moves a pending order into a terminal status.
type Transition struct {
	OrderID       string
	To            enums.OrderStatus
	ReceiptNo     *string
	PaymentID     *string
	PaymentMethod *string
	GatewayStatus string
	At            time.Time
}

// ListFilter narrows List. Zero values mean "any".
type ListFilter struct {
	Subject *uuid.UUID
	Flow    *enums.PaymentFlow
	Status  *enums.OrderStatus
	From    *time.Time
	To      *time.Time
	Query   string
	Limit   int
	Cursor  *pagination.Cursor
}

// StatsFilter bounds Stats by creation time.
type StatsFilter struct {
	From *time.Time
	To   *time.Time
}

// StatsRow is one (flow, status) aggregate.
type StatsRow struct {
	Flow   enums.PaymentFlow `gorm:"column:flow"`
	Status enums.OrderStatus `gorm:"column:status"`
	Count  int64             `gorm:"column:order_count"`
	Total  decimal.Decimal   `gorm:"column:total_amount"`
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a payment order repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, order *models.PaymentOrder) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.UpdatedAt = order.CreatedAt
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repositoryImpl) FindByOrderID(ctx context.Context, orderID string) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// AttachGatewayOrder records gateway correlation ids while the order is
// still pending; a settled order is left untouched.
func (r *repositoryImpl) AttachGatewayOrder(ctx context.Context, orderID, gatewayOrderID, sessionID string) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentOrder{}).
		Where("order_id = ? AND status = ?", orderID, enums.OrderStatusPending).
		UpdateColumns(map[string]any{
			"gateway_order_id":   nullableString(gatewayOrderID),
			"payment_session_id": nullableString(sessionID),
			"updated_at":         time.Now().UTC(),
		}).Error
}

// Transition applies t with a single conditional UPDATE guarded by
// status = pending. It reports whether this call performed the transition.
func (r *repositoryImpl) Transition(ctx context.Context, t Transition) (bool, error) {
	if !t.To.IsTerminal() {
		return false, errors.New("transition target must be terminal")
	}
	if (t.To == enums.OrderStatusSuccess) != (t.ReceiptNo != nil) {
		return false, errors.New("receipt number is required for success and forbidden otherwise")
	}
	at := t.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	updates := map[string]any{
		"status":       t.To,
		"completed_at": at,
		"updated_at":   at,
	}
	if t.ReceiptNo != nil {
		updates["receipt_no"] = *t.ReceiptNo
	}
	if t.PaymentID != nil {
		updates["payment_id"] = *t.PaymentID
	}
	if t.PaymentMethod != nil {
		updates["payment_method"] = *t.PaymentMethod
	}
	if t.GatewayStatus != "" {
		updates["gateway_status"] = t.GatewayStatus
	}

	result := r.db.WithContext(ctx).
		Model(&models.PaymentOrder{}).
		Where("order_id = ? AND status = ?", t.OrderID, enums.OrderStatusPending).
		UpdateColumns(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repositoryImpl) List(ctx context.Context, filter ListFilter) ([]models.PaymentOrder, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.PaymentOrder{})
	if filter.Subject != nil {
		query = query.Where("subject_ref = ?", *filter.Subject)
	}
	if filter.Flow != nil {
		query = query.Where("flow = ?", *filter.Flow)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("created_at < ?", filter.To.UTC())
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		like := "%" + likeEscaper.Replace(strings.ToLower(q)) + "%"
		query = query.Where(
			`LOWER(customer_name) LIKE ? ESCAPE '\' OR LOWER(customer_email) LIKE ? ESCAPE '\' OR receipt_no = ? OR order_id = ?`,
			like, like, strings.ToUpper(q), q,
		)
	}
	if filter.Cursor != nil {
		createdAt := filter.Cursor.CreatedAt.UTC()
		query = query.Where("created_at < ? OR (created_at = ? AND id < ?)", createdAt, createdAt, filter.Cursor.ID)
	}

	var orders []models.PaymentOrder
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(filter.Limit)).Find(&orders).Error; err != nil {
		return nil, nil, err
	}

	orders, next := pagination.Trim(orders, filter.Limit, func(o models.PaymentOrder) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return orders, next, nil
}

// ListPendingBefore returns pending orders created before cutoff, never
// checked ones first and then the least recently checked.
func (r *repositoryImpl) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentOrder, error) {
	if limit <= 0 {
		limit = pagination.MaxLimit
	}
	var orders []models.PaymentOrder
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.OrderStatusPending, cutoff.UTC()).
		Order("last_checked_at IS NOT NULL, last_checked_at ASC, created_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

// MarkChecked stamps a sweep visit so the next batch starts with orders
// that have waited longest for a check.
func (r *repositoryImpl) MarkChecked(ctx context.Context, orderID string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentOrder{}).
		Where("order_id = ? AND status = ?", orderID, enums.OrderStatusPending).
		UpdateColumn("last_checked_at", at.UTC()).Error
}

func (r *repositoryImpl) Delete(ctx context.Context, orderID string) (bool, error) {
	result := r.db.WithContext(ctx).Where("order_id = ?", orderID).Delete(&models.PaymentOrder{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) Stats(ctx context.Context, filter StatsFilter) ([]StatsRow, error) {
	query := r.db.WithContext(ctx).
		Model(&models.PaymentOrder{}).
		Select("flow, status, COUNT(*) AS order_count, COALESCE(SUM(amount), 0) AS total_amount")
	if filter.From != nil {
		query = query.Where("created_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("created_at < ?", filter.To.UTC())
	}
	var rows []StatsRow
	if err := query.Group("flow, status").Order("flow, status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func nullableString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
