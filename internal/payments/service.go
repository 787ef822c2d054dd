package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/angelmondragon/donations-backend/pkg/cashfree"
	"github.com/angelmondragon/donations-backend/pkg/config"
	"github.com/angelmondragon/donations-backend/pkg/db/models"
	"github.com/angelmondragon/donations-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/donations-backend/pkg/errors"
	"github.com/angelmondragon/donations-backend/pkg/logger"
	"github.com/angelmondragon/donations-backend/pkg/metrics"
	"github.com/angelmondragon/donations-backend/pkg/pagination"
)

// gatewayOrderMissing is recorded as the gateway status of orders the
// gateway answered 404 for.
const gatewayOrderMissing = "NOT_FOUND"

// Gateway is the subset of the Cashfree client the service depends on.
type Gateway interface {
	CreateOrder(ctx context.Context, params cashfree.CreateOrderParams) (*cashfree.CreateOrderResult, error)
	GetOrderStatus(ctx context.Context, orderID string) (enums.GatewayStatus, error)
}

// Service exposes payment order operations to the HTTP layer and workers.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error)
	Verify(ctx context.Context, orderID string, actor *Actor) (*OrderView, error)
	Get(ctx context.Context, orderID string, actor *Actor) (*OrderView, error)
	ApplyWebhook(ctx context.Context, orderID string, obs Observation) (*OrderView, error)
	ListMine(ctx context.Context, actor *Actor, params pagination.Params) (*OrderList, error)
	AdminList(ctx context.Context, input AdminListInput) (*OrderList, error)
	AdminDelete(ctx context.Context, orderID string) error
	Stats(ctx context.Context, filter StatsFilter) (*StatsResult, error)
	SweepPending(ctx context.Context, cutoff time.Time, limit int) (SweepResult, error)
}

// ServiceConfig holds the amount rules and callback URLs.
type ServiceConfig struct {
	MinAmount       decimal.Decimal
	MaxAmount       decimal.Decimal
	RegistrationFee decimal.Decimal
	ReturnURL       string
	NotifyURL       string
}

// NewServiceConfig parses the configured amounts.
func NewServiceConfig(payments config.PaymentsConfig, callbacks config.CallbacksConfig) (ServiceConfig, error) {
	minAmount, err := decimal.NewFromString(payments.MinAmount)
	if err != nil {
		return ServiceConfig{}, fmt.Errorf("parse min amount: %w", err)
	}
	maxAmount, err := decimal.NewFromString(payments.MaxAmount)
	if err != nil {
		return ServiceConfig{}, fmt.Errorf("parse max amount: %w", err)
	}
	fee, err := decimal.NewFromString(payments.RegistrationFee)
	if err != nil {
		return ServiceConfig{}, fmt.Errorf("parse registration fee: %w", err)
	}
	if maxAmount.LessThan(minAmount) {
		return ServiceConfig{}, fmt.Errorf("max amount %s below min amount %s", maxAmount, minAmount)
	}
	return ServiceConfig{
		MinAmount:       minAmount,
		MaxAmount:       maxAmount,
		RegistrationFee: fee,
		ReturnURL:       callbacks.ReturnURL(),
		NotifyURL:       callbacks.NotifyURL(),
	}, nil
}

type service struct {
	repo    Repository
	engine  *Engine
	gateway Gateway
	logg    *logger.Logger
	metrics *metrics.PaymentMetrics
	cfg     ServiceConfig
}

func NewService(repo Repository, engine *Engine, gateway Gateway, logg *logger.Logger, m *metrics.PaymentMetrics, cfg ServiceConfig) Service {
	return &service{
		repo:    repo,
		engine:  engine,
		gateway: gateway,
		logg:    logg,
		metrics: m,
		cfg:     cfg,
	}
}

// Create persists a pending order and only then opens the gateway order, so
// the order id exists locally before any external call. A gateway failure
// leaves the record pending and is reported as a dependency error.
func (s *service) Create(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	policy, err := PolicyFor(input.Flow)
	if err != nil {
		return nil, err
	}
	subject, err := subjectFor(policy, input.Actor)
	if err != nil {
		return nil, err
	}
	amount, err := s.resolveAmount(policy, input.Amount)
	if err != nil {
		return nil, err
	}

	orderID, err := policy.NewOrderID(subject)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order id")
	}
	ctx = s.logg.WithOrderID(ctx, orderID)

	order := &models.PaymentOrder{
		OrderID:       orderID,
		Flow:          policy.Flow,
		SubjectRef:    subject,
		Amount:        amount,
		Currency:      enums.CurrencyINR,
		Status:        enums.OrderStatusPending,
		CustomerName:  strings.TrimSpace(input.Customer.Name),
		CustomerEmail: strings.ToLower(strings.TrimSpace(input.Customer.Email)),
		CustomerPhone: strings.TrimSpace(input.Customer.Phone),
		Purpose:       nullableString(strings.TrimSpace(input.Purpose)),
		Note:          nullableString(strings.TrimSpace(input.Note)),
		DonorAddress:  nullableString(strings.TrimSpace(input.DonorAddress)),
		DonorPAN:      nullableString(strings.ToUpper(strings.TrimSpace(input.DonorPAN))),
	}
	if err := s.repo.Create(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment order")
	}

	orderNote := policy.Description
	if order.Note != nil {
		orderNote = *order.Note
	}
	result, err := s.gateway.CreateOrder(ctx, cashfree.CreateOrderParams{
		OrderID:  orderID,
		Amount:   amount,
		Currency: enums.CurrencyINR,
		Customer: cashfree.Customer{
			ID:    gatewayCustomerID(orderID),
			Name:  order.CustomerName,
			Email: order.CustomerEmail,
			Phone: order.CustomerPhone,
		},
		ReturnURL: s.cfg.ReturnURL,
		NotifyURL: s.cfg.NotifyURL,
		Note:      orderNote,
	})
	if err != nil {
		s.metrics.IncCreated(policy.Flow.String(), "gateway_error")
		s.logg.Error(ctx, "gateway create order failed; order left pending", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment gateway unavailable, please retry").
			WithDetails(map[string]any{
				"orderId": orderID,
				"status":  enums.OrderStatusPending,
			})
	}

	if err := s.repo.AttachGatewayOrder(ctx, orderID, result.GatewayOrderID, result.SessionToken); err != nil {
		// The session token is still returned; the ids are only for correlation.
		s.logg.Error(ctx, "attach gateway order ids failed", err)
	} else {
		order.GatewayOrderID = nullableString(result.GatewayOrderID)
		order.PaymentSessionID = nullableString(result.SessionToken)
	}
	s.metrics.IncCreated(policy.Flow.String(), "created")
	s.logg.Info(ctx, "payment order created")

	return &CreateOrderResult{
		Order:        NewOrderView(order),
		SessionToken: result.SessionToken,
		ExpiresAt:    result.ExpiresAt,
	}, nil
}

// Verify resolves a pending order against the gateway. A terminal order is
// returned without a gateway call, and a gateway failure falls back to the
// local record.
func (s *service) Verify(ctx context.Context, orderID string, actor *Actor) (*OrderView, error) {
	order, err := s.load(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() {
		view := NewOrderView(order)
		return &view, nil
	}

	ctx = s.logg.WithOrderID(ctx, order.OrderID)
	status, err := s.gateway.GetOrderStatus(ctx, order.OrderID)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "gateway status check failed; returning local status")
		view := NewOrderView(order)
		return &view, nil
	}

	updated, err := s.engine.Reconcile(ctx, order.OrderID, Observation{Status: status, Source: SourceVerify})
	if err != nil {
		return nil, err
	}
	view := NewOrderView(updated)
	return &view, nil
}

func (s *service) Get(ctx context.Context, orderID string, actor *Actor) (*OrderView, error) {
	order, err := s.load(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	view := NewOrderView(order)
	return &view, nil
}

// ApplyWebhook feeds a signature-verified webhook observation to the engine.
func (s *service) ApplyWebhook(ctx context.Context, orderID string, obs Observation) (*OrderView, error) {
	if _, err := ParseOrderID(orderID); err != nil {
		return nil, errOrderNotFound()
	}
	obs.Source = SourceWebhook
	order, err := s.engine.Reconcile(ctx, orderID, obs)
	if err != nil {
		return nil, err
	}
	view := NewOrderView(order)
	return &view, nil
}

func (s *service) ListMine(ctx context.Context, actor *Actor, params pagination.Params) (*OrderList, error) {
	if actor == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	subject := actor.UserID
	orders, next, err := s.repo.List(ctx, ListFilter{Subject: &subject, Limit: params.Limit, Cursor: cursor})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payment orders")
	}
	return buildOrderList(orders, next), nil
}

func (s *service) AdminList(ctx context.Context, input AdminListInput) (*OrderList, error) {
	cursor, err := pagination.ParseCursor(input.Params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if input.From != nil && input.To != nil && !input.From.Before(*input.To) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "from must be before to")
	}
	orders, next, err := s.repo.List(ctx, ListFilter{
		Flow:   input.Flow,
		Status: input.Status,
		From:   input.From,
		To:     input.To,
		Query:  input.Query,
		Limit:  input.Params.Limit,
		Cursor: cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payment orders")
	}
	return buildOrderList(orders, next), nil
}

// AdminDelete removes an order record. This is the only deletion path.
func (s *service) AdminDelete(ctx context.Context, orderID string) error {
	if _, err := ParseOrderID(orderID); err != nil {
		return errOrderNotFound()
	}
	deleted, err := s.repo.Delete(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete payment order")
	}
	if !deleted {
		return errOrderNotFound()
	}
	s.logg.Info(s.logg.WithOrderID(ctx, orderID), "payment order deleted by admin")
	return nil
}

func (s *service) Stats(ctx context.Context, filter StatsFilter) (*StatsResult, error) {
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "from must be before to")
	}
	rows, err := s.repo.Stats(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment stats")
	}

	byFlow := map[enums.PaymentFlow]*FlowStats{}
	result := &StatsResult{From: filter.From, To: filter.To, SuccessTotal: decimal.Zero}
	for _, flow := range []enums.PaymentFlow{
		enums.PaymentFlowRegistration,
		enums.PaymentFlowMemberDonation,
		enums.PaymentFlowVisitorDonation,
	} {
		byFlow[flow] = &FlowStats{Flow: flow, SuccessTotal: decimal.Zero}
	}
	for _, row := range rows {
		stats, ok := byFlow[row.Flow]
		if !ok {
			continue
		}
		switch row.Status {
		case enums.OrderStatusPending:
			stats.Pending += row.Count
		case enums.OrderStatusSuccess:
			stats.Success += row.Count
			stats.SuccessTotal = stats.SuccessTotal.Add(row.Total)
			result.SuccessTotal = result.SuccessTotal.Add(row.Total)
		case enums.OrderStatusFailed:
			stats.Failed += row.Count
		}
	}
	for _, flow := range []enums.PaymentFlow{
		enums.PaymentFlowRegistration,
		enums.PaymentFlowMemberDonation,
		enums.PaymentFlowVisitorDonation,
	} {
		result.Flows = append(result.Flows, *byFlow[flow])
	}
	return result, nil
}

// SweepPending re-checks pending orders created before cutoff. Every visit
// is stamped so a batch of orders that keep erroring cannot starve newer
// ones. Gateway failures leave the order pending and are collected into the
// returned error; the sweep carries on with the rest of the batch. An order
// the gateway has never heard of can no longer be paid and is failed.
func (s *service) SweepPending(ctx context.Context, cutoff time.Time, limit int) (SweepResult, error) {
	var result SweepResult
	orders, err := s.repo.ListPendingBefore(ctx, cutoff, limit)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list pending orders")
	}

	var errs error
	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			return result, multierr.Append(errs, err)
		}
		result.Checked++
		if err := s.repo.MarkChecked(ctx, order.OrderID, time.Now()); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("order %s: mark checked: %w", order.OrderID, err))
		}
		obs := Observation{Source: SourceSweep}
		status, err := s.gateway.GetOrderStatus(ctx, order.OrderID)
		switch {
		case err == nil:
			obs.Status = status
		case cashfree.IsOrderNotFound(err):
			obs.Status = enums.GatewayStatusFailed
			obs.RawStatus = gatewayOrderMissing
		default:
			result.Errored++
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.OrderID, err))
			continue
		}
		updated, err := s.engine.Reconcile(ctx, order.OrderID, obs)
		if err != nil {
			result.Errored++
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.OrderID, err))
			continue
		}
		if updated.Status.IsTerminal() {
			result.Settled++
		} else {
			result.Pending++
		}
	}
	return result, errs
}

// load fetches an order and applies read access rules: public callers see
// only visitor orders, members see their own, staff see everything.
func (s *service) load(ctx context.Context, orderID string, actor *Actor) (*models.PaymentOrder, error) {
	parsed, err := ParseOrderID(orderID)
	if err != nil {
		return nil, errOrderNotFound()
	}
	if actor == nil && !parsed.Policy.Public {
		return nil, errOrderNotFound()
	}
	order, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, errOrderNotFound()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment order")
	}
	if err := authorize(order, actor); err != nil {
		return nil, err
	}
	return order, nil
}

// errOrderNotFound is the single answer for ids that are malformed, unknown
// or hidden from the caller.
func errOrderNotFound() error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "payment order not found")
}

func authorize(order *models.PaymentOrder, actor *Actor) error {
	if actor == nil {
		policy, err := PolicyFor(order.Flow)
		if err != nil || !policy.Public {
			return errOrderNotFound()
		}
		return nil
	}
	if actor.Role.IsStaff() {
		return nil
	}
	if order.SubjectRef != nil && *order.SubjectRef == actor.UserID {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "payment order belongs to another member")
}

func subjectFor(policy FlowPolicy, actor *Actor) (*uuid.UUID, error) {
	if !policy.RequiresSubject {
		return nil, nil
	}
	if actor == nil || actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required for "+policy.Flow.String())
	}
	subject := actor.UserID
	return &subject, nil
}

func (s *service) resolveAmount(policy FlowPolicy, amount decimal.Decimal) (decimal.Decimal, error) {
	if policy.Flow == enums.PaymentFlowRegistration {
		if amount.IsZero() {
			return s.cfg.RegistrationFee, nil
		}
		if !amount.Equal(s.cfg.RegistrationFee) {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "registration amount must equal the registration fee").
				WithDetails(map[string]any{"fee": s.cfg.RegistrationFee.StringFixed(2)})
		}
		return amount, nil
	}
	if !amount.IsPositive() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !amount.Equal(amount.Round(2)) {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "amount supports at most two decimal places")
	}
	if amount.LessThan(s.cfg.MinAmount) || amount.GreaterThan(s.cfg.MaxAmount) {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "amount out of range").
			WithDetails(map[string]any{
				"min": s.cfg.MinAmount.StringFixed(2),
				"max": s.cfg.MaxAmount.StringFixed(2),
			})
	}
	return amount, nil
}

// gatewayCustomerID reuses the subject segment of the order id, which is
// alphanumeric and stable per member.
func gatewayCustomerID(orderID string) string {
	parsed, err := ParseOrderID(orderID)
	if err != nil {
		return "guest"
	}
	if parsed.Subject == anonymousSubject {
		return "guest_" + parsed.Token[:12]
	}
	return "member_" + parsed.Subject
}

func buildOrderList(orders []models.PaymentOrder, next *pagination.Cursor) *OrderList {
	list := &OrderList{Orders: make([]OrderView, 0, len(orders))}
	for i := range orders {
		list.Orders = append(list.Orders, NewOrderView(&orders[i]))
	}
	if next != nil {
		list.NextCursor = pagination.EncodeCursor(*next)
	}
	return list
}
