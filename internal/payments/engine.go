package payments

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/donations-backend/pkg/db"
	"github.com/angelmondragon/donations-backend/pkg/db/models"
	"github.com/angelmondragon/donations-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/donations-backend/pkg/errors"
	"github.com/angelmondragon/donations-backend/pkg/logger"
	"github.com/angelmondragon/donations-backend/pkg/metrics"
	"github.com/angelmondragon/donations-backend/pkg/outbox"
	"github.com/angelmondragon/donations-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Observation sources.
const (
	SourceWebhook = "webhook"
	SourceVerify  = "verify"
	SourceSweep   = "sweep"
)

// Reconcile outcomes, also used as metric labels.
const (
	outcomeApplied         = "applied"
	outcomeLostRace        = "lost_race"
	outcomeAlreadyTerminal = "already_terminal"
	outcomeNoChange        = "no_change"
	outcomeNotFound        = "not_found"
	outcomeError           = "error"
)

// Observation is one report of the gateway's view of an order.
type Observation struct {
	Status        enums.GatewayStatus
	RawStatus     string
	PaymentID     string
	PaymentMethod string
	Source        string
}

// EngineConfig bounds the automatic retries of the persistence step.
type EngineConfig struct {
	Retries    uint64
	RetryDelay time.Duration
}

// Engine is the only writer of payment order status. Webhooks, client
// verification and the pending sweep all funnel through Reconcile.
type Engine struct {
	tx         txRunner
	repo       Repository
	outbox     outboxPublisher
	logg       *logger.Logger
	metrics    *metrics.PaymentMetrics
	retries    uint64
	retryDelay time.Duration
	now        func() time.Time
}

func NewEngine(tx txRunner, repo Repository, ob outboxPublisher, logg *logger.Logger, m *metrics.PaymentMetrics, cfg EngineConfig) *Engine {
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	return &Engine{
		tx:         tx,
		repo:       repo,
		outbox:     ob,
		logg:       logg,
		metrics:    m,
		retries:    cfg.Retries,
		retryDelay: delay,
		now:        time.Now,
	}
}

// Reconcile applies obs to the order. A terminal order is returned
// unchanged whatever the observation says. Otherwise PAID moves it to
// success with a receipt number, FAILED/CANCELLED/EXPIRED move it to
// failed, and PENDING/UNKNOWN leave it alone.
func (e *Engine) Reconcile(ctx context.Context, orderID string, obs Observation) (*models.PaymentOrder, error) {
	if e.logg != nil {
		ctx = e.logg.WithOrderID(ctx, orderID)
	}
	order, err := e.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			e.metrics.IncReconcile(obs.Source, outcomeNotFound)
			e.warn(ctx, "reconcile for unknown payment order")
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment order not found")
		}
		e.metrics.IncReconcile(obs.Source, outcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment order")
	}

	if order.Status.IsTerminal() {
		e.metrics.IncReconcile(obs.Source, outcomeAlreadyTerminal)
		return order, nil
	}

	target, ok := targetStatus(obs.Status)
	if !ok {
		e.metrics.IncReconcile(obs.Source, outcomeNoChange)
		return order, nil
	}

	transition, err := e.buildTransition(order, target, obs)
	if err != nil {
		e.metrics.IncReconcile(obs.Source, outcomeError)
		return nil, err
	}

	applied, err := e.persist(ctx, order, transition, obs)
	if err != nil {
		e.metrics.IncReconcile(obs.Source, outcomeError)
		if e.logg != nil {
			e.logg.Error(ctx, "persist payment transition failed", err)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist payment transition")
	}

	if applied {
		e.metrics.IncReconcile(obs.Source, outcomeApplied)
		if e.logg != nil {
			fields := map[string]any{
				"source":         obs.Source,
				"status":         target,
				"gateway_status": obs.Status,
			}
			e.logg.Info(e.logg.WithFields(ctx, fields), "payment order settled")
		}
	} else {
		e.metrics.IncReconcile(obs.Source, outcomeLostRace)
	}

	updated, err := e.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload payment order")
	}
	return updated, nil
}

func (e *Engine) buildTransition(order *models.PaymentOrder, target enums.OrderStatus, obs Observation) (Transition, error) {
	t := Transition{
		OrderID:       order.OrderID,
		To:            target,
		PaymentID:     nullableString(obs.PaymentID),
		PaymentMethod: nullableString(obs.PaymentMethod),
		GatewayStatus: gatewayStatusLabel(obs),
		At:            e.now().UTC(),
	}
	if target != enums.OrderStatusSuccess {
		return t, nil
	}
	policy, err := PolicyFor(order.Flow)
	if err != nil {
		return Transition{}, err
	}
	receipt, err := policy.ReceiptNo(order.OrderID)
	if err != nil {
		return Transition{}, err
	}
	t.ReceiptNo = &receipt
	return t, nil
}

// persist runs the conditional update and the outbox insert in one
// transaction, retrying transient storage failures. It reports whether this
// call performed the transition.
func (e *Engine) persist(ctx context.Context, order *models.PaymentOrder, t Transition, obs Observation) (bool, error) {
	event, err := outcomeEvent(order, t, obs)
	if err != nil {
		return false, err
	}

	var applied bool
	backoff := retry.WithMaxRetries(e.retries, retry.NewConstant(e.retryDelay))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		applied = false
		err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
			ok, err := e.repo.WithTx(tx).Transition(ctx, t)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			applied = true
			return e.outbox.Emit(ctx, tx, event)
		})
		if err == nil {
			return nil
		}
		// A duplicate receipt will not go away on retry.
		if db.IsUniqueViolation(err, "") {
			return err
		}
		e.warn(ctx, "payment transition attempt failed, retrying")
		return retry.RetryableError(err)
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func outcomeEvent(order *models.PaymentOrder, t Transition, obs Observation) (outbox.DomainEvent, error) {
	eventType, err := enums.OutcomeEventFor(t.To)
	if err != nil {
		return outbox.DomainEvent{}, err
	}
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePaymentOrder,
		AggregateID:   order.OrderID,
		Source:        obs.Source,
		OccurredAt:    t.At,
		Data: payloads.PaymentOutcomeEvent{
			OrderID:       order.OrderID,
			Flow:          order.Flow,
			Status:        t.To,
			SubjectRef:    order.SubjectRef,
			Amount:        order.Amount,
			Currency:      order.Currency,
			ReceiptNo:     t.ReceiptNo,
			PaymentID:     t.PaymentID,
			PaymentMethod: t.PaymentMethod,
			GatewayStatus: t.GatewayStatus,
			CompletedAt:   t.At,
		},
	}, nil
}

func targetStatus(status enums.GatewayStatus) (enums.OrderStatus, bool) {
	switch {
	case status == enums.GatewayStatusPaid:
		return enums.OrderStatusSuccess, true
	case status.IsFailure():
		return enums.OrderStatusFailed, true
	default:
		return "", false
	}
}

func gatewayStatusLabel(obs Observation) string {
	if obs.RawStatus != "" {
		return obs.RawStatus
	}
	return obs.Status.String()
}

func (e *Engine) warn(ctx context.Context, msg string) {
	if e.logg != nil {
		e.logg.Warn(ctx, msg)
	}
}
