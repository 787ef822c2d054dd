package cashfreewebhook

import (
	"context"

	"github.com/angelmondragon/donations-backend/internal/payments"
	"github.com/angelmondragon/donations-backend/pkg/cashfree"
	pkgerrors "github.com/angelmondragon/donations-backend/pkg/errors"
	"github.com/angelmondragon/donations-backend/pkg/logger"
)

// Result describes how a verified delivery was handled.
type Result string

const (
	ResultApplied      Result = "applied"
	ResultDuplicate    Result = "duplicate"
	ResultUnknownOrder Result = "unknown_order"
)

type webhookApplier interface {
	ApplyWebhook(ctx context.Context, orderID string, obs payments.Observation) (*payments.OrderView, error)
}

type deliveryGuard interface {
	CheckAndMark(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

type ServiceParams struct {
	Payments webhookApplier
	Guard    deliveryGuard
	Logger   *logger.Logger
}

// Service applies signature-verified Cashfree webhooks.
type Service struct {
	payments webhookApplier
	guard    deliveryGuard
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		payments: params.Payments,
		guard:    params.Guard,
		logg:     params.Logger,
	}, nil
}

// HandleEvent reconciles the order named by event. The guard is optional;
// without it every delivery reaches the engine, which is idempotent anyway.
// A failed reconcile releases the delivery key so a gateway retry is
// processed again.
func (s *Service) HandleEvent(ctx context.Context, event *cashfree.WebhookEvent) (Result, error) {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id":       event.OrderID(),
		"webhook_type":   event.Type,
		"gateway_status": event.RawStatus(),
	})

	key := DeliveryKey(event)
	if s.guard != nil {
		seen, err := s.guard.CheckAndMark(ctx, key)
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "webhook dedupe unavailable")
		} else if seen {
			s.logg.Info(ctx, "duplicate webhook delivery ignored")
			return ResultDuplicate, nil
		}
	}

	_, err := s.payments.ApplyWebhook(ctx, event.OrderID(), payments.Observation{
		Status:        event.Status(),
		RawStatus:     event.RawStatus(),
		PaymentID:     event.PaymentID(),
		PaymentMethod: event.PaymentMethod(),
	})
	if err == nil {
		s.logg.Info(ctx, "webhook applied")
		return ResultApplied, nil
	}
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		s.logg.Warn(ctx, "webhook for unknown payment order")
		return ResultUnknownOrder, nil
	}
	if s.guard != nil {
		if delErr := s.guard.Delete(ctx, key); delErr != nil {
			s.logg.Error(ctx, "release webhook dedupe key failed", delErr)
		}
	}
	return "", err
}
