package cashfreewebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/donations-backend/pkg/cashfree"
	"github.com/angelmondragon/donations-backend/pkg/redis"
)

// IdempotencyGuard drops repeated deliveries of the same gateway event.
// Cashfree has no event id, so a delivery is identified by order, payment
// and reported status.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{
		store: store,
		ttl:   ttl,
		scope: scope,
	}, nil
}

// DeliveryKey identifies a webhook delivery.
func DeliveryKey(event *cashfree.WebhookEvent) string {
	paymentID := event.PaymentID()
	if paymentID == "" {
		paymentID = "none"
	}
	return strings.Join([]string{event.OrderID(), paymentID, event.RawStatus()}, ":")
}

// CheckAndMark reports whether key was already seen, marking it otherwise.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("delivery key is required")
	}
	set, err := g.store.SetNX(ctx, g.store.IdempotencyKey(g.scope, key), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

func (g *IdempotencyGuard) Delete(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("delivery key is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(g.scope, key))
}
