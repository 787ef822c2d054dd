package enums

import (
	"fmt"
	"slices"
)

// OutboxAggregateType maps to outbox_events.aggregate_type.
type OutboxAggregateType string

const AggregatePaymentOrder OutboxAggregateType = "payment_order"

func (a OutboxAggregateType) IsValid() bool {
	return a == AggregatePaymentOrder
}

// OutboxEventType maps to outbox_events.event_type and is published as the
// event_type message attribute.
type OutboxEventType string

const (
	EventPaymentSucceeded OutboxEventType = "payment_succeeded"
	EventPaymentFailed    OutboxEventType = "payment_failed"
)

var outboxEventTypes = []OutboxEventType{EventPaymentSucceeded, EventPaymentFailed}

func (e OutboxEventType) IsValid() bool {
	return slices.Contains(outboxEventTypes, e)
}

// OutcomeEventFor names the event a transition into status emits. Pending
// is not terminal and has none.
func OutcomeEventFor(status OrderStatus) (OutboxEventType, error) {
	switch status {
	case OrderStatusSuccess:
		return EventPaymentSucceeded, nil
	case OrderStatusFailed:
		return EventPaymentFailed, nil
	default:
		return "", fmt.Errorf("no outcome event for status %q", status)
	}
}
