// Package registry decides where each outbox row is published and checks
// that its stored envelope still decodes before it leaves the service.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/angelmondragon/donations-backend/pkg/config"
	"github.com/angelmondragon/donations-backend/pkg/db/models"
	"github.com/angelmondragon/donations-backend/pkg/enums"
	"github.com/angelmondragon/donations-backend/pkg/outbox"
	"github.com/angelmondragon/donations-backend/pkg/outbox/payloads"
)

// EventDescriptor binds an event type to its aggregate, topic and payload
// shape. Validate, when set, runs on the decoded payload and the row.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
	Validate       func(payload any, event models.OutboxEvent) error
}

type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks rows that will never publish and belong in the DLQ.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func nonRetryable(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

// NewEventRegistry routes both payment outcomes to the payments topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.PaymentsTopic == "" {
		return nil, errors.New("payments topic is required")
	}
	reg := &EventRegistry{entries: map[enums.OutboxEventType]EventDescriptor{}}
	for eventType, status := range map[enums.OutboxEventType]enums.OrderStatus{
		enums.EventPaymentSucceeded: enums.OrderStatusSuccess,
		enums.EventPaymentFailed:    enums.OrderStatusFailed,
	} {
		if err := reg.Register(EventDescriptor{
			EventType:      eventType,
			AggregateType:  enums.AggregatePaymentOrder,
			Topic:          cfg.PaymentsTopic,
			PayloadFactory: func() any { return &payloads.PaymentOutcomeEvent{} },
			Validate:       paymentOutcomeValidator(status),
		}); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (r *EventRegistry) Register(desc EventDescriptor) error {
	switch {
	case !desc.EventType.IsValid():
		return fmt.Errorf("unknown event type %q", desc.EventType)
	case desc.Topic == "":
		return fmt.Errorf("topic required for %s", desc.EventType)
	case desc.PayloadFactory == nil:
		return fmt.Errorf("payload factory required for %s", desc.EventType)
	}
	if _, dup := r.entries[desc.EventType]; dup {
		return fmt.Errorf("event type %s registered twice", desc.EventType)
	}
	r.entries[desc.EventType] = desc
	return nil
}

// Resolve returns NonRetryableError for anything a retry cannot fix.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, nonRetryable("unsupported event type %s", event.EventType)
	}
	if desc.AggregateType != event.AggregateType {
		return nil, nonRetryable("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	}
	if event.AggregateID == "" {
		return nil, nonRetryable("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, nonRetryable("decode envelope: %w", err)
	}
	// Older rows predate the routing fields; only check them when present.
	if envelope.EventType != "" && envelope.EventType != event.EventType {
		return nil, nonRetryable("envelope event type %s does not match row %s", envelope.EventType, event.EventType)
	}
	if envelope.AggregateID != "" && envelope.AggregateID != event.AggregateID {
		return nil, nonRetryable("envelope aggregate %s does not match row %s", envelope.AggregateID, event.AggregateID)
	}

	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nonRetryable("payload missing for %s", event.EventType)
	}
	payload := desc.PayloadFactory()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, nonRetryable("decode %s payload: %w", event.EventType, err)
	}
	if desc.Validate != nil {
		if err := desc.Validate(payload, event); err != nil {
			return nil, NewNonRetryableError(err)
		}
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}

// paymentOutcomeValidator checks the payload describes the same order as the
// row and carries the status its event type implies. A success must name
// its receipt.
func paymentOutcomeValidator(want enums.OrderStatus) func(any, models.OutboxEvent) error {
	return func(payload any, event models.OutboxEvent) error {
		p, ok := payload.(*payloads.PaymentOutcomeEvent)
		if !ok {
			return fmt.Errorf("unexpected payload type %T", payload)
		}
		if p.OrderID != event.AggregateID {
			return fmt.Errorf("payload order %q does not match aggregate %q", p.OrderID, event.AggregateID)
		}
		if p.Status != want {
			return fmt.Errorf("%s event carries status %s", event.EventType, p.Status)
		}
		if want == enums.OrderStatusSuccess && (p.ReceiptNo == nil || *p.ReceiptNo == "") {
			return errors.New("success event without receipt number")
		}
		return nil
	}
}
