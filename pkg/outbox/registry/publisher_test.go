package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/donations-backend/pkg/config"
	"github.com/angelmondragon/donations-backend/pkg/db/models"
	"github.com/angelmondragon/donations-backend/pkg/enums"
	"github.com/angelmondragon/donations-backend/pkg/outbox"
	"github.com/angelmondragon/donations-backend/pkg/outbox/payloads"
)

const testOrderID = "VDN_ANON_0190d3b0c9a87a1b8c2d3e4f5a6b7c8d"

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	receipt := "VDRCP-ANON-0190D3B0C9A87A1B8C2D3E4F5A6B7C8D"
	payloadBytes := mustMarshal(t, payloads.PaymentOutcomeEvent{
		OrderID:   testOrderID,
		Flow:      enums.PaymentFlowVisitorDonation,
		Status:    enums.OrderStatusSuccess,
		Amount:    decimal.RequireFromString("250.00"),
		Currency:  enums.CurrencyINR,
		ReceiptNo: &receipt,
	})

	event := models.OutboxEvent{
		EventType:     enums.EventPaymentSucceeded,
		AggregateType: enums.AggregatePaymentOrder,
		AggregateID:   testOrderID,
		Payload:       mustEnvelope(t, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "payments-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.PaymentOutcomeEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.ReceiptNo == nil || *payload.ReceiptNo != receipt {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if !payload.Amount.Equal(decimal.RequireFromString("250")) {
		t.Fatalf("amount mismatch %s", payload.Amount)
	}
	if resolved.Envelope.EventID == "" {
		t.Fatalf("envelope missing event id")
	}
}

func TestEventRegistryResolveRejects(t *testing.T) {
	reg := newTestEventRegistry(t)

	cases := map[string]models.OutboxEvent{
		"unknown event": {
			EventType:     enums.OutboxEventType("member_renewed"),
			AggregateType: enums.AggregatePaymentOrder,
			AggregateID:   testOrderID,
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"aggregate mismatch": {
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.OutboxAggregateType("member"),
			AggregateID:   testOrderID,
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"missing aggregate id": {
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregatePaymentOrder,
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"null payload": {
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregatePaymentOrder,
			AggregateID:   testOrderID,
			Payload:       mustEnvelope(t, []byte("null")),
		},
		"failure payload on success event": {
			EventType:     enums.EventPaymentSucceeded,
			AggregateType: enums.AggregatePaymentOrder,
			AggregateID:   testOrderID,
			Payload:       mustEnvelope(t, []byte(`{"order_id":"`+testOrderID+`","status":"failed"}`)),
		},
		"success without receipt": {
			EventType:     enums.EventPaymentSucceeded,
			AggregateType: enums.AggregatePaymentOrder,
			AggregateID:   testOrderID,
			Payload:       mustEnvelope(t, []byte(`{"order_id":"`+testOrderID+`","status":"success"}`)),
		},
		"payload for another order": {
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregatePaymentOrder,
			AggregateID:   testOrderID,
			Payload:       mustEnvelope(t, []byte(`{"order_id":"MDN_other","status":"failed"}`)),
		},
		"envelope routed elsewhere": {
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregatePaymentOrder,
			AggregateID:   testOrderID,
			Payload:       json.RawMessage(`{"version":1,"eventId":"e1","aggregateId":"MDN_other","data":{"order_id":"` + testOrderID + `","status":"failed"}}`),
		},
		"broken envelope": {
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregatePaymentOrder,
			AggregateID:   testOrderID,
			Payload:       json.RawMessage(`{"version":`),
		},
	}

	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(event)
			if err == nil {
				t.Fatalf("expected error")
			}
			var nonRetry NonRetryableError
			if !errors.As(err, &nonRetry) {
				t.Fatalf("expected non-retryable error, got %T", err)
			}
		})
	}
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	if _, err := NewEventRegistry(config.PubSubConfig{}); err == nil {
		t.Fatalf("expected error for empty topic")
	}
}

func TestRegisterRejectsDuplicatesAndIncompleteDescriptors(t *testing.T) {
	reg := newTestEventRegistry(t)
	factory := func() any { return &payloads.PaymentOutcomeEvent{} }

	dup := EventDescriptor{EventType: enums.EventPaymentFailed, AggregateType: enums.AggregatePaymentOrder, Topic: "t", PayloadFactory: factory}
	if err := reg.Register(dup); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if err := reg.Register(EventDescriptor{EventType: "member_renewed", Topic: "t", PayloadFactory: factory}); err == nil {
		t.Fatalf("expected unknown event type to fail")
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{PaymentsTopic: "payments-topic"})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func mustEnvelope(t *testing.T, payload []byte) json.RawMessage {
	t.Helper()
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}
