package outbox

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/donations-backend/pkg/enums"
)

const CurrentEnvelopeVersion = 1

// PayloadEnvelope is the JSON stored in outbox_events.payload and published
// verbatim. EventType and AggregateID repeat the row columns so subscribers
// can route on the body alone.
type PayloadEnvelope struct {
	Version     int                   `json:"version"`
	EventID     string                `json:"eventId"`
	EventType   enums.OutboxEventType `json:"eventType,omitempty"`
	AggregateID string                `json:"aggregateId,omitempty"`
	OccurredAt  time.Time             `json:"occurredAt"`
	Source      string                `json:"source,omitempty"`
	Data        json.RawMessage       `json:"data"`
}
