package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const envelopeVersion = 1

// ActorRef is the HR user or system process that caused an event.
type ActorRef struct {
	Subject string `json:"subject"`
	Role    string `json:"role,omitempty"`
}

// PayloadEnvelope wraps every payload written by Emit. EventType and
// AggregateID repeat the row columns so consumers can route on the body alone.
type PayloadEnvelope struct {
	Version     int             `json:"version"`
	EventID     string          `json:"eventId"`
	EventType   string          `json:"eventType,omitempty"`
	AggregateID uuid.UUID       `json:"aggregateId"`
	OccurredAt  time.Time       `json:"occurredAt"`
	Actor       *ActorRef       `json:"actor,omitempty"`
	Data        json.RawMessage `json:"data"`
}

// Matches reports an error when the envelope disagrees with the row it was
// read from. Envelopes written before the routing fields existed pass.
func (e PayloadEnvelope) Matches(eventType string, aggregateID uuid.UUID) error {
	if e.Version > envelopeVersion {
		return fmt.Errorf("unsupported envelope version %d", e.Version)
	}
	if e.EventType != "" && e.EventType != eventType {
		return fmt.Errorf("envelope event type %s does not match %s", e.EventType, eventType)
	}
	if e.AggregateID != uuid.Nil && e.AggregateID != aggregateID {
		return fmt.Errorf("envelope aggregate %s does not match %s", e.AggregateID, aggregateID)
	}
	return nil
}
