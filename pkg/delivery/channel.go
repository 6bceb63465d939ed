// Package delivery holds the outward channels the outbox dispatcher hands
// records to.
package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/hrcore-backend/pkg/enums"
)

// Message is one outbox record as seen by a channel.
type Message struct {
	RecordID      uuid.UUID
	AggregateID   uuid.UUID
	AggregateType enums.AggregateType
	EventType     string
	Payload       []byte
	OccurredOn    time.Time
	Attempt       int
}

// Channel delivers a message somewhere outside the service. A nil error means
// the message was accepted. Errors wrapped with NewNonRetryableError stop
// further retries.
type Channel interface {
	Deliver(ctx context.Context, msg Message) error
}

// ChannelFunc adapts a function to Channel.
type ChannelFunc func(ctx context.Context, msg Message) error

func (f ChannelFunc) Deliver(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Attributes is the metadata every transport attaches next to the payload.
func (m Message) Attributes() map[string]string {
	return map[string]string{
		"record_id":      m.RecordID.String(),
		"aggregate_id":   m.AggregateID.String(),
		"aggregate_type": string(m.AggregateType),
		"event_type":     m.EventType,
		"occurred_on":    m.OccurredOn.UTC().Format(time.RFC3339Nano),
	}
}
