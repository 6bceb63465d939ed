// Package registry knows which event types the service emits, which aggregate
// each belongs to and which topic it is published on.
package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/hrcore-backend/pkg/config"
	"github.com/angelmondragon/hrcore-backend/pkg/db/models"
	"github.com/angelmondragon/hrcore-backend/pkg/delivery"
	"github.com/angelmondragon/hrcore-backend/pkg/enums"
	"github.com/angelmondragon/hrcore-backend/pkg/outbox"
	"github.com/angelmondragon/hrcore-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate and payload schema.
type EventDescriptor struct {
	EventType      string
	AggregateType  enums.AggregateType
	PayloadFactory func() interface{}
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Topic      string
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

type EventRegistry struct {
	entries      map[string]EventDescriptor
	topics       map[enums.AggregateType]string
	defaultTopic string
}

// NewEventRegistry builds the registry with the configured topic names. Aggregates
// without their own topic fall back to the default topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	defaultTopic := strings.TrimSpace(cfg.DefaultTopic)
	if defaultTopic == "" {
		return nil, fmt.Errorf("default topic is required")
	}

	reg := &EventRegistry{
		entries:      make(map[string]EventDescriptor),
		topics:       make(map[enums.AggregateType]string),
		defaultTopic: defaultTopic,
	}
	for aggregate, topic := range map[enums.AggregateType]string{
		enums.AggregateEmployee:   cfg.EmployeeTopic,
		enums.AggregateDepartment: cfg.DepartmentTopic,
		enums.AggregatePosition:   cfg.PositionTopic,
	} {
		if t := strings.TrimSpace(topic); t != "" {
			reg.topics[aggregate] = t
		}
	}

	for _, desc := range []EventDescriptor{
		{
			EventType:      payloads.EventEmployeeCreated,
			AggregateType:  enums.AggregateEmployee,
			PayloadFactory: func() interface{} { return &payloads.EmployeeCreatedEvent{} },
		},
		{
			EventType:      payloads.EventEmployeeStatusChanged,
			AggregateType:  enums.AggregateEmployee,
			PayloadFactory: func() interface{} { return &payloads.EmployeeStatusChangedEvent{} },
		},
		{
			EventType:      payloads.EventEmployeeReactivated,
			AggregateType:  enums.AggregateEmployee,
			PayloadFactory: func() interface{} { return &payloads.EmployeeReactivatedEvent{} },
		},
	} {
		reg.register(desc)
	}

	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// TopicFor returns the topic events of the given aggregate type are published on.
func (r *EventRegistry) TopicFor(aggregateType enums.AggregateType) (string, error) {
	if !aggregateType.IsValid() {
		return "", fmt.Errorf("unknown aggregate type %q", aggregateType)
	}
	if topic, ok := r.topics[aggregateType]; ok {
		return topic, nil
	}
	return r.defaultTopic, nil
}

// Resolve validates the row and decodes its typed payload. Event types the
// registry does not know are passed through opaque and routed by aggregate
// type. Every failure is non-retryable: the row will never become valid by
// trying again.
func (r *EventRegistry) Resolve(record models.OutboxRecord) (*ResolvedEvent, error) {
	if record.AggregateID == uuid.Nil {
		return nil, delivery.NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}
	topic, err := r.TopicFor(record.AggregateType)
	if err != nil {
		return nil, delivery.NewNonRetryableError(err)
	}

	desc, ok := r.entries[record.EventType]
	if !ok {
		return &ResolvedEvent{
			Descriptor: EventDescriptor{EventType: record.EventType, AggregateType: record.AggregateType},
			Topic:      topic,
		}, nil
	}
	if desc.AggregateType != record.AggregateType {
		return nil, delivery.NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, record.AggregateType))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(record.Payload, &envelope); err != nil {
		return nil, delivery.NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}
	if err := envelope.Matches(record.EventType, record.AggregateID); err != nil {
		return nil, delivery.NewNonRetryableError(err)
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, delivery.NewNonRetryableError(fmt.Errorf("payload missing for %s", record.EventType))
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, delivery.NewNonRetryableError(fmt.Errorf("decode %s payload: %w", record.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Topic:      topic,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}
