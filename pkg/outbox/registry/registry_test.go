package registry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/hrcore-backend/pkg/config"
	"github.com/angelmondragon/hrcore-backend/pkg/db/models"
	"github.com/angelmondragon/hrcore-backend/pkg/delivery"
	"github.com/angelmondragon/hrcore-backend/pkg/enums"
	"github.com/angelmondragon/hrcore-backend/pkg/outbox"
	"github.com/angelmondragon/hrcore-backend/pkg/outbox/payloads"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	employeeID := uuid.New()
	record := models.OutboxRecord{
		EventType:     payloads.EventEmployeeCreated,
		AggregateType: enums.AggregateEmployee,
		AggregateID:   employeeID,
		Payload: mustEnvelope(t, mustMarshal(t, payloads.EmployeeCreatedEvent{
			EmployeeID: employeeID,
			FullName:   "Ada Lovelace",
			Email:      "ada@example.com",
			Status:     enums.EmployeeStatusActive,
			Salary:     decimal.RequireFromString("5400.50"),
		})),
	}

	resolved, err := reg.Resolve(record)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Topic != "employees-topic" {
		t.Fatalf("unexpected topic %q", resolved.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.EmployeeCreatedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.EmployeeID != employeeID || !payload.Salary.Equal(decimal.RequireFromString("5400.5")) {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" {
		t.Fatalf("envelope missing event id")
	}
}

func TestEventRegistryRejectsBadRecords(t *testing.T) {
	reg := newTestEventRegistry(t)
	valid := mustEnvelope(t, []byte(`{"employee_id":"`+uuid.NewString()+`"}`))

	cases := map[string]models.OutboxRecord{
		"unknown aggregate": {
			EventType:     "PayrollClosed",
			AggregateType: enums.AggregateType("payroll"),
			AggregateID:   uuid.New(),
			Payload:       []byte(`{"period":"2026-05"}`),
		},
		"aggregate mismatch": {
			EventType:     payloads.EventEmployeeReactivated,
			AggregateType: enums.AggregateDepartment,
			AggregateID:   uuid.New(),
			Payload:       valid,
		},
		"missing aggregate id": {
			EventType:     payloads.EventEmployeeReactivated,
			AggregateType: enums.AggregateEmployee,
			Payload:       valid,
		},
		"null payload": {
			EventType:     payloads.EventEmployeeReactivated,
			AggregateType: enums.AggregateEmployee,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte("null")),
		},
		"broken envelope": {
			EventType:     payloads.EventEmployeeReactivated,
			AggregateType: enums.AggregateEmployee,
			AggregateID:   uuid.New(),
			Payload:       []byte(`{"version":`),
		},
		"envelope for another event": {
			EventType:     payloads.EventEmployeeReactivated,
			AggregateType: enums.AggregateEmployee,
			AggregateID:   uuid.New(),
			Payload:       []byte(`{"version":1,"eventType":"EmployeeCreated","data":{}}`),
		},
		"future envelope version": {
			EventType:     payloads.EventEmployeeReactivated,
			AggregateType: enums.AggregateEmployee,
			AggregateID:   uuid.New(),
			Payload:       []byte(`{"version":9,"data":{}}`),
		},
	}
	for name, record := range cases {
		_, err := reg.Resolve(record)
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if !delivery.IsNonRetryable(err) {
			t.Fatalf("%s: expected non-retryable error, got %T", name, err)
		}
	}
}

func TestEventRegistryPassesUnknownEventsThroughOpaque(t *testing.T) {
	reg := newTestEventRegistry(t)
	record := models.OutboxRecord{
		EventType:     "DepartmentCreated",
		AggregateType: enums.AggregateDepartment,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{"name":"ops"}`),
	}

	resolved, err := reg.Resolve(record)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Topic != "domain-events" {
		t.Fatalf("expected default topic, got %q", resolved.Topic)
	}
	if resolved.Payload != nil {
		t.Fatalf("opaque events carry no decoded payload, got %T", resolved.Payload)
	}

	record.Payload = []byte("plain text, not json")
	if _, err := reg.Resolve(record); err != nil {
		t.Fatalf("opaque payloads are never decoded: %v", err)
	}
}

func TestTopicForFallsBackToDefault(t *testing.T) {
	reg := newTestEventRegistry(t)

	topic, err := reg.TopicFor(enums.AggregateEmployee)
	if err != nil || topic != "employees-topic" {
		t.Fatalf("employee topic = %q, %v", topic, err)
	}
	topic, err = reg.TopicFor(enums.AggregatePosition)
	if err != nil || topic != "domain-events" {
		t.Fatalf("position topic = %q, %v", topic, err)
	}
	if _, err := reg.TopicFor("payroll"); err == nil {
		t.Fatal("expected unknown aggregate error")
	}
}

func TestNewEventRegistryRequiresDefaultTopic(t *testing.T) {
	if _, err := NewEventRegistry(config.PubSubConfig{EmployeeTopic: "employees"}); err == nil {
		t.Fatal("expected error without default topic")
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{
		DefaultTopic:  "domain-events",
		EmployeeTopic: "employees-topic",
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v interface{}) []byte {
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
