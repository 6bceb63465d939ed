package enums

import (
	"errors"
	"fmt"
)

// AggregateType names the business entity an outbox or history row describes.
type AggregateType string

const (
	AggregateEmployee   AggregateType = "employee"
	AggregateDepartment AggregateType = "department"
	AggregatePosition   AggregateType = "position"
)

var validAggregateTypes = []AggregateType{
	AggregateEmployee,
	AggregateDepartment,
	AggregatePosition,
}

// IsValid reports whether the value matches a known aggregate type.
func (a AggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// OutboxStatus is the delivery state of an outbox record.
type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "pending"
	OutboxStatusSent    OutboxStatus = "sent"
	OutboxStatusFailed  OutboxStatus = "failed"
)

var validOutboxStatuses = []OutboxStatus{
	OutboxStatusPending,
	OutboxStatusSent,
	OutboxStatusFailed,
}

// ClaimableOutboxStatuses are the statuses the dispatcher may pick up.
var ClaimableOutboxStatuses = []OutboxStatus{
	OutboxStatusPending,
	OutboxStatusFailed,
}

// ErrInvalidTransition is returned for status moves the state machine forbids.
var ErrInvalidTransition = errors.New("invalid outbox status transition")

var outboxTransitions = map[OutboxStatus][]OutboxStatus{
	OutboxStatusPending: {OutboxStatusSent, OutboxStatusFailed},
	OutboxStatusFailed:  {OutboxStatusSent, OutboxStatusFailed},
	OutboxStatusSent:    nil,
}

// IsValid reports whether the value is a known OutboxStatus.
func (s OutboxStatus) IsValid() bool {
	for _, candidate := range validOutboxStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanTransitionTo is the only place that knows which status moves are legal.
func (s OutboxStatus) CanTransitionTo(next OutboxStatus) bool {
	for _, candidate := range outboxTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ValidateOutboxTransition wraps ErrInvalidTransition with the offending pair.
func ValidateOutboxTransition(from, to OutboxStatus) error {
	if !from.IsValid() || !to.IsValid() {
		return fmt.Errorf("%w: unknown status %q -> %q", ErrInvalidTransition, from, to)
	}
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// HistoryEventType is the fixed vocabulary of the event history log.
type HistoryEventType string

const (
	HistoryCreated       HistoryEventType = "created"
	HistoryStatusChanged HistoryEventType = "status_changed"
	HistoryReactivated   HistoryEventType = "reactivated"
	HistoryUpdated       HistoryEventType = "updated"
	HistoryDeleted       HistoryEventType = "deleted"
)

var validHistoryEventTypes = []HistoryEventType{
	HistoryCreated,
	HistoryStatusChanged,
	HistoryReactivated,
	HistoryUpdated,
	HistoryDeleted,
}

// IsValid reports whether the value matches the history vocabulary.
func (h HistoryEventType) IsValid() bool {
	for _, candidate := range validHistoryEventTypes {
		if candidate == h {
			return true
		}
	}
	return false
}
