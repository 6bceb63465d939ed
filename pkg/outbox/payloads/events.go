package payloads

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/hrcore-backend/pkg/enums"
)

// Event type discriminators stored in outbox_records.event_type.
const (
	EventEmployeeCreated       = "EmployeeCreated"
	EventEmployeeStatusChanged = "EmployeeStatusChanged"
	EventEmployeeReactivated   = "EmployeeReactivated"
)

// EmployeeCreatedEvent is emitted once per hired employee.
type EmployeeCreatedEvent struct {
	EmployeeID uuid.UUID            `json:"employee_id"`
	FullName   string               `json:"full_name"`
	Email      string               `json:"email"`
	Status     enums.EmployeeStatus `json:"status"`
	Salary     decimal.Decimal      `json:"salary"`
}

// EmployeeStatusChangedEvent carries both sides of a status move.
type EmployeeStatusChangedEvent struct {
	EmployeeID uuid.UUID            `json:"employee_id"`
	From       enums.EmployeeStatus `json:"from"`
	To         enums.EmployeeStatus `json:"to"`
	Reason     string               `json:"reason,omitempty"`
}

// EmployeeReactivatedEvent is emitted when an inactive employee returns.
type EmployeeReactivatedEvent struct {
	EmployeeID     uuid.UUID            `json:"employee_id"`
	PreviousStatus enums.EmployeeStatus `json:"previous_status"`
}
