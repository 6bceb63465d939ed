package employees

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/hrcore-backend/pkg/enums"
	"github.com/angelmondragon/hrcore-backend/pkg/outbox"
)

// CreateInput hires an employee. Status defaults to active.
type CreateInput struct {
	FullName string
	Email    string
	Salary   decimal.Decimal
	Status   enums.EmployeeStatus
	Actor    *outbox.ActorRef
}

type ChangeStatusInput struct {
	EmployeeID uuid.UUID
	Status     enums.EmployeeStatus
	Reason     string
	Actor      *outbox.ActorRef
}

type ReactivateInput struct {
	EmployeeID uuid.UUID
	Actor      *outbox.ActorRef
}
