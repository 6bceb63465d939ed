package enums

import (
	"errors"
	"fmt"
)

// EmployeeStatus is the lifecycle state of an employee.
type EmployeeStatus string

const (
	EmployeeStatusActive     EmployeeStatus = "active"
	EmployeeStatusInactive   EmployeeStatus = "inactive"
	EmployeeStatusOnLeave    EmployeeStatus = "on_leave"
	EmployeeStatusTerminated EmployeeStatus = "terminated"
)

var validEmployeeStatuses = []EmployeeStatus{
	EmployeeStatusActive,
	EmployeeStatusInactive,
	EmployeeStatusOnLeave,
	EmployeeStatusTerminated,
}

// String implements fmt.Stringer.
func (s EmployeeStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known EmployeeStatus.
func (s EmployeeStatus) IsValid() bool {
	for _, candidate := range validEmployeeStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseEmployeeStatus converts raw input into an EmployeeStatus.
func ParseEmployeeStatus(value string) (EmployeeStatus, error) {
	for _, candidate := range validEmployeeStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid employee status %q", value)
}

// ErrInvalidEmployeeTransition is returned for status moves HR rules forbid.
var ErrInvalidEmployeeTransition = errors.New("invalid employee status transition")

// Terminated is final. Returning to active from inactive or on_leave goes
// through reactivation, not a plain status change.
var employeeTransitions = map[EmployeeStatus][]EmployeeStatus{
	EmployeeStatusActive:     {EmployeeStatusInactive, EmployeeStatusOnLeave, EmployeeStatusTerminated},
	EmployeeStatusOnLeave:    {EmployeeStatusInactive, EmployeeStatusTerminated},
	EmployeeStatusInactive:   {EmployeeStatusOnLeave, EmployeeStatusTerminated},
	EmployeeStatusTerminated: nil,
}

// CanReactivate reports whether the employee may return to active.
func (s EmployeeStatus) CanReactivate() bool {
	return s == EmployeeStatusInactive || s == EmployeeStatusOnLeave
}

func ValidateEmployeeTransition(from, to EmployeeStatus) error {
	if !from.IsValid() || !to.IsValid() {
		return fmt.Errorf("%w: unknown status %q -> %q", ErrInvalidEmployeeTransition, from, to)
	}
	for _, candidate := range employeeTransitions[from] {
		if candidate == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidEmployeeTransition, from, to)
}
