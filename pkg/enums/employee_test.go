package enums

import (
	"errors"
	"testing"
)

func TestValidateEmployeeTransition(t *testing.T) {
	tests := []struct {
		from, to EmployeeStatus
		allowed  bool
	}{
		{EmployeeStatusActive, EmployeeStatusOnLeave, true},
		{EmployeeStatusActive, EmployeeStatusTerminated, true},
		{EmployeeStatusOnLeave, EmployeeStatusInactive, true},
		{EmployeeStatusInactive, EmployeeStatusActive, false},
		{EmployeeStatusOnLeave, EmployeeStatusActive, false},
		{EmployeeStatusTerminated, EmployeeStatusActive, false},
		{EmployeeStatusActive, EmployeeStatusActive, false},
		{EmployeeStatus("retired"), EmployeeStatusActive, false},
	}
	for _, tt := range tests {
		err := ValidateEmployeeTransition(tt.from, tt.to)
		if tt.allowed && err != nil {
			t.Fatalf("%s -> %s: unexpected error %v", tt.from, tt.to, err)
		}
		if !tt.allowed && !errors.Is(err, ErrInvalidEmployeeTransition) {
			t.Fatalf("%s -> %s: expected ErrInvalidEmployeeTransition, got %v", tt.from, tt.to, err)
		}
	}
}

func TestCanReactivate(t *testing.T) {
	for status, want := range map[EmployeeStatus]bool{
		EmployeeStatusInactive:   true,
		EmployeeStatusOnLeave:    true,
		EmployeeStatusActive:     false,
		EmployeeStatusTerminated: false,
	} {
		if got := status.CanReactivate(); got != want {
			t.Fatalf("%s.CanReactivate() = %v, want %v", status, got, want)
		}
	}
}

func TestParseEmployeeStatus(t *testing.T) {
	if got, err := ParseEmployeeStatus("on_leave"); err != nil || got != EmployeeStatusOnLeave {
		t.Fatalf("unexpected parse result %q %v", got, err)
	}
	if _, err := ParseEmployeeStatus("ON_LEAVE"); err == nil {
		t.Fatal("expected error for unknown casing")
	}
}
