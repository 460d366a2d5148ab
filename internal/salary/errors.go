package salary

import (
	"errors"
	"strings"
)

var (
	// ErrNoEligibleEmployees indicates distribution found no headcount.
	ErrNoEligibleEmployees = errors.New("salary: no active employees found for budget distribution")
	// ErrBudgetNotFound indicates a missing department budget row.
	ErrBudgetNotFound = errors.New("salary: department budget not found")
	// ErrInsufficientBudget indicates an amount the envelope cannot accommodate.
	ErrInsufficientBudget = errors.New("salary: insufficient department budget")
	// ErrBillNotFound indicates a missing bill.
	ErrBillNotFound = errors.New("salary: bill not found")
	// ErrInvalidTransition indicates a bill action from the wrong status.
	ErrInvalidTransition = errors.New("salary: invalid bill status transition")
)

// ValidationError accumulates every budget problem found for a bill so
// callers can surface them all at once.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "salary: budget validation failed: " + strings.Join(e.Messages, "; ")
}

// Is lets errors.Is treat accumulated failures as insufficient budget.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInsufficientBudget
}
