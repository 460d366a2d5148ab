// Package salary distributes a centralized lump-sum salary allocation
// across departments by employee strength and tracks per-department
// consumption as salary bills move through their workflow.
package salary

import (
	"time"

	"github.com/shopspring/decimal"
)

// DepartmentBudget is the salary envelope for one (department, fiscal
// year, fund, account) key. allocated_amount is written once by the
// distribution step; consumed_amount mutates only via consume/release.
type DepartmentBudget struct {
	ID              int64
	DepartmentID    int64
	DepartmentName  string
	FiscalYearID    int64
	FundID          int64
	AccountID       int64
	AccountCode     string
	AllocatedAmount decimal.Decimal
	ConsumedAmount  decimal.Decimal
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Available returns the remaining envelope.
func (b DepartmentBudget) Available() decimal.Decimal {
	return b.AllocatedAmount.Sub(b.ConsumedAmount)
}

// CanAccommodate reports whether the amount fits in the envelope.
func (b DepartmentBudget) CanAccommodate(amount decimal.Decimal) bool {
	return b.Available().GreaterThanOrEqual(amount)
}

// Utilization returns consumption as a percentage of the allocation,
// zero when nothing is allocated.
func (b DepartmentBudget) Utilization() decimal.Decimal {
	if b.AllocatedAmount.IsZero() {
		return decimal.Zero
	}
	return b.ConsumedAmount.Div(b.AllocatedAmount).Mul(decimal.NewFromInt(100)).Round(2)
}

// Consumption is the immutable audit record linking one bill to one
// department budget. Reversed is set exactly once when the budget is
// released.
type Consumption struct {
	ID                 int64
	DepartmentBudgetID int64
	BillID             int64
	Amount             decimal.Decimal
	EmployeeCount      int
	Reversed           bool
	CreatedAt          time.Time
}

// BillStatus enumerates the salary bill workflow.
type BillStatus string

const (
	BillStatusDraft     BillStatus = "DRAFT"
	BillStatusSubmitted BillStatus = "SUBMITTED"
	BillStatusApproved  BillStatus = "APPROVED"
	BillStatusCancelled BillStatus = "CANCELLED"
)

// Bill is a salary bill document. The engine does not construct bills;
// it validates and consumes budget for them.
type Bill struct {
	ID                 int64
	Number             string
	OrgID              int64
	FiscalYearID       int64
	FundID             int64
	GrossAmount        decimal.Decimal
	Status             BillStatus
	SubmittedBy        *int64
	SubmittedAt        *time.Time
	ApprovedBy         *int64
	ApprovedAt         *time.Time
	CancelledBy        *int64
	CancelledAt        *time.Time
	CancellationReason string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// BillLine is one employee's salary charge. Department assignment is a
// proper foreign key, not a name lookup.
type BillLine struct {
	ID             int64
	BillID         int64
	EmployeeID     int64
	DepartmentID   int64
	DepartmentName string
	AccountID      int64
	AccountCode    string
	GrossAmount    decimal.Decimal
	Description    string
}

// DepartmentHeadcount is the non-vacant employee count of one active
// department for a fiscal year.
type DepartmentHeadcount struct {
	DepartmentID int64
	Name         string
	Count        int
}

// Share is one department's computed cut of a distributed total.
type Share struct {
	DepartmentID int64
	Name         string
	Headcount    int
	Amount       decimal.Decimal
}
