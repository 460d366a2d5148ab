// Package budget tracks per-organization, per-fiscal-year allocation
// ceilings and the spending posted against them. spent_amount mutates
// only through the ledger posting hook, never directly, so it stays
// reconciled with the general ledger.
package budget

import (
	"time"

	"github.com/shopspring/decimal"
)

// Allocation is the budget envelope for one account in one fiscal year.
type Allocation struct {
	ID                 int64
	OrgID              int64
	FiscalYearID       int64
	AccountID          int64
	OriginalAllocation decimal.Decimal
	RevisedAllocation  decimal.Decimal
	ReleasedAmount     decimal.Decimal
	SpentAmount        decimal.Decimal
	PreviousYearActual decimal.Decimal
	CurrentYearBudget  decimal.Decimal
	Remarks            string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Available returns the remaining ceiling: revised allocation minus spend.
func (a Allocation) Available() decimal.Decimal {
	return a.RevisedAllocation.Sub(a.SpentAmount)
}

// CanSpend reports whether the amount fits under the ceiling.
func (a Allocation) CanSpend(amount decimal.Decimal) bool {
	return a.SpentAmount.Add(amount).LessThanOrEqual(a.RevisedAllocation)
}

// Utilization returns spend as a percentage of the revised allocation,
// zero when nothing is allocated.
func (a Allocation) Utilization() decimal.Decimal {
	if a.RevisedAllocation.IsZero() {
		return decimal.Zero
	}
	return a.SpentAmount.Div(a.RevisedAllocation).Mul(decimal.NewFromInt(100)).Round(2)
}
