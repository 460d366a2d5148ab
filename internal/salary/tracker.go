package salary

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/civicledger/civicledger/internal/shared"
)

// AuditPort records bill actions outside the budget transaction.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Notifier delivers bill workflow notifications. Delivery failures are
// logged by the implementation and never fail the workflow.
type Notifier interface {
	BillApproved(ctx context.Context, bill Bill)
	BillCancelled(ctx context.Context, bill Bill, reason string)
}

// Tracker runs the salary bill workflow against department budgets.
// Approval consumes budget inside one transaction; cancellation
// releases it again.
type Tracker struct {
	repo     Repository
	audit    AuditPort
	notifier Notifier
	now      func() time.Time
}

// NewTracker builds a tracker. audit and notifier may be nil.
func NewTracker(repo Repository, audit AuditPort, notifier Notifier) *Tracker {
	return &Tracker{repo: repo, audit: audit, notifier: notifier, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (t *Tracker) WithNow(now func() time.Time) {
	if now != nil {
		t.now = now
	}
}

// billCharge is a bill's lines aggregated per (department, account).
type billCharge struct {
	DepartmentID   int64
	DepartmentName string
	AccountID      int64
	AccountCode    string
	Amount         decimal.Decimal
	Employees      int
}

// aggregateLines groups lines by department and account in a stable
// order so validation messages and consumption rows are deterministic.
func aggregateLines(lines []BillLine) []billCharge {
	index := make(map[[2]int64]int)
	var charges []billCharge
	for _, line := range lines {
		key := [2]int64{line.DepartmentID, line.AccountID}
		i, ok := index[key]
		if !ok {
			i = len(charges)
			index[key] = i
			charges = append(charges, billCharge{
				DepartmentID:   line.DepartmentID,
				DepartmentName: line.DepartmentName,
				AccountID:      line.AccountID,
				AccountCode:    line.AccountCode,
			})
		}
		charges[i].Amount = charges[i].Amount.Add(line.GrossAmount)
		charges[i].Employees++
	}
	sort.Slice(charges, func(i, j int) bool {
		if charges[i].DepartmentName != charges[j].DepartmentName {
			return charges[i].DepartmentName < charges[j].DepartmentName
		}
		return charges[i].AccountCode < charges[j].AccountCode
	})
	return charges
}

// Validate checks every department charge of a bill against its budget
// and returns all problems found, not just the first.
func (t *Tracker) Validate(ctx context.Context, billID int64) ([]string, error) {
	bill, err := t.repo.GetBill(ctx, billID)
	if err != nil {
		return nil, err
	}
	lines, err := t.repo.ListBillLines(ctx, billID)
	if err != nil {
		return nil, err
	}
	var problems []string
	if len(lines) == 0 {
		problems = append(problems, "bill has no lines")
	}
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.GrossAmount)
	}
	if len(lines) > 0 && !total.Equal(bill.GrossAmount) {
		problems = append(problems, fmt.Sprintf("bill gross %s does not match line total %s",
			bill.GrossAmount.StringFixed(2), total.StringFixed(2)))
	}
	for _, charge := range aggregateLines(lines) {
		budget, err := t.repo.GetDepartmentBudget(ctx, charge.DepartmentID, bill.FiscalYearID, bill.FundID, charge.AccountID)
		if err != nil {
			if errors.Is(err, ErrBudgetNotFound) {
				problems = append(problems, fmt.Sprintf("no salary budget for department %q account %s",
					charge.DepartmentName, charge.AccountCode))
				continue
			}
			return nil, err
		}
		if !budget.CanAccommodate(charge.Amount) {
			problems = append(problems, fmt.Sprintf("department %q account %s: requires %s but only %s available",
				charge.DepartmentName, charge.AccountCode, charge.Amount.StringFixed(2), budget.Available().StringFixed(2)))
		}
	}
	return problems, nil
}

// Submit moves a draft bill to submitted after a clean validation.
func (t *Tracker) Submit(ctx context.Context, billID, actorID int64) (Bill, error) {
	problems, err := t.Validate(ctx, billID)
	if err != nil {
		return Bill{}, err
	}
	if len(problems) > 0 {
		return Bill{}, &ValidationError{Messages: problems}
	}
	err = t.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetBillStatus(ctx, billID, BillStatusDraft, BillStatusSubmitted, actorID, "", t.now())
	})
	if err != nil {
		return Bill{}, err
	}
	t.recordAudit(ctx, actorID, "bill.submit", billID, nil)
	return t.repo.GetBill(ctx, billID)
}

// Approve consumes department budgets for a submitted bill. The status
// transition, the guarded consumption updates and the consumption
// records commit together, so a failed envelope leaves every budget
// untouched. All envelope problems are re-checked under lock and
// reported together.
func (t *Tracker) Approve(ctx context.Context, billID, actorID int64) (Bill, error) {
	var bill Bill
	err := t.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.GetBillForUpdate(ctx, billID)
		if err != nil {
			return err
		}
		if locked.Status != BillStatusSubmitted {
			return fmt.Errorf("%w: cannot approve bill in status %s", ErrInvalidTransition, locked.Status)
		}
		lines, err := tx.ListBillLines(ctx, billID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return &ValidationError{Messages: []string{"bill has no lines"}}
		}
		charges := aggregateLines(lines)

		var problems []string
		budgets := make([]DepartmentBudget, len(charges))
		for i, charge := range charges {
			budget, err := tx.GetDepartmentBudgetForUpdate(ctx, charge.DepartmentID, locked.FiscalYearID, locked.FundID, charge.AccountID)
			if err != nil {
				if errors.Is(err, ErrBudgetNotFound) {
					problems = append(problems, fmt.Sprintf("no salary budget for department %q account %s",
						charge.DepartmentName, charge.AccountCode))
					continue
				}
				return err
			}
			if !budget.CanAccommodate(charge.Amount) {
				problems = append(problems, fmt.Sprintf("department %q account %s: requires %s but only %s available",
					charge.DepartmentName, charge.AccountCode, charge.Amount.StringFixed(2), budget.Available().StringFixed(2)))
				continue
			}
			budgets[i] = budget
		}
		if len(problems) > 0 {
			return &ValidationError{Messages: problems}
		}

		for i, charge := range charges {
			if err := tx.ConsumeBudget(ctx, budgets[i].ID, charge.Amount); err != nil {
				return fmt.Errorf("department %q account %s: %w", charge.DepartmentName, charge.AccountCode, err)
			}
			if _, err := tx.InsertConsumption(ctx, Consumption{
				DepartmentBudgetID: budgets[i].ID,
				BillID:             billID,
				Amount:             charge.Amount,
				EmployeeCount:      charge.Employees,
			}); err != nil {
				return err
			}
		}
		return tx.SetBillStatus(ctx, billID, BillStatusSubmitted, BillStatusApproved, actorID, "", t.now())
	})
	if err != nil {
		return Bill{}, err
	}
	bill, err = t.repo.GetBill(ctx, billID)
	if err != nil {
		return Bill{}, err
	}
	t.recordAudit(ctx, actorID, "bill.approve", billID, map[string]any{"gross": bill.GrossAmount.StringFixed(2)})
	if t.notifier != nil {
		t.notifier.BillApproved(ctx, bill)
	}
	return bill, nil
}

// Cancel releases an approved bill's consumption and marks it
// cancelled.
func (t *Tracker) Cancel(ctx context.Context, billID, actorID int64, reason string) (Bill, error) {
	err := t.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.GetBillForUpdate(ctx, billID)
		if err != nil {
			return err
		}
		if locked.Status != BillStatusApproved {
			return fmt.Errorf("%w: cannot cancel bill in status %s", ErrInvalidTransition, locked.Status)
		}
		if err := releaseTx(ctx, tx, billID); err != nil {
			return err
		}
		return tx.SetBillStatus(ctx, billID, BillStatusApproved, BillStatusCancelled, actorID, reason, t.now())
	})
	if err != nil {
		return Bill{}, err
	}
	bill, err := t.repo.GetBill(ctx, billID)
	if err != nil {
		return Bill{}, err
	}
	t.recordAudit(ctx, actorID, "bill.cancel", billID, map[string]any{"reason": reason})
	if t.notifier != nil {
		t.notifier.BillCancelled(ctx, bill, reason)
	}
	return bill, nil
}

// Release reverses a bill's active consumption rows without touching
// the bill status. Safe to call repeatedly: already-reversed rows are
// skipped, so a second call is a no-op.
func (t *Tracker) Release(ctx context.Context, billID int64) error {
	return t.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return releaseTx(ctx, tx, billID)
	})
}

func releaseTx(ctx context.Context, tx TxRepository, billID int64) error {
	consumptions, err := tx.ListActiveConsumptions(ctx, billID)
	if err != nil {
		return err
	}
	for _, c := range consumptions {
		if err := tx.ReleaseBudget(ctx, c.DepartmentBudgetID, c.Amount); err != nil {
			return err
		}
		if err := tx.MarkConsumptionReversed(ctx, c.ID); err != nil {
			return err
		}
	}
	return nil
}

// HighUtilization lists department budgets at or above threshold
// percent, for the overdue-alert scan.
func (t *Tracker) HighUtilization(ctx context.Context, fiscalYearID int64, threshold decimal.Decimal) ([]DepartmentBudget, error) {
	budgets, err := t.repo.ListDepartmentBudgets(ctx, fiscalYearID)
	if err != nil {
		return nil, err
	}
	var out []DepartmentBudget
	for _, b := range budgets {
		if b.Utilization().GreaterThanOrEqual(threshold) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (t *Tracker) recordAudit(ctx context.Context, actorID int64, action string, billID int64, meta map[string]any) {
	if t.audit == nil {
		return
	}
	_ = t.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "salary_bill",
		EntityID: fmt.Sprintf("%d", billID),
		Meta:     meta,
		At:       t.now(),
	})
}
