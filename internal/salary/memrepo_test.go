package salary

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// memRepo backs tracker and distributor tests without a database. It
// implements both Repository and TxRepository; WithTx just runs the
// callback, so partial-failure rollback is asserted via guarded method
// errors rather than transactional state.
type memRepo struct {
	heads        []DepartmentHeadcount
	budgets      map[int64]DepartmentBudget
	bills        map[int64]Bill
	lines        map[int64][]BillLine
	consumptions map[int64]Consumption
	nextID       int64
}

func newMemRepo() *memRepo {
	return &memRepo{
		budgets:      map[int64]DepartmentBudget{},
		bills:        map[int64]Bill{},
		lines:        map[int64][]BillLine{},
		consumptions: map[int64]Consumption{},
	}
}

func (m *memRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memRepo) addBudget(b DepartmentBudget) DepartmentBudget {
	b.ID = m.id()
	m.budgets[b.ID] = b
	return b
}

func (m *memRepo) addBill(b Bill) Bill {
	b.ID = m.id()
	m.bills[b.ID] = b
	return b
}

func (m *memRepo) addLine(l BillLine) {
	l.ID = m.id()
	m.lines[l.BillID] = append(m.lines[l.BillID], l)
}

func (m *memRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memRepo) ActiveHeadcounts(ctx context.Context) ([]DepartmentHeadcount, error) {
	return m.heads, nil
}

func (m *memRepo) findBudget(departmentID, fiscalYearID, fundID, accountID int64) (DepartmentBudget, bool) {
	for _, b := range m.budgets {
		if b.DepartmentID == departmentID && b.FiscalYearID == fiscalYearID &&
			b.FundID == fundID && b.AccountID == accountID {
			return b, true
		}
	}
	return DepartmentBudget{}, false
}

func (m *memRepo) GetDepartmentBudget(ctx context.Context, departmentID, fiscalYearID, fundID, accountID int64) (DepartmentBudget, error) {
	if b, ok := m.findBudget(departmentID, fiscalYearID, fundID, accountID); ok {
		return b, nil
	}
	return DepartmentBudget{}, ErrBudgetNotFound
}

func (m *memRepo) GetDepartmentBudgetForUpdate(ctx context.Context, departmentID, fiscalYearID, fundID, accountID int64) (DepartmentBudget, error) {
	return m.GetDepartmentBudget(ctx, departmentID, fiscalYearID, fundID, accountID)
}

func (m *memRepo) ListDepartmentBudgets(ctx context.Context, fiscalYearID int64) ([]DepartmentBudget, error) {
	var out []DepartmentBudget
	for _, b := range m.budgets {
		if b.FiscalYearID == fiscalYearID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memRepo) UpsertDepartmentBudget(ctx context.Context, b DepartmentBudget) (DepartmentBudget, error) {
	if existing, ok := m.findBudget(b.DepartmentID, b.FiscalYearID, b.FundID, b.AccountID); ok {
		existing.AllocatedAmount = b.AllocatedAmount
		m.budgets[existing.ID] = existing
		return existing, nil
	}
	return m.addBudget(b), nil
}

func (m *memRepo) GetBill(ctx context.Context, id int64) (Bill, error) {
	b, ok := m.bills[id]
	if !ok {
		return Bill{}, ErrBillNotFound
	}
	return b, nil
}

func (m *memRepo) GetBillForUpdate(ctx context.Context, id int64) (Bill, error) {
	return m.GetBill(ctx, id)
}

func (m *memRepo) ListBillLines(ctx context.Context, billID int64) ([]BillLine, error) {
	return m.lines[billID], nil
}

func (m *memRepo) ConsumeBudget(ctx context.Context, budgetID int64, amount decimal.Decimal) error {
	b, ok := m.budgets[budgetID]
	if !ok {
		return ErrBudgetNotFound
	}
	if b.ConsumedAmount.Add(amount).GreaterThan(b.AllocatedAmount) {
		return ErrInsufficientBudget
	}
	b.ConsumedAmount = b.ConsumedAmount.Add(amount)
	m.budgets[budgetID] = b
	return nil
}

func (m *memRepo) ReleaseBudget(ctx context.Context, budgetID int64, amount decimal.Decimal) error {
	b, ok := m.budgets[budgetID]
	if !ok {
		return ErrBudgetNotFound
	}
	b.ConsumedAmount = b.ConsumedAmount.Sub(amount)
	if b.ConsumedAmount.IsNegative() {
		b.ConsumedAmount = decimal.Zero
	}
	m.budgets[budgetID] = b
	return nil
}

func (m *memRepo) InsertConsumption(ctx context.Context, c Consumption) (Consumption, error) {
	c.ID = m.id()
	c.CreatedAt = time.Now()
	m.consumptions[c.ID] = c
	return c, nil
}

func (m *memRepo) ListActiveConsumptions(ctx context.Context, billID int64) ([]Consumption, error) {
	var out []Consumption
	for id := int64(1); id <= m.nextID; id++ {
		c, ok := m.consumptions[id]
		if ok && c.BillID == billID && !c.Reversed {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memRepo) MarkConsumptionReversed(ctx context.Context, id int64) error {
	c, ok := m.consumptions[id]
	if !ok {
		return nil
	}
	c.Reversed = true
	m.consumptions[id] = c
	return nil
}

func (m *memRepo) SetBillStatus(ctx context.Context, billID int64, from, to BillStatus, actorID int64, reason string, at time.Time) error {
	b, ok := m.bills[billID]
	if !ok || b.Status != from {
		return ErrInvalidTransition
	}
	b.Status = to
	switch to {
	case BillStatusSubmitted:
		b.SubmittedBy, b.SubmittedAt = &actorID, &at
	case BillStatusApproved:
		b.ApprovedBy, b.ApprovedAt = &actorID, &at
	case BillStatusCancelled:
		b.CancelledBy, b.CancelledAt = &actorID, &at
		b.CancellationReason = reason
	}
	m.bills[billID] = b
	return nil
}
