package salary

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/civicledger/civicledger/internal/platform/db"
)

// Repository exposes salary budget and bill persistence.
type Repository interface {
	ActiveHeadcounts(ctx context.Context) ([]DepartmentHeadcount, error)
	GetDepartmentBudget(ctx context.Context, departmentID, fiscalYearID, fundID, accountID int64) (DepartmentBudget, error)
	ListDepartmentBudgets(ctx context.Context, fiscalYearID int64) ([]DepartmentBudget, error)
	GetBill(ctx context.Context, id int64) (Bill, error)
	ListBillLines(ctx context.Context, billID int64) ([]BillLine, error)
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
}

// TxRepository is the transactional surface used by distribution and
// the consumption tracker.
type TxRepository interface {
	ActiveHeadcounts(ctx context.Context) ([]DepartmentHeadcount, error)
	UpsertDepartmentBudget(ctx context.Context, b DepartmentBudget) (DepartmentBudget, error)
	GetBillForUpdate(ctx context.Context, id int64) (Bill, error)
	ListBillLines(ctx context.Context, billID int64) ([]BillLine, error)
	GetDepartmentBudgetForUpdate(ctx context.Context, departmentID, fiscalYearID, fundID, accountID int64) (DepartmentBudget, error)
	ConsumeBudget(ctx context.Context, budgetID int64, amount decimal.Decimal) error
	ReleaseBudget(ctx context.Context, budgetID int64, amount decimal.Decimal) error
	InsertConsumption(ctx context.Context, c Consumption) (Consumption, error)
	ListActiveConsumptions(ctx context.Context, billID int64) ([]Consumption, error)
	MarkConsumptionReversed(ctx context.Context, id int64) error
	SetBillStatus(ctx context.Context, billID int64, from, to BillStatus, actorID int64, reason string, at time.Time) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds a pgx-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const headcountQuery = `SELECT d.id, d.name, COUNT(e.id)
FROM departments d
LEFT JOIN employees e ON e.department_id = d.id AND e.active AND NOT e.vacant
WHERE d.active
GROUP BY d.id, d.name
ORDER BY d.name ASC`

func (r *repository) ActiveHeadcounts(ctx context.Context) ([]DepartmentHeadcount, error) {
	rows, err := r.db.Query(ctx, headcountQuery)
	if err != nil {
		return nil, err
	}
	return collectHeadcounts(rows)
}

const budgetColumns = `b.id, b.department_id, d.name, b.fiscal_year_id, b.fund_id, b.account_id, a.code,
b.allocated_amount, b.consumed_amount, b.created_at, b.updated_at`

const budgetFrom = ` FROM department_salary_budgets b
JOIN departments d ON d.id = b.department_id
JOIN accounts a ON a.id = b.account_id`

func (r *repository) GetDepartmentBudget(ctx context.Context, departmentID, fiscalYearID, fundID, accountID int64) (DepartmentBudget, error) {
	row := r.db.QueryRow(ctx, `SELECT `+budgetColumns+budgetFrom+`
WHERE b.department_id=$1 AND b.fiscal_year_id=$2 AND b.fund_id=$3 AND b.account_id=$4`,
		departmentID, fiscalYearID, fundID, accountID)
	return scanBudget(row)
}

func (r *repository) ListDepartmentBudgets(ctx context.Context, fiscalYearID int64) ([]DepartmentBudget, error) {
	rows, err := r.db.Query(ctx, `SELECT `+budgetColumns+budgetFrom+`
WHERE b.fiscal_year_id=$1 ORDER BY d.name ASC`, fiscalYearID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DepartmentBudget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

const billColumns = `id, number, org_id, fiscal_year_id, fund_id, gross_amount, status,
submitted_by, submitted_at, approved_by, approved_at, cancelled_by, cancelled_at,
cancellation_reason, created_at, updated_at`

func (r *repository) GetBill(ctx context.Context, id int64) (Bill, error) {
	row := r.db.QueryRow(ctx, `SELECT `+billColumns+` FROM salary_bills WHERE id=$1`, id)
	return scanBill(row)
}

func (r *repository) ListBillLines(ctx context.Context, billID int64) ([]BillLine, error) {
	return listBillLines(ctx, r.db, billID)
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) ActiveHeadcounts(ctx context.Context) ([]DepartmentHeadcount, error) {
	rows, err := r.tx.Query(ctx, headcountQuery)
	if err != nil {
		return nil, err
	}
	return collectHeadcounts(rows)
}

// UpsertDepartmentBudget writes the allocated amount and leaves
// consumed_amount untouched on conflict.
func (r *txRepository) UpsertDepartmentBudget(ctx context.Context, b DepartmentBudget) (DepartmentBudget, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO department_salary_budgets
(department_id, fiscal_year_id, fund_id, account_id, allocated_amount)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (department_id, fiscal_year_id, fund_id, account_id)
DO UPDATE SET allocated_amount=EXCLUDED.allocated_amount, updated_at=NOW()
RETURNING id, department_id, fiscal_year_id, fund_id, account_id, allocated_amount, consumed_amount, created_at, updated_at`,
		b.DepartmentID, b.FiscalYearID, b.FundID, b.AccountID, b.AllocatedAmount.StringFixed(2))
	var out DepartmentBudget
	var allocated, consumed string
	err := row.Scan(&out.ID, &out.DepartmentID, &out.FiscalYearID, &out.FundID, &out.AccountID,
		&allocated, &consumed, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return DepartmentBudget{}, err
	}
	if out.AllocatedAmount, err = decimal.NewFromString(allocated); err != nil {
		return DepartmentBudget{}, err
	}
	if out.ConsumedAmount, err = decimal.NewFromString(consumed); err != nil {
		return DepartmentBudget{}, err
	}
	return out, nil
}

func (r *txRepository) GetBillForUpdate(ctx context.Context, id int64) (Bill, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+billColumns+` FROM salary_bills WHERE id=$1 FOR UPDATE`, id)
	return scanBill(row)
}

func (r *txRepository) ListBillLines(ctx context.Context, billID int64) ([]BillLine, error) {
	return listBillLines(ctx, r.tx, billID)
}

func (r *txRepository) GetDepartmentBudgetForUpdate(ctx context.Context, departmentID, fiscalYearID, fundID, accountID int64) (DepartmentBudget, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+budgetColumns+budgetFrom+`
WHERE b.department_id=$1 AND b.fiscal_year_id=$2 AND b.fund_id=$3 AND b.account_id=$4
FOR UPDATE OF b`, departmentID, fiscalYearID, fundID, accountID)
	return scanBudget(row)
}

// ConsumeBudget moves the envelope forward only when the amount still
// fits, so concurrent approvals cannot overdraw it.
func (r *txRepository) ConsumeBudget(ctx context.Context, budgetID int64, amount decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx, `UPDATE department_salary_budgets
SET consumed_amount = consumed_amount + $2, updated_at = NOW()
WHERE id = $1 AND consumed_amount + $2 <= allocated_amount`, budgetID, amount.StringFixed(2))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientBudget
	}
	return nil
}

// ReleaseBudget gives consumption back, clamping at zero.
func (r *txRepository) ReleaseBudget(ctx context.Context, budgetID int64, amount decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE department_salary_budgets
SET consumed_amount = GREATEST(consumed_amount - $2, 0), updated_at = NOW()
WHERE id = $1`, budgetID, amount.StringFixed(2))
	return err
}

func (r *txRepository) InsertConsumption(ctx context.Context, c Consumption) (Consumption, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO salary_bill_consumptions
(department_budget_id, bill_id, amount, employee_count)
VALUES ($1,$2,$3,$4)
RETURNING id, created_at`, c.DepartmentBudgetID, c.BillID, c.Amount.StringFixed(2), c.EmployeeCount)
	if err := row.Scan(&c.ID, &c.CreatedAt); err != nil {
		return Consumption{}, err
	}
	return c, nil
}

func (r *txRepository) ListActiveConsumptions(ctx context.Context, billID int64) ([]Consumption, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, department_budget_id, bill_id, amount, employee_count, reversed, created_at
FROM salary_bill_consumptions WHERE bill_id=$1 AND NOT reversed
ORDER BY id ASC FOR UPDATE`, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Consumption
	for rows.Next() {
		var c Consumption
		var amount string
		if err := rows.Scan(&c.ID, &c.DepartmentBudgetID, &c.BillID, &amount, &c.EmployeeCount, &c.Reversed, &c.CreatedAt); err != nil {
			return nil, err
		}
		if c.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *txRepository) MarkConsumptionReversed(ctx context.Context, id int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE salary_bill_consumptions SET reversed = TRUE WHERE id=$1 AND NOT reversed`, id)
	return err
}

// SetBillStatus performs a guarded transition and stamps the actor
// column matching the target status.
func (r *txRepository) SetBillStatus(ctx context.Context, billID int64, from, to BillStatus, actorID int64, reason string, at time.Time) error {
	var query string
	switch to {
	case BillStatusSubmitted:
		query = `UPDATE salary_bills SET status=$2, submitted_by=$3, submitted_at=$4, updated_at=NOW()
WHERE id=$1 AND status=$5`
	case BillStatusApproved:
		query = `UPDATE salary_bills SET status=$2, approved_by=$3, approved_at=$4, updated_at=NOW()
WHERE id=$1 AND status=$5`
	case BillStatusCancelled:
		query = `UPDATE salary_bills SET status=$2, cancelled_by=$3, cancelled_at=$4, cancellation_reason=$6, updated_at=NOW()
WHERE id=$1 AND status=$5`
	default:
		return ErrInvalidTransition
	}
	args := []any{billID, to, actorID, at, from}
	if to == BillStatusCancelled {
		args = append(args, reason)
	}
	tag, err := r.tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func collectHeadcounts(rows pgx.Rows) ([]DepartmentHeadcount, error) {
	defer rows.Close()
	var out []DepartmentHeadcount
	for rows.Next() {
		var h DepartmentHeadcount
		if err := rows.Scan(&h.DepartmentID, &h.Name, &h.Count); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listBillLines(ctx context.Context, q queryer, billID int64) ([]BillLine, error) {
	rows, err := q.Query(ctx, `SELECT l.id, l.bill_id, l.employee_id, l.department_id, d.name, l.account_id, a.code, l.gross_amount, l.description
FROM salary_bill_lines l
JOIN departments d ON d.id = l.department_id
JOIN accounts a ON a.id = l.account_id
WHERE l.bill_id=$1 ORDER BY l.id ASC`, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BillLine
	for rows.Next() {
		var l BillLine
		var amount string
		if err := rows.Scan(&l.ID, &l.BillID, &l.EmployeeID, &l.DepartmentID, &l.DepartmentName,
			&l.AccountID, &l.AccountCode, &amount, &l.Description); err != nil {
			return nil, err
		}
		if l.GrossAmount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanBudget(row pgx.Row) (DepartmentBudget, error) {
	var b DepartmentBudget
	var allocated, consumed string
	err := row.Scan(&b.ID, &b.DepartmentID, &b.DepartmentName, &b.FiscalYearID, &b.FundID,
		&b.AccountID, &b.AccountCode, &allocated, &consumed, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DepartmentBudget{}, ErrBudgetNotFound
		}
		return DepartmentBudget{}, err
	}
	if b.AllocatedAmount, err = decimal.NewFromString(allocated); err != nil {
		return DepartmentBudget{}, err
	}
	if b.ConsumedAmount, err = decimal.NewFromString(consumed); err != nil {
		return DepartmentBudget{}, err
	}
	return b, nil
}

func scanBill(row pgx.Row) (Bill, error) {
	var b Bill
	var gross string
	err := row.Scan(&b.ID, &b.Number, &b.OrgID, &b.FiscalYearID, &b.FundID, &gross, &b.Status,
		&b.SubmittedBy, &b.SubmittedAt, &b.ApprovedBy, &b.ApprovedAt, &b.CancelledBy, &b.CancelledAt,
		&b.CancellationReason, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bill{}, ErrBillNotFound
		}
		return Bill{}, err
	}
	if b.GrossAmount, err = decimal.NewFromString(gross); err != nil {
		return Bill{}, err
	}
	return b, nil
}
