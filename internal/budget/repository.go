package budget

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrAllocationNotFound indicates a missing envelope.
var ErrAllocationNotFound = errors.New("budget: allocation not found")

// Repository exposes read and seed access to budget allocations.
// Spend mutations happen only through the ledger posting hook.
type Repository interface {
	Get(ctx context.Context, orgID, fiscalYearID, accountID int64) (Allocation, error)
	ListByFiscalYear(ctx context.Context, orgID, fiscalYearID int64) ([]Allocation, error)
	Upsert(ctx context.Context, a Allocation) (Allocation, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds a pgx-backed Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const allocationColumns = `id, org_id, fiscal_year_id, account_id, original_allocation, revised_allocation,
released_amount, spent_amount, previous_year_actual, current_year_budget, remarks, created_at, updated_at`

func (r *repository) Get(ctx context.Context, orgID, fiscalYearID, accountID int64) (Allocation, error) {
	row := r.db.QueryRow(ctx, `SELECT `+allocationColumns+` FROM budget_allocations
WHERE org_id=$1 AND fiscal_year_id=$2 AND account_id=$3`, orgID, fiscalYearID, accountID)
	return scanAllocation(row)
}

func (r *repository) ListByFiscalYear(ctx context.Context, orgID, fiscalYearID int64) ([]Allocation, error) {
	rows, err := r.db.Query(ctx, `SELECT `+allocationColumns+` FROM budget_allocations
WHERE org_id=$1 AND fiscal_year_id=$2 ORDER BY account_id ASC`, orgID, fiscalYearID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Upsert seeds or revises an allocation. Revised defaults to original
// when unset, matching how envelopes are first approved.
func (r *repository) Upsert(ctx context.Context, a Allocation) (Allocation, error) {
	if a.RevisedAllocation.IsZero() && a.OriginalAllocation.IsPositive() {
		a.RevisedAllocation = a.OriginalAllocation
	}
	row := r.db.QueryRow(ctx, `INSERT INTO budget_allocations
(org_id, fiscal_year_id, account_id, original_allocation, revised_allocation, released_amount, previous_year_actual, current_year_budget, remarks)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (org_id, fiscal_year_id, account_id)
DO UPDATE SET original_allocation=EXCLUDED.original_allocation, revised_allocation=EXCLUDED.revised_allocation,
released_amount=EXCLUDED.released_amount, previous_year_actual=EXCLUDED.previous_year_actual,
current_year_budget=EXCLUDED.current_year_budget, remarks=EXCLUDED.remarks, updated_at=NOW()
RETURNING `+allocationColumns,
		a.OrgID, a.FiscalYearID, a.AccountID,
		a.OriginalAllocation.StringFixed(2), a.RevisedAllocation.StringFixed(2), a.ReleasedAmount.StringFixed(2),
		a.PreviousYearActual.StringFixed(2), a.CurrentYearBudget.StringFixed(2), a.Remarks)
	return scanAllocation(row)
}

func scanAllocation(row pgx.Row) (Allocation, error) {
	var a Allocation
	var original, revised, released, spent, prev, curr string
	err := row.Scan(&a.ID, &a.OrgID, &a.FiscalYearID, &a.AccountID, &original, &revised,
		&released, &spent, &prev, &curr, &a.Remarks, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Allocation{}, ErrAllocationNotFound
		}
		return Allocation{}, err
	}
	for _, pair := range []struct {
		src string
		dst *decimal.Decimal
	}{
		{original, &a.OriginalAllocation},
		{revised, &a.RevisedAllocation},
		{released, &a.ReleasedAmount},
		{spent, &a.SpentAmount},
		{prev, &a.PreviousYearActual},
		{curr, &a.CurrentYearBudget},
	} {
		if *pair.dst, err = decimal.NewFromString(pair.src); err != nil {
			return Allocation{}, err
		}
	}
	return a, nil
}
