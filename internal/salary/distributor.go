package salary

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// Distributor splits a lump-sum salary provision across departments in
// proportion to their active headcount.
type Distributor struct {
	repo Repository
}

// NewDistributor builds a distributor.
func NewDistributor(repo Repository) *Distributor {
	return &Distributor{repo: repo}
}

// Plan computes each department's share of total without persisting
// anything. Departments with zero headcount are skipped. Shares are
// rounded to two decimal places; the department with the smallest
// headcount absorbs the rounding remainder so the shares always sum
// exactly to total.
func (d *Distributor) Plan(ctx context.Context, total decimal.Decimal) ([]Share, error) {
	heads, err := d.repo.ActiveHeadcounts(ctx)
	if err != nil {
		return nil, err
	}
	return computeShares(heads, total)
}

// Distribute computes shares and writes one department budget per share
// in a single transaction. Re-running replaces the allocated amounts
// but never touches consumed_amount.
func (d *Distributor) Distribute(ctx context.Context, fiscalYearID, fundID, accountID int64, total decimal.Decimal) ([]DepartmentBudget, error) {
	var budgets []DepartmentBudget
	err := d.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		heads, err := tx.ActiveHeadcounts(ctx)
		if err != nil {
			return err
		}
		shares, err := computeShares(heads, total)
		if err != nil {
			return err
		}
		for _, share := range shares {
			b, err := tx.UpsertDepartmentBudget(ctx, DepartmentBudget{
				DepartmentID:    share.DepartmentID,
				FiscalYearID:    fiscalYearID,
				FundID:          fundID,
				AccountID:       accountID,
				AllocatedAmount: share.Amount,
			})
			if err != nil {
				return err
			}
			b.DepartmentName = share.Name
			budgets = append(budgets, b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return budgets, nil
}

// computeShares orders departments by headcount descending, name
// ascending on ties, and assigns total*count/sum rounded to 2dp. The
// last department takes total minus the sum already assigned.
func computeShares(heads []DepartmentHeadcount, total decimal.Decimal) ([]Share, error) {
	eligible := make([]DepartmentHeadcount, 0, len(heads))
	totalCount := int64(0)
	for _, h := range heads {
		if h.Count > 0 {
			eligible = append(eligible, h)
			totalCount += int64(h.Count)
		}
	}
	if totalCount == 0 {
		return nil, ErrNoEligibleEmployees
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].Count != eligible[j].Count {
			return eligible[i].Count > eligible[j].Count
		}
		return eligible[i].Name < eligible[j].Name
	})

	shares := make([]Share, 0, len(eligible))
	assigned := decimal.Zero
	for i, h := range eligible {
		var amount decimal.Decimal
		if i == len(eligible)-1 {
			amount = total.Sub(assigned)
		} else {
			amount = total.Mul(decimal.NewFromInt(int64(h.Count))).
				Div(decimal.NewFromInt(totalCount)).Round(2)
			assigned = assigned.Add(amount)
		}
		shares = append(shares, Share{
			DepartmentID: h.DepartmentID,
			Name:         h.Name,
			Headcount:    h.Count,
			Amount:       amount,
		})
	}
	return shares, nil
}
