package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/civicledger/civicledger/internal/ledger"
	"github.com/civicledger/civicledger/internal/refdata"
	"github.com/civicledger/civicledger/internal/salary"
)

type options struct {
	FiscalYear string
	Fund       string
	Account    string
	Amount     string
	DryRun     bool
}

type referenceSource interface {
	GetFiscalYearByCode(ctx context.Context, code string) (refdata.FiscalYear, error)
	GetFundByCode(ctx context.Context, code string) (refdata.Fund, error)
}

type accountSource interface {
	GetAccountByCode(ctx context.Context, code string) (ledger.Account, error)
}

type distributor interface {
	Plan(ctx context.Context, total decimal.Decimal) ([]salary.Share, error)
	Distribute(ctx context.Context, fiscalYearID, fundID, accountID int64, total decimal.Decimal) ([]salary.DepartmentBudget, error)
}

func run(ctx context.Context, opts options, refs referenceSource, accounts accountSource, dist distributor, out io.Writer) error {
	total, err := decimal.NewFromString(opts.Amount)
	if err != nil {
		return fmt.Errorf("parse amount %q: %w", opts.Amount, err)
	}
	if !total.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", total)
	}

	if opts.FiscalYear == "" || opts.Fund == "" || opts.Account == "" {
		return fmt.Errorf("-fy, -fund and -account are required")
	}
	fy, err := refs.GetFiscalYearByCode(ctx, opts.FiscalYear)
	if err != nil {
		return fmt.Errorf("fiscal year %s: %w", opts.FiscalYear, err)
	}
	fund, err := refs.GetFundByCode(ctx, opts.Fund)
	if err != nil {
		return fmt.Errorf("fund %s: %w", opts.Fund, err)
	}
	account, err := accounts.GetAccountByCode(ctx, opts.Account)
	if err != nil {
		return fmt.Errorf("account %s: %w", opts.Account, err)
	}

	if opts.DryRun {
		shares, err := dist.Plan(ctx, total)
		if err != nil {
			return err
		}
		return printShares(out, shares, total)
	}

	budgets, err := dist.Distribute(ctx, fy.ID, fund.ID, account.ID, total)
	if err != nil {
		return err
	}
	return printBudgets(out, budgets, total)
}

func printShares(out io.Writer, shares []salary.Share, total decimal.Decimal) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DEPARTMENT\tHEADCOUNT\tAMOUNT\tSHARE")
	hundred := decimal.NewFromInt(100)
	sum := decimal.Zero
	for _, s := range shares {
		sum = sum.Add(s.Amount)
		pct := s.Amount.Mul(hundred).Div(total).Round(2)
		fmt.Fprintf(w, "%s\t%d\t%s\t%s%%\n", s.Name, s.Headcount, s.Amount.StringFixed(2), pct.StringFixed(2))
	}
	fmt.Fprintf(w, "TOTAL\t\t%s\t\n", sum.StringFixed(2))
	if err := w.Flush(); err != nil {
		return err
	}
	if !sum.Equal(total) {
		return fmt.Errorf("plan total %s does not match requested %s", sum.StringFixed(2), total.StringFixed(2))
	}
	return nil
}

func printBudgets(out io.Writer, budgets []salary.DepartmentBudget, total decimal.Decimal) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DEPARTMENT\tALLOCATED\tCONSUMED\tAVAILABLE")
	sum := decimal.Zero
	for _, b := range budgets {
		sum = sum.Add(b.AllocatedAmount)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.DepartmentName, b.AllocatedAmount.StringFixed(2), b.ConsumedAmount.StringFixed(2), b.Available().StringFixed(2))
	}
	fmt.Fprintf(w, "TOTAL\t%s\t\t\n", sum.StringFixed(2))
	if err := w.Flush(); err != nil {
		return err
	}
	if !sum.Equal(total) {
		return fmt.Errorf("allocated total %s does not match requested %s", sum.StringFixed(2), total.StringFixed(2))
	}
	return nil
}
