package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicledger/civicledger/internal/ledger"
	"github.com/civicledger/civicledger/internal/refdata"
	"github.com/civicledger/civicledger/internal/salary"
)

type fakeRefs struct {
	fiscalYears map[string]refdata.FiscalYear
	funds       map[string]refdata.Fund
}

func (f fakeRefs) GetFiscalYearByCode(_ context.Context, code string) (refdata.FiscalYear, error) {
	fy, ok := f.fiscalYears[code]
	if !ok {
		return refdata.FiscalYear{}, refdata.ErrNotFound
	}
	return fy, nil
}

func (f fakeRefs) GetFundByCode(_ context.Context, code string) (refdata.Fund, error) {
	fund, ok := f.funds[code]
	if !ok {
		return refdata.Fund{}, refdata.ErrNotFound
	}
	return fund, nil
}

type fakeAccounts struct {
	accounts map[string]ledger.Account
}

func (f fakeAccounts) GetAccountByCode(_ context.Context, code string) (ledger.Account, error) {
	acct, ok := f.accounts[code]
	if !ok {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return acct, nil
}

type fakeDistributor struct {
	shares      []salary.Share
	budgets     []salary.DepartmentBudget
	distributed bool
	gotFY       int64
	gotFund     int64
	gotAccount  int64
}

func (f *fakeDistributor) Plan(_ context.Context, _ decimal.Decimal) ([]salary.Share, error) {
	return f.shares, nil
}

func (f *fakeDistributor) Distribute(_ context.Context, fiscalYearID, fundID, accountID int64, _ decimal.Decimal) ([]salary.DepartmentBudget, error) {
	f.distributed = true
	f.gotFY, f.gotFund, f.gotAccount = fiscalYearID, fundID, accountID
	return f.budgets, nil
}

func fixtureRefs() (fakeRefs, fakeAccounts) {
	refs := fakeRefs{
		fiscalYears: map[string]refdata.FiscalYear{"2025-26": {ID: 7, Code: "2025-26"}},
		funds:       map[string]refdata.Fund{"GF": {ID: 3, Code: "GF"}},
	}
	accounts := fakeAccounts{
		accounts: map[string]ledger.Account{"2101": {ID: 11, Code: "2101", Type: ledger.AccountTypeExpenditure}},
	}
	return refs, accounts
}

func TestRunDryRunPrintsPlanWithoutPersisting(t *testing.T) {
	refs, accounts := fixtureRefs()
	dist := &fakeDistributor{shares: []salary.Share{
		{DepartmentID: 1, Name: "Infrastructure", Headcount: 400, Amount: decimal.RequireFromString("400279320.17")},
		{DepartmentID: 2, Name: "Administration", Headcount: 200, Amount: decimal.RequireFromString("200139660.08")},
		{DepartmentID: 3, Name: "Planning", Headcount: 150, Amount: decimal.RequireFromString("150104745.06")},
		{DepartmentID: 4, Name: "Regulations", Headcount: 142, Amount: decimal.RequireFromString("142099158.66")},
		{DepartmentID: 5, Name: "Finance", Headcount: 50, Amount: decimal.RequireFromString("50034915.03")},
	}}

	var out bytes.Buffer
	opts := options{FiscalYear: "2025-26", Fund: "GF", Account: "2101", Amount: "942657799", DryRun: true}
	err := run(context.Background(), opts, refs, accounts, dist, &out)
	require.NoError(t, err)

	assert.False(t, dist.distributed)
	assert.Contains(t, out.String(), "Infrastructure")
	assert.Contains(t, out.String(), "942657799.00")
}

func TestRunDistributeResolvesCodes(t *testing.T) {
	refs, accounts := fixtureRefs()
	dist := &fakeDistributor{budgets: []salary.DepartmentBudget{
		{DepartmentName: "Administration", AllocatedAmount: decimal.RequireFromString("600.00"), ConsumedAmount: decimal.Zero},
		{DepartmentName: "Finance", AllocatedAmount: decimal.RequireFromString("400.00"), ConsumedAmount: decimal.Zero},
	}}

	var out bytes.Buffer
	opts := options{FiscalYear: "2025-26", Fund: "GF", Account: "2101", Amount: "1000"}
	err := run(context.Background(), opts, refs, accounts, dist, &out)
	require.NoError(t, err)

	assert.True(t, dist.distributed)
	assert.Equal(t, int64(7), dist.gotFY)
	assert.Equal(t, int64(3), dist.gotFund)
	assert.Equal(t, int64(11), dist.gotAccount)
	assert.Contains(t, out.String(), "1000.00")
}

func TestRunRejectsUnknownCodes(t *testing.T) {
	refs, accounts := fixtureRefs()
	dist := &fakeDistributor{}

	var out bytes.Buffer
	opts := options{FiscalYear: "1999-00", Fund: "GF", Account: "2101", Amount: "1000"}
	err := run(context.Background(), opts, refs, accounts, dist, &out)
	require.ErrorIs(t, err, refdata.ErrNotFound)
	assert.False(t, dist.distributed)

	opts = options{FiscalYear: "2025-26", Fund: "GF", Account: "0000", Amount: "1000"}
	err = run(context.Background(), opts, refs, accounts, dist, &out)
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)

	opts = options{FiscalYear: "1999-00", Fund: "NOPE", Account: "0000", Amount: "1000", DryRun: true}
	err = run(context.Background(), opts, refs, accounts, dist, &out)
	require.ErrorIs(t, err, refdata.ErrNotFound)
	assert.False(t, dist.distributed)
}

func TestRunRejectsBadAmount(t *testing.T) {
	refs, accounts := fixtureRefs()
	dist := &fakeDistributor{}

	var out bytes.Buffer
	err := run(context.Background(), options{Amount: "abc", DryRun: true}, refs, accounts, dist, &out)
	require.Error(t, err)

	err = run(context.Background(), options{Amount: "-5", DryRun: true}, refs, accounts, dist, &out)
	require.Error(t, err)

	err = run(context.Background(), options{FiscalYear: "", Fund: "GF", Account: "2101", Amount: "1000"}, refs, accounts, dist, &out)
	require.Error(t, err)
}
