package budget

import (
	"context"
	"errors"
	"fmt"

	"github.com/civicledger/civicledger/internal/ledger"
)

// SpendingHook keeps allocation spend reconciled with the GL. Registered
// with the voucher engine, it runs inside every posting transaction:
// each debited expenditure entry increments the matching allocation's
// spent_amount, and unposting reverses the increments. An exceeded
// ceiling aborts the whole post.
type SpendingHook struct{}

// NewSpendingHook returns the hook.
func NewSpendingHook() SpendingHook {
	return SpendingHook{}
}

// VoucherPosted applies expenditure debits to their allocations.
func (SpendingHook) VoucherPosted(ctx context.Context, tx ledger.TxRepository, v ledger.Voucher, accounts map[int64]ledger.Account) error {
	for _, entry := range v.Entries {
		account, ok := accounts[entry.AccountID]
		if !ok || account.Type != ledger.AccountTypeExpenditure || !entry.Debit.IsPositive() {
			continue
		}
		if err := tx.IncrementSpent(ctx, v.OrgID, v.FiscalYearID, entry.AccountID, entry.Debit); err != nil {
			if errors.Is(err, ledger.ErrBudgetExceeded) {
				return fmt.Errorf("%w: account %s", err, account.Code)
			}
			return err
		}
	}
	return nil
}

// VoucherUnposted rolls the increments back.
func (SpendingHook) VoucherUnposted(ctx context.Context, tx ledger.TxRepository, v ledger.Voucher, accounts map[int64]ledger.Account) error {
	for _, entry := range v.Entries {
		account, ok := accounts[entry.AccountID]
		if !ok || account.Type != ledger.AccountTypeExpenditure || !entry.Debit.IsPositive() {
			continue
		}
		if err := tx.DecrementSpent(ctx, v.OrgID, v.FiscalYearID, entry.AccountID, entry.Debit); err != nil {
			return err
		}
	}
	return nil
}
