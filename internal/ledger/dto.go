package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryInput describes a journal line to be added to a voucher.
type EntryInput struct {
	AccountID   int64
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
}

// Validate ensures the entry carries an account and exactly one side.
func (in EntryInput) Validate() error {
	if in.AccountID == 0 {
		return fmt.Errorf("%w: missing account", ErrInvalidEntry)
	}
	if in.Debit.IsNegative() || in.Credit.IsNegative() {
		return fmt.Errorf("%w: negative amount", ErrInvalidEntry)
	}
	if in.Debit.IsPositive() && in.Credit.IsPositive() {
		return fmt.Errorf("%w: entry cannot carry both debit and credit", ErrInvalidEntry)
	}
	return nil
}

// CreateVoucherInput groups fields required to create a voucher header.
// Entries may be empty at creation time; document workflows pass them
// up front for create-and-post in one transaction.
type CreateVoucherInput struct {
	OrgID        int64
	FiscalYearID int64
	Date         time.Time
	Type         VoucherType
	FundID       int64
	Payee        string
	ReferenceNo  string
	Description  string
	SourceModule string
	SourceID     uuid.UUID
	Entries      []EntryInput
}

// Validate ensures the header references its scope keys.
func (in CreateVoucherInput) Validate() error {
	if in.OrgID == 0 {
		return fmt.Errorf("ledger: organization required")
	}
	if in.FiscalYearID == 0 {
		return fmt.Errorf("ledger: fiscal year required")
	}
	if in.FundID == 0 {
		return fmt.Errorf("ledger: fund required")
	}
	if !in.Type.Valid() {
		return fmt.Errorf("ledger: unknown voucher type %q", in.Type)
	}
	if in.Date.IsZero() {
		return fmt.Errorf("ledger: date required")
	}
	for idx, entry := range in.Entries {
		if err := entry.Validate(); err != nil {
			return fmt.Errorf("line %d: %w", idx, err)
		}
	}
	return nil
}

// UnpostInput wraps parameters for unposting.
type UnpostInput struct {
	VoucherID int64
	ActorID   int64
	Reason    string
}
