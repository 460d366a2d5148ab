package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType classifies a budget head and determines its debit/credit
// semantics and which workflows may target it.
type AccountType string

const (
	AccountTypeExpenditure AccountType = "EXPENDITURE"
	AccountTypeRevenue     AccountType = "REVENUE"
	AccountTypeAsset       AccountType = "ASSET"
	AccountTypeLiability   AccountType = "LIABILITY"
)

// System codes for accounts the engine resolves by role rather than code.
const (
	SystemCodeReceivable = "AR"
	SystemCodePayable    = "AP"
)

// Account is a chart-of-accounts entry (budget head). Immutable once
// referenced by posted journal entries.
type Account struct {
	ID             int64
	Code           string
	Name           string
	Type           AccountType
	SystemCode     string
	PostingAllowed bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// VoucherType enumerates voucher series. Each (org, fiscal year, type)
// scope numbers independently.
type VoucherType string

const (
	VoucherTypeJournal  VoucherType = "JV"
	VoucherTypePayment  VoucherType = "PV"
	VoucherTypeReceipt  VoucherType = "RV"
	VoucherTypeReversal VoucherType = "REV"
)

// Valid reports whether the voucher type is a known series.
func (t VoucherType) Valid() bool {
	switch t {
	case VoucherTypeJournal, VoucherTypePayment, VoucherTypeReceipt, VoucherTypeReversal:
		return true
	}
	return false
}

// Voucher is a double-entry transaction header. It is created unposted,
// becomes posted exactly once, and may be unposted (reversed) exactly
// once; an unposted voucher is terminal.
type Voucher struct {
	ID             int64
	OrgID          int64
	FiscalYearID   int64
	Number         string
	Date           time.Time
	Type           VoucherType
	FundID         int64
	Payee          string
	ReferenceNo    string
	Description    string
	Posted         bool
	PostedBy       *int64
	PostedAt       *time.Time
	Reversed       bool
	ReversedBy     *int64
	ReversedAt     *time.Time
	ReversalReason string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Entries        []JournalEntry
}

// JournalEntry is one debit or credit line against an account. Owned
// exclusively by its voucher.
type JournalEntry struct {
	ID          int64
	VoucherID   int64
	AccountID   int64
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
	CreatedAt   time.Time
}

// TotalDebit sums the debit side of the attached entries.
func (v Voucher) TotalDebit() decimal.Decimal {
	return totalDebit(v.Entries)
}

// TotalCredit sums the credit side of the attached entries.
func (v Voucher) TotalCredit() decimal.Decimal {
	return totalCredit(v.Entries)
}

// Balanced reports whether debits equal credits and the voucher moves
// a non-zero amount.
func (v Voucher) Balanced() bool {
	debit := v.TotalDebit()
	return debit.Equal(v.TotalCredit()) && debit.IsPositive()
}

func totalDebit(entries []JournalEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Debit)
	}
	return total
}

func totalCredit(entries []JournalEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Credit)
	}
	return total
}
