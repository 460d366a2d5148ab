// Package revenue implements the demand and collection document
// workflows. Posting a demand recognises income and raises a
// receivable; posting a collection settles it against a bank account.
// All GL effects go through the voucher engine inside the document's
// own transaction.
package revenue

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payer is a citizen or business owing revenue to the organization.
type Payer struct {
	ID        int64
	Name      string
	Mobile    string
	Email     string
	Address   string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BankAccount is a treasury bank account. GLAccountID links it to the
// asset head collections debit; an account without the link cannot
// receive posted collections.
type BankAccount struct {
	ID            int64
	Name          string
	AccountNumber string
	BankName      string
	Branch        string
	GLAccountID   *int64
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DemandStatus enumerates the demand lifecycle.
type DemandStatus string

const (
	DemandStatusDraft     DemandStatus = "DRAFT"
	DemandStatusPosted    DemandStatus = "POSTED"
	DemandStatusPartial   DemandStatus = "PARTIALLY_COLLECTED"
	DemandStatusPaid      DemandStatus = "PAID"
	DemandStatusCancelled DemandStatus = "CANCELLED"
)

// Open reports whether the demand can still accept collections.
func (s DemandStatus) Open() bool {
	return s == DemandStatusPosted || s == DemandStatusPartial
}

// Demand is a revenue claim against a payer. Ref is the stable identity
// used to link the demand to its voucher; CollectedAmount tracks the
// sum of posted collections.
type Demand struct {
	ID               int64
	Ref              uuid.UUID
	OrgID            int64
	FiscalYearID     int64
	PayerID          int64
	PayerName        string
	PayerEmail       string
	RevenueAccountID int64
	Description      string
	Amount           decimal.Decimal
	CollectedAmount  decimal.Decimal
	Status           DemandStatus
	DemandDate       time.Time
	DueDate          *time.Time
	VoucherID        *int64
	CancelledBy      *int64
	CancelledAt      *time.Time
	CancelReason     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Outstanding returns the amount still uncollected.
func (d Demand) Outstanding() decimal.Decimal {
	return d.Amount.Sub(d.CollectedAmount)
}

// Overdue reports whether an open demand has passed its due date.
func (d Demand) Overdue(asOf time.Time) bool {
	return d.Status.Open() && d.DueDate != nil && d.DueDate.Before(asOf)
}

// CollectionStatus enumerates the collection lifecycle.
type CollectionStatus string

const (
	CollectionStatusDraft     CollectionStatus = "DRAFT"
	CollectionStatusPosted    CollectionStatus = "POSTED"
	CollectionStatusCancelled CollectionStatus = "CANCELLED"
)

// Collection is one receipt against a demand.
type Collection struct {
	ID            int64
	Ref           uuid.UUID
	DemandID      int64
	BankAccountID int64
	Amount        decimal.Decimal
	ReceiptNo     string
	Date          time.Time
	Status        CollectionStatus
	VoucherID     *int64
	CancelledBy   *int64
	CancelledAt   *time.Time
	CancelReason  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
