package revenue

import "errors"

var (
	// ErrDemandNotFound indicates a missing demand.
	ErrDemandNotFound = errors.New("revenue: demand not found")
	// ErrCollectionNotFound indicates a missing collection.
	ErrCollectionNotFound = errors.New("revenue: collection not found")
	// ErrPayerNotFound indicates a missing payer.
	ErrPayerNotFound = errors.New("revenue: payer not found")
	// ErrBankAccountNotFound indicates a missing bank account.
	ErrBankAccountNotFound = errors.New("revenue: bank account not found")
	// ErrInvalidTransition indicates a document action from the wrong status.
	ErrInvalidTransition = errors.New("revenue: invalid document status transition")
	// ErrInvalidAmount indicates a non-positive document amount.
	ErrInvalidAmount = errors.New("revenue: amount must be positive")
	// ErrExceedsOutstanding indicates a collection larger than the
	// demand's uncollected balance.
	ErrExceedsOutstanding = errors.New("revenue: collection exceeds outstanding demand")
	// ErrBankAccountNoGL indicates a bank account with no GL head linked.
	ErrBankAccountNoGL = errors.New("revenue: bank account has no GL account linked")
	// ErrHasPostedCollections blocks cancelling a demand that still has
	// posted collections.
	ErrHasPostedCollections = errors.New("revenue: demand has posted collections")
	// ErrNotRevenueAccount indicates a demand charged to a non-revenue head.
	ErrNotRevenueAccount = errors.New("revenue: account is not a revenue head")
	// ErrNoActiveFund indicates the organization has no active fund to
	// post against.
	ErrNoActiveFund = errors.New("revenue: no active fund configured")
	// ErrMissingSystemAccount indicates the receivable control head is
	// not configured in the chart of accounts.
	ErrMissingSystemAccount = errors.New("revenue: receivable system account not configured")
)
