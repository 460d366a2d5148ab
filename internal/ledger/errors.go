package ledger

import "errors"

var (
	// ErrUnbalanced indicates sum(debit) != sum(credit) or a zero voucher.
	ErrUnbalanced = errors.New("ledger: voucher entries must balance")
	// ErrNoEntries indicates a voucher with an empty entry set.
	ErrNoEntries = errors.New("ledger: voucher has no entries")
	// ErrInvalidEntry indicates an entry carrying both a debit and a credit,
	// a negative amount, or a missing account.
	ErrInvalidEntry = errors.New("ledger: invalid journal entry")
	// ErrAlreadyPosted indicates a second post attempt.
	ErrAlreadyPosted = errors.New("ledger: voucher already posted")
	// ErrNotPosted indicates unposting an unposted voucher.
	ErrNotPosted = errors.New("ledger: voucher is not posted")
	// ErrAlreadyReversed indicates a second unpost attempt; an unposted
	// voucher is terminal.
	ErrAlreadyReversed = errors.New("ledger: voucher already unposted")
	// ErrVoucherPosted indicates a mutation (add entry, delete) on a
	// posted voucher.
	ErrVoucherPosted = errors.New("ledger: posted voucher is immutable")
	// ErrVoucherNotFound indicates a missing voucher.
	ErrVoucherNotFound = errors.New("ledger: voucher not found")
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrPostingNotAllowed indicates an account that rejects direct postings.
	ErrPostingNotAllowed = errors.New("ledger: account does not allow posting")
	// ErrBudgetExceeded indicates a debit that would push spent_amount
	// past the revised allocation ceiling.
	ErrBudgetExceeded = errors.New("ledger: budget allocation exceeded")
	// ErrFiscalYearLocked indicates a posting action in a locked year.
	ErrFiscalYearLocked = errors.New("ledger: fiscal year is locked")
	// ErrSourceAlreadyLinked indicates the source document already produced
	// a voucher (idempotency conflict).
	ErrSourceAlreadyLinked = errors.New("ledger: source already linked to a voucher")
)
