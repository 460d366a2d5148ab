package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/civicledger/civicledger/internal/shared"
)

// AuditPort records posting actions outside the financial transaction.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// PostingHook couples domain side effects to voucher posting. Hooks run
// inside the posting transaction: a hook error aborts the whole post.
// The budget allocation ledger uses this to keep spent_amount reconciled
// with the GL.
type PostingHook interface {
	VoucherPosted(ctx context.Context, tx TxRepository, v Voucher, accounts map[int64]Account) error
	VoucherUnposted(ctx context.Context, tx TxRepository, v Voucher, accounts map[int64]Account) error
}

// Service implements the voucher engine.
type Service struct {
	repo  Repository
	audit AuditPort
	hooks []PostingHook
	now   func() time.Time
}

// NewService builds the voucher engine with optional posting hooks.
func NewService(repo Repository, audit AuditPort, hooks ...PostingHook) *Service {
	return &Service{repo: repo, audit: audit, hooks: hooks, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Get returns a voucher with its entries.
func (s *Service) Get(ctx context.Context, id int64) (Voucher, error) {
	return s.repo.GetVoucher(ctx, id)
}

// List returns vouchers for an organization and fiscal year.
func (s *Service) List(ctx context.Context, orgID, fiscalYearID int64) ([]Voucher, error) {
	return s.repo.ListVouchers(ctx, orgID, fiscalYearID)
}

// CreateVoucher creates an unposted voucher header, assigning its number
// from the per-(org, fiscal year, type) sequence.
func (s *Service) CreateVoucher(ctx context.Context, input CreateVoucherInput) (Voucher, error) {
	if err := input.Validate(); err != nil {
		return Voucher{}, err
	}
	var voucher Voucher
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := s.createVoucherTx(ctx, tx, input)
		if err != nil {
			return err
		}
		voucher = created
		return nil
	})
	if err != nil {
		return Voucher{}, err
	}
	return voucher, nil
}

// AddEntry appends a journal line to an unposted voucher.
func (s *Service) AddEntry(ctx context.Context, voucherID int64, input EntryInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		voucher, err := tx.GetVoucherForUpdate(ctx, voucherID)
		if err != nil {
			return err
		}
		if voucher.Posted {
			return ErrVoucherPosted
		}
		inserted, err := tx.InsertEntry(ctx, voucherID, input)
		if err != nil {
			return err
		}
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// DeleteVoucher removes an unposted voucher and its entries. Posted
// vouchers can only be unposted, never deleted.
func (s *Service) DeleteVoucher(ctx context.Context, voucherID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		voucher, err := tx.GetVoucherForUpdate(ctx, voucherID)
		if err != nil {
			return err
		}
		if voucher.Posted {
			return ErrVoucherPosted
		}
		return tx.DeleteVoucher(ctx, voucherID)
	})
}

// Post posts a balanced voucher to the general ledger. The budget hooks
// run in the same transaction, so an exceeded allocation aborts the post.
func (s *Service) Post(ctx context.Context, voucherID, actorID int64) (Voucher, error) {
	var voucher Voucher
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		posted, err := s.postTx(ctx, tx, voucherID, actorID)
		if err != nil {
			return err
		}
		voucher = posted
		return nil
	})
	if err != nil {
		return Voucher{}, err
	}
	s.recordAudit(ctx, actorID, "voucher.post", voucher.ID, map[string]any{"number": voucher.Number})
	return voucher, nil
}

// Unpost reverses a posted voucher: budget effects are rolled back, the
// posted flag cleared and the voucher marked reversed. Terminal.
func (s *Service) Unpost(ctx context.Context, input UnpostInput) (Voucher, error) {
	var voucher Voucher
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		unposted, err := s.UnpostVoucherTx(ctx, tx, input)
		if err != nil {
			return err
		}
		voucher = unposted
		return nil
	})
	if err != nil {
		return Voucher{}, err
	}
	s.recordAudit(ctx, input.ActorID, "voucher.unpost", voucher.ID, map[string]any{"number": voucher.Number, "reason": input.Reason})
	return voucher, nil
}

// PostVoucherTx creates, fills and posts a voucher inside the caller's
// transaction. Document workflows use this so the voucher and the
// document transition commit or roll back together.
func (s *Service) PostVoucherTx(ctx context.Context, tx TxRepository, input CreateVoucherInput, actorID int64) (Voucher, error) {
	if err := input.Validate(); err != nil {
		return Voucher{}, err
	}
	if len(input.Entries) == 0 {
		return Voucher{}, ErrNoEntries
	}
	voucher, err := s.createVoucherTx(ctx, tx, input)
	if err != nil {
		return Voucher{}, err
	}
	return s.postTx(ctx, tx, voucher.ID, actorID)
}

// UnpostVoucherTx unposts a voucher inside the caller's transaction.
func (s *Service) UnpostVoucherTx(ctx context.Context, tx TxRepository, input UnpostInput) (Voucher, error) {
	voucher, err := tx.GetVoucherForUpdate(ctx, input.VoucherID)
	if err != nil {
		return Voucher{}, err
	}
	if !voucher.Posted {
		if voucher.Reversed {
			return Voucher{}, ErrAlreadyReversed
		}
		return Voucher{}, ErrNotPosted
	}
	fy, err := tx.FiscalYearRef(ctx, voucher.FiscalYearID)
	if err != nil {
		return Voucher{}, err
	}
	if fy.Locked {
		return Voucher{}, ErrFiscalYearLocked
	}
	entries, err := tx.ListEntries(ctx, voucher.ID)
	if err != nil {
		return Voucher{}, err
	}
	voucher.Entries = entries
	accounts, err := s.loadAccounts(ctx, tx, entries)
	if err != nil {
		return Voucher{}, err
	}
	for _, hook := range s.hooks {
		if err := hook.VoucherUnposted(ctx, tx, voucher, accounts); err != nil {
			return Voucher{}, err
		}
	}
	now := s.now()
	if err := tx.MarkUnposted(ctx, voucher.ID, input.ActorID, input.Reason, now); err != nil {
		return Voucher{}, err
	}
	voucher.Posted = false
	voucher.PostedBy = nil
	voucher.PostedAt = nil
	voucher.Reversed = true
	voucher.ReversedBy = &input.ActorID
	voucher.ReversedAt = &now
	voucher.ReversalReason = input.Reason
	return voucher, nil
}

func (s *Service) createVoucherTx(ctx context.Context, tx TxRepository, input CreateVoucherInput) (Voucher, error) {
	fy, err := tx.FiscalYearRef(ctx, input.FiscalYearID)
	if err != nil {
		return Voucher{}, err
	}
	if fy.Locked {
		return Voucher{}, ErrFiscalYearLocked
	}
	seq, err := tx.NextVoucherSequence(ctx, input.OrgID, input.FiscalYearID, input.Type)
	if err != nil {
		return Voucher{}, err
	}
	number := fmt.Sprintf("%s-%s-%04d", input.Type, fy.Code, seq)
	voucher, err := tx.InsertVoucher(ctx, input, number)
	if err != nil {
		return Voucher{}, err
	}
	if input.SourceModule != "" {
		if err := tx.LinkSource(ctx, input.SourceModule, input.SourceID, voucher.ID); err != nil {
			return Voucher{}, err
		}
	}
	for _, entryInput := range input.Entries {
		entry, err := tx.InsertEntry(ctx, voucher.ID, entryInput)
		if err != nil {
			return Voucher{}, err
		}
		voucher.Entries = append(voucher.Entries, entry)
	}
	return voucher, nil
}

func (s *Service) postTx(ctx context.Context, tx TxRepository, voucherID, actorID int64) (Voucher, error) {
	voucher, err := tx.GetVoucherForUpdate(ctx, voucherID)
	if err != nil {
		return Voucher{}, err
	}
	if voucher.Posted {
		return Voucher{}, ErrAlreadyPosted
	}
	if voucher.Reversed {
		return Voucher{}, ErrAlreadyReversed
	}
	fy, err := tx.FiscalYearRef(ctx, voucher.FiscalYearID)
	if err != nil {
		return Voucher{}, err
	}
	if fy.Locked {
		return Voucher{}, ErrFiscalYearLocked
	}
	entries, err := tx.ListEntries(ctx, voucher.ID)
	if err != nil {
		return Voucher{}, err
	}
	if len(entries) == 0 {
		return Voucher{}, ErrNoEntries
	}
	voucher.Entries = entries
	if !voucher.Balanced() {
		return Voucher{}, fmt.Errorf("%w: debit %s, credit %s", ErrUnbalanced,
			voucher.TotalDebit().StringFixed(2), voucher.TotalCredit().StringFixed(2))
	}
	accounts, err := s.loadAccounts(ctx, tx, entries)
	if err != nil {
		return Voucher{}, err
	}
	for _, entry := range entries {
		account, ok := accounts[entry.AccountID]
		if !ok {
			return Voucher{}, ErrAccountNotFound
		}
		if !account.PostingAllowed {
			return Voucher{}, fmt.Errorf("%w: %s", ErrPostingNotAllowed, account.Code)
		}
	}
	now := s.now()
	if err := tx.MarkPosted(ctx, voucher.ID, actorID, now); err != nil {
		return Voucher{}, err
	}
	voucher.Posted = true
	voucher.PostedBy = &actorID
	voucher.PostedAt = &now
	for _, hook := range s.hooks {
		if err := hook.VoucherPosted(ctx, tx, voucher, accounts); err != nil {
			return Voucher{}, err
		}
	}
	return voucher, nil
}

func (s *Service) loadAccounts(ctx context.Context, tx TxRepository, entries []JournalEntry) (map[int64]Account, error) {
	ids := make([]int64, 0, len(entries))
	seen := make(map[int64]struct{}, len(entries))
	for _, entry := range entries {
		if _, ok := seen[entry.AccountID]; ok {
			continue
		}
		seen[entry.AccountID] = struct{}{}
		ids = append(ids, entry.AccountID)
	}
	return tx.GetAccounts(ctx, ids)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, voucherID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "voucher",
		EntityID: fmt.Sprintf("%d", voucherID),
		Meta:     meta,
		At:       s.now(),
	})
}

// IsTransitionErr reports whether err is a voucher state-transition error,
// as opposed to a validation or configuration failure.
func IsTransitionErr(err error) bool {
	return errors.Is(err, ErrAlreadyPosted) ||
		errors.Is(err, ErrNotPosted) ||
		errors.Is(err, ErrAlreadyReversed) ||
		errors.Is(err, ErrVoucherPosted)
}
