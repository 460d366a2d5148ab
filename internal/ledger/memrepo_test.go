package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type allocKey struct {
	orgID, fiscalYearID, accountID int64
}

type alloc struct {
	revised decimal.Decimal
	spent   decimal.Decimal
}

// memRepo implements Repository and TxRepository in memory. WithTx runs
// the callback directly; rollback behaviour is covered by the guarded
// mutations returning errors before any state change.
type memRepo struct {
	accounts map[int64]Account
	fys      map[int64]FiscalYearRef
	vouchers map[int64]Voucher
	entries  map[int64][]JournalEntry
	seqs     map[string]int64
	sources  map[string]bool
	allocs   map[allocKey]*alloc
	nextID   int64
}

func newMemRepo() *memRepo {
	return &memRepo{
		accounts: map[int64]Account{},
		fys:      map[int64]FiscalYearRef{},
		vouchers: map[int64]Voucher{},
		entries:  map[int64][]JournalEntry{},
		seqs:     map[string]int64{},
		sources:  map[string]bool{},
		allocs:   map[allocKey]*alloc{},
	}
}

func (m *memRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memRepo) GetVoucher(ctx context.Context, id int64) (Voucher, error) {
	v, ok := m.vouchers[id]
	if !ok {
		return Voucher{}, ErrVoucherNotFound
	}
	v.Entries = m.entries[id]
	return v, nil
}

func (m *memRepo) ListVouchers(ctx context.Context, orgID, fiscalYearID int64) ([]Voucher, error) {
	var out []Voucher
	for id := int64(1); id <= m.nextID; id++ {
		if v, ok := m.vouchers[id]; ok && v.OrgID == orgID && v.FiscalYearID == fiscalYearID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *memRepo) GetAccountByCode(ctx context.Context, code string) (Account, error) {
	for _, a := range m.accounts {
		if a.Code == code {
			return a, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (m *memRepo) InsertVoucher(ctx context.Context, in CreateVoucherInput, number string) (Voucher, error) {
	v := Voucher{
		ID:           m.id(),
		OrgID:        in.OrgID,
		FiscalYearID: in.FiscalYearID,
		Number:       number,
		Date:         in.Date,
		Type:         in.Type,
		FundID:       in.FundID,
		Payee:        in.Payee,
		ReferenceNo:  in.ReferenceNo,
		Description:  in.Description,
	}
	m.vouchers[v.ID] = v
	return v, nil
}

func (m *memRepo) NextVoucherSequence(ctx context.Context, orgID, fiscalYearID int64, vtype VoucherType) (int64, error) {
	key := fmt.Sprintf("%d/%d/%s", orgID, fiscalYearID, vtype)
	m.seqs[key]++
	return m.seqs[key], nil
}

func (m *memRepo) FiscalYearRef(ctx context.Context, id int64) (FiscalYearRef, error) {
	fy, ok := m.fys[id]
	if !ok {
		return FiscalYearRef{}, fmt.Errorf("ledger: fiscal year %d not found", id)
	}
	return fy, nil
}

func (m *memRepo) InsertEntry(ctx context.Context, voucherID int64, in EntryInput) (JournalEntry, error) {
	entry := JournalEntry{
		ID:          m.id(),
		VoucherID:   voucherID,
		AccountID:   in.AccountID,
		Debit:       in.Debit,
		Credit:      in.Credit,
		Description: in.Description,
	}
	m.entries[voucherID] = append(m.entries[voucherID], entry)
	return entry, nil
}

func (m *memRepo) ListEntries(ctx context.Context, voucherID int64) ([]JournalEntry, error) {
	return m.entries[voucherID], nil
}

func (m *memRepo) GetVoucherForUpdate(ctx context.Context, id int64) (Voucher, error) {
	v, ok := m.vouchers[id]
	if !ok {
		return Voucher{}, ErrVoucherNotFound
	}
	return v, nil
}

func (m *memRepo) GetAccounts(ctx context.Context, ids []int64) (map[int64]Account, error) {
	out := map[int64]Account{}
	for _, id := range ids {
		if a, ok := m.accounts[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (m *memRepo) GetSystemAccount(ctx context.Context, systemCode string) (Account, error) {
	for _, a := range m.accounts {
		if a.SystemCode == systemCode && a.PostingAllowed {
			return a, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (m *memRepo) MarkPosted(ctx context.Context, id, actorID int64, at time.Time) error {
	v, ok := m.vouchers[id]
	if !ok || v.Posted {
		return ErrAlreadyPosted
	}
	v.Posted = true
	v.PostedBy = &actorID
	v.PostedAt = &at
	m.vouchers[id] = v
	return nil
}

func (m *memRepo) MarkUnposted(ctx context.Context, id, actorID int64, reason string, at time.Time) error {
	v, ok := m.vouchers[id]
	if !ok || !v.Posted || v.Reversed {
		return ErrAlreadyReversed
	}
	v.Posted = false
	v.PostedBy = nil
	v.PostedAt = nil
	v.Reversed = true
	v.ReversedBy = &actorID
	v.ReversedAt = &at
	v.ReversalReason = reason
	m.vouchers[id] = v
	return nil
}

func (m *memRepo) DeleteVoucher(ctx context.Context, id int64) error {
	v, ok := m.vouchers[id]
	if !ok || v.Posted {
		return ErrVoucherNotFound
	}
	delete(m.vouchers, id)
	delete(m.entries, id)
	return nil
}

func (m *memRepo) LinkSource(ctx context.Context, module string, ref uuid.UUID, voucherID int64) error {
	key := module + "/" + ref.String()
	if m.sources[key] {
		return ErrSourceAlreadyLinked
	}
	m.sources[key] = true
	return nil
}

func (m *memRepo) IncrementSpent(ctx context.Context, orgID, fiscalYearID, accountID int64, amount decimal.Decimal) error {
	a, ok := m.allocs[allocKey{orgID, fiscalYearID, accountID}]
	if !ok {
		return nil
	}
	if a.spent.Add(amount).GreaterThan(a.revised) {
		return ErrBudgetExceeded
	}
	a.spent = a.spent.Add(amount)
	return nil
}

func (m *memRepo) DecrementSpent(ctx context.Context, orgID, fiscalYearID, accountID int64, amount decimal.Decimal) error {
	a, ok := m.allocs[allocKey{orgID, fiscalYearID, accountID}]
	if !ok {
		return nil
	}
	a.spent = a.spent.Sub(amount)
	if a.spent.IsNegative() {
		a.spent = decimal.Zero
	}
	return nil
}
