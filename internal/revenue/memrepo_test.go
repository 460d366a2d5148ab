package revenue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/civicledger/civicledger/internal/ledger"
	"github.com/civicledger/civicledger/internal/refdata"
)

// memLedger is an in-memory ledger.TxRepository so the workflows can be
// exercised against the real voucher engine without a database.
type memLedger struct {
	accounts map[int64]ledger.Account
	fys      map[int64]ledger.FiscalYearRef
	vouchers map[int64]ledger.Voucher
	entries  map[int64][]ledger.JournalEntry
	seqs     map[string]int64
	sources  map[string]bool
	nextID   int64
}

func newMemLedger() *memLedger {
	return &memLedger{
		accounts: map[int64]ledger.Account{},
		fys:      map[int64]ledger.FiscalYearRef{},
		vouchers: map[int64]ledger.Voucher{},
		entries:  map[int64][]ledger.JournalEntry{},
		seqs:     map[string]int64{},
		sources:  map[string]bool{},
	}
}

func (m *memLedger) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memLedger) InsertVoucher(ctx context.Context, in ledger.CreateVoucherInput, number string) (ledger.Voucher, error) {
	v := ledger.Voucher{
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

func (m *memLedger) NextVoucherSequence(ctx context.Context, orgID, fiscalYearID int64, vtype ledger.VoucherType) (int64, error) {
	key := fmt.Sprintf("%d/%d/%s", orgID, fiscalYearID, vtype)
	m.seqs[key]++
	return m.seqs[key], nil
}

func (m *memLedger) FiscalYearRef(ctx context.Context, id int64) (ledger.FiscalYearRef, error) {
	fy, ok := m.fys[id]
	if !ok {
		return ledger.FiscalYearRef{}, fmt.Errorf("fiscal year %d not found", id)
	}
	return fy, nil
}

func (m *memLedger) InsertEntry(ctx context.Context, voucherID int64, in ledger.EntryInput) (ledger.JournalEntry, error) {
	entry := ledger.JournalEntry{
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

func (m *memLedger) ListEntries(ctx context.Context, voucherID int64) ([]ledger.JournalEntry, error) {
	return m.entries[voucherID], nil
}

func (m *memLedger) GetVoucherForUpdate(ctx context.Context, id int64) (ledger.Voucher, error) {
	v, ok := m.vouchers[id]
	if !ok {
		return ledger.Voucher{}, ledger.ErrVoucherNotFound
	}
	return v, nil
}

func (m *memLedger) GetAccounts(ctx context.Context, ids []int64) (map[int64]ledger.Account, error) {
	out := map[int64]ledger.Account{}
	for _, id := range ids {
		if a, ok := m.accounts[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (m *memLedger) GetSystemAccount(ctx context.Context, systemCode string) (ledger.Account, error) {
	for _, a := range m.accounts {
		if a.SystemCode == systemCode && a.PostingAllowed {
			return a, nil
		}
	}
	return ledger.Account{}, ledger.ErrAccountNotFound
}

func (m *memLedger) MarkPosted(ctx context.Context, id, actorID int64, at time.Time) error {
	v, ok := m.vouchers[id]
	if !ok || v.Posted {
		return ledger.ErrAlreadyPosted
	}
	v.Posted = true
	v.PostedBy = &actorID
	v.PostedAt = &at
	m.vouchers[id] = v
	return nil
}

func (m *memLedger) MarkUnposted(ctx context.Context, id, actorID int64, reason string, at time.Time) error {
	v, ok := m.vouchers[id]
	if !ok || !v.Posted || v.Reversed {
		return ledger.ErrAlreadyReversed
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

func (m *memLedger) DeleteVoucher(ctx context.Context, id int64) error {
	delete(m.vouchers, id)
	delete(m.entries, id)
	return nil
}

func (m *memLedger) LinkSource(ctx context.Context, module string, ref uuid.UUID, voucherID int64) error {
	key := module + "/" + ref.String()
	if m.sources[key] {
		return ledger.ErrSourceAlreadyLinked
	}
	m.sources[key] = true
	return nil
}

func (m *memLedger) IncrementSpent(ctx context.Context, orgID, fiscalYearID, accountID int64, amount decimal.Decimal) error {
	return nil
}

func (m *memLedger) DecrementSpent(ctx context.Context, orgID, fiscalYearID, accountID int64, amount decimal.Decimal) error {
	return nil
}

// memLedgerRepo adapts memLedger to ledger.Repository for building the
// voucher service.
type memLedgerRepo struct {
	mem *memLedger
}

func (r *memLedgerRepo) GetVoucher(ctx context.Context, id int64) (ledger.Voucher, error) {
	v, err := r.mem.GetVoucherForUpdate(ctx, id)
	if err != nil {
		return ledger.Voucher{}, err
	}
	v.Entries = r.mem.entries[id]
	return v, nil
}

func (r *memLedgerRepo) ListVouchers(ctx context.Context, orgID, fiscalYearID int64) ([]ledger.Voucher, error) {
	var out []ledger.Voucher
	for _, v := range r.mem.vouchers {
		if v.OrgID == orgID && v.FiscalYearID == fiscalYearID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *memLedgerRepo) GetAccountByCode(ctx context.Context, code string) (ledger.Account, error) {
	for _, a := range r.mem.accounts {
		if a.Code == code {
			return a, nil
		}
	}
	return ledger.Account{}, ledger.ErrAccountNotFound
}

func (r *memLedgerRepo) WithTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	return fn(ctx, r.mem)
}

// memRepo is an in-memory revenue Repository and TxRepository.
type memRepo struct {
	ledger      *memLedger
	payers      map[int64]Payer
	banks       map[int64]BankAccount
	demands     map[int64]Demand
	collections map[int64]Collection
	nextID      int64
}

func newMemRepo(lg *memLedger) *memRepo {
	return &memRepo{
		ledger:      lg,
		payers:      map[int64]Payer{},
		banks:       map[int64]BankAccount{},
		demands:     map[int64]Demand{},
		collections: map[int64]Collection{},
	}
}

func (m *memRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memRepo) Ledger() ledger.TxRepository {
	return m.ledger
}

func (m *memRepo) GetDemand(ctx context.Context, id int64) (Demand, error) {
	d, ok := m.demands[id]
	if !ok {
		return Demand{}, ErrDemandNotFound
	}
	return d, nil
}

func (m *memRepo) GetDemandForUpdate(ctx context.Context, id int64) (Demand, error) {
	return m.GetDemand(ctx, id)
}

func (m *memRepo) ListDemands(ctx context.Context, orgID, fiscalYearID int64) ([]Demand, error) {
	var out []Demand
	for _, d := range m.demands {
		if d.OrgID == orgID && d.FiscalYearID == fiscalYearID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memRepo) ListOverdueDemands(ctx context.Context, asOf time.Time) ([]Demand, error) {
	var out []Demand
	for _, d := range m.demands {
		if d.Overdue(asOf) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memRepo) CreateDemand(ctx context.Context, in CreateDemandInput, ref uuid.UUID) (Demand, error) {
	payer := m.payers[in.PayerID]
	d := Demand{
		ID:               m.id(),
		Ref:              ref,
		OrgID:            in.OrgID,
		FiscalYearID:     in.FiscalYearID,
		PayerID:          in.PayerID,
		PayerName:        payer.Name,
		PayerEmail:       payer.Email,
		RevenueAccountID: in.RevenueAccountID,
		Description:      in.Description,
		Amount:           in.Amount,
		CollectedAmount:  decimal.Zero,
		Status:           DemandStatusDraft,
		DemandDate:       in.DemandDate,
		DueDate:          in.DueDate,
	}
	m.demands[d.ID] = d
	return d, nil
}

func (m *memRepo) GetCollection(ctx context.Context, id int64) (Collection, error) {
	c, ok := m.collections[id]
	if !ok {
		return Collection{}, ErrCollectionNotFound
	}
	return c, nil
}

func (m *memRepo) GetCollectionForUpdate(ctx context.Context, id int64) (Collection, error) {
	return m.GetCollection(ctx, id)
}

func (m *memRepo) ListCollections(ctx context.Context, demandID int64) ([]Collection, error) {
	var out []Collection
	for id := int64(1); id <= m.nextID; id++ {
		if c, ok := m.collections[id]; ok && c.DemandID == demandID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memRepo) CreateCollection(ctx context.Context, in CreateCollectionInput, ref uuid.UUID) (Collection, error) {
	c := Collection{
		ID:            m.id(),
		Ref:           ref,
		DemandID:      in.DemandID,
		BankAccountID: in.BankAccountID,
		Amount:        in.Amount,
		ReceiptNo:     in.ReceiptNo,
		Date:          in.Date,
		Status:        CollectionStatusDraft,
	}
	m.collections[c.ID] = c
	return c, nil
}

func (m *memRepo) GetPayer(ctx context.Context, id int64) (Payer, error) {
	p, ok := m.payers[id]
	if !ok {
		return Payer{}, ErrPayerNotFound
	}
	return p, nil
}

func (m *memRepo) GetBankAccount(ctx context.Context, id int64) (BankAccount, error) {
	b, ok := m.banks[id]
	if !ok {
		return BankAccount{}, ErrBankAccountNotFound
	}
	return b, nil
}

func (m *memRepo) SumPostedCollections(ctx context.Context, demandID int64) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, c := range m.collections {
		if c.DemandID == demandID && c.Status == CollectionStatusPosted {
			sum = sum.Add(c.Amount)
		}
	}
	return sum, nil
}

func (m *memRepo) CountPostedCollections(ctx context.Context, demandID int64) (int64, error) {
	var n int64
	for _, c := range m.collections {
		if c.DemandID == demandID && c.Status == CollectionStatusPosted {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) MarkDemandPosted(ctx context.Context, id, voucherID int64) error {
	d, ok := m.demands[id]
	if !ok || d.Status != DemandStatusDraft {
		return ErrInvalidTransition
	}
	d.Status = DemandStatusPosted
	d.VoucherID = &voucherID
	m.demands[id] = d
	return nil
}

func (m *memRepo) UpdateDemandProgress(ctx context.Context, id int64, collected decimal.Decimal, status DemandStatus) error {
	d, ok := m.demands[id]
	if !ok {
		return ErrDemandNotFound
	}
	d.CollectedAmount = collected
	d.Status = status
	m.demands[id] = d
	return nil
}

func (m *memRepo) MarkDemandCancelled(ctx context.Context, id, actorID int64, reason string, at time.Time) error {
	d, ok := m.demands[id]
	if !ok {
		return ErrDemandNotFound
	}
	d.Status = DemandStatusCancelled
	d.CancelledBy = &actorID
	d.CancelledAt = &at
	d.CancelReason = reason
	m.demands[id] = d
	return nil
}

func (m *memRepo) MarkCollectionPosted(ctx context.Context, id, voucherID int64) error {
	c, ok := m.collections[id]
	if !ok || c.Status != CollectionStatusDraft {
		return ErrInvalidTransition
	}
	c.Status = CollectionStatusPosted
	c.VoucherID = &voucherID
	m.collections[id] = c
	return nil
}

func (m *memRepo) MarkCollectionCancelled(ctx context.Context, id, actorID int64, reason string, at time.Time) error {
	c, ok := m.collections[id]
	if !ok {
		return ErrCollectionNotFound
	}
	c.Status = CollectionStatusCancelled
	c.CancelledBy = &actorID
	c.CancelledAt = &at
	c.CancelReason = reason
	m.collections[id] = c
	return nil
}

// staticFunds satisfies FundSource with one fund.
type staticFunds struct {
	fund refdata.Fund
	err  error
}

func (f staticFunds) ActiveFund(ctx context.Context) (refdata.Fund, error) {
	return f.fund, f.err
}
