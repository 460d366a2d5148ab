package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicledger/civicledger/internal/shared"
)

const (
	expenseAccountID = int64(1)
	revenueAccountID = int64(2)
	assetAccountID   = int64(3)
	blockedAccountID = int64(4)
)

func money(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type memAudit struct {
	logs []shared.AuditLog
}

func (a *memAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type recordingHook struct {
	posted   []int64
	unposted []int64
	fail     error
}

func (h *recordingHook) VoucherPosted(ctx context.Context, tx TxRepository, v Voucher, accounts map[int64]Account) error {
	if h.fail != nil {
		return h.fail
	}
	h.posted = append(h.posted, v.ID)
	return nil
}

func (h *recordingHook) VoucherUnposted(ctx context.Context, tx TxRepository, v Voucher, accounts map[int64]Account) error {
	h.unposted = append(h.unposted, v.ID)
	return nil
}

func newFixture(t *testing.T, hooks ...PostingHook) (*Service, *memRepo, *memAudit) {
	t.Helper()
	repo := newMemRepo()
	repo.fys[1] = FiscalYearRef{ID: 1, Code: "2025-26"}
	repo.fys[2] = FiscalYearRef{ID: 2, Code: "2024-25", Locked: true}
	repo.accounts[expenseAccountID] = Account{ID: expenseAccountID, Code: "2101", Name: "Salaries",
		Type: AccountTypeExpenditure, PostingAllowed: true}
	repo.accounts[revenueAccountID] = Account{ID: revenueAccountID, Code: "4101", Name: "Property Tax",
		Type: AccountTypeRevenue, PostingAllowed: true}
	repo.accounts[assetAccountID] = Account{ID: assetAccountID, Code: "1101", Name: "Main Bank",
		Type: AccountTypeAsset, PostingAllowed: true, SystemCode: SystemCodeReceivable}
	repo.accounts[blockedAccountID] = Account{ID: blockedAccountID, Code: "9999", Name: "Control Head",
		Type: AccountTypeLiability, PostingAllowed: false}
	audit := &memAudit{}
	return NewService(repo, audit, hooks...), repo, audit
}

func header(vtype VoucherType) CreateVoucherInput {
	return CreateVoucherInput{
		OrgID:        1,
		FiscalYearID: 1,
		Date:         time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC),
		Type:         vtype,
		FundID:       1,
		Description:  "test voucher",
	}
}

func balancedInput(vtype VoucherType, amount string) CreateVoucherInput {
	in := header(vtype)
	in.Entries = []EntryInput{
		{AccountID: expenseAccountID, Debit: money(amount)},
		{AccountID: assetAccountID, Credit: money(amount)},
	}
	return in
}

func TestCreateVoucherAssignsSequentialNumbers(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	first, err := svc.CreateVoucher(ctx, header(VoucherTypeJournal))
	require.NoError(t, err)
	second, err := svc.CreateVoucher(ctx, header(VoucherTypeJournal))
	require.NoError(t, err)
	receipt, err := svc.CreateVoucher(ctx, header(VoucherTypeReceipt))
	require.NoError(t, err)

	assert.Equal(t, "JV-2025-26-0001", first.Number)
	assert.Equal(t, "JV-2025-26-0002", second.Number)
	// Each voucher type numbers independently.
	assert.Equal(t, "RV-2025-26-0001", receipt.Number)
}

func TestPostBalancedVoucher(t *testing.T) {
	hook := &recordingHook{}
	svc, repo, audit := newFixture(t, hook)
	ctx := context.Background()

	voucher, err := svc.CreateVoucher(ctx, balancedInput(VoucherTypeJournal, "1500"))
	require.NoError(t, err)

	posted, err := svc.Post(ctx, voucher.ID, 7)
	require.NoError(t, err)
	assert.True(t, posted.Posted)
	require.NotNil(t, posted.PostedBy)
	assert.Equal(t, int64(7), *posted.PostedBy)

	assert.Equal(t, []int64{voucher.ID}, hook.posted)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, "voucher.post", audit.logs[0].Action)
	assert.True(t, repo.vouchers[voucher.ID].Posted)
}

func TestPostUnbalancedVoucher(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	in := header(VoucherTypeJournal)
	in.Entries = []EntryInput{
		{AccountID: expenseAccountID, Debit: money("1000")},
		{AccountID: assetAccountID, Credit: money("999")},
	}
	voucher, err := svc.CreateVoucher(ctx, in)
	require.NoError(t, err)

	_, err = svc.Post(ctx, voucher.ID, 7)
	require.ErrorIs(t, err, ErrUnbalanced)
	assert.Contains(t, err.Error(), "1000.00")
	assert.Contains(t, err.Error(), "999.00")
}

func TestPostVoucherWithoutEntries(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	voucher, err := svc.CreateVoucher(ctx, header(VoucherTypeJournal))
	require.NoError(t, err)

	_, err = svc.Post(ctx, voucher.ID, 7)
	assert.ErrorIs(t, err, ErrNoEntries)
}

func TestPostZeroAmountVoucherRejected(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	in := header(VoucherTypeJournal)
	in.Entries = []EntryInput{
		{AccountID: expenseAccountID},
		{AccountID: assetAccountID},
	}
	voucher, err := svc.CreateVoucher(ctx, in)
	require.NoError(t, err)

	_, err = svc.Post(ctx, voucher.ID, 7)
	assert.ErrorIs(t, err, ErrUnbalanced)
}

func TestPostTwiceRejected(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	voucher, err := svc.CreateVoucher(ctx, balancedInput(VoucherTypeJournal, "100"))
	require.NoError(t, err)
	_, err = svc.Post(ctx, voucher.ID, 7)
	require.NoError(t, err)

	_, err = svc.Post(ctx, voucher.ID, 7)
	assert.ErrorIs(t, err, ErrAlreadyPosted)
	assert.True(t, IsTransitionErr(err))
}

func TestPostBlockedAccountRejected(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	in := header(VoucherTypeJournal)
	in.Entries = []EntryInput{
		{AccountID: blockedAccountID, Debit: money("100")},
		{AccountID: assetAccountID, Credit: money("100")},
	}
	voucher, err := svc.CreateVoucher(ctx, in)
	require.NoError(t, err)

	_, err = svc.Post(ctx, voucher.ID, 7)
	require.ErrorIs(t, err, ErrPostingNotAllowed)
	assert.Contains(t, err.Error(), "9999")
}

func TestHookErrorAbortsPost(t *testing.T) {
	hook := &recordingHook{fail: ErrBudgetExceeded}
	svc, _, audit := newFixture(t, hook)
	ctx := context.Background()

	voucher, err := svc.CreateVoucher(ctx, balancedInput(VoucherTypeJournal, "100"))
	require.NoError(t, err)

	_, err = svc.Post(ctx, voucher.ID, 7)
	assert.ErrorIs(t, err, ErrBudgetExceeded)
	assert.Empty(t, audit.logs)
}

func TestBudgetEnforcementThroughSpentCounters(t *testing.T) {
	svc, repo, _ := newFixture(t, spendEnforcingHook{})
	repo.allocs[allocKey{1, 1, expenseAccountID}] = &alloc{revised: money("100000")}
	ctx := context.Background()

	voucher, err := svc.CreateVoucher(ctx, balancedInput(VoucherTypeJournal, "95000"))
	require.NoError(t, err)
	_, err = svc.Post(ctx, voucher.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, "95000.00", repo.allocs[allocKey{1, 1, expenseAccountID}].spent.StringFixed(2))

	over, err := svc.CreateVoucher(ctx, balancedInput(VoucherTypeJournal, "10000"))
	require.NoError(t, err)
	_, err = svc.Post(ctx, over.ID, 7)
	assert.ErrorIs(t, err, ErrBudgetExceeded)
	assert.Equal(t, "95000.00", repo.allocs[allocKey{1, 1, expenseAccountID}].spent.StringFixed(2))
}

func TestUnpostReversesVoucherAndSpend(t *testing.T) {
	svc, repo, _ := newFixture(t, spendEnforcingHook{})
	repo.allocs[allocKey{1, 1, expenseAccountID}] = &alloc{revised: money("100000")}
	ctx := context.Background()

	voucher, err := svc.CreateVoucher(ctx, balancedInput(VoucherTypeJournal, "40000"))
	require.NoError(t, err)
	_, err = svc.Post(ctx, voucher.ID, 7)
	require.NoError(t, err)

	reversed, err := svc.Unpost(ctx, UnpostInput{VoucherID: voucher.ID, ActorID: 9, Reason: "entry error"})
	require.NoError(t, err)
	assert.False(t, reversed.Posted)
	assert.True(t, reversed.Reversed)
	assert.Equal(t, "entry error", reversed.ReversalReason)
	assert.True(t, repo.allocs[allocKey{1, 1, expenseAccountID}].spent.IsZero())
}

func TestUnpostDraftRejected(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	voucher, err := svc.CreateVoucher(ctx, balancedInput(VoucherTypeJournal, "100"))
	require.NoError(t, err)

	_, err = svc.Unpost(ctx, UnpostInput{VoucherID: voucher.ID, ActorID: 9, Reason: "x"})
	assert.ErrorIs(t, err, ErrNotPosted)
}

func TestReversalIsTerminal(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	voucher, err := svc.CreateVoucher(ctx, balancedInput(VoucherTypeJournal, "100"))
	require.NoError(t, err)
	_, err = svc.Post(ctx, voucher.ID, 7)
	require.NoError(t, err)
	_, err = svc.Unpost(ctx, UnpostInput{VoucherID: voucher.ID, ActorID: 9, Reason: "x"})
	require.NoError(t, err)

	_, err = svc.Unpost(ctx, UnpostInput{VoucherID: voucher.ID, ActorID: 9, Reason: "again"})
	assert.ErrorIs(t, err, ErrAlreadyReversed)

	// A reversed voucher cannot be posted again either.
	_, err = svc.Post(ctx, voucher.ID, 7)
	assert.ErrorIs(t, err, ErrAlreadyReversed)
}

func TestAddEntryToPostedVoucherRejected(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	voucher, err := svc.CreateVoucher(ctx, balancedInput(VoucherTypeJournal, "100"))
	require.NoError(t, err)
	_, err = svc.Post(ctx, voucher.ID, 7)
	require.NoError(t, err)

	_, err = svc.AddEntry(ctx, voucher.ID, EntryInput{AccountID: assetAccountID, Debit: money("5")})
	assert.ErrorIs(t, err, ErrVoucherPosted)
}

func TestDeletePostedVoucherRejected(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	voucher, err := svc.CreateVoucher(ctx, balancedInput(VoucherTypeJournal, "100"))
	require.NoError(t, err)
	_, err = svc.Post(ctx, voucher.ID, 7)
	require.NoError(t, err)

	err = svc.DeleteVoucher(ctx, voucher.ID)
	assert.ErrorIs(t, err, ErrVoucherPosted)
}

func TestEntryValidation(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	voucher, err := svc.CreateVoucher(ctx, header(VoucherTypeJournal))
	require.NoError(t, err)

	_, err = svc.AddEntry(ctx, voucher.ID, EntryInput{AccountID: expenseAccountID, Debit: money("5"), Credit: money("5")})
	assert.ErrorIs(t, err, ErrInvalidEntry)

	_, err = svc.AddEntry(ctx, voucher.ID, EntryInput{Debit: money("5")})
	assert.ErrorIs(t, err, ErrInvalidEntry)

	_, err = svc.AddEntry(ctx, voucher.ID, EntryInput{AccountID: expenseAccountID, Debit: money("-5")})
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

func TestLockedFiscalYearRejectsCreateAndUnpost(t *testing.T) {
	svc, repo, _ := newFixture(t)
	ctx := context.Background()

	in := balancedInput(VoucherTypeJournal, "100")
	in.FiscalYearID = 2
	_, err := svc.CreateVoucher(ctx, in)
	assert.ErrorIs(t, err, ErrFiscalYearLocked)

	voucher, err := svc.CreateVoucher(ctx, balancedInput(VoucherTypeJournal, "100"))
	require.NoError(t, err)
	_, err = svc.Post(ctx, voucher.ID, 7)
	require.NoError(t, err)

	// Lock the year after posting; the reversal must be refused.
	repo.fys[1] = FiscalYearRef{ID: 1, Code: "2025-26", Locked: true}
	_, err = svc.Unpost(ctx, UnpostInput{VoucherID: voucher.ID, ActorID: 9, Reason: "x"})
	assert.ErrorIs(t, err, ErrFiscalYearLocked)
}

func TestPostVoucherTxLinksSourceOnce(t *testing.T) {
	svc, repo, _ := newFixture(t)
	ctx := context.Background()
	ref := uuid.New()

	in := balancedInput(VoucherTypeReceipt, "250")
	in.SourceModule = "revenue.collection"
	in.SourceID = ref

	err := repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := svc.PostVoucherTx(ctx, tx, in, 7)
		return err
	})
	require.NoError(t, err)

	err = repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := svc.PostVoucherTx(ctx, tx, in, 7)
		return err
	})
	assert.ErrorIs(t, err, ErrSourceAlreadyLinked)
}

// spendEnforcingHook mirrors the budget package hook without importing
// it, which would cycle.
type spendEnforcingHook struct{}

func (spendEnforcingHook) VoucherPosted(ctx context.Context, tx TxRepository, v Voucher, accounts map[int64]Account) error {
	for _, entry := range v.Entries {
		account, ok := accounts[entry.AccountID]
		if !ok || account.Type != AccountTypeExpenditure || !entry.Debit.IsPositive() {
			continue
		}
		if err := tx.IncrementSpent(ctx, v.OrgID, v.FiscalYearID, entry.AccountID, entry.Debit); err != nil {
			return err
		}
	}
	return nil
}

func (spendEnforcingHook) VoucherUnposted(ctx context.Context, tx TxRepository, v Voucher, accounts map[int64]Account) error {
	for _, entry := range v.Entries {
		account, ok := accounts[entry.AccountID]
		if !ok || account.Type != AccountTypeExpenditure || !entry.Debit.IsPositive() {
			continue
		}
		if err := tx.DecrementSpent(ctx, v.OrgID, v.FiscalYearID, entry.AccountID, entry.Debit); err != nil {
			return err
		}
	}
	return nil
}

func TestValidateVoucherInput(t *testing.T) {
	in := CreateVoucherInput{}
	assert.Error(t, in.Validate())

	in = header("XX")
	err := in.Validate()
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidEntry))
}
