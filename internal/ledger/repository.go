package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// FiscalYearRef is the slice of fiscal-year state the engine needs when
// numbering and guarding postings.
type FiscalYearRef struct {
	ID     int64
	Code   string
	Locked bool
}

// Repository encapsulates DB operations for the voucher engine.
type Repository interface {
	GetVoucher(ctx context.Context, id int64) (Voucher, error)
	ListVouchers(ctx context.Context, orgID, fiscalYearID int64) ([]Voucher, error)
	GetAccountByCode(ctx context.Context, code string) (Account, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a posting transaction.
// Budget allocation updates live here rather than in the budget package
// because the posting hook must share the voucher transaction.
type TxRepository interface {
	InsertVoucher(ctx context.Context, in CreateVoucherInput, number string) (Voucher, error)
	NextVoucherSequence(ctx context.Context, orgID, fiscalYearID int64, vtype VoucherType) (int64, error)
	FiscalYearRef(ctx context.Context, id int64) (FiscalYearRef, error)
	InsertEntry(ctx context.Context, voucherID int64, in EntryInput) (JournalEntry, error)
	ListEntries(ctx context.Context, voucherID int64) ([]JournalEntry, error)
	GetVoucherForUpdate(ctx context.Context, id int64) (Voucher, error)
	GetAccounts(ctx context.Context, ids []int64) (map[int64]Account, error)
	GetSystemAccount(ctx context.Context, systemCode string) (Account, error)
	MarkPosted(ctx context.Context, id, actorID int64, at time.Time) error
	MarkUnposted(ctx context.Context, id, actorID int64, reason string, at time.Time) error
	DeleteVoucher(ctx context.Context, id int64) error
	LinkSource(ctx context.Context, module string, ref uuid.UUID, voucherID int64) error

	IncrementSpent(ctx context.Context, orgID, fiscalYearID, accountID int64, amount decimal.Decimal) error
	DecrementSpent(ctx context.Context, orgID, fiscalYearID, accountID int64, amount decimal.Decimal) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds a pgx-backed Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const voucherColumns = `id, org_id, fiscal_year_id, number, date, voucher_type, fund_id, payee, reference_no, description,
posted, posted_by, posted_at, reversed, reversed_by, reversed_at, reversal_reason, created_at, updated_at`

func (r *repository) GetVoucher(ctx context.Context, id int64) (Voucher, error) {
	row := r.db.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE id=$1`, id)
	voucher, err := scanVoucher(row)
	if err != nil {
		return Voucher{}, err
	}
	entries, err := listEntries(ctx, r.db, id)
	if err != nil {
		return Voucher{}, err
	}
	voucher.Entries = entries
	return voucher, nil
}

func (r *repository) ListVouchers(ctx context.Context, orgID, fiscalYearID int64) ([]Voucher, error) {
	rows, err := r.db.Query(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE org_id=$1 AND fiscal_year_id=$2 ORDER BY date DESC, id DESC`, orgID, fiscalYearID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Voucher
	for rows.Next() {
		voucher, err := scanVoucher(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, voucher)
	}
	return out, rows.Err()
}

func (r *repository) GetAccountByCode(ctx context.Context, code string) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT id, code, name, account_type, system_code, posting_allowed, created_at, updated_at FROM accounts WHERE code=$1`, code)
	return scanAccount(row)
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, NewTxRepository(tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open transaction so document workflows can
// compose voucher posting with their own mutations.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) InsertVoucher(ctx context.Context, in CreateVoucherInput, number string) (Voucher, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO vouchers (org_id, fiscal_year_id, number, date, voucher_type, fund_id, payee, reference_no, description)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at, updated_at`,
		in.OrgID, in.FiscalYearID, number, in.Date, in.Type, in.FundID, in.Payee, in.ReferenceNo, in.Description)
	voucher := Voucher{
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
	if err := row.Scan(&voucher.ID, &voucher.CreatedAt, &voucher.UpdatedAt); err != nil {
		return Voucher{}, err
	}
	return voucher, nil
}

// NextVoucherSequence allocates the next number for the scope via an
// upserted counter row. Atomic under concurrent creation; numbering is
// gap-tolerant when a surrounding transaction rolls back.
func (r *txRepository) NextVoucherSequence(ctx context.Context, orgID, fiscalYearID int64, vtype VoucherType) (int64, error) {
	var seq int64
	err := r.tx.QueryRow(ctx, `INSERT INTO voucher_sequences (org_id, fiscal_year_id, voucher_type, last_seq)
VALUES ($1,$2,$3,1)
ON CONFLICT (org_id, fiscal_year_id, voucher_type)
DO UPDATE SET last_seq = voucher_sequences.last_seq + 1
RETURNING last_seq`, orgID, fiscalYearID, vtype).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("ledger: next voucher sequence: %w", err)
	}
	return seq, nil
}

func (r *txRepository) FiscalYearRef(ctx context.Context, id int64) (FiscalYearRef, error) {
	var fy FiscalYearRef
	err := r.tx.QueryRow(ctx, `SELECT id, code, locked FROM fiscal_years WHERE id=$1`, id).
		Scan(&fy.ID, &fy.Code, &fy.Locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FiscalYearRef{}, fmt.Errorf("ledger: fiscal year %d not found", id)
		}
		return FiscalYearRef{}, err
	}
	return fy, nil
}

func (r *txRepository) InsertEntry(ctx context.Context, voucherID int64, in EntryInput) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (voucher_id, account_id, debit, credit, description)
VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at`,
		voucherID, in.AccountID, numeric(in.Debit), numeric(in.Credit), in.Description)
	entry := JournalEntry{
		VoucherID:   voucherID,
		AccountID:   in.AccountID,
		Debit:       in.Debit,
		Credit:      in.Credit,
		Description: in.Description,
	}
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) ListEntries(ctx context.Context, voucherID int64) ([]JournalEntry, error) {
	return listEntries(ctx, r.tx, voucherID)
}

func (r *txRepository) GetVoucherForUpdate(ctx context.Context, id int64) (Voucher, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE id=$1 FOR UPDATE`, id)
	return scanVoucher(row)
}

func (r *txRepository) GetAccounts(ctx context.Context, ids []int64) (map[int64]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, code, name, account_type, system_code, posting_allowed, created_at, updated_at FROM accounts WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]Account, len(ids))
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[account.ID] = account
	}
	return out, rows.Err()
}

func (r *txRepository) GetSystemAccount(ctx context.Context, systemCode string) (Account, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, code, name, account_type, system_code, posting_allowed, created_at, updated_at
FROM accounts WHERE system_code=$1 AND posting_allowed ORDER BY id ASC LIMIT 1`, systemCode)
	return scanAccount(row)
}

func (r *txRepository) MarkPosted(ctx context.Context, id, actorID int64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE vouchers SET posted=TRUE, posted_by=$2, posted_at=$3, updated_at=NOW() WHERE id=$1 AND NOT posted`, id, actorID, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAlreadyPosted
	}
	return nil
}

func (r *txRepository) MarkUnposted(ctx context.Context, id, actorID int64, reason string, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE vouchers SET posted=FALSE, posted_by=NULL, posted_at=NULL,
reversed=TRUE, reversed_by=$2, reversed_at=$3, reversal_reason=$4, updated_at=NOW()
WHERE id=$1 AND posted AND NOT reversed`, id, actorID, at, reason)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAlreadyReversed
	}
	return nil
}

func (r *txRepository) DeleteVoucher(ctx context.Context, id int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM journal_entries WHERE voucher_id=$1`, id); err != nil {
		return err
	}
	cmd, err := r.tx.Exec(ctx, `DELETE FROM vouchers WHERE id=$1 AND NOT posted`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrVoucherNotFound
	}
	return nil
}

func (r *txRepository) LinkSource(ctx context.Context, module string, ref uuid.UUID, voucherID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO voucher_sources (module, ref_id, voucher_id) VALUES ($1,$2,$3)`, module, ref, voucherID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_voucher_sources" {
			return ErrSourceAlreadyLinked
		}
		return err
	}
	return nil
}

// IncrementSpent applies an expenditure debit to the matching budget
// allocation. Duplicated from the budget repository because it must run
// inside the posting transaction. The guard keeps spent_amount within
// revised_allocation; heads without an allocation row are unconstrained.
func (r *txRepository) IncrementSpent(ctx context.Context, orgID, fiscalYearID, accountID int64, amount decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE budget_allocations
SET spent_amount = spent_amount + $4, updated_at = NOW()
WHERE org_id=$1 AND fiscal_year_id=$2 AND account_id=$3 AND spent_amount + $4 <= revised_allocation`,
		orgID, fiscalYearID, accountID, numeric(amount))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	err = r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM budget_allocations WHERE org_id=$1 AND fiscal_year_id=$2 AND account_id=$3)`,
		orgID, fiscalYearID, accountID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return ErrBudgetExceeded
	}
	return nil
}

// DecrementSpent rolls back a previous increment on unpost, floored at zero.
func (r *txRepository) DecrementSpent(ctx context.Context, orgID, fiscalYearID, accountID int64, amount decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE budget_allocations
SET spent_amount = GREATEST(spent_amount - $4, 0), updated_at = NOW()
WHERE org_id=$1 AND fiscal_year_id=$2 AND account_id=$3`,
		orgID, fiscalYearID, accountID, numeric(amount))
	return err
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listEntries(ctx context.Context, q queryer, voucherID int64) ([]JournalEntry, error) {
	rows, err := q.Query(ctx, `SELECT id, voucher_id, account_id, debit, credit, description, created_at
FROM journal_entries WHERE voucher_id=$1 ORDER BY id ASC`, voucherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		var entry JournalEntry
		var debit, credit string
		if err := rows.Scan(&entry.ID, &entry.VoucherID, &entry.AccountID, &debit, &credit, &entry.Description, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if entry.Debit, err = decimal.NewFromString(debit); err != nil {
			return nil, err
		}
		if entry.Credit, err = decimal.NewFromString(credit); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanVoucher(row pgx.Row) (Voucher, error) {
	var v Voucher
	err := row.Scan(&v.ID, &v.OrgID, &v.FiscalYearID, &v.Number, &v.Date, &v.Type, &v.FundID, &v.Payee, &v.ReferenceNo, &v.Description,
		&v.Posted, &v.PostedBy, &v.PostedAt, &v.Reversed, &v.ReversedBy, &v.ReversedAt, &v.ReversalReason, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Voucher{}, ErrVoucherNotFound
		}
		return Voucher{}, err
	}
	return v, nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.SystemCode, &a.PostingAllowed, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func numeric(d decimal.Decimal) string {
	return d.StringFixed(2)
}
