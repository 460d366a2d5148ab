package revenue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/civicledger/civicledger/internal/ledger"
	"github.com/civicledger/civicledger/internal/platform/db"
)

// CreateDemandInput groups fields for a new draft demand.
type CreateDemandInput struct {
	OrgID            int64
	FiscalYearID     int64
	PayerID          int64
	RevenueAccountID int64
	Description      string
	Amount           decimal.Decimal
	DemandDate       time.Time
	DueDate          *time.Time
}

// CreateCollectionInput groups fields for a new draft collection.
type CreateCollectionInput struct {
	DemandID      int64
	BankAccountID int64
	Amount        decimal.Decimal
	ReceiptNo     string
	Date          time.Time
}

// Repository exposes demand and collection persistence.
type Repository interface {
	GetDemand(ctx context.Context, id int64) (Demand, error)
	ListDemands(ctx context.Context, orgID, fiscalYearID int64) ([]Demand, error)
	ListOverdueDemands(ctx context.Context, asOf time.Time) ([]Demand, error)
	CreateDemand(ctx context.Context, in CreateDemandInput, ref uuid.UUID) (Demand, error)
	GetCollection(ctx context.Context, id int64) (Collection, error)
	ListCollections(ctx context.Context, demandID int64) ([]Collection, error)
	CreateCollection(ctx context.Context, in CreateCollectionInput, ref uuid.UUID) (Collection, error)
	GetPayer(ctx context.Context, id int64) (Payer, error)
	GetBankAccount(ctx context.Context, id int64) (BankAccount, error)
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
}

// TxRepository is the transactional surface for posting and
// cancellation. Ledger exposes the voucher engine's tx methods on the
// same connection so the document transition and its GL effects commit
// together.
type TxRepository interface {
	Ledger() ledger.TxRepository
	GetDemandForUpdate(ctx context.Context, id int64) (Demand, error)
	GetCollectionForUpdate(ctx context.Context, id int64) (Collection, error)
	GetBankAccount(ctx context.Context, id int64) (BankAccount, error)
	SumPostedCollections(ctx context.Context, demandID int64) (decimal.Decimal, error)
	CountPostedCollections(ctx context.Context, demandID int64) (int64, error)
	MarkDemandPosted(ctx context.Context, id, voucherID int64) error
	UpdateDemandProgress(ctx context.Context, id int64, collected decimal.Decimal, status DemandStatus) error
	MarkDemandCancelled(ctx context.Context, id, actorID int64, reason string, at time.Time) error
	MarkCollectionPosted(ctx context.Context, id, voucherID int64) error
	MarkCollectionCancelled(ctx context.Context, id, actorID int64, reason string, at time.Time) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds a pgx-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, ledger: ledger.NewTxRepository(tx)})
	})
}

const demandColumns = `d.id, d.ref, d.org_id, d.fiscal_year_id, d.payer_id, p.name, p.email, d.revenue_account_id,
d.description, d.amount, d.collected_amount, d.status, d.demand_date, d.due_date, d.voucher_id,
d.cancelled_by, d.cancelled_at, d.cancel_reason, d.created_at, d.updated_at`

const demandFrom = ` FROM revenue_demands d JOIN payers p ON p.id = d.payer_id`

func (r *repository) GetDemand(ctx context.Context, id int64) (Demand, error) {
	row := r.db.QueryRow(ctx, `SELECT `+demandColumns+demandFrom+` WHERE d.id=$1`, id)
	return scanDemand(row)
}

func (r *repository) ListDemands(ctx context.Context, orgID, fiscalYearID int64) ([]Demand, error) {
	rows, err := r.db.Query(ctx, `SELECT `+demandColumns+demandFrom+`
WHERE d.org_id=$1 AND d.fiscal_year_id=$2 ORDER BY d.demand_date DESC, d.id DESC`, orgID, fiscalYearID)
	if err != nil {
		return nil, err
	}
	return collectDemands(rows)
}

func (r *repository) ListOverdueDemands(ctx context.Context, asOf time.Time) ([]Demand, error) {
	rows, err := r.db.Query(ctx, `SELECT `+demandColumns+demandFrom+`
WHERE d.status IN ($1,$2) AND d.due_date IS NOT NULL AND d.due_date < $3
ORDER BY d.due_date ASC`, DemandStatusPosted, DemandStatusPartial, asOf)
	if err != nil {
		return nil, err
	}
	return collectDemands(rows)
}

func (r *repository) CreateDemand(ctx context.Context, in CreateDemandInput, ref uuid.UUID) (Demand, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO revenue_demands
(ref, org_id, fiscal_year_id, payer_id, revenue_account_id, description, amount, status, demand_date, due_date)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		ref, in.OrgID, in.FiscalYearID, in.PayerID, in.RevenueAccountID, in.Description,
		in.Amount.StringFixed(2), DemandStatusDraft, in.DemandDate, in.DueDate).Scan(&id)
	if err != nil {
		return Demand{}, err
	}
	return r.GetDemand(ctx, id)
}

const collectionColumns = `id, ref, demand_id, bank_account_id, amount, receipt_no, date, status,
voucher_id, cancelled_by, cancelled_at, cancel_reason, created_at, updated_at`

func (r *repository) GetCollection(ctx context.Context, id int64) (Collection, error) {
	row := r.db.QueryRow(ctx, `SELECT `+collectionColumns+` FROM revenue_collections WHERE id=$1`, id)
	return scanCollection(row)
}

func (r *repository) ListCollections(ctx context.Context, demandID int64) ([]Collection, error) {
	rows, err := r.db.Query(ctx, `SELECT `+collectionColumns+` FROM revenue_collections
WHERE demand_id=$1 ORDER BY id ASC`, demandID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repository) CreateCollection(ctx context.Context, in CreateCollectionInput, ref uuid.UUID) (Collection, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO revenue_collections
(ref, demand_id, bank_account_id, amount, receipt_no, date, status)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		ref, in.DemandID, in.BankAccountID, in.Amount.StringFixed(2), in.ReceiptNo, in.Date,
		CollectionStatusDraft).Scan(&id)
	if err != nil {
		return Collection{}, err
	}
	return r.GetCollection(ctx, id)
}

func (r *repository) GetPayer(ctx context.Context, id int64) (Payer, error) {
	var p Payer
	err := r.db.QueryRow(ctx, `SELECT id, name, mobile, email, address, active, created_at, updated_at
FROM payers WHERE id=$1`, id).
		Scan(&p.ID, &p.Name, &p.Mobile, &p.Email, &p.Address, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payer{}, ErrPayerNotFound
		}
		return Payer{}, err
	}
	return p, nil
}

func (r *repository) GetBankAccount(ctx context.Context, id int64) (BankAccount, error) {
	return getBankAccount(ctx, r.db, id)
}

type txRepository struct {
	tx     pgx.Tx
	ledger ledger.TxRepository
}

func (r *txRepository) Ledger() ledger.TxRepository {
	return r.ledger
}

func (r *txRepository) GetDemandForUpdate(ctx context.Context, id int64) (Demand, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+demandColumns+demandFrom+` WHERE d.id=$1 FOR UPDATE OF d`, id)
	return scanDemand(row)
}

func (r *txRepository) GetCollectionForUpdate(ctx context.Context, id int64) (Collection, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+collectionColumns+` FROM revenue_collections WHERE id=$1 FOR UPDATE`, id)
	return scanCollection(row)
}

func (r *txRepository) GetBankAccount(ctx context.Context, id int64) (BankAccount, error) {
	return getBankAccount(ctx, r.tx, id)
}

func (r *txRepository) SumPostedCollections(ctx context.Context, demandID int64) (decimal.Decimal, error) {
	var sum string
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM revenue_collections
WHERE demand_id=$1 AND status=$2`, demandID, CollectionStatusPosted).Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(sum)
}

func (r *txRepository) CountPostedCollections(ctx context.Context, demandID int64) (int64, error) {
	var n int64
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM revenue_collections
WHERE demand_id=$1 AND status=$2`, demandID, CollectionStatusPosted).Scan(&n)
	return n, err
}

func (r *txRepository) MarkDemandPosted(ctx context.Context, id, voucherID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE revenue_demands SET status=$2, voucher_id=$3, updated_at=NOW()
WHERE id=$1 AND status=$4`, id, DemandStatusPosted, voucherID, DemandStatusDraft)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (r *txRepository) UpdateDemandProgress(ctx context.Context, id int64, collected decimal.Decimal, status DemandStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE revenue_demands SET collected_amount=$2, status=$3, updated_at=NOW()
WHERE id=$1`, id, collected.StringFixed(2), status)
	return err
}

func (r *txRepository) MarkDemandCancelled(ctx context.Context, id, actorID int64, reason string, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE revenue_demands SET status=$2, cancelled_by=$3, cancelled_at=$4,
cancel_reason=$5, updated_at=NOW() WHERE id=$1`, id, DemandStatusCancelled, actorID, at, reason)
	return err
}

func (r *txRepository) MarkCollectionPosted(ctx context.Context, id, voucherID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE revenue_collections SET status=$2, voucher_id=$3, updated_at=NOW()
WHERE id=$1 AND status=$4`, id, CollectionStatusPosted, voucherID, CollectionStatusDraft)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (r *txRepository) MarkCollectionCancelled(ctx context.Context, id, actorID int64, reason string, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE revenue_collections SET status=$2, cancelled_by=$3, cancelled_at=$4,
cancel_reason=$5, updated_at=NOW() WHERE id=$1`, id, CollectionStatusCancelled, actorID, at, reason)
	return err
}

type rowQueryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getBankAccount(ctx context.Context, q rowQueryer, id int64) (BankAccount, error) {
	var b BankAccount
	err := q.QueryRow(ctx, `SELECT id, name, account_number, bank_name, branch, gl_account_id, active, created_at, updated_at
FROM bank_accounts WHERE id=$1`, id).
		Scan(&b.ID, &b.Name, &b.AccountNumber, &b.BankName, &b.Branch, &b.GLAccountID, &b.Active, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankAccount{}, ErrBankAccountNotFound
		}
		return BankAccount{}, err
	}
	return b, nil
}

func collectDemands(rows pgx.Rows) ([]Demand, error) {
	defer rows.Close()
	var out []Demand
	for rows.Next() {
		d, err := scanDemand(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDemand(row pgx.Row) (Demand, error) {
	var d Demand
	var amount, collected string
	err := row.Scan(&d.ID, &d.Ref, &d.OrgID, &d.FiscalYearID, &d.PayerID, &d.PayerName, &d.PayerEmail, &d.RevenueAccountID,
		&d.Description, &amount, &collected, &d.Status, &d.DemandDate, &d.DueDate, &d.VoucherID,
		&d.CancelledBy, &d.CancelledAt, &d.CancelReason, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Demand{}, ErrDemandNotFound
		}
		return Demand{}, err
	}
	if d.Amount, err = decimal.NewFromString(amount); err != nil {
		return Demand{}, err
	}
	if d.CollectedAmount, err = decimal.NewFromString(collected); err != nil {
		return Demand{}, err
	}
	return d, nil
}

func scanCollection(row pgx.Row) (Collection, error) {
	var c Collection
	var amount string
	err := row.Scan(&c.ID, &c.Ref, &c.DemandID, &c.BankAccountID, &amount, &c.ReceiptNo, &c.Date, &c.Status,
		&c.VoucherID, &c.CancelledBy, &c.CancelledAt, &c.CancelReason, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Collection{}, ErrCollectionNotFound
		}
		return Collection{}, err
	}
	if c.Amount, err = decimal.NewFromString(amount); err != nil {
		return Collection{}, err
	}
	return c, nil
}
