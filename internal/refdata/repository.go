package refdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates a reference entity lookup miss.
var ErrNotFound = errors.New("refdata: not found")

// Repository exposes read access to reference entities.
type Repository interface {
	GetOrganization(ctx context.Context, id int64) (Organization, error)
	GetOrganizationByCode(ctx context.Context, code string) (Organization, error)
	GetFiscalYear(ctx context.Context, id int64) (FiscalYear, error)
	GetFiscalYearByCode(ctx context.Context, code string) (FiscalYear, error)
	GetFundByCode(ctx context.Context, code string) (Fund, error)
	ActiveFund(ctx context.Context) (Fund, error)
	ListActiveDepartments(ctx context.Context) ([]Department, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds a pgx-backed Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) GetOrganization(ctx context.Context, id int64) (Organization, error) {
	return r.scanOrganization(ctx, `SELECT id, code, name, created_at, updated_at FROM organizations WHERE id=$1`, id)
}

func (r *repository) GetOrganizationByCode(ctx context.Context, code string) (Organization, error) {
	return r.scanOrganization(ctx, `SELECT id, code, name, created_at, updated_at FROM organizations WHERE code=$1`, code)
}

func (r *repository) scanOrganization(ctx context.Context, query string, arg any) (Organization, error) {
	var o Organization
	err := r.db.QueryRow(ctx, query, arg).Scan(&o.ID, &o.Code, &o.Name, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Organization{}, fmt.Errorf("organization: %w", ErrNotFound)
		}
		return Organization{}, err
	}
	return o, nil
}

func (r *repository) GetFiscalYear(ctx context.Context, id int64) (FiscalYear, error) {
	return r.scanFiscalYear(ctx, `SELECT id, code, start_date, end_date, locked, active, created_at, updated_at FROM fiscal_years WHERE id=$1`, id)
}

func (r *repository) GetFiscalYearByCode(ctx context.Context, code string) (FiscalYear, error) {
	return r.scanFiscalYear(ctx, `SELECT id, code, start_date, end_date, locked, active, created_at, updated_at FROM fiscal_years WHERE code=$1`, code)
}

func (r *repository) scanFiscalYear(ctx context.Context, query string, arg any) (FiscalYear, error) {
	var fy FiscalYear
	err := r.db.QueryRow(ctx, query, arg).Scan(&fy.ID, &fy.Code, &fy.StartDate, &fy.EndDate, &fy.Locked, &fy.Active, &fy.CreatedAt, &fy.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FiscalYear{}, fmt.Errorf("fiscal year: %w", ErrNotFound)
		}
		return FiscalYear{}, err
	}
	return fy, nil
}

func (r *repository) GetFundByCode(ctx context.Context, code string) (Fund, error) {
	var f Fund
	err := r.db.QueryRow(ctx, `SELECT id, code, name, active, created_at, updated_at FROM funds WHERE code=$1`, code).
		Scan(&f.ID, &f.Code, &f.Name, &f.Active, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Fund{}, fmt.Errorf("fund: %w", ErrNotFound)
		}
		return Fund{}, err
	}
	return f, nil
}

func (r *repository) ActiveFund(ctx context.Context) (Fund, error) {
	var f Fund
	err := r.db.QueryRow(ctx, `SELECT id, code, name, active, created_at, updated_at FROM funds WHERE active ORDER BY id ASC LIMIT 1`).
		Scan(&f.ID, &f.Code, &f.Name, &f.Active, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Fund{}, fmt.Errorf("active fund: %w", ErrNotFound)
		}
		return Fund{}, err
	}
	return f, nil
}

func (r *repository) ListActiveDepartments(ctx context.Context) ([]Department, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, active, created_at, updated_at FROM departments WHERE active ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Department
	for rows.Next() {
		var d Department
		if err := rows.Scan(&d.ID, &d.Name, &d.Active, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
