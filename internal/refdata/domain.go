// Package refdata holds the organisational reference entities the
// posting engine treats as opaque lookup keys: organizations, fiscal
// years, funds and departments. Their lifecycle is owned elsewhere.
package refdata

import "time"

// Organization is a municipal body that owns its own voucher series
// and budget envelopes.
type Organization struct {
	ID        int64
	Code      string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FiscalYear identifies a budget year. Code doubles as the label used
// in voucher numbers (e.g. "2025-26"). A locked year rejects unposting.
type FiscalYear struct {
	ID        int64
	Code      string
	StartDate time.Time
	EndDate   time.Time
	Locked    bool
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Fund classifies the money source of a transaction (e.g. GEN).
type Fund struct {
	ID        int64
	Code      string
	Name      string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Department is an organisational unit salary budgets are distributed to.
type Department struct {
	ID        int64
	Name      string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
