package budget

import (
	"context"

	"github.com/shopspring/decimal"
)

// Service exposes read access to budget envelopes.
type Service struct {
	repo Repository
}

// NewService builds the allocation ledger service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetAvailable returns the remaining ceiling for one allocation.
func (s *Service) GetAvailable(ctx context.Context, orgID, fiscalYearID, accountID int64) (decimal.Decimal, error) {
	allocation, err := s.repo.Get(ctx, orgID, fiscalYearID, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return allocation.Available(), nil
}

// Get returns one allocation.
func (s *Service) Get(ctx context.Context, orgID, fiscalYearID, accountID int64) (Allocation, error) {
	return s.repo.Get(ctx, orgID, fiscalYearID, accountID)
}

// List returns the allocations for an organization's fiscal year.
func (s *Service) List(ctx context.Context, orgID, fiscalYearID int64) ([]Allocation, error) {
	return s.repo.ListByFiscalYear(ctx, orgID, fiscalYearID)
}

// Seed creates or revises an allocation envelope.
func (s *Service) Seed(ctx context.Context, a Allocation) (Allocation, error) {
	return s.repo.Upsert(ctx, a)
}
