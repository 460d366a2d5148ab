package revenue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/civicledger/civicledger/internal/ledger"
	"github.com/civicledger/civicledger/internal/refdata"
	"github.com/civicledger/civicledger/internal/shared"
)

// SourceModuleDemand and SourceModuleCollection identify vouchers
// raised by this package in voucher_sources.
const (
	SourceModuleDemand     = "revenue.demand"
	SourceModuleCollection = "revenue.collection"
)

// FundSource resolves the fund revenue vouchers post against.
type FundSource interface {
	ActiveFund(ctx context.Context) (refdata.Fund, error)
}

// AuditPort records document actions outside the posting transaction.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Notifier delivers payer-facing notifications. Fire and forget:
// implementations log failures and never block the workflow.
type Notifier interface {
	DemandPosted(ctx context.Context, d Demand)
	DemandCancelled(ctx context.Context, d Demand, reason string)
	CollectionPosted(ctx context.Context, c Collection, d Demand)
	CollectionCancelled(ctx context.Context, c Collection, d Demand, reason string)
	DemandOverdue(ctx context.Context, d Demand)
}

// Service runs the demand and collection workflows on top of the
// voucher engine.
type Service struct {
	repo     Repository
	vouchers *ledger.Service
	funds    FundSource
	audit    AuditPort
	notifier Notifier
	now      func() time.Time
}

// NewService builds the revenue service. audit and notifier may be nil.
func NewService(repo Repository, vouchers *ledger.Service, funds FundSource, audit AuditPort, notifier Notifier) *Service {
	return &Service{repo: repo, vouchers: vouchers, funds: funds, audit: audit, notifier: notifier, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// GetDemand returns one demand.
func (s *Service) GetDemand(ctx context.Context, id int64) (Demand, error) {
	return s.repo.GetDemand(ctx, id)
}

// ListDemands returns an organization's demands for a fiscal year.
func (s *Service) ListDemands(ctx context.Context, orgID, fiscalYearID int64) ([]Demand, error) {
	return s.repo.ListDemands(ctx, orgID, fiscalYearID)
}

// ListCollections returns a demand's collections.
func (s *Service) ListCollections(ctx context.Context, demandID int64) ([]Collection, error) {
	return s.repo.ListCollections(ctx, demandID)
}

// CreateDemand records a draft demand against a payer.
func (s *Service) CreateDemand(ctx context.Context, in CreateDemandInput) (Demand, error) {
	if !in.Amount.IsPositive() {
		return Demand{}, ErrInvalidAmount
	}
	if _, err := s.repo.GetPayer(ctx, in.PayerID); err != nil {
		return Demand{}, err
	}
	return s.repo.CreateDemand(ctx, in, uuid.New())
}

// PostDemand recognises the demand in the GL: debit the receivable
// control head, credit the demand's revenue head. The voucher and the
// status transition commit together.
func (s *Service) PostDemand(ctx context.Context, demandID, actorID int64) (Demand, error) {
	fund, err := s.funds.ActiveFund(ctx)
	if err != nil {
		if errors.Is(err, refdata.ErrNotFound) {
			return Demand{}, ErrNoActiveFund
		}
		return Demand{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		demand, err := tx.GetDemandForUpdate(ctx, demandID)
		if err != nil {
			return err
		}
		if demand.Status != DemandStatusDraft {
			return fmt.Errorf("%w: cannot post demand in status %s", ErrInvalidTransition, demand.Status)
		}
		lx := tx.Ledger()
		receivable, err := lx.GetSystemAccount(ctx, ledger.SystemCodeReceivable)
		if err != nil {
			if errors.Is(err, ledger.ErrAccountNotFound) {
				return ErrMissingSystemAccount
			}
			return err
		}
		accounts, err := lx.GetAccounts(ctx, []int64{demand.RevenueAccountID})
		if err != nil {
			return err
		}
		revenueAccount, ok := accounts[demand.RevenueAccountID]
		if !ok {
			return ledger.ErrAccountNotFound
		}
		if revenueAccount.Type != ledger.AccountTypeRevenue {
			return fmt.Errorf("%w: %s is %s", ErrNotRevenueAccount, revenueAccount.Code, revenueAccount.Type)
		}
		voucher, err := s.vouchers.PostVoucherTx(ctx, lx, ledger.CreateVoucherInput{
			OrgID:        demand.OrgID,
			FiscalYearID: demand.FiscalYearID,
			Date:         demand.DemandDate,
			Type:         ledger.VoucherTypeJournal,
			FundID:       fund.ID,
			Payee:        demand.PayerName,
			Description:  demand.Description,
			SourceModule: SourceModuleDemand,
			SourceID:     demand.Ref,
			Entries: []ledger.EntryInput{
				{AccountID: receivable.ID, Debit: demand.Amount, Description: "demand receivable"},
				{AccountID: demand.RevenueAccountID, Credit: demand.Amount, Description: "income recognised"},
			},
		}, actorID)
		if err != nil {
			return err
		}
		return tx.MarkDemandPosted(ctx, demand.ID, voucher.ID)
	})
	if err != nil {
		return Demand{}, err
	}
	demand, err := s.repo.GetDemand(ctx, demandID)
	if err != nil {
		return Demand{}, err
	}
	s.recordAudit(ctx, actorID, "demand.post", "demand", demand.ID, map[string]any{"amount": demand.Amount.StringFixed(2)})
	if s.notifier != nil {
		s.notifier.DemandPosted(ctx, demand)
	}
	return demand, nil
}

// CancelDemand cancels a demand. A posted demand's voucher is unposted
// in the same transaction; demands with posted collections must have
// them cancelled first.
func (s *Service) CancelDemand(ctx context.Context, demandID, actorID int64, reason string) (Demand, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		demand, err := tx.GetDemandForUpdate(ctx, demandID)
		if err != nil {
			return err
		}
		switch demand.Status {
		case DemandStatusDraft, DemandStatusPosted, DemandStatusPartial:
		default:
			return fmt.Errorf("%w: cannot cancel demand in status %s", ErrInvalidTransition, demand.Status)
		}
		posted, err := tx.CountPostedCollections(ctx, demand.ID)
		if err != nil {
			return err
		}
		if posted > 0 {
			return ErrHasPostedCollections
		}
		if demand.VoucherID != nil {
			if _, err := s.vouchers.UnpostVoucherTx(ctx, tx.Ledger(), ledger.UnpostInput{
				VoucherID: *demand.VoucherID,
				ActorID:   actorID,
				Reason:    reason,
			}); err != nil {
				return err
			}
		}
		return tx.MarkDemandCancelled(ctx, demand.ID, actorID, reason, s.now())
	})
	if err != nil {
		return Demand{}, err
	}
	demand, err := s.repo.GetDemand(ctx, demandID)
	if err != nil {
		return Demand{}, err
	}
	s.recordAudit(ctx, actorID, "demand.cancel", "demand", demand.ID, map[string]any{"reason": reason})
	if s.notifier != nil {
		s.notifier.DemandCancelled(ctx, demand, reason)
	}
	return demand, nil
}

// CreateCollection records a draft receipt against an open demand.
func (s *Service) CreateCollection(ctx context.Context, in CreateCollectionInput) (Collection, error) {
	if !in.Amount.IsPositive() {
		return Collection{}, ErrInvalidAmount
	}
	demand, err := s.repo.GetDemand(ctx, in.DemandID)
	if err != nil {
		return Collection{}, err
	}
	if !demand.Status.Open() {
		return Collection{}, fmt.Errorf("%w: demand is %s", ErrInvalidTransition, demand.Status)
	}
	if _, err := s.repo.GetBankAccount(ctx, in.BankAccountID); err != nil {
		return Collection{}, err
	}
	return s.repo.CreateCollection(ctx, in, uuid.New())
}

// PostCollection settles part of a demand: debit the bank account's GL
// head, credit the receivable control head. The outstanding guard is
// re-checked under the demand lock, so concurrent collections cannot
// over-settle. The demand becomes PAID when fully collected, otherwise
// PARTIALLY_COLLECTED.
func (s *Service) PostCollection(ctx context.Context, collectionID, actorID int64) (Collection, error) {
	fund, err := s.funds.ActiveFund(ctx)
	if err != nil {
		if errors.Is(err, refdata.ErrNotFound) {
			return Collection{}, ErrNoActiveFund
		}
		return Collection{}, err
	}
	var demandAfter Demand
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		collection, err := tx.GetCollectionForUpdate(ctx, collectionID)
		if err != nil {
			return err
		}
		if collection.Status != CollectionStatusDraft {
			return fmt.Errorf("%w: cannot post collection in status %s", ErrInvalidTransition, collection.Status)
		}
		demand, err := tx.GetDemandForUpdate(ctx, collection.DemandID)
		if err != nil {
			return err
		}
		if !demand.Status.Open() {
			return fmt.Errorf("%w: demand is %s", ErrInvalidTransition, demand.Status)
		}
		bank, err := tx.GetBankAccount(ctx, collection.BankAccountID)
		if err != nil {
			return err
		}
		if bank.GLAccountID == nil {
			return fmt.Errorf("%w: %s", ErrBankAccountNoGL, bank.Name)
		}
		collected, err := tx.SumPostedCollections(ctx, demand.ID)
		if err != nil {
			return err
		}
		outstanding := demand.Amount.Sub(collected)
		if collection.Amount.GreaterThan(outstanding) {
			return fmt.Errorf("%w: %s against %s outstanding", ErrExceedsOutstanding,
				collection.Amount.StringFixed(2), outstanding.StringFixed(2))
		}
		lx := tx.Ledger()
		receivable, err := lx.GetSystemAccount(ctx, ledger.SystemCodeReceivable)
		if err != nil {
			if errors.Is(err, ledger.ErrAccountNotFound) {
				return ErrMissingSystemAccount
			}
			return err
		}
		voucher, err := s.vouchers.PostVoucherTx(ctx, lx, ledger.CreateVoucherInput{
			OrgID:        demand.OrgID,
			FiscalYearID: demand.FiscalYearID,
			Date:         collection.Date,
			Type:         ledger.VoucherTypeReceipt,
			FundID:       fund.ID,
			Payee:        demand.PayerName,
			ReferenceNo:  collection.ReceiptNo,
			Description:  demand.Description,
			SourceModule: SourceModuleCollection,
			SourceID:     collection.Ref,
			Entries: []ledger.EntryInput{
				{AccountID: *bank.GLAccountID, Debit: collection.Amount, Description: "receipt into bank"},
				{AccountID: receivable.ID, Credit: collection.Amount, Description: "receivable settled"},
			},
		}, actorID)
		if err != nil {
			return err
		}
		if err := tx.MarkCollectionPosted(ctx, collection.ID, voucher.ID); err != nil {
			return err
		}
		newCollected := collected.Add(collection.Amount)
		status := DemandStatusPartial
		if newCollected.Equal(demand.Amount) {
			status = DemandStatusPaid
		}
		if err := tx.UpdateDemandProgress(ctx, demand.ID, newCollected, status); err != nil {
			return err
		}
		demandAfter = demand
		demandAfter.CollectedAmount = newCollected
		demandAfter.Status = status
		return nil
	})
	if err != nil {
		return Collection{}, err
	}
	collection, err := s.repo.GetCollection(ctx, collectionID)
	if err != nil {
		return Collection{}, err
	}
	s.recordAudit(ctx, actorID, "collection.post", "collection", collection.ID, map[string]any{"amount": collection.Amount.StringFixed(2)})
	if s.notifier != nil {
		s.notifier.CollectionPosted(ctx, collection, demandAfter)
	}
	return collection, nil
}

// CancelCollection cancels a receipt. A posted collection's voucher is
// unposted and the demand's collected total and status re-derived: back
// to POSTED when nothing remains collected, PARTIALLY_COLLECTED
// otherwise.
func (s *Service) CancelCollection(ctx context.Context, collectionID, actorID int64, reason string) (Collection, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		collection, err := tx.GetCollectionForUpdate(ctx, collectionID)
		if err != nil {
			return err
		}
		switch collection.Status {
		case CollectionStatusDraft:
			return tx.MarkCollectionCancelled(ctx, collection.ID, actorID, reason, s.now())
		case CollectionStatusPosted:
		default:
			return fmt.Errorf("%w: cannot cancel collection in status %s", ErrInvalidTransition, collection.Status)
		}
		demand, err := tx.GetDemandForUpdate(ctx, collection.DemandID)
		if err != nil {
			return err
		}
		if collection.VoucherID != nil {
			if _, err := s.vouchers.UnpostVoucherTx(ctx, tx.Ledger(), ledger.UnpostInput{
				VoucherID: *collection.VoucherID,
				ActorID:   actorID,
				Reason:    reason,
			}); err != nil {
				return err
			}
		}
		if err := tx.MarkCollectionCancelled(ctx, collection.ID, actorID, reason, s.now()); err != nil {
			return err
		}
		collected, err := tx.SumPostedCollections(ctx, demand.ID)
		if err != nil {
			return err
		}
		status := DemandStatusPartial
		if collected.IsZero() {
			status = DemandStatusPosted
		} else if collected.Equal(demand.Amount) {
			status = DemandStatusPaid
		}
		return tx.UpdateDemandProgress(ctx, demand.ID, collected, status)
	})
	if err != nil {
		return Collection{}, err
	}
	collection, err := s.repo.GetCollection(ctx, collectionID)
	if err != nil {
		return Collection{}, err
	}
	s.recordAudit(ctx, actorID, "collection.cancel", "collection", collection.ID, map[string]any{"reason": reason})
	if s.notifier != nil {
		demand, err := s.repo.GetDemand(ctx, collection.DemandID)
		if err == nil {
			s.notifier.CollectionCancelled(ctx, collection, demand, reason)
		}
	}
	return collection, nil
}

// NotifyOverdue sends an overdue notice for every open demand past its
// due date and returns how many were sent.
func (s *Service) NotifyOverdue(ctx context.Context, asOf time.Time) (int, error) {
	if s.notifier == nil {
		return 0, nil
	}
	demands, err := s.repo.ListOverdueDemands(ctx, asOf)
	if err != nil {
		return 0, err
	}
	for _, d := range demands {
		s.notifier.DemandOverdue(ctx, d)
	}
	return len(demands), nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
		At:       s.now(),
	})
}
