package service

import (
	"context"
	"time"

	"github.com/eric2umeh/frontbill/internal/events"
	"github.com/eric2umeh/frontbill/internal/model"
	"github.com/eric2umeh/frontbill/internal/validation"
)

// AppendEntry validates and appends a ledger entry. On success the stored
// entry, including its assigned identifier, is returned; on any failure
// the ledger is left untouched.
func (s *Service) AppendEntry(ctx context.Context, e *model.LedgerEntry) (*model.LedgerEntry, error) {
	if err := validation.ValidateEntry(e); err != nil {
		return nil, err
	}

	stored, err := s.repo.AppendEntry(ctx, e)
	if err != nil {
		return nil, err
	}

	if s.events != nil {
		// Notification only; the entry is already committed.
		_ = s.events.Publish(events.TopicEntryAppended, events.EntryAppended{
			EntryID:    stored.ID,
			Account:    stored.Account.String(),
			Kind:       stored.Kind,
			Amount:     stored.Amount,
			Method:     stored.Method,
			OccurredAt: stored.OccurredAt,
			RecordedBy: stored.RecordedBy,
		})
	}

	return stored, nil
}

// BalanceAsOf returns the account balance at the given instant; a zero
// timestamp means now.
func (s *Service) BalanceAsOf(ctx context.Context, ref model.AccountRef, at time.Time) (int64, error) {
	if at.IsZero() {
		at = time.Now()
	}
	return s.repo.BalanceAsOf(ctx, ref, at)
}

// AccountSummary returns the derived totals of an account.
func (s *Service) AccountSummary(ctx context.Context, ref model.AccountRef) (*model.AccountSummary, error) {
	return s.repo.AccountSummary(ctx, ref)
}

// Statement returns the account entries within [from, to] in stable
// display order. A zero `to` means now.
func (s *Service) Statement(ctx context.Context, ref model.AccountRef, from, to time.Time) ([]model.LedgerEntry, error) {
	if to.IsZero() {
		to = time.Now()
	}
	return s.repo.Statement(ctx, ref, from, to)
}

// OutstandingAccounts returns every account that owes the house, largest
// debt first. It drives the guest-debt and city-ledger views.
func (s *Service) OutstandingAccounts(ctx context.Context) ([]model.AccountBalance, error) {
	return s.repo.OutstandingAccounts(ctx)
}

// CreateOrganization registers a city-ledger counterparty.
func (s *Service) CreateOrganization(ctx context.Context, name string, creditLimit int64) (int64, error) {
	return s.repo.CreateOrganization(ctx, name, creditLimit)
}

// GetOrganization returns an organization with its credit standing.
func (s *Service) GetOrganization(ctx context.Context, id int64) (*model.Organization, error) {
	return s.repo.GetOrganization(ctx, id)
}
