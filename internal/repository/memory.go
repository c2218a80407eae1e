package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/eric2umeh/frontbill/internal/model"
)

// MemoryRepository is the in-memory development and test double of the
// PostgreSQL store. One mutex serializes every operation, which gives the
// same atomicity guarantees as the database transactions: the credit
// check and the append cannot interleave.
type MemoryRepository struct {
	mu sync.Mutex

	nextStaffID int64
	staff       map[int64]*model.Staff
	staffLogins map[string]int64

	nextOrgID int64
	orgs      map[int64]*model.Organization

	nextEntryID int64
	entries     []model.LedgerEntry

	recons []model.Reconciliation
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		staff:       make(map[int64]*model.Staff),
		staffLogins: make(map[string]int64),
		orgs:        make(map[int64]*model.Organization),
	}
}

// SeedDemo loads a small development data set so the service is usable
// without a database.
func (r *MemoryRepository) SeedDemo() {
	_, _ = r.CreateOrganization(context.Background(), "Lagos State Ministry of Works", 100000000)
	_, _ = r.CreateOrganization(context.Background(), "Zenith Engineering Ltd", 25000000)
}

// Close implements the repository contract; there is nothing to release.
func (r *MemoryRepository) Close() error {
	return nil
}

// CreateStaff creates a new staff member.
func (r *MemoryRepository) CreateStaff(ctx context.Context, login string, passwordHash []byte, role model.StaffRole) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.staffLogins[login]; ok {
		return 0, fmt.Errorf("%w: %s", ErrStaffExists, login)
	}

	r.nextStaffID++
	s := &model.Staff{
		ID:           r.nextStaffID,
		Login:        login,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    time.Now(),
	}
	r.staff[s.ID] = s
	r.staffLogins[login] = s.ID
	return s.ID, nil
}

// GetStaffByLogin returns a staff member by login.
func (r *MemoryRepository) GetStaffByLogin(ctx context.Context, login string) (*model.Staff, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.staffLogins[login]
	if !ok {
		return nil, ErrStaffNotFound
	}
	s := *r.staff[id]
	return &s, nil
}

// GetStaffByID returns a staff member by identifier.
func (r *MemoryRepository) GetStaffByID(ctx context.Context, id int64) (*model.Staff, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.staff[id]
	if !ok {
		return nil, ErrStaffNotFound
	}
	cp := *s
	return &cp, nil
}

// CreateOrganization registers a city-ledger counterparty with its credit limit.
func (r *MemoryRepository) CreateOrganization(ctx context.Context, name string, creditLimit int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextOrgID++
	r.orgs[r.nextOrgID] = &model.Organization{
		ID:          r.nextOrgID,
		Name:        name,
		CreditLimit: creditLimit,
		Active:      true,
		CreatedAt:   time.Now(),
	}
	return r.nextOrgID, nil
}

// GetOrganization returns an organization by identifier.
func (r *MemoryRepository) GetOrganization(ctx context.Context, id int64) (*model.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orgs[id]
	if !ok {
		return nil, ErrOrganizationNotFound
	}
	cp := *o
	return &cp, nil
}

// AppendEntry appends a ledger entry with the same all-or-nothing
// semantics as the PostgreSQL store: every check runs before any state
// is touched, so a failed append leaves no trace.
func (r *MemoryRepository) AppendEntry(ctx context.Context, e *model.LedgerEntry) (*model.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.Kind == model.KindPayment {
		for i := range r.recons {
			if r.recons[i].Window.Contains(e.OccurredAt) {
				return nil, ErrShiftClosed
			}
		}
	}

	if e.Account.IsOrganization() && e.Kind != model.KindDeposit {
		if err := r.checkOrgPosting(e.Account.OrganizationID, e.Amount, e.ManagerApproved); err != nil {
			return nil, err
		}
	}
	if e.Method == model.MethodHouseAccount {
		if err := r.checkOrgPosting(e.PayerOrgID, -e.Amount, e.ManagerApproved); err != nil {
			return nil, err
		}
	}

	// All checks passed; apply.
	if e.Account.IsOrganization() && e.Kind != model.KindDeposit {
		r.orgs[e.Account.OrganizationID].OutstandingBalance += e.Amount
	}

	stored := *e
	r.nextEntryID++
	stored.ID = r.nextEntryID
	r.entries = append(r.entries, stored)

	if e.Method == model.MethodHouseAccount {
		r.orgs[e.PayerOrgID].OutstandingBalance += -e.Amount

		r.nextEntryID++
		r.entries = append(r.entries, model.LedgerEntry{
			ID:              r.nextEntryID,
			Account:         model.AccountRef{OrganizationID: e.PayerOrgID},
			Kind:            model.KindServiceCharge,
			SubCategory:     "city_ledger",
			Amount:          -e.Amount,
			RefersTo:        &stored.ID,
			ManagerApproved: e.ManagerApproved,
			Description:     fmt.Sprintf("house-account posting for %s", e.Account),
			OccurredAt:      e.OccurredAt,
			RecordedBy:      e.RecordedBy,
		})
	}

	return &stored, nil
}

func (r *MemoryRepository) checkOrgPosting(orgID, delta int64, managerApproved bool) error {
	o, ok := r.orgs[orgID]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrOrganizationNotFound, orgID)
	}
	if delta > 0 && !managerApproved && o.OutstandingBalance+delta > o.CreditLimit {
		return fmt.Errorf("%w: outstanding %d + %d > limit %d",
			ErrCreditLimitExceeded, o.OutstandingBalance, delta, o.CreditLimit)
	}
	return nil
}

func matchesAccount(e *model.LedgerEntry, ref model.AccountRef) bool {
	if ref.IsOrganization() {
		return e.Account.OrganizationID == ref.OrganizationID
	}
	return e.Account.BookingID == ref.BookingID
}

// BalanceAsOf returns the account balance at the given instant.
func (r *MemoryRepository) BalanceAsOf(ctx context.Context, ref model.AccountRef, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var balance int64
	for i := range r.entries {
		e := &r.entries[i]
		if matchesAccount(e, ref) && e.Kind != model.KindDeposit && !e.OccurredAt.After(at) {
			balance += e.Amount
		}
	}
	return balance, nil
}

// AccountSummary returns the charge/payment totals and held deposits of
// an account. An ADJUSTMENT referencing a DEPOSIT entry releases it: the
// amount leaves the held bucket and enters the balance math.
func (r *MemoryRepository) AccountSummary(ctx context.Context, ref model.AccountRef) (*model.AccountSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	depositIDs := make(map[int64]bool)
	for i := range r.entries {
		if r.entries[i].Kind == model.KindDeposit {
			depositIDs[r.entries[i].ID] = true
		}
	}

	s := model.AccountSummary{Account: ref}
	for i := range r.entries {
		e := &r.entries[i]
		if !matchesAccount(e, ref) {
			continue
		}
		if e.Kind == model.KindDeposit {
			s.DepositsHeld += e.Amount
			continue
		}
		if e.Kind == model.KindAdjustment && e.RefersTo != nil && depositIDs[*e.RefersTo] {
			s.DepositsHeld += e.Amount
		}
		if e.Amount > 0 {
			s.TotalCharges += e.Amount
		} else {
			s.TotalPaid += -e.Amount
		}
	}
	s.Balance = s.TotalCharges - s.TotalPaid
	return &s, nil
}

// Statement returns the account entries within [from, to], ordered by
// occurred_at ascending with ties broken by id ascending.
func (r *MemoryRepository) Statement(ctx context.Context, ref model.AccountRef, from, to time.Time) ([]model.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.LedgerEntry
	for i := range r.entries {
		e := r.entries[i]
		if matchesAccount(&e, ref) && !e.OccurredAt.Before(from) && !e.OccurredAt.After(to) {
			res = append(res, e)
		}
	}

	sort.Slice(res, func(i, j int) bool {
		if !res[i].OccurredAt.Equal(res[j].OccurredAt) {
			return res[i].OccurredAt.Before(res[j].OccurredAt)
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

// OutstandingAccounts returns every account whose balance is positive,
// largest debt first.
func (r *MemoryRepository) OutstandingAccounts(ctx context.Context) ([]model.AccountBalance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	balances := make(map[model.AccountRef]int64)
	for i := range r.entries {
		e := &r.entries[i]
		if e.Kind != model.KindDeposit {
			balances[e.Account] += e.Amount
		}
	}

	var res []model.AccountBalance
	for ref, balance := range balances {
		if balance > 0 {
			res = append(res, model.AccountBalance{Account: ref, Balance: balance})
		}
	}

	sort.Slice(res, func(i, j int) bool {
		if res[i].Balance != res[j].Balance {
			return res[i].Balance > res[j].Balance
		}
		return res[i].Account.String() < res[j].Account.String()
	})
	return res, nil
}

// ExpectedByMethod sums collected payments per method over [from, to).
func (r *MemoryRepository) ExpectedByMethod(ctx context.Context, from, to time.Time) (map[model.PaymentMethod]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.expectedByMethodLocked(from, to), nil
}

func (r *MemoryRepository) expectedByMethodLocked(from, to time.Time) map[model.PaymentMethod]int64 {
	res := make(map[model.PaymentMethod]int64)
	for i := range r.entries {
		e := &r.entries[i]
		if e.Kind == model.KindPayment && !e.OccurredAt.Before(from) && e.OccurredAt.Before(to) {
			res[e.Method] += -e.Amount
		}
	}
	return res
}

func (r *MemoryRepository) unpostedLocked(from, to time.Time) []model.LedgerEntry {
	posted := make(map[int64]bool)
	for i := range r.entries {
		e := &r.entries[i]
		if e.RefersTo != nil && e.Account.IsOrganization() {
			posted[*e.RefersTo] = true
		}
	}

	var res []model.LedgerEntry
	for i := range r.entries {
		e := r.entries[i]
		if e.Kind == model.KindPayment && e.Method == model.MethodHouseAccount &&
			!e.OccurredAt.Before(from) && e.OccurredAt.Before(to) && !posted[e.ID] {
			res = append(res, e)
		}
	}
	return res
}

// CreateReconciliation closes out a shift window atomically, mirroring
// the transactional behavior of the PostgreSQL store.
func (r *MemoryRepository) CreateReconciliation(ctx context.Context, w model.ShiftWindow, build ReconciliationBuilder) (*model.Reconciliation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.recons {
		if r.recons[i].Window.Overlaps(w) {
			return nil, ErrShiftClosed
		}
	}

	rec, err := build(r.expectedByMethodLocked(w.Start, w.End), r.unpostedLocked(w.Start, w.End))
	if err != nil {
		return nil, err
	}

	rec.CreatedAt = time.Now()
	r.recons = append(r.recons, *rec)
	return rec, nil
}

// GetReconciliation returns one reconciliation record by identifier.
func (r *MemoryRepository) GetReconciliation(ctx context.Context, id string) (*model.Reconciliation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.recons {
		if r.recons[i].ID == id {
			rec := r.recons[i]
			return &rec, nil
		}
	}
	return nil, ErrReconciliationNotFound
}

// ListReconciliations returns the most recent reconciliation records.
func (r *MemoryRepository) ListReconciliations(ctx context.Context, limit int) ([]model.Reconciliation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := make([]model.Reconciliation, len(r.recons))
	copy(res, r.recons)

	sort.Slice(res, func(i, j int) bool {
		return res[i].Window.Start.After(res[j].Window.Start)
	})
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// ReconciliationsBetween returns records whose window starts within [from, to).
func (r *MemoryRepository) ReconciliationsBetween(ctx context.Context, from, to time.Time) ([]model.Reconciliation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Reconciliation
	for i := range r.recons {
		start := r.recons[i].Window.Start
		if !start.Before(from) && start.Before(to) {
			res = append(res, r.recons[i])
		}
	}

	sort.Slice(res, func(i, j int) bool {
		return res[i].Window.Start.Before(res[j].Window.Start)
	})
	return res, nil
}

// ApproveReconciliation applies the approval transition and returns the
// updated record.
func (r *MemoryRepository) ApproveReconciliation(ctx context.Context, id string, approvedBy int64) (*model.Reconciliation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.recons {
		if r.recons[i].ID != id {
			continue
		}

		next, err := r.recons[i].Status.Approve()
		if err != nil {
			return nil, err
		}

		now := time.Now()
		r.recons[i].Status = next
		r.recons[i].ApprovedBy = &approvedBy
		r.recons[i].ApprovedAt = &now

		rec := r.recons[i]
		return &rec, nil
	}
	return nil, ErrReconciliationNotFound
}
