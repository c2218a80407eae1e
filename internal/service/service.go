// Package service implements the business logic of the frontbill billing
// core: the folio ledger, the shift reconciliation engine and the night
// audit report.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/eric2umeh/frontbill/internal/model"
	"github.com/eric2umeh/frontbill/internal/repository"
)

var (
	// ErrUnauthorized is returned when the acting staff member lacks the role
	// required for the operation.
	ErrUnauthorized = errors.New("staff member is not authorized")
	// ErrInvalidWindow is returned for a malformed shift window.
	ErrInvalidWindow = errors.New("invalid shift window")
	// ErrUnknownMethod is returned when counted totals name a payment method
	// the ledger does not know.
	ErrUnknownMethod = errors.New("unknown payment method")
)

// Repository describes the data access contract used by the service.
// Both the PostgreSQL store and the in-memory development store satisfy it.
type Repository interface {
	Close() error
	CreateStaff(ctx context.Context, login string, passwordHash []byte, role model.StaffRole) (int64, error)
	GetStaffByLogin(ctx context.Context, login string) (*model.Staff, error)
	GetStaffByID(ctx context.Context, id int64) (*model.Staff, error)
	CreateOrganization(ctx context.Context, name string, creditLimit int64) (int64, error)
	GetOrganization(ctx context.Context, id int64) (*model.Organization, error)
	AppendEntry(ctx context.Context, e *model.LedgerEntry) (*model.LedgerEntry, error)
	BalanceAsOf(ctx context.Context, ref model.AccountRef, at time.Time) (int64, error)
	AccountSummary(ctx context.Context, ref model.AccountRef) (*model.AccountSummary, error)
	Statement(ctx context.Context, ref model.AccountRef, from, to time.Time) ([]model.LedgerEntry, error)
	OutstandingAccounts(ctx context.Context) ([]model.AccountBalance, error)
	ExpectedByMethod(ctx context.Context, from, to time.Time) (map[model.PaymentMethod]int64, error)
	CreateReconciliation(ctx context.Context, w model.ShiftWindow, build repository.ReconciliationBuilder) (*model.Reconciliation, error)
	GetReconciliation(ctx context.Context, id string) (*model.Reconciliation, error)
	ListReconciliations(ctx context.Context, limit int) ([]model.Reconciliation, error)
	ReconciliationsBetween(ctx context.Context, from, to time.Time) ([]model.Reconciliation, error)
	ApproveReconciliation(ctx context.Context, id string, approvedBy int64) (*model.Reconciliation, error)
}

// Authorizer answers whether a staff member may approve reconciliations.
// The check is delegated so an external identity system can supply it.
type Authorizer interface {
	CanApprove(ctx context.Context, staffID int64) (bool, error)
}

// EventPublisher emits domain events to interested operators' systems.
type EventPublisher interface {
	Publish(topic string, event any) error
}

// Policy holds the anomaly-detection thresholds. The defaults are a
// reasonable starting policy and are configurable, not normative.
type Policy struct {
	// CashVarianceHigh is the absolute cash variance, in kobo, at which a
	// CASH_VARIANCE flag escalates from medium to high.
	CashVarianceHigh int64
	// LargeVarianceBps is the total variance, in basis points of the
	// expected total, above which a critical LARGE_VARIANCE flag is
	// raised. Basis points keep the threshold comparison in integers.
	LargeVarianceBps int64
}

// DefaultPolicy returns the default anomaly thresholds: escalate cash
// variances from 10000 kobo, flag total variances above 1% of expected.
func DefaultPolicy() Policy {
	return Policy{
		CashVarianceHigh: 10000,
		LargeVarianceBps: 100,
	}
}

// Service contains the business logic of the frontbill billing core.
type Service struct {
	repo   Repository
	authz  Authorizer
	events EventPublisher
	policy Policy
}

// NewService creates a service over the given repository. authz and
// events are optional; a nil authz falls back to the stored staff role,
// a nil events publisher disables notifications.
func NewService(repo Repository, authz Authorizer, events EventPublisher, policy Policy) *Service {
	s := &Service{
		repo:   repo,
		authz:  authz,
		events: events,
		policy: policy,
	}
	if s.authz == nil {
		s.authz = &roleAuthorizer{repo: repo}
	}
	return s
}

// Close releases the service resources.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// roleAuthorizer checks the approval permission against the locally
// stored staff role when no external identity system is configured.
type roleAuthorizer struct {
	repo Repository
}

func (a *roleAuthorizer) CanApprove(ctx context.Context, staffID int64) (bool, error) {
	st, err := a.repo.GetStaffByID(ctx, staffID)
	if err != nil {
		// An unknown approver simply cannot approve; only a real lookup
		// failure propagates.
		if errors.Is(err, repository.ErrStaffNotFound) {
			return false, nil
		}
		return false, err
	}
	return st.Role.CanApprove(), nil
}
