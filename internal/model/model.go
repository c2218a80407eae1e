// Package model contains the domain entities of the frontbill billing core.
package model

import (
	"errors"
	"fmt"
	"time"
)

// EntryKind describes the monetary event a ledger entry records.
type EntryKind string

const (
	KindRoomCharge    EntryKind = "ROOM_CHARGE"
	KindServiceCharge EntryKind = "SERVICE_CHARGE"
	KindPayment       EntryKind = "PAYMENT"
	KindAdjustment    EntryKind = "ADJUSTMENT"
	KindRefund        EntryKind = "REFUND"
	KindDeposit       EntryKind = "DEPOSIT"
)

// Valid reports whether k is one of the known entry kinds.
func (k EntryKind) Valid() bool {
	switch k {
	case KindRoomCharge, KindServiceCharge, KindPayment, KindAdjustment, KindRefund, KindDeposit:
		return true
	}
	return false
}

// PaymentMethod is the channel a payment was collected through.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "CASH"
	MethodPOS          PaymentMethod = "POS"
	MethodTransfer     PaymentMethod = "TRANSFER"
	MethodHouseAccount PaymentMethod = "HOUSE_ACCOUNT"
)

// Valid reports whether m is one of the known payment methods.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodPOS, MethodTransfer, MethodHouseAccount:
		return true
	}
	return false
}

// Methods lists all payment methods in a fixed order, used wherever
// per-method output must be reproducible.
func Methods() []PaymentMethod {
	return []PaymentMethod{MethodCash, MethodPOS, MethodTransfer, MethodHouseAccount}
}

// AccountRef identifies the account a ledger entry belongs to: either a
// guest-stay (booking) folio or an organization city ledger. Exactly one
// of the two identifiers must be set.
type AccountRef struct {
	BookingID      int64 `json:"booking_id,omitempty"`
	OrganizationID int64 `json:"organization_id,omitempty"`
}

// Valid reports whether exactly one identifier is set.
func (r AccountRef) Valid() bool {
	return (r.BookingID > 0) != (r.OrganizationID > 0)
}

// IsOrganization reports whether the reference points at a city-ledger account.
func (r AccountRef) IsOrganization() bool {
	return r.OrganizationID > 0
}

// String renders the reference as "booking:42" or "organization:7".
func (r AccountRef) String() string {
	if r.IsOrganization() {
		return fmt.Sprintf("organization:%d", r.OrganizationID)
	}
	return fmt.Sprintf("booking:%d", r.BookingID)
}

// LedgerEntry is one immutable monetary event on an account. Entries are
// never updated or deleted; corrections are appended as ADJUSTMENT or
// REFUND entries referencing the original via RefersTo.
//
// Amount is in kobo (minor currency units). Charges are positive,
// payments and refunds negative. DEPOSIT entries are ring-fenced and
// excluded from the running balance until released.
type LedgerEntry struct {
	ID              int64         `json:"id"`
	Account         AccountRef    `json:"account"`
	Kind            EntryKind     `json:"kind"`
	SubCategory     string        `json:"sub_category,omitempty"`
	Amount          int64         `json:"amount"`
	Method          PaymentMethod `json:"method,omitempty"`
	PayerOrgID      int64         `json:"payer_org_id,omitempty"`
	RefersTo        *int64        `json:"refers_to,omitempty"`
	ManagerApproved bool          `json:"manager_approved,omitempty"`
	Description     string        `json:"description,omitempty"`
	OccurredAt      time.Time     `json:"occurred_at"`
	RecordedBy      int64         `json:"recorded_by"`
}

// AccountSummary is a projection over an account's entries; it has no
// stored representation of its own.
type AccountSummary struct {
	Account      AccountRef `json:"account"`
	TotalCharges int64      `json:"total_charges"`
	TotalPaid    int64      `json:"total_paid"`
	Balance      int64      `json:"balance"`
	DepositsHeld int64      `json:"deposits_held"`
}

// AccountBalance pairs an account reference with its outstanding balance.
type AccountBalance struct {
	Account AccountRef `json:"account"`
	Balance int64      `json:"balance"`
}

// Organization is the city-ledger counterparty of house-account billing.
// OutstandingBalance is maintained transactionally together with the
// org-side ledger postings.
type Organization struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	CreditLimit        int64     `json:"credit_limit"`
	OutstandingBalance int64     `json:"outstanding_balance"`
	Active             bool      `json:"active"`
	CreatedAt          time.Time `json:"created_at"`
}

// ShiftType names the front-desk shift a reconciliation window belongs to.
type ShiftType string

const (
	ShiftMorning   ShiftType = "MORNING"
	ShiftAfternoon ShiftType = "AFTERNOON"
	ShiftNight     ShiftType = "NIGHT"
)

// Valid reports whether t is one of the known shift types.
func (t ShiftType) Valid() bool {
	switch t {
	case ShiftMorning, ShiftAfternoon, ShiftNight:
		return true
	}
	return false
}

// ShiftWindow is the half-open interval [Start, End) of one shift. The
// half-open boundary guarantees that adjacent shifts never count the
// same payment twice.
type ShiftWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Type  ShiftType `json:"shift_type"`
}

// Valid reports whether the window is well formed.
func (w ShiftWindow) Valid() bool {
	return w.Type.Valid() && w.End.After(w.Start)
}

// Contains reports whether t falls inside the window.
func (w ShiftWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Overlaps reports whether two half-open windows share any instant.
func (w ShiftWindow) Overlaps(o ShiftWindow) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

// ReconciliationStatus is the lifecycle state of a shift reconciliation.
type ReconciliationStatus string

const (
	StatusPending  ReconciliationStatus = "PENDING"
	StatusApproved ReconciliationStatus = "APPROVED"
	StatusFlagged  ReconciliationStatus = "FLAGGED"
	StatusResolved ReconciliationStatus = "RESOLVED"
)

// ErrInvalidTransition is returned for an illegal reconciliation status change.
var ErrInvalidTransition = errors.New("invalid reconciliation status transition")

// Approve returns the status a manager approval moves s into.
// PENDING becomes APPROVED, FLAGGED becomes RESOLVED; APPROVED and
// RESOLVED are terminal and nothing ever returns to PENDING.
func (s ReconciliationStatus) Approve() (ReconciliationStatus, error) {
	switch s {
	case StatusPending:
		return StatusApproved, nil
	case StatusFlagged:
		return StatusResolved, nil
	default:
		return s, fmt.Errorf("%w: %s", ErrInvalidTransition, s)
	}
}

// FlagType classifies a reconciliation anomaly.
type FlagType string

const (
	FlagCashVariance   FlagType = "CASH_VARIANCE"
	FlagUnpostedCharge FlagType = "UNPOSTED_CHARGE"
	FlagLargeVariance  FlagType = "LARGE_VARIANCE"
)

// FlagSeverity grades an anomaly flag.
type FlagSeverity string

const (
	SeverityLow      FlagSeverity = "low"
	SeverityMedium   FlagSeverity = "medium"
	SeverityHigh     FlagSeverity = "high"
	SeverityCritical FlagSeverity = "critical"
)

// AnomalyFlag is a structured warning attached to a reconciliation record.
type AnomalyFlag struct {
	Type        FlagType     `json:"type"`
	Severity    FlagSeverity `json:"severity"`
	Amount      int64        `json:"amount,omitempty"`
	Description string       `json:"description"`
}

// Reconciliation is the immutable record of one end-of-shift cash-up.
// Only the approval transition ever mutates it; records are never deleted.
type Reconciliation struct {
	ID            string                  `json:"id"`
	Window        ShiftWindow             `json:"window"`
	Expected      map[PaymentMethod]int64 `json:"expected_by_method"`
	Actual        map[PaymentMethod]int64 `json:"actual_by_method"`
	Variance      map[PaymentMethod]int64 `json:"variance_by_method"`
	TotalExpected int64                   `json:"total_expected"`
	TotalActual   int64                   `json:"total_actual"`
	TotalVariance int64                   `json:"total_variance"`
	Status        ReconciliationStatus    `json:"status"`
	Flags         []AnomalyFlag           `json:"anomaly_flags"`
	SubmittedBy   int64                   `json:"submitted_by"`
	ApprovedBy    *int64                  `json:"approved_by,omitempty"`
	ApprovedAt    *time.Time              `json:"approved_at,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
}

// StaffRole is the front-office role of a staff member.
type StaffRole string

const (
	RoleAdmin      StaffRole = "admin"
	RoleManager    StaffRole = "manager"
	RoleFrontDesk  StaffRole = "front_desk"
	RoleAccountant StaffRole = "accountant"
)

// Valid reports whether r is one of the known staff roles.
func (r StaffRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleFrontDesk, RoleAccountant:
		return true
	}
	return false
}

// CanApprove reports whether the role may approve or resolve a
// reconciliation record.
func (r StaffRole) CanApprove() bool {
	return r == RoleAdmin || r == RoleManager
}

// Staff is a front-office user able to record entries and submit shifts.
type Staff struct {
	ID           int64
	Login        string
	PasswordHash []byte
	Role         StaffRole
	CreatedAt    time.Time
}
