package repository

import "errors"

var (
	// ErrStaffExists is returned when registering a login that is already taken.
	ErrStaffExists = errors.New("staff member already exists")
	// ErrStaffNotFound is returned when a staff member cannot be found.
	ErrStaffNotFound = errors.New("staff member not found")
	// ErrOrganizationNotFound is returned when a referenced organization does not exist.
	ErrOrganizationNotFound = errors.New("organization not found")
	// ErrCreditLimitExceeded is returned when a city-ledger posting would breach
	// the organization's credit limit and no manager override was supplied.
	ErrCreditLimitExceeded = errors.New("organization credit limit exceeded")
	// ErrShiftClosed is returned for a payment dated inside an already
	// reconciled shift window, or for reconciling a window that overlaps one.
	ErrShiftClosed = errors.New("shift window already reconciled")
	// ErrReconciliationNotFound is returned when a reconciliation record cannot be found.
	ErrReconciliationNotFound = errors.New("reconciliation record not found")
)
