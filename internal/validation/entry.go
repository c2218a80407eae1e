// Package validation enforces the ledger entry invariants at the append boundary.
package validation

import (
	"errors"
	"fmt"

	"github.com/eric2umeh/frontbill/internal/model"
)

// ErrInvalidEntry is returned when an entry violates the append invariants.
var ErrInvalidEntry = errors.New("invalid ledger entry")

// ValidateEntry checks a candidate ledger entry before it is appended.
//
// Sign conventions are enforced here rather than left to callers: charges
// and deposits are positive, payments and refunds negative. A payment must
// carry a method and nothing else may; a house-account payment must name
// the paying organization.
func ValidateEntry(e *model.LedgerEntry) error {
	if e == nil {
		return fmt.Errorf("%w: nil entry", ErrInvalidEntry)
	}
	if !e.Account.Valid() {
		return fmt.Errorf("%w: exactly one of booking or organization reference must be set", ErrInvalidEntry)
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEntry, e.Kind)
	}
	if e.Amount == 0 {
		return fmt.Errorf("%w: amount must be non-zero", ErrInvalidEntry)
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("%w: occurred_at must be set", ErrInvalidEntry)
	}
	if e.RecordedBy <= 0 {
		return fmt.Errorf("%w: recorded_by must be set", ErrInvalidEntry)
	}

	switch e.Kind {
	case model.KindRoomCharge, model.KindServiceCharge, model.KindDeposit:
		if e.Amount < 0 {
			return fmt.Errorf("%w: %s amount must be positive", ErrInvalidEntry, e.Kind)
		}
	case model.KindPayment, model.KindRefund:
		if e.Amount > 0 {
			return fmt.Errorf("%w: %s amount must be negative", ErrInvalidEntry, e.Kind)
		}
	}

	if e.Kind == model.KindPayment {
		if !e.Method.Valid() {
			return fmt.Errorf("%w: payment requires a valid method, got %q", ErrInvalidEntry, e.Method)
		}
	} else if e.Method != "" {
		return fmt.Errorf("%w: method is only applicable to payments", ErrInvalidEntry)
	}

	if e.Method == model.MethodHouseAccount {
		if e.Account.IsOrganization() {
			return fmt.Errorf("%w: house-account payment cannot target an organization account", ErrInvalidEntry)
		}
		if e.PayerOrgID <= 0 {
			return fmt.Errorf("%w: house-account payment requires payer organization", ErrInvalidEntry)
		}
	} else if e.PayerOrgID != 0 {
		return fmt.Errorf("%w: payer organization is only applicable to house-account payments", ErrInvalidEntry)
	}

	return nil
}
