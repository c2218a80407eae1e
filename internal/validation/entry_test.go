package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/eric2umeh/frontbill/internal/model"
)

func validPayment() model.LedgerEntry {
	return model.LedgerEntry{
		Account:    model.AccountRef{BookingID: 1},
		Kind:       model.KindPayment,
		Amount:     -50000,
		Method:     model.MethodCash,
		OccurredAt: time.Now(),
		RecordedBy: 7,
	}
}

func TestValidateEntry(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.LedgerEntry)
		valid  bool
	}{
		{
			name:   "valid cash payment",
			mutate: func(e *model.LedgerEntry) {},
			valid:  true,
		},
		{
			name: "valid room charge",
			mutate: func(e *model.LedgerEntry) {
				e.Kind = model.KindRoomCharge
				e.Amount = 50000
				e.Method = ""
			},
			valid: true,
		},
		{
			name: "valid house-account payment",
			mutate: func(e *model.LedgerEntry) {
				e.Method = model.MethodHouseAccount
				e.PayerOrgID = 3
			},
			valid: true,
		},
		{
			name:   "zero amount",
			mutate: func(e *model.LedgerEntry) { e.Amount = 0 },
			valid:  false,
		},
		{
			name: "both account references set",
			mutate: func(e *model.LedgerEntry) {
				e.Account = model.AccountRef{BookingID: 1, OrganizationID: 2}
			},
			valid: false,
		},
		{
			name: "no account reference set",
			mutate: func(e *model.LedgerEntry) {
				e.Account = model.AccountRef{}
			},
			valid: false,
		},
		{
			name:   "unknown kind",
			mutate: func(e *model.LedgerEntry) { e.Kind = "MINIBAR" },
			valid:  false,
		},
		{
			name:   "payment without method",
			mutate: func(e *model.LedgerEntry) { e.Method = "" },
			valid:  false,
		},
		{
			name: "method on a charge",
			mutate: func(e *model.LedgerEntry) {
				e.Kind = model.KindRoomCharge
				e.Amount = 50000
			},
			valid: false,
		},
		{
			name:   "positive payment amount",
			mutate: func(e *model.LedgerEntry) { e.Amount = 50000 },
			valid:  false,
		},
		{
			name: "negative room charge",
			mutate: func(e *model.LedgerEntry) {
				e.Kind = model.KindRoomCharge
				e.Amount = -50000
				e.Method = ""
			},
			valid: false,
		},
		{
			name: "house-account payment without payer organization",
			mutate: func(e *model.LedgerEntry) {
				e.Method = model.MethodHouseAccount
			},
			valid: false,
		},
		{
			name: "house-account payment on organization account",
			mutate: func(e *model.LedgerEntry) {
				e.Account = model.AccountRef{OrganizationID: 3}
				e.Method = model.MethodHouseAccount
				e.PayerOrgID = 3
			},
			valid: false,
		},
		{
			name: "payer organization on cash payment",
			mutate: func(e *model.LedgerEntry) {
				e.PayerOrgID = 3
			},
			valid: false,
		},
		{
			name:   "missing occurred_at",
			mutate: func(e *model.LedgerEntry) { e.OccurredAt = time.Time{} },
			valid:  false,
		},
		{
			name:   "missing recorded_by",
			mutate: func(e *model.LedgerEntry) { e.RecordedBy = 0 },
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validPayment()
			tt.mutate(&e)

			err := ValidateEntry(&e)
			if tt.valid && err != nil {
				t.Fatalf("ValidateEntry() = %v, want nil", err)
			}
			if !tt.valid {
				if err == nil {
					t.Fatalf("ValidateEntry() = nil, want error")
				}
				if !errors.Is(err, ErrInvalidEntry) {
					t.Fatalf("error %v is not ErrInvalidEntry", err)
				}
			}
		})
	}
}
