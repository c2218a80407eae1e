package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eric2umeh/frontbill/internal/model"
	"github.com/eric2umeh/frontbill/internal/repository"
)

func morningWindow() model.ShiftWindow {
	base := time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)
	return model.ShiftWindow{Start: base, End: base.Add(8 * time.Hour), Type: model.ShiftMorning}
}

func flagTypes(flags []model.AnomalyFlag) []model.FlagType {
	var types []model.FlagType
	for _, f := range flags {
		types = append(types, f.Type)
	}
	return types
}

func TestBuildReconciliationClassification(t *testing.T) {
	policy := DefaultPolicy()
	window := morningWindow()

	tests := []struct {
		name       string
		expected   map[model.PaymentMethod]int64
		actual     map[model.PaymentMethod]int64
		unposted   []model.LedgerEntry
		wantFlags  []model.FlagType
		wantStatus model.ReconciliationStatus
	}{
		{
			name:       "exact match",
			expected:   map[model.PaymentMethod]int64{model.MethodCash: 450000},
			actual:     map[model.PaymentMethod]int64{model.MethodCash: 450000},
			wantFlags:  nil,
			wantStatus: model.StatusPending,
		},
		{
			name:       "small cash shortage",
			expected:   map[model.PaymentMethod]int64{model.MethodCash: 450000},
			actual:     map[model.PaymentMethod]int64{model.MethodCash: 449000},
			wantFlags:  []model.FlagType{model.FlagCashVariance},
			wantStatus: model.StatusPending,
		},
		{
			name:     "cash shortage above one percent of expected",
			expected: map[model.PaymentMethod]int64{model.MethodCash: 450000},
			actual:   map[model.PaymentMethod]int64{model.MethodCash: 445000},
			wantFlags: []model.FlagType{
				model.FlagCashVariance,
				model.FlagLargeVariance,
			},
			wantStatus: model.StatusFlagged,
		},
		{
			name:       "large absolute cash shortage",
			expected:   map[model.PaymentMethod]int64{model.MethodCash: 2000000},
			actual:     map[model.PaymentMethod]int64{model.MethodCash: 1988000},
			wantFlags:  []model.FlagType{model.FlagCashVariance},
			wantStatus: model.StatusFlagged,
		},
		{
			name:     "unposted house account payment",
			expected: map[model.PaymentMethod]int64{model.MethodHouseAccount: 250000},
			actual:   map[model.PaymentMethod]int64{model.MethodHouseAccount: 250000},
			unposted: []model.LedgerEntry{
				{ID: 10, Kind: model.KindPayment, Method: model.MethodHouseAccount, Amount: -250000},
			},
			wantFlags:  []model.FlagType{model.FlagUnpostedCharge},
			wantStatus: model.StatusFlagged,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := buildReconciliation(window, tt.expected, tt.actual, tt.unposted, 1, policy)
			assert.Equal(t, tt.wantFlags, flagTypes(rec.Flags))
			assert.Equal(t, tt.wantStatus, rec.Status)
		})
	}
}

func TestBuildReconciliationVariances(t *testing.T) {
	window := morningWindow()
	expected := map[model.PaymentMethod]int64{
		model.MethodCash: 450000,
		model.MethodPOS:  120000,
	}
	actual := map[model.PaymentMethod]int64{
		model.MethodCash:     445000,
		model.MethodPOS:      120000,
		model.MethodTransfer: 30000,
	}

	rec := buildReconciliation(window, expected, actual, nil, 7, DefaultPolicy())

	assert.Equal(t, int64(-5000), rec.Variance[model.MethodCash])
	assert.Equal(t, int64(0), rec.Variance[model.MethodPOS])
	// A method counted but never recorded shows up as pure surplus.
	assert.Equal(t, int64(30000), rec.Variance[model.MethodTransfer])
	// A method absent on both sides does not appear at all.
	_, ok := rec.Variance[model.MethodHouseAccount]
	assert.False(t, ok)

	assert.Equal(t, int64(570000), rec.TotalExpected)
	assert.Equal(t, int64(595000), rec.TotalActual)
	assert.Equal(t, int64(25000), rec.TotalVariance)
	assert.Equal(t, int64(7), rec.SubmittedBy)
}

func TestBuildReconciliationDeterministic(t *testing.T) {
	window := morningWindow()
	expected := map[model.PaymentMethod]int64{model.MethodCash: 450000, model.MethodPOS: 90000}
	actual := map[model.PaymentMethod]int64{model.MethodCash: 430000, model.MethodPOS: 90000}

	first := buildReconciliation(window, expected, actual, nil, 1, DefaultPolicy())
	second := buildReconciliation(window, expected, actual, nil, 1, DefaultPolicy())

	// Identifiers differ; everything derived from the inputs must not.
	assert.Equal(t, first.Variance, second.Variance)
	assert.Equal(t, first.Flags, second.Flags)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.TotalVariance, second.TotalVariance)
}

func TestReconcileRejectsBadInput(t *testing.T) {
	svc := NewService(repository.NewMemoryRepository(), nil, nil, DefaultPolicy())
	ctx := context.Background()

	window := morningWindow()
	window.End = window.Start
	_, err := svc.Reconcile(ctx, window, nil, 1)
	require.ErrorIs(t, err, ErrInvalidWindow)

	_, err = svc.Reconcile(ctx, morningWindow(), map[model.PaymentMethod]int64{"CHEQUE": 5000}, 1)
	require.ErrorIs(t, err, ErrUnknownMethod)
}

func TestComputeExpected(t *testing.T) {
	repo := repository.NewMemoryRepository()
	svc := NewService(repo, nil, nil, DefaultPolicy())
	ctx := context.Background()
	window := morningWindow()

	payment := &model.LedgerEntry{
		Account:    model.AccountRef{BookingID: 42},
		Kind:       model.KindPayment,
		Amount:     -450000,
		Method:     model.MethodCash,
		OccurredAt: window.Start.Add(time.Hour),
		RecordedBy: 1,
	}
	_, err := svc.AppendEntry(ctx, payment)
	require.NoError(t, err)

	expected, err := svc.ComputeExpected(ctx, window)
	require.NoError(t, err)
	assert.Equal(t, int64(450000), expected[model.MethodCash])

	bad := window
	bad.End = bad.Start
	_, err = svc.ComputeExpected(ctx, bad)
	require.ErrorIs(t, err, ErrInvalidWindow)

	bad = window
	bad.Type = "GRAVEYARD"
	_, err = svc.ComputeExpected(ctx, bad)
	require.ErrorIs(t, err, ErrInvalidWindow)
}

func TestLargeVarianceThresholdIsExact(t *testing.T) {
	window := morningWindow()
	expected := map[model.PaymentMethod]int64{model.MethodCash: 450000}

	// Exactly one percent short: not flagged, the comparison is strict.
	rec := buildReconciliation(window, expected,
		map[model.PaymentMethod]int64{model.MethodCash: 445500}, nil, 1, DefaultPolicy())
	assert.Equal(t, []model.FlagType{model.FlagCashVariance}, flagTypes(rec.Flags))

	// One kobo past the threshold flips it.
	rec = buildReconciliation(window, expected,
		map[model.PaymentMethod]int64{model.MethodCash: 445499}, nil, 1, DefaultPolicy())
	assert.Contains(t, flagTypes(rec.Flags), model.FlagLargeVariance)
	assert.Equal(t, model.StatusFlagged, rec.Status)
}

func TestReconcileEndToEnd(t *testing.T) {
	repo := repository.NewMemoryRepository()
	svc := NewService(repo, nil, nil, DefaultPolicy())
	ctx := context.Background()
	window := morningWindow()

	payment := &model.LedgerEntry{
		Account:    model.AccountRef{BookingID: 42},
		Kind:       model.KindPayment,
		Amount:     -450000,
		Method:     model.MethodCash,
		OccurredAt: window.Start.Add(time.Hour),
		RecordedBy: 1,
	}
	_, err := svc.AppendEntry(ctx, payment)
	require.NoError(t, err)

	rec, err := svc.Reconcile(ctx, window, map[model.PaymentMethod]int64{model.MethodCash: 445000}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(-5000), rec.TotalVariance)
	assert.Equal(t, model.StatusFlagged, rec.Status)

	// The window is closed for payments from here on.
	late := &model.LedgerEntry{
		Account:    model.AccountRef{BookingID: 42},
		Kind:       model.KindPayment,
		Amount:     -5000,
		Method:     model.MethodCash,
		OccurredAt: window.Start.Add(2 * time.Hour),
		RecordedBy: 1,
	}
	_, err = svc.AppendEntry(ctx, late)
	require.ErrorIs(t, err, repository.ErrShiftClosed)

	// And the same window cannot be reconciled twice.
	_, err = svc.Reconcile(ctx, window, map[model.PaymentMethod]int64{model.MethodCash: 445000}, 1)
	require.ErrorIs(t, err, repository.ErrShiftClosed)
}

type stubAuthorizer struct {
	allow bool
	err   error
}

func (a *stubAuthorizer) CanApprove(ctx context.Context, staffID int64) (bool, error) {
	return a.allow, a.err
}

func TestApproveRequiresPermission(t *testing.T) {
	repo := repository.NewMemoryRepository()
	ctx := context.Background()
	window := morningWindow()

	svc := NewService(repo, &stubAuthorizer{allow: false}, nil, DefaultPolicy())
	rec, err := svc.Reconcile(ctx, window, map[model.PaymentMethod]int64{}, 1)
	require.NoError(t, err)

	_, err = svc.Approve(ctx, rec.ID, 2)
	require.ErrorIs(t, err, ErrUnauthorized)

	allowed := NewService(repo, &stubAuthorizer{allow: true}, nil, DefaultPolicy())
	approved, err := allowed.Approve(ctx, rec.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, approved.Status)
}

func TestApproveFallsBackToStoredRole(t *testing.T) {
	repo := repository.NewMemoryRepository()
	ctx := context.Background()
	window := morningWindow()

	svc := NewService(repo, nil, nil, DefaultPolicy())

	clerkID, err := svc.RegisterStaff(ctx, "clerk", "secret", model.RoleFrontDesk)
	require.NoError(t, err)
	managerID, err := svc.RegisterStaff(ctx, "boss", "secret", model.RoleManager)
	require.NoError(t, err)

	rec, err := svc.Reconcile(ctx, window, map[model.PaymentMethod]int64{}, clerkID)
	require.NoError(t, err)

	_, err = svc.Approve(ctx, rec.ID, clerkID)
	require.ErrorIs(t, err, ErrUnauthorized)

	// An approver the store has never seen is not a server fault.
	_, err = svc.Approve(ctx, rec.ID, 9999)
	require.ErrorIs(t, err, ErrUnauthorized)

	approved, err := svc.Approve(ctx, rec.ID, managerID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, managerID, *approved.ApprovedBy)
}
