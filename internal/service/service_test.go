package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eric2umeh/frontbill/internal/events"
	"github.com/eric2umeh/frontbill/internal/model"
	"github.com/eric2umeh/frontbill/internal/repository"
	"github.com/eric2umeh/frontbill/internal/validation"
)

type capturingPublisher struct {
	topics  []string
	payload []any
}

func (p *capturingPublisher) Publish(topic string, event any) error {
	p.topics = append(p.topics, topic)
	p.payload = append(p.payload, event)
	return nil
}

func TestRegisterAndAuthenticateStaff(t *testing.T) {
	svc := NewService(repository.NewMemoryRepository(), nil, nil, DefaultPolicy())
	ctx := context.Background()

	id, err := svc.RegisterStaff(ctx, "ada", "secret", "")
	require.NoError(t, err)
	assert.Positive(t, id)

	// Duplicate logins are rejected.
	_, err = svc.RegisterStaff(ctx, "ada", "other", model.RoleManager)
	require.ErrorIs(t, err, repository.ErrStaffExists)

	// Unknown roles are rejected.
	_, err = svc.RegisterStaff(ctx, "bola", "secret", "janitor")
	require.Error(t, err)

	st, err := svc.AuthenticateStaff(ctx, "ada", "secret")
	require.NoError(t, err)
	assert.Equal(t, id, st.ID)
	// An empty role defaulted to front desk.
	assert.Equal(t, model.RoleFrontDesk, st.Role)

	_, err = svc.AuthenticateStaff(ctx, "ada", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.AuthenticateStaff(ctx, "nobody", "secret")
	require.ErrorIs(t, err, repository.ErrStaffNotFound)
}

func TestAppendEntryValidation(t *testing.T) {
	repo := repository.NewMemoryRepository()
	svc := NewService(repo, nil, nil, DefaultPolicy())
	ctx := context.Background()

	bad := &model.LedgerEntry{
		Account:    model.AccountRef{BookingID: 42},
		Kind:       model.KindPayment,
		Amount:     392000, // payments must be negative
		Method:     model.MethodCash,
		OccurredAt: time.Now(),
		RecordedBy: 1,
	}
	_, err := svc.AppendEntry(ctx, bad)
	require.ErrorIs(t, err, validation.ErrInvalidEntry)

	// The rejected entry never reached the store.
	entries, err := repo.Statement(ctx, model.AccountRef{BookingID: 42}, time.Time{}, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAppendEntryPublishesEvent(t *testing.T) {
	pub := &capturingPublisher{}
	svc := NewService(repository.NewMemoryRepository(), nil, pub, DefaultPolicy())
	ctx := context.Background()

	entry := &model.LedgerEntry{
		Account:    model.AccountRef{BookingID: 42},
		Kind:       model.KindRoomCharge,
		Amount:     350000,
		OccurredAt: time.Now(),
		RecordedBy: 1,
	}
	stored, err := svc.AppendEntry(ctx, entry)
	require.NoError(t, err)

	require.Len(t, pub.topics, 1)
	assert.Equal(t, events.TopicEntryAppended, pub.topics[0])
	appended, ok := pub.payload[0].(events.EntryAppended)
	require.True(t, ok)
	assert.Equal(t, stored.ID, appended.EntryID)
	assert.Equal(t, "booking:42", appended.Account)
}

func TestReconcilePublishesFlaggedEvent(t *testing.T) {
	repo := repository.NewMemoryRepository()
	pub := &capturingPublisher{}
	svc := NewService(repo, &stubAuthorizer{allow: true}, pub, DefaultPolicy())
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
	pub.topics = nil
	pub.payload = nil

	rec, err := svc.Reconcile(ctx, window, map[model.PaymentMethod]int64{model.MethodCash: 430000}, 1)
	require.NoError(t, err)
	require.Equal(t, model.StatusFlagged, rec.Status)

	require.Len(t, pub.topics, 1)
	assert.Equal(t, events.TopicReconciliationFlagged, pub.topics[0])

	_, err = svc.Approve(ctx, rec.ID, 2)
	require.NoError(t, err)
	require.Len(t, pub.topics, 2)
	assert.Equal(t, events.TopicReconciliationApproved, pub.topics[1])
}

func TestNightAudit(t *testing.T) {
	repo := repository.NewMemoryRepository()
	svc := NewService(repo, nil, nil, DefaultPolicy())
	ctx := context.Background()

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	cash := &model.LedgerEntry{
		Account:    model.AccountRef{BookingID: 42},
		Kind:       model.KindPayment,
		Amount:     -450000,
		Method:     model.MethodCash,
		OccurredAt: day.Add(9 * time.Hour),
		RecordedBy: 1,
	}
	_, err := svc.AppendEntry(ctx, cash)
	require.NoError(t, err)

	orgID, err := svc.CreateOrganization(ctx, "Zenith Engineering Ltd", 10000000)
	require.NoError(t, err)

	_, err = svc.AppendEntry(ctx, &model.LedgerEntry{
		Account:    model.AccountRef{BookingID: 43},
		Kind:       model.KindRoomCharge,
		Amount:     250000,
		OccurredAt: day.Add(10 * time.Hour),
		RecordedBy: 1,
	})
	require.NoError(t, err)
	houseAccount := &model.LedgerEntry{
		Account:    model.AccountRef{BookingID: 43},
		Kind:       model.KindPayment,
		Amount:     -250000,
		Method:     model.MethodHouseAccount,
		PayerOrgID: orgID,
		OccurredAt: day.Add(11 * time.Hour),
		RecordedBy: 1,
	}
	_, err = svc.AppendEntry(ctx, houseAccount)
	require.NoError(t, err)

	// A payment on the previous day is outside the report.
	previous := &model.LedgerEntry{
		Account:    model.AccountRef{BookingID: 44},
		Kind:       model.KindPayment,
		Amount:     -99000,
		Method:     model.MethodPOS,
		OccurredAt: day.Add(-2 * time.Hour),
		RecordedBy: 1,
	}
	_, err = svc.AppendEntry(ctx, previous)
	require.NoError(t, err)

	window := model.ShiftWindow{Start: day.Add(6 * time.Hour), End: day.Add(14 * time.Hour), Type: model.ShiftMorning}
	rec, err := svc.Reconcile(ctx, window, map[model.PaymentMethod]int64{
		model.MethodCash:         430000,
		model.MethodHouseAccount: 250000,
	}, 1)
	require.NoError(t, err)
	require.Equal(t, model.StatusFlagged, rec.Status)

	report, err := svc.NightAudit(ctx, day.Add(15*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, "2026-03-14", report.BusinessDate)
	assert.Equal(t, int64(450000), report.RevenueByMethod[model.MethodCash])
	assert.Equal(t, int64(250000), report.RevenueByMethod[model.MethodHouseAccount])
	assert.Equal(t, int64(700000), report.TotalRevenue)
	assert.Equal(t, int64(250000), report.CityLedger)

	require.Len(t, report.Reconciliations, 1)
	assert.Equal(t, rec.ID, report.Reconciliations[0].ID)
	assert.NotEmpty(t, report.OpenAnomalies)

	// The organization's debt shows up as outstanding.
	require.NotEmpty(t, report.Outstanding)
	found := false
	for _, b := range report.Outstanding {
		if b.Account.OrganizationID == orgID {
			found = true
			assert.Equal(t, int64(250000), b.Balance)
		}
	}
	assert.True(t, found)
}
