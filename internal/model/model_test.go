package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShiftWindowHalfOpen(t *testing.T) {
	start := time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)
	w := ShiftWindow{Start: start, End: start.Add(8 * time.Hour), Type: ShiftMorning}

	assert.True(t, w.Contains(start))
	assert.True(t, w.Contains(start.Add(7*time.Hour+59*time.Minute)))
	// The end instant belongs to the next shift.
	assert.False(t, w.Contains(w.End))
	assert.False(t, w.Contains(start.Add(-time.Second)))

	next := ShiftWindow{Start: w.End, End: w.End.Add(8 * time.Hour), Type: ShiftAfternoon}
	assert.False(t, w.Overlaps(next))
	assert.False(t, next.Overlaps(w))

	overlap := ShiftWindow{Start: start.Add(4 * time.Hour), End: start.Add(12 * time.Hour), Type: ShiftAfternoon}
	assert.True(t, w.Overlaps(overlap))
}

func TestAccountRefValid(t *testing.T) {
	assert.True(t, AccountRef{BookingID: 42}.Valid())
	assert.True(t, AccountRef{OrganizationID: 7}.Valid())
	assert.False(t, AccountRef{}.Valid())
	assert.False(t, AccountRef{BookingID: 42, OrganizationID: 7}.Valid())
}

func TestReconciliationStatusApprove(t *testing.T) {
	next, err := StatusPending.Approve()
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, next)

	next, err = StatusFlagged.Approve()
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, next)

	_, err = StatusApproved.Approve()
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = StatusResolved.Approve()
	require.ErrorIs(t, err, ErrInvalidTransition)
}
