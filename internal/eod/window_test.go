package eod

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/pricecanon/internal/calendar"
)

func newTestResolver(t *testing.T, cutoff string, now time.Time) *WindowResolver {
	t.Helper()
	cal, err := calendar.New(time.UTC, nil)
	require.NoError(t, err)
	r, err := NewWindowResolver(cal, cutoff)
	require.NoError(t, err)
	return r.WithNow(func() time.Time { return now })
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestWindowResolver_BeforeCutoffRollsBack(t *testing.T) {
	// Tuesday 10:00, cutoff 15:30: Tuesday's data cannot be final yet.
	now := time.Date(2025, 11, 4, 10, 0, 0, 0, time.UTC)
	r := newTestResolver(t, "15:30", now)

	win, err := r.Resolve(time.Time{}, time.Time{}, 1)
	require.NoError(t, err)
	assert.Equal(t, date(2025, 11, 3), win.To, "rolls back to Monday")
	assert.Equal(t, date(2025, 11, 3), win.From)
	assert.Len(t, win.Days, 1)
}

func TestWindowResolver_AfterCutoffKeepsToday(t *testing.T) {
	now := time.Date(2025, 11, 4, 16, 0, 0, 0, time.UTC)
	r := newTestResolver(t, "15:30", now)

	win, err := r.Resolve(time.Time{}, time.Time{}, 1)
	require.NoError(t, err)
	assert.Equal(t, date(2025, 11, 4), win.To)
}

func TestWindowResolver_WeekendRollsBackToFriday(t *testing.T) {
	// Saturday evening: even after cutoff there is no Saturday session.
	now := time.Date(2025, 11, 8, 20, 0, 0, 0, time.UTC)
	r := newTestResolver(t, "15:30", now)

	win, err := r.Resolve(time.Time{}, time.Time{}, 1)
	require.NoError(t, err)
	assert.Equal(t, date(2025, 11, 7), win.To)
}

func TestWindowResolver_ExplicitPastRangeUntouched(t *testing.T) {
	now := time.Date(2025, 11, 10, 9, 0, 0, 0, time.UTC)
	r := newTestResolver(t, "15:30", now)

	win, err := r.Resolve(date(2025, 11, 3), date(2025, 11, 7), 1)
	require.NoError(t, err)
	assert.Equal(t, date(2025, 11, 3), win.From)
	assert.Equal(t, date(2025, 11, 7), win.To)
	assert.Len(t, win.Days, 5)
}

func TestWindowResolver_FutureEndClampedToToday(t *testing.T) {
	now := time.Date(2025, 11, 4, 16, 0, 0, 0, time.UTC)
	r := newTestResolver(t, "15:30", now)

	win, err := r.Resolve(date(2025, 11, 3), date(2025, 12, 31), 1)
	require.NoError(t, err)
	assert.Equal(t, date(2025, 11, 4), win.To)
}

func TestWindowResolver_LookbackWindowSize(t *testing.T) {
	now := time.Date(2025, 11, 7, 18, 0, 0, 0, time.UTC) // Friday after cutoff
	r := newTestResolver(t, "15:30", now)

	win, err := r.Resolve(time.Time{}, time.Time{}, 5)
	require.NoError(t, err)
	assert.Equal(t, date(2025, 11, 3), win.From)
	assert.Equal(t, date(2025, 11, 7), win.To)
	assert.Len(t, win.Days, 5)
}

func TestWindowResolver_WeekendOnlyRangeIsEmpty(t *testing.T) {
	now := time.Date(2025, 11, 10, 18, 0, 0, 0, time.UTC)
	r := newTestResolver(t, "15:30", now)

	// Saturday through Sunday: the end rolls back past the start.
	win, err := r.Resolve(date(2025, 11, 8), date(2025, 11, 9), 1)
	require.NoError(t, err)
	assert.Empty(t, win.Days)
}

func TestNewWindowResolver_RejectsBadCutoff(t *testing.T) {
	cal, err := calendar.New(time.UTC, nil)
	require.NoError(t, err)

	for _, cutoff := range []string{"", "1530", "25:00", "15:75", "aa:bb"} {
		_, err := NewWindowResolver(cal, cutoff)
		assert.Error(t, err, "cutoff %q", cutoff)
	}
}
