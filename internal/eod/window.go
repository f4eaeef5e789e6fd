package eod

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/pricecanon/internal/calendar"
)

// Window is the effective date range of a run after cutoff resolution.
type Window struct {
	From time.Time
	To   time.Time
	Days []time.Time
}

// WindowResolver turns a requested date range into the effective window a run
// may canonicalize. A bar for today is never promoted while the local clock
// is still before the EOD cutoff, even if a provider already returns it.
type WindowResolver struct {
	calendar     *calendar.Calendar
	cutoffHour   int
	cutoffMinute int
	now          func() time.Time
}

// NewWindowResolver creates a resolver for the given calendar and a cutoff in
// local wall-clock "HH:MM" form.
func NewWindowResolver(cal *calendar.Calendar, cutoff string) (*WindowResolver, error) {
	hour, minute, err := parseCutoff(cutoff)
	if err != nil {
		return nil, err
	}
	return &WindowResolver{
		calendar:     cal,
		cutoffHour:   hour,
		cutoffMinute: minute,
		now:          time.Now,
	}, nil
}

// WithNow overrides the clock for tests.
func (r *WindowResolver) WithNow(now func() time.Time) *WindowResolver {
	r.now = now
	return r
}

// Resolve computes the effective window. A zero to means today; a zero from
// means lookbackDays trading days back from the effective end. The returned
// Days slice may be empty when the resolved range contains no trading days.
func (r *WindowResolver) Resolve(from, to time.Time, lookbackDays int) (Window, error) {
	now := r.now().In(r.calendar.Location())
	today := r.calendar.Truncate(now)

	end := today
	if !to.IsZero() {
		end = r.calendar.Truncate(to.In(r.calendar.Location()))
	}
	if end.After(today) {
		end = today
	}

	// Roll today back while the market data for it cannot be final yet.
	if end.Equal(today) && r.beforeCutoff(now) {
		end = r.calendar.PreviousTradingDate(today)
	}
	for !r.calendar.IsTradingDay(end) {
		end = r.calendar.PreviousTradingDate(end)
	}

	start := end
	if !from.IsZero() {
		start = r.calendar.Truncate(from.In(r.calendar.Location()))
	} else if lookbackDays > 1 {
		// The window holds lookbackDays trading days ending at end.
		start = r.calendar.LookbackStartDate(end, lookbackDays-1)
	}

	if start.After(end) {
		return Window{From: start, To: end}, nil
	}

	return Window{
		From: start,
		To:   end,
		Days: r.calendar.TradingDatesBetween(start, end),
	}, nil
}

// beforeCutoff reports whether the local clock has not yet passed the cutoff.
func (r *WindowResolver) beforeCutoff(now time.Time) bool {
	if now.Hour() != r.cutoffHour {
		return now.Hour() < r.cutoffHour
	}
	return now.Minute() < r.cutoffMinute
}

func parseCutoff(cutoff string) (hour, minute int, err error) {
	parts := strings.Split(cutoff, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid cutoff %q: want HH:MM", cutoff)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid cutoff hour %q", parts[0])
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid cutoff minute %q", parts[1])
	}
	return hour, minute, nil
}
