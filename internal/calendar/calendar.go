package calendar

import (
	"fmt"
	"time"
)

// Calendar implements the trading-calendar contract with a weekend rule plus
// a configured exchange holiday set. Dates are compared at day precision in
// the calendar's location.
type Calendar struct {
	loc      *time.Location
	holidays map[string]struct{} // keyed YYYY-MM-DD
}

// New creates a calendar for the given location and holiday list.
func New(loc *time.Location, holidays []string) (*Calendar, error) {
	set := make(map[string]struct{}, len(holidays))
	for _, h := range holidays {
		if _, err := time.ParseInLocation("2006-01-02", h, loc); err != nil {
			return nil, fmt.Errorf("invalid holiday %q: %w", h, err)
		}
		set[h] = struct{}{}
	}

	return &Calendar{loc: loc, holidays: set}, nil
}

// Location returns the calendar's location.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Truncate normalizes a timestamp to midnight in the calendar's location.
func (c *Calendar) Truncate(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}

// IsTradingDay reports whether the exchange is open on the date.
func (c *Calendar) IsTradingDay(date time.Time) bool {
	date = c.Truncate(date)
	switch date.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	_, holiday := c.holidays[date.Format("2006-01-02")]
	return !holiday
}

// PreviousTradingDate returns the last trading day strictly before date.
func (c *Calendar) PreviousTradingDate(date time.Time) time.Time {
	d := c.Truncate(date).AddDate(0, 0, -1)
	for !c.IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// TradingDatesBetween returns trading days in [from, to] ascending. Returns
// nil when from is after to.
func (c *Calendar) TradingDatesBetween(from, to time.Time) []time.Time {
	from = c.Truncate(from)
	to = c.Truncate(to)

	var days []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if c.IsTradingDay(d) {
			days = append(days, d)
		}
	}
	return days
}

// LookbackStartDate returns the trading day n trading days before end. With
// n == 0 it returns end itself when end is a trading day, otherwise the
// previous trading day.
func (c *Calendar) LookbackStartDate(end time.Time, n int) time.Time {
	d := c.Truncate(end)
	if !c.IsTradingDay(d) {
		d = c.PreviousTradingDate(d)
	}
	for i := 0; i < n; i++ {
		d = c.PreviousTradingDate(d)
	}
	return d
}
