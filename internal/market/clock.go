// Package market provides the exchange calendar used for session checks,
// end-of-day cutoffs, and trading-date rollover. It depends on the system
// timezone database unconditionally; there is no fixed-offset fallback.
package market

import (
	"fmt"
	"time"
)

// Regular US equity session, minutes from local midnight.
const (
	sessionOpenMinute  = 9*60 + 30
	sessionCloseMinute = 16 * 60
)

// Clock answers session questions in the exchange's timezone.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// NewClock loads the exchange timezone. Loading fails hard rather than
// degrading to a fixed UTC offset.
func NewClock(tz string) (*Clock, error) {
	if tz == "" {
		tz = "America/New_York"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load exchange timezone %q: %w", tz, err)
	}
	return &Clock{loc: loc, now: time.Now}, nil
}

// NewClockAt returns a clock with a fixed now function. Test use only.
func NewClockAt(tz string, now func() time.Time) (*Clock, error) {
	c, err := NewClock(tz)
	if err != nil {
		return nil, err
	}
	c.now = now
	return c, nil
}

// Now returns the current time in the exchange timezone.
func (c *Clock) Now() time.Time {
	return c.now().In(c.loc)
}

// IsOpen reports whether t falls inside the regular session.
func (c *Clock) IsOpen(t time.Time) bool {
	local := t.In(c.loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	minute := local.Hour()*60 + local.Minute()
	return minute >= sessionOpenMinute && minute < sessionCloseMinute
}

// TradingDate returns the calendar date of t in the exchange timezone,
// formatted for PersistedState.LastTradeDate comparisons.
func (c *Clock) TradingDate(t time.Time) string {
	return t.In(c.loc).Format("2006-01-02")
}

// AfterCutoff reports whether t is at or past the "HH:MM" cutoff on its
// trading day.
func (c *Clock) AfterCutoff(t time.Time, cutoff string) (bool, error) {
	minute, err := ParseCutoff(cutoff)
	if err != nil {
		return false, err
	}
	return c.PastMinute(t, minute), nil
}

// PastMinute reports whether t is at or past the given minute-of-day.
func (c *Clock) PastMinute(t time.Time, minute int) bool {
	local := t.In(c.loc)
	return local.Hour()*60+local.Minute() >= minute
}

// SameTradingDay reports whether a and b fall on the same exchange calendar
// date.
func (c *Clock) SameTradingDay(a, b time.Time) bool {
	return c.TradingDate(a) == c.TradingDate(b)
}

// TradingDaysBetween counts the weekdays after from, up to and including to.
func (c *Clock) TradingDaysBetween(from, to time.Time) int {
	a := from.In(c.loc)
	b := to.In(c.loc)
	start := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, c.loc)
	end := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, c.loc)
	days := 0
	for d := start.AddDate(0, 0, 1); !d.After(end); d = d.AddDate(0, 0, 1) {
		switch d.Weekday() {
		case time.Saturday, time.Sunday:
		default:
			days++
		}
	}
	return days
}

// SessionClose returns the regular close instant for the trading day of t.
func (c *Clock) SessionClose(t time.Time) time.Time {
	local := t.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day(),
		sessionCloseMinute/60, sessionCloseMinute%60, 0, 0, c.loc)
}

// ParseCutoff converts an "HH:MM" string to a minute-of-day.
func ParseCutoff(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse cutoff %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("cutoff %q out of range", s)
	}
	return h*60 + m, nil
}
