package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nyClock(t *testing.T) *Clock {
	t.Helper()
	c, err := NewClock("America/New_York")
	require.NoError(t, err)
	return c
}

func nyTime(t *testing.T, day, hour, minute int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return time.Date(2026, 8, day, hour, minute, 0, 0, loc)
}

func TestNewClockRejectsUnknownTimezone(t *testing.T) {
	_, err := NewClock("Mars/Olympus_Mons")
	assert.Error(t, err)
}

func TestIsOpen(t *testing.T) {
	c := nyClock(t)
	testCases := []struct {
		desc string
		at   time.Time
		open bool
	}{
		{"monday mid-session", nyTime(t, 24, 10, 0), true},
		{"monday at the open", nyTime(t, 24, 9, 30), true},
		{"monday before the open", nyTime(t, 24, 9, 29), false},
		{"friday last minute", nyTime(t, 28, 15, 59), true},
		{"monday at the close", nyTime(t, 24, 16, 0), false},
		{"saturday", nyTime(t, 29, 10, 0), false},
		{"sunday", nyTime(t, 30, 10, 0), false},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.open, c.IsOpen(tc.at))
		})
	}
}

func TestIsOpenConvertsFromOtherZones(t *testing.T) {
	c := nyClock(t)
	// 14:00 UTC on a Monday is 10:00 in New York.
	utc := time.Date(2026, 8, 24, 14, 0, 0, 0, time.UTC)
	assert.True(t, c.IsOpen(utc))
}

func TestTradingDateUsesExchangeCalendar(t *testing.T) {
	c := nyClock(t)
	// 02:00 UTC on Aug 25 is still the evening of Aug 24 in New York.
	utc := time.Date(2026, 8, 25, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-08-24", c.TradingDate(utc))
}

func TestParseCutoff(t *testing.T) {
	minute, err := ParseCutoff("15:45")
	require.NoError(t, err)
	assert.Equal(t, 15*60+45, minute)

	_, err = ParseCutoff("25:00")
	assert.Error(t, err)
	_, err = ParseCutoff("afternoon")
	assert.Error(t, err)
}

func TestAfterCutoff(t *testing.T) {
	c := nyClock(t)

	past, err := c.AfterCutoff(nyTime(t, 24, 15, 45), "15:45")
	require.NoError(t, err)
	assert.True(t, past)

	past, err = c.AfterCutoff(nyTime(t, 24, 15, 44), "15:45")
	require.NoError(t, err)
	assert.False(t, past)
}

func TestSameTradingDay(t *testing.T) {
	c := nyClock(t)
	assert.True(t, c.SameTradingDay(nyTime(t, 24, 9, 30), nyTime(t, 24, 15, 59)))
	assert.False(t, c.SameTradingDay(nyTime(t, 24, 15, 59), nyTime(t, 25, 9, 30)))
}

func TestTradingDaysBetween(t *testing.T) {
	c := nyClock(t)
	testCases := []struct {
		desc string
		from time.Time
		to   time.Time
		days int
	}{
		{"same day", nyTime(t, 24, 10, 0), nyTime(t, 24, 15, 0), 0},
		{"monday to friday", nyTime(t, 24, 10, 0), nyTime(t, 28, 10, 0), 4},
		{"friday over the weekend", nyTime(t, 28, 10, 0), nyTime(t, 31, 10, 0), 1},
		{"full week", nyTime(t, 24, 10, 0), nyTime(t, 31, 10, 0), 5},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.days, c.TradingDaysBetween(tc.from, tc.to))
		})
	}
}

func TestSessionClose(t *testing.T) {
	c := nyClock(t)
	close := c.SessionClose(nyTime(t, 24, 10, 17))
	assert.Equal(t, nyTime(t, 24, 16, 0), close)
}
