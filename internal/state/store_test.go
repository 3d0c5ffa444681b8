package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func sampleState() schema.PersistedState {
	return schema.PersistedState{
		KillSwitchActive:    true,
		KillSwitchReason:    "daily_loss_limit",
		DailyPnL:            -1250.5,
		DailyTrades:         7,
		ConsecutiveLosses:   3,
		CircuitBreakerOpen:  true,
		CircuitBreakerUntil: time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC),
		LastTradeDate:       "2025-06-02",
		Positions: []schema.Position{
			{
				ID:         "pos-1",
				Ticker:     "AAPL",
				Kind:       schema.InstrumentStock,
				Direction:  schema.DirectionLong,
				Quantity:   100,
				EntryPrice: 210.5,
				StopLoss:   208.4,
				SignalID:   "sig-1",
				TradeType:  schema.TradeTypeDay,
			},
		},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "pipeline.json"))

	want := sampleState()
	require.NoError(t, store.Save(want))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, want.KillSwitchActive, got.KillSwitchActive)
	assert.Equal(t, want.DailyPnL, got.DailyPnL)
	assert.Equal(t, want.ConsecutiveLosses, got.ConsecutiveLosses)
	assert.Equal(t, want.LastTradeDate, got.LastTradeDate)
	require.Len(t, got.Positions, 1)
	assert.Equal(t, want.Positions[0], got.Positions[0])
}

func TestLoadMissingFileYieldsZeroState(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing.json"))

	st, err := store.Load()
	require.NoError(t, err)
	assert.False(t, st.KillSwitchActive)
	assert.Empty(t, st.Positions)
}

// A crash between temp-file write and rename must leave the canonical file
// untouched and the stray temp file invisible to Load.
func TestCrashBetweenTempWriteAndRename(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "pipeline.json"))

	first := sampleState()
	require.NoError(t, store.Save(first))

	// Simulate the aborted second save: temp written, rename never ran.
	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	require.NoError(t, err)
	_, err = tmp.WriteString(`{"killSwitchActive":false,"dailyPnL":999}`)
	require.NoError(t, err)
	require.NoError(t, tmp.Close())

	got, err := store.Load()
	require.NoError(t, err)
	assert.True(t, got.KillSwitchActive)
	assert.Equal(t, first.DailyPnL, got.DailyPnL)
}

func TestRolloverIfNewDay(t *testing.T) {
	testCases := []struct {
		desc      string
		today     string
		wantReset bool
	}{
		{"same day keeps counters", "2025-06-02", false},
		{"new day resets counters", "2025-06-03", true},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			st := sampleState()
			out := RolloverIfNewDay(st, tc.today)

			if tc.wantReset {
				assert.Zero(t, out.DailyPnL)
				assert.Zero(t, out.DailyTrades)
				assert.Zero(t, out.ConsecutiveLosses)
				assert.Equal(t, tc.today, out.LastTradeDate)
			} else {
				assert.Equal(t, st.DailyPnL, out.DailyPnL)
				assert.Equal(t, st.ConsecutiveLosses, out.ConsecutiveLosses)
			}
			// Safety latches never reset on rollover.
			assert.True(t, out.KillSwitchActive)
			assert.True(t, out.CircuitBreakerOpen)
		})
	}
}
