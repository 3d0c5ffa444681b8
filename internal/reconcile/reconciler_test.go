package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func pos(ticker string, dir schema.Direction, qty, entry float64) schema.Position {
	return schema.Position{
		ID:         "id-" + ticker,
		Ticker:     ticker,
		Kind:       schema.InstrumentStock,
		Direction:  dir,
		Quantity:   qty,
		EntryPrice: entry,
	}
}

func TestCleanSetsProduceNoActions(t *testing.T) {
	r := New(Config{})
	local := []schema.Position{pos("AAPL", schema.DirectionLong, 100, 200)}
	broker := []schema.Position{pos("AAPL", schema.DirectionLong, 100, 200)}

	report, actions := r.Reconcile(local, broker, time.Now())

	assert.True(t, report.Clean())
	assert.Equal(t, schema.ReconcileSynced, report.FinalStatus)
	assert.Empty(t, actions)
}

func TestGhostClosedLocally(t *testing.T) {
	r := New(Config{BrokerIsTruth: true})
	local := []schema.Position{pos("AAPL", schema.DirectionLong, 100, 200)}

	report, actions := r.Reconcile(local, nil, time.Now())

	require.Equal(t, []string{"AAPL"}, report.Ghosts)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionDropLocal, actions[0].Kind)
	assert.Equal(t, schema.ReconcileSynced, report.FinalStatus)
}

// A broker-reported position the local system has never seen is an orphan,
// resolved per the configured policy.
func TestOrphanFollowsPolicy(t *testing.T) {
	broker := []schema.Position{pos("TSLA", schema.DirectionLong, 50, 300)}

	testCases := []struct {
		desc   string
		policy OrphanPolicy
		kind   ActionKind
	}{
		{"import policy adopts the position", OrphanImport, ActionImport},
		{"close policy exits at the broker", OrphanClose, ActionCloseBroker},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			r := New(Config{OrphanPolicy: tc.policy})
			report, actions := r.Reconcile(nil, broker, time.Now())

			require.Equal(t, []string{"TSLA"}, report.Orphans)
			require.Len(t, actions, 1)
			assert.Equal(t, tc.kind, actions[0].Kind)
			assert.Equal(t, schema.ReconcileSynced, report.FinalStatus)
			require.NotEmpty(t, report.ActionsTaken)
		})
	}
}

func TestQuantityMismatchBrokerWins(t *testing.T) {
	r := New(Config{BrokerIsTruth: true})
	local := []schema.Position{pos("AAPL", schema.DirectionLong, 100, 200)}
	broker := []schema.Position{pos("AAPL", schema.DirectionLong, 80, 200)}

	report, actions := r.Reconcile(local, broker, time.Now())

	require.Len(t, report.QuantityMismatches, 1)
	assert.Equal(t, 100.0, report.QuantityMismatches[0].LocalQty)
	assert.Equal(t, 80.0, report.QuantityMismatches[0].BrokerQty)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionSetQty, actions[0].Kind)
	assert.Equal(t, 80.0, actions[0].Qty)
}

func TestMismatchEscalatedWhenBrokerNotTruth(t *testing.T) {
	r := New(Config{BrokerIsTruth: false})
	local := []schema.Position{pos("AAPL", schema.DirectionLong, 100, 200)}
	broker := []schema.Position{pos("AAPL", schema.DirectionShort, 100, 200)}

	report, actions := r.Reconcile(local, broker, time.Now())

	require.Len(t, report.DirectionMismatches, 1)
	assert.Empty(t, actions)
	assert.Equal(t, schema.ReconcilePartial, report.FinalStatus)
}

func TestPriceDriftUpdatesCostBasis(t *testing.T) {
	r := New(Config{BrokerIsTruth: true, PriceDriftPct: 1.0})
	local := []schema.Position{pos("AAPL", schema.DirectionLong, 100, 200)}
	broker := []schema.Position{pos("AAPL", schema.DirectionLong, 100, 205)} // 2.5%

	report, actions := r.Reconcile(local, broker, time.Now())

	assert.True(t, report.Clean(), "drift is corrected, not a discrepancy")
	require.Len(t, actions, 1)
	assert.Equal(t, ActionSetCostBasis, actions[0].Kind)
	assert.Equal(t, 205.0, actions[0].Price)
}

// Applying the corrective actions and re-running against unchanged broker
// state must produce a clean second report.
func TestReconcileIdempotent(t *testing.T) {
	r := New(Config{BrokerIsTruth: true, OrphanPolicy: OrphanImport})
	local := []schema.Position{
		pos("AAPL", schema.DirectionLong, 100, 200), // qty mismatch
		pos("MSFT", schema.DirectionLong, 10, 400),  // ghost
	}
	broker := []schema.Position{
		pos("AAPL", schema.DirectionLong, 80, 200),
		pos("TSLA", schema.DirectionLong, 50, 300), // orphan
	}

	first, actions := r.Reconcile(local, broker, time.Now())
	assert.False(t, first.Clean())

	next := applyActions(local, actions)

	second, secondActions := r.Reconcile(next, broker, time.Now())
	assert.True(t, second.Clean())
	assert.Empty(t, secondActions)
	assert.Equal(t, schema.ReconcileSynced, second.FinalStatus)
}

func applyActions(local []schema.Position, actions []Action) []schema.Position {
	byTicker := make(map[string]schema.Position, len(local))
	for _, p := range local {
		byTicker[p.Ticker] = p
	}
	for _, a := range actions {
		switch a.Kind {
		case ActionDropLocal:
			delete(byTicker, a.Ticker)
		case ActionImport:
			byTicker[a.Ticker] = *a.Broker
		case ActionSetQty:
			p := byTicker[a.Ticker]
			p.Quantity = a.Qty
			byTicker[a.Ticker] = p
		case ActionSetDirection:
			p := byTicker[a.Ticker]
			p.Direction = a.Direction
			p.Quantity = a.Qty
			byTicker[a.Ticker] = p
		case ActionSetCostBasis:
			p := byTicker[a.Ticker]
			p.EntryPrice = a.Price
			byTicker[a.Ticker] = p
		}
	}
	out := make([]schema.Position, 0, len(byTicker))
	for _, p := range byTicker {
		out = append(out, p)
	}
	return out
}
