// Package exits evaluates open positions against a fixed-priority ladder of
// exit triggers. The first matching trigger wins the tick; no lower-priority
// check runs after a match.
package exits

import (
	"time"

	"main/internal/market"
	"main/internal/schema"
)

// Config holds the exit tuning knobs.
type Config struct {
	ExhaustionCount int     `json:"exhaustionCount"`
	FastEMAPeriod   int     `json:"fastEmaPeriod"`
	SlowEMAPeriod   int     `json:"slowEmaPeriod"`
	TimeStopMinutes int     `json:"timeStopMinutes"`
	EODCutoff       string  `json:"eodCutoff"`
	TrailingStopPct float64 `json:"trailingStopPct"`

	// Options are managed on premium moves, not underlying levels.
	OptionStopPct   float64 `json:"optionStopPct"`
	OptionTargetPct float64 `json:"optionTargetPct"`
}

func (c Config) withDefaults() Config {
	if c.ExhaustionCount <= 0 {
		c.ExhaustionCount = 3
	}
	if c.FastEMAPeriod <= 0 {
		c.FastEMAPeriod = 9
	}
	if c.SlowEMAPeriod <= 0 {
		c.SlowEMAPeriod = 21
	}
	if c.TimeStopMinutes <= 0 {
		c.TimeStopMinutes = 120
	}
	if c.EODCutoff == "" {
		c.EODCutoff = "15:45"
	}
	if c.TrailingStopPct <= 0 {
		c.TrailingStopPct = 3.0
	}
	if c.OptionStopPct <= 0 {
		c.OptionStopPct = 50.0
	}
	if c.OptionTargetPct <= 0 {
		c.OptionTargetPct = 25.0
	}
	return c
}

// tracker is the per-position rolling state fed by observed closes.
type tracker struct {
	fastEMA  float64
	slowEMA  float64
	samples  int
	lastTick float64
	opposing int
	peak     float64
}

// Monitor holds per-position trackers keyed by position ID. It is not
// goroutine-safe; the orchestrator calls it under the pipeline lock.
type Monitor struct {
	cfg       Config
	clock     *market.Clock
	eodMinute int
	trackers  map[string]*tracker
}

// NewMonitor creates a monitor using the given market clock for
// session-relative triggers.
func NewMonitor(cfg Config, clock *market.Clock) (*Monitor, error) {
	cfg = cfg.withDefaults()
	eodMinute, err := market.ParseCutoff(cfg.EODCutoff)
	if err != nil {
		return nil, err
	}
	return &Monitor{
		cfg:       cfg,
		clock:     clock,
		eodMinute: eodMinute,
		trackers:  make(map[string]*tracker),
	}, nil
}

// Forget drops the tracker for a closed position.
func (m *Monitor) Forget(positionID string) {
	delete(m.trackers, positionID)
}

// Check evaluates one position against the trigger ladder using the latest
// close. It returns nil when no trigger fires this tick.
func (m *Monitor) Check(pos schema.Position, close float64, now time.Time) *schema.ExitDecision {
	if close <= 0 {
		return nil
	}
	tr := m.observe(pos, close)

	if pos.Kind == schema.InstrumentOption {
		return m.checkOption(pos, close, now)
	}

	switch {
	case m.stopBreached(pos, close):
		return m.decide(pos, schema.ExitStopLoss)
	case tr.opposing >= m.cfg.ExhaustionCount:
		return m.decide(pos, schema.ExitExhaustion)
	case m.trendFlipped(pos, tr):
		return m.decide(pos, schema.ExitTrendFlip)
	case m.targetReached(pos, close):
		return m.decide(pos, schema.ExitTarget)
	case m.timeStopHit(pos, close, now):
		return m.decide(pos, schema.ExitTimeStop)
	case pos.TradeType == schema.TradeTypeDay && m.clock.PastMinute(now, m.eodMinute):
		return m.decide(pos, schema.ExitEndOfDay)
	case m.maxHoldExceeded(pos, now):
		return m.decide(pos, schema.ExitMaxHoldDays)
	case pos.TradeType == schema.TradeTypeSwing && m.trailingStopHit(pos, tr, close):
		return m.decide(pos, schema.ExitTrailing)
	}
	return nil
}

// ForceClose produces an exit decision outside the ladder, used for
// kill-switch and reconciliation closures.
func (m *Monitor) ForceClose(pos schema.Position, trigger schema.ExitTrigger) *schema.ExitDecision {
	return m.decide(pos, trigger)
}

func (m *Monitor) decide(pos schema.Position, trigger schema.ExitTrigger) *schema.ExitDecision {
	return &schema.ExitDecision{
		PositionID: pos.ID,
		Trigger:    trigger,
		Order: schema.Order{
			Ticker:      pos.Ticker,
			Side:        schema.SideFor(pos.Direction, true),
			Qty:         pos.Quantity,
			Type:        schema.OrderTypeMarket,
			TimeInForce: schema.TimeInForceDay,
		},
	}
}

// observe feeds a close into the position's tracker and returns it.
func (m *Monitor) observe(pos schema.Position, close float64) *tracker {
	tr, ok := m.trackers[pos.ID]
	if !ok {
		tr = &tracker{
			fastEMA:  pos.EntryPrice,
			slowEMA:  pos.EntryPrice,
			lastTick: pos.EntryPrice,
			peak:     pos.EntryPrice,
		}
		m.trackers[pos.ID] = tr
	}

	tr.fastEMA = ema(tr.fastEMA, close, m.cfg.FastEMAPeriod)
	tr.slowEMA = ema(tr.slowEMA, close, m.cfg.SlowEMAPeriod)
	tr.samples++

	// An opposing close moves against the position and sits on the adverse
	// side of the fast trend band. Any close back inside resets the streak.
	opposing := false
	if pos.Direction == schema.DirectionLong {
		opposing = close < tr.lastTick && close < tr.fastEMA
		if close > tr.peak {
			tr.peak = close
		}
	} else {
		opposing = close > tr.lastTick && close > tr.fastEMA
		if close < tr.peak {
			tr.peak = close
		}
	}
	if opposing {
		tr.opposing++
	} else {
		tr.opposing = 0
	}
	tr.lastTick = close
	return tr
}

func ema(prev, close float64, period int) float64 {
	k := 2.0 / float64(period+1)
	return close*k + prev*(1-k)
}

func (m *Monitor) stopBreached(pos schema.Position, close float64) bool {
	if pos.StopLoss <= 0 {
		return false
	}
	if pos.Direction == schema.DirectionShort {
		return close >= pos.StopLoss
	}
	return close <= pos.StopLoss
}

func (m *Monitor) targetReached(pos schema.Position, close float64) bool {
	if pos.TargetPrice <= 0 {
		return false
	}
	if pos.Direction == schema.DirectionShort {
		return close <= pos.TargetPrice
	}
	return close >= pos.TargetPrice
}

// trendFlipped requires a warmed-up slow average before it may fire.
func (m *Monitor) trendFlipped(pos schema.Position, tr *tracker) bool {
	if tr.samples < m.cfg.SlowEMAPeriod {
		return false
	}
	if pos.Direction == schema.DirectionShort {
		return tr.fastEMA > tr.slowEMA
	}
	return tr.fastEMA < tr.slowEMA
}

// timeStopHit fires for day trades held past the limit with no favorable
// movement.
func (m *Monitor) timeStopHit(pos schema.Position, close float64, now time.Time) bool {
	if pos.TradeType != schema.TradeTypeDay {
		return false
	}
	if now.Sub(pos.EntryTime) < time.Duration(m.cfg.TimeStopMinutes)*time.Minute {
		return false
	}
	p := pos
	p.CurrentPrice = close
	return p.MovePct() <= 0
}

func (m *Monitor) maxHoldExceeded(pos schema.Position, now time.Time) bool {
	if pos.Leveraged == nil || pos.Leveraged.MaxHoldDays <= 0 {
		return false
	}
	return m.clock.TradingDaysBetween(pos.EntryTime, now) > pos.Leveraged.MaxHoldDays
}

// trailingStopHit fires when price retraces from the best favorable level by
// more than the configured percentage.
func (m *Monitor) trailingStopHit(pos schema.Position, tr *tracker, close float64) bool {
	if tr.peak <= 0 {
		return false
	}
	var retracePct float64
	if pos.Direction == schema.DirectionShort {
		retracePct = (close - tr.peak) / tr.peak * 100
	} else {
		retracePct = (tr.peak - close) / tr.peak * 100
	}
	return retracePct >= m.cfg.TrailingStopPct
}

// checkOption manages option positions on premium percentage moves.
func (m *Monitor) checkOption(pos schema.Position, premium float64, now time.Time) *schema.ExitDecision {
	if pos.EntryPrice <= 0 {
		return nil
	}
	movePct := (premium - pos.EntryPrice) / pos.EntryPrice * 100
	switch {
	case movePct <= -m.cfg.OptionStopPct:
		return m.decide(pos, schema.ExitStopLoss)
	case movePct >= m.cfg.OptionTargetPct:
		return m.decide(pos, schema.ExitTarget)
	case m.expiresToday(pos, now) && m.clock.PastMinute(now, m.eodMinute):
		// Same-day contracts are never carried into the close.
		return m.decide(pos, schema.ExitEndOfDay)
	}
	return nil
}

// expiresToday reports whether the contract expires on the current trading
// date. Expiries are stamped as pure calendar dates at UTC midnight, so the
// date is read back in UTC rather than converted into the exchange zone.
func (m *Monitor) expiresToday(pos schema.Position, now time.Time) bool {
	if pos.Option == nil || pos.Option.Expiry.IsZero() {
		return false
	}
	return pos.Option.Expiry.UTC().Format("2006-01-02") == m.clock.TradingDate(now)
}
