// Package risk evaluates pre-trade limits and the kill-switch triggers.
package risk

import (
	"time"

	"main/internal/schema"
)

// Config defines the account risk limits. All fields are configuration
// inputs, not hard-coded constants.
type Config struct {
	DailyLossLimit           float64       `json:"dailyLossLimit"`
	MaxConcurrentPositions   int           `json:"maxConcurrentPositions"`
	MaxSectorExposurePct     float64       `json:"maxSectorExposurePct"`
	MinAccountEquity         float64       `json:"minAccountEquity"`
	ConsecutiveLossLimit     int           `json:"consecutiveLossLimit"`
	ConsecutiveLossThreshold float64       `json:"consecutiveLossThreshold"`
	ConnectivityTimeout      time.Duration `json:"connectivityTimeout"`
	CircuitBreakerCooldown   time.Duration `json:"circuitBreakerCooldown"`
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentPositions <= 0 {
		c.MaxConcurrentPositions = 5
	}
	if c.MinAccountEquity <= 0 {
		c.MinAccountEquity = 25_000
	}
	if c.ConsecutiveLossLimit <= 0 {
		c.ConsecutiveLossLimit = 3
	}
	if c.ConnectivityTimeout <= 0 {
		c.ConnectivityTimeout = 2 * time.Minute
	}
	if c.CircuitBreakerCooldown <= 0 {
		c.CircuitBreakerCooldown = 30 * time.Minute
	}
	return c
}

// View carries the per-signal facts the gate cannot derive from the account
// alone. The orchestrator assembles it under the pipeline lock.
type View struct {
	DuplicateSignal   bool
	OppositePending   bool
	MarketOpen        bool
	Sector            string
	SectorExposurePct float64
}

// Gate validates signals against the configured limits. It never mutates
// its inputs.
type Gate struct {
	cfg Config
}

// NewGate creates a gate with static limits.
func NewGate(cfg Config) *Gate {
	return &Gate{cfg: cfg.withDefaults()}
}

// Config returns the active limits.
func (g *Gate) Config() Config {
	return g.cfg
}

// Validate runs the ordered checks and short-circuits on the first failure.
// An approval may carry an adjusted quantity cap instead of a rejection.
func (g *Gate) Validate(signal schema.Signal, account schema.AccountState, view View) schema.RiskDecision {
	reject := func(reason schema.RiskReason) schema.RiskDecision {
		return schema.RiskDecision{Approved: false, Reason: reason}
	}

	if view.DuplicateSignal {
		return reject(schema.RiskReasonDuplicate)
	}
	if g.cfg.DailyLossLimit > 0 && account.DailyPnL <= -g.cfg.DailyLossLimit {
		return reject(schema.RiskReasonDailyLoss)
	}
	if len(account.OpenPositions) >= g.cfg.MaxConcurrentPositions {
		return reject(schema.RiskReasonMaxPositions)
	}
	for _, pos := range account.OpenPositions {
		if pos.Ticker == signal.Ticker || pos.Leveraged != nil && pos.Leveraged.OriginalTicker == signal.Ticker {
			return reject(schema.RiskReasonConflicting)
		}
	}
	if view.OppositePending {
		return reject(schema.RiskReasonOppositePending)
	}
	if g.cfg.MaxSectorExposurePct > 0 && view.SectorExposurePct >= g.cfg.MaxSectorExposurePct {
		return reject(schema.RiskReasonSectorExposure)
	}
	if !view.MarketOpen {
		return reject(schema.RiskReasonMarketClosed)
	}
	if account.Equity < g.cfg.MinAccountEquity {
		return reject(schema.RiskReasonEquityFloor)
	}

	// Buying-power shortfalls cap size rather than rejecting outright; the
	// sizer honors the cap downstream.
	decision := schema.RiskDecision{Approved: true}
	if signal.Price > 0 {
		if account.BuyingPower < signal.Price {
			return reject(schema.RiskReasonBuyingPower)
		}
		decision.AdjustedQty = account.BuyingPower / signal.Price
	}
	return decision
}

// ShouldTrip evaluates the automatic kill-switch triggers against the
// current persisted state and account view.
func (g *Gate) ShouldTrip(st schema.PersistedState, account schema.AccountState, lastBrokerOK time.Time, now time.Time) (bool, schema.RiskReason) {
	if g.cfg.DailyLossLimit > 0 && st.DailyPnL <= -g.cfg.DailyLossLimit {
		return true, schema.RiskReasonDailyLoss
	}
	if account.Equity > 0 && account.Equity < g.cfg.MinAccountEquity {
		return true, schema.RiskReasonEquityFloor
	}
	// At exactly the limit the circuit breaker owns the response with a
	// bounded cooldown; the kill switch takes over only when losses continue
	// past it.
	if st.ConsecutiveLosses > g.cfg.ConsecutiveLossLimit {
		return true, schema.RiskReasonLossStreak
	}
	if !lastBrokerOK.IsZero() && now.Sub(lastBrokerOK) > g.cfg.ConnectivityTimeout {
		return true, schema.RiskReasonConnectivity
	}
	return false, schema.RiskReasonNone
}

// CircuitOpen reports whether the loss-streak cooldown is still in effect.
func CircuitOpen(st schema.PersistedState, now time.Time) bool {
	return st.CircuitBreakerOpen && now.Before(st.CircuitBreakerUntil)
}

// QualifiesAsStreakLoss reports whether a realized loss extends the
// consecutive-loss streak that opens the circuit breaker.
func (g *Gate) QualifiesAsStreakLoss(realizedPnL float64) bool {
	if realizedPnL >= 0 {
		return false
	}
	return -realizedPnL >= g.cfg.ConsecutiveLossThreshold
}
