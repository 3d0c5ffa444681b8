// Package sizing translates conviction and risk budget into order quantity.
package sizing

import (
	"math"

	"main/internal/schema"
)

// Config holds the sizing knobs. Conviction tiers and per-instrument caps
// are configuration inputs.
type Config struct {
	MaxRiskPerTrade      float64 `json:"maxRiskPerTrade"`
	FullConvictionMin    int     `json:"fullConvictionMin"`
	HalfConvictionMin    int     `json:"halfConvictionMin"`
	MinConvictionToTrade int     `json:"minConvictionToTrade"`

	MaxStockQty        float64 `json:"maxStockQty"`
	MaxOptionContracts float64 `json:"maxOptionContracts"`
	MaxETFQty          float64 `json:"maxEtfQty"`
}

func (c Config) withDefaults() Config {
	if c.MaxRiskPerTrade <= 0 {
		c.MaxRiskPerTrade = 0.02
	}
	if c.FullConvictionMin <= 0 {
		c.FullConvictionMin = 75
	}
	if c.HalfConvictionMin <= 0 {
		c.HalfConvictionMin = 50
	}
	if c.MinConvictionToTrade <= 0 {
		c.MinConvictionToTrade = 50
	}
	if c.MaxStockQty <= 0 {
		c.MaxStockQty = 2_000
	}
	if c.MaxOptionContracts <= 0 {
		c.MaxOptionContracts = 20
	}
	if c.MaxETFQty <= 0 {
		c.MaxETFQty = 3_000
	}
	return c
}

// Sizer computes order quantities from the base risk formula. Leveraged
// instruments divide the desired notional by the leverage factor.
type Sizer struct {
	cfg Config
}

// NewSizer creates a sizer with the given limits.
func NewSizer(cfg Config) *Sizer {
	return &Sizer{cfg: cfg.withDefaults()}
}

// Size returns the quantity for the routed instrument, zero when the signal
// does not qualify. The risk decision's adjusted quantity, when set, caps
// the result.
func (s *Sizer) Size(signal schema.Signal, decision schema.InstrumentDecision, risk schema.RiskDecision, account schema.AccountState) float64 {
	if signal.Conviction < s.cfg.MinConvictionToTrade {
		return 0
	}
	entry := decision.RefPrice
	if entry <= 0 {
		entry = signal.Price
	}
	if entry <= 0 || signal.Price <= 0 || signal.StopLoss <= 0 {
		return 0
	}

	stopDistance := math.Abs(signal.Price-signal.StopLoss) / signal.Price
	if stopDistance <= 0 {
		return 0
	}

	riskAmount := account.Equity * s.cfg.MaxRiskPerTrade
	qty := riskAmount / (entry * stopDistance)

	if decision.Kind == schema.InstrumentLeveragedETF && decision.Leverage > 1 {
		qty /= decision.Leverage
	}

	qty *= s.convictionMultiplier(signal.Conviction)
	qty = math.Floor(qty)

	if cap := s.instrumentCap(decision.Kind); qty > cap {
		qty = cap
	}
	if risk.AdjustedQty > 0 && qty > math.Floor(risk.AdjustedQty) {
		qty = math.Floor(risk.AdjustedQty)
	}
	if qty < 1 {
		return 0
	}
	return qty
}

func (s *Sizer) convictionMultiplier(conviction int) float64 {
	switch {
	case conviction >= s.cfg.FullConvictionMin:
		return 1.0
	case conviction >= s.cfg.HalfConvictionMin:
		return 0.5
	default:
		return 0
	}
}

func (s *Sizer) instrumentCap(kind schema.InstrumentKind) float64 {
	switch kind {
	case schema.InstrumentOption:
		return s.cfg.MaxOptionContracts
	case schema.InstrumentLeveragedETF:
		return s.cfg.MaxETFQty
	default:
		return s.cfg.MaxStockQty
	}
}
