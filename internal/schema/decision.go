package schema

import "time"

// RiskReason is a stable machine-readable rejection reason.
type RiskReason string

const (
	RiskReasonNone            RiskReason = ""
	RiskReasonKillSwitch      RiskReason = "kill_switch_active"
	RiskReasonCircuitBreaker  RiskReason = "circuit_breaker_open"
	RiskReasonDailyLoss       RiskReason = "daily_loss_limit"
	RiskReasonMaxPositions    RiskReason = "max_concurrent_positions"
	RiskReasonConflicting     RiskReason = "conflicting_position"
	RiskReasonOppositePending RiskReason = "opposite_signal_pending"
	RiskReasonSectorExposure  RiskReason = "sector_exposure_limit"
	RiskReasonMarketClosed    RiskReason = "market_closed"
	RiskReasonEquityFloor     RiskReason = "equity_below_minimum"
	RiskReasonBuyingPower     RiskReason = "insufficient_buying_power"
	RiskReasonDuplicate       RiskReason = "duplicate_signal"
	RiskReasonConviction      RiskReason = "conviction_below_minimum"
	RiskReasonLossStreak      RiskReason = "consecutive_losses"
	RiskReasonConnectivity    RiskReason = "broker_connectivity_lost"
)

// RiskDecision is the risk gate's verdict on a signal. A rejected decision
// has no side effects. AdjustedQty, when non-zero, caps the sized quantity
// instead of rejecting outright.
type RiskDecision struct {
	Approved    bool       `json:"approved"`
	Reason      RiskReason `json:"reason,omitempty"`
	AdjustedQty float64    `json:"adjustedQty,omitempty"`
}

// InstrumentDecision is the router's instrument selection for a signal.
// Direction is the effective traded direction: a short signal routed to an
// inverse ETF or a put option becomes a long holding of that instrument.
type InstrumentDecision struct {
	Kind        InstrumentKind `json:"kind"`
	Ticker      string         `json:"ticker"`
	Underlying  string         `json:"underlying"`
	Direction   Direction      `json:"direction"`
	RefPrice    float64        `json:"refPrice"`
	Leverage    float64        `json:"leverage,omitempty"`
	MaxHoldDays int            `json:"maxHoldDays,omitempty"`
	Option      *OptionDetail  `json:"option,omitempty"`
	Fallback    string         `json:"fallback,omitempty"`
}

// ExitTrigger identifies which exit rule fired for a position.
type ExitTrigger string

const (
	ExitStopLoss    ExitTrigger = "stop_loss"
	ExitExhaustion  ExitTrigger = "momentum_exhaustion"
	ExitTrendFlip   ExitTrigger = "trend_flip"
	ExitTarget      ExitTrigger = "profit_target"
	ExitTimeStop    ExitTrigger = "time_stop"
	ExitEndOfDay    ExitTrigger = "eod_close"
	ExitTrailing    ExitTrigger = "trailing_stop"
	ExitMaxHoldDays ExitTrigger = "max_hold_days"
	ExitKillSwitch  ExitTrigger = "kill_switch"
	ExitReconcile   ExitTrigger = "reconciliation"
)

// ExitDecision pairs the trigger with the close order to route.
type ExitDecision struct {
	PositionID string      `json:"positionId"`
	Trigger    ExitTrigger `json:"trigger"`
	Order      Order       `json:"order"`
}

// ValidationResult is the fill validator's verdict. Only a valid result may
// be turned into a Position.
type ValidationResult struct {
	Valid       bool    `json:"valid"`
	Reason      string  `json:"reason,omitempty"`
	AdjustedQty float64 `json:"adjustedQty,omitempty"`
	SlippagePct float64 `json:"actualSlippagePct,omitempty"`
}

// ReconcileStatus summarizes the outcome of a reconciliation cycle.
type ReconcileStatus string

const (
	ReconcileSynced  ReconcileStatus = "synced"
	ReconcilePartial ReconcileStatus = "partial"
	ReconcileFailed  ReconcileStatus = "failed"
)

// Mismatch describes a local/broker divergence on one ticker.
type Mismatch struct {
	Ticker    string    `json:"ticker"`
	LocalQty  float64   `json:"localQty"`
	BrokerQty float64   `json:"brokerQty"`
	LocalDir  Direction `json:"localDir,omitempty"`
	BrokerDir Direction `json:"brokerDir,omitempty"`
}

// ReconciliationReport is produced once per reconciliation cycle and never
// mutated afterwards.
type ReconciliationReport struct {
	Timestamp           time.Time       `json:"timestamp"`
	Ghosts              []string        `json:"ghosts"`
	Orphans             []string        `json:"orphans"`
	QuantityMismatches  []Mismatch      `json:"quantityMismatches"`
	DirectionMismatches []Mismatch      `json:"directionMismatches"`
	ActionsTaken        []string        `json:"actionsTaken"`
	FinalStatus         ReconcileStatus `json:"finalStatus"`
}

// Clean reports whether the cycle found no discrepancies.
func (r ReconciliationReport) Clean() bool {
	return len(r.Ghosts) == 0 && len(r.Orphans) == 0 &&
		len(r.QuantityMismatches) == 0 && len(r.DirectionMismatches) == 0
}
