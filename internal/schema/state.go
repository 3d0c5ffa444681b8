package schema

import "time"

// PersistedState is the single source of truth surviving process restarts.
// Safety-critical fields (kill switch, daily loss) are committed to disk
// before the in-memory copy is updated.
type PersistedState struct {
	KillSwitchActive    bool       `json:"killSwitchActive"`
	KillSwitchReason    string     `json:"killSwitchReason,omitempty"`
	DailyPnL            float64    `json:"dailyPnL"`
	DailyTrades         int        `json:"dailyTrades"`
	ConsecutiveLosses   int        `json:"consecutiveLosses"`
	CircuitBreakerOpen  bool       `json:"circuitBreakerOpen"`
	CircuitBreakerUntil time.Time  `json:"circuitBreakerUntil,omitzero"`
	LastTradeDate       string     `json:"lastTradeDate"`
	Positions           []Position `json:"positions"`
}
