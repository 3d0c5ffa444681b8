package schema

import "time"

// OptionDetail carries the option-specific fields of a position.
type OptionDetail struct {
	Strike float64   `json:"strike"`
	Expiry time.Time `json:"expiry"`
	Delta  float64   `json:"delta"`
	Theta  float64   `json:"theta"`
	IV     float64   `json:"iv"`
}

// LeveragedDetail carries the leveraged-ETF-specific fields of a position.
type LeveragedDetail struct {
	OriginalTicker string  `json:"originalTicker"`
	Leverage       float64 `json:"leverage"`
	MaxHoldDays    int     `json:"maxHoldDays"`
}

// Position is an open holding created from a validated fill. The Kind field
// selects which of the optional detail blocks is populated.
type Position struct {
	ID           string         `json:"id"`
	Ticker       string         `json:"ticker"`
	Kind         InstrumentKind `json:"kind"`
	Direction    Direction      `json:"direction"`
	Quantity     float64        `json:"quantity"`
	EntryPrice   float64        `json:"entryPrice"`
	CurrentPrice float64        `json:"currentPrice"`
	StopLoss     float64        `json:"stopLoss"`
	TargetPrice  float64        `json:"targetPrice"`
	EntryTime    time.Time      `json:"entryTime"`
	SignalID     string         `json:"signalId"`
	TradeType    TradeType      `json:"tradeType"`

	Option    *OptionDetail    `json:"option,omitempty"`
	Leveraged *LeveragedDetail `json:"leveraged,omitempty"`
}

// UnrealizedPnL returns the open profit at the current price.
func (p Position) UnrealizedPnL() float64 {
	diff := p.CurrentPrice - p.EntryPrice
	if p.Direction == DirectionShort {
		diff = -diff
	}
	return diff * p.Quantity
}

// MovePct returns the signed percentage move from entry, positive when the
// position is in profit.
func (p Position) MovePct() float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	pct := (p.CurrentPrice - p.EntryPrice) / p.EntryPrice * 100
	if p.Direction == DirectionShort {
		pct = -pct
	}
	return pct
}

// AccountState is the broker account view refreshed at pipeline entry.
type AccountState struct {
	Equity        float64    `json:"equity"`
	Cash          float64    `json:"cash"`
	BuyingPower   float64    `json:"buyingPower"`
	OpenPositions []Position `json:"openPositions"`
	DailyPnL      float64    `json:"dailyPnL"`
	DailyTrades   int        `json:"dailyTrades"`
	PDTCompliant  bool       `json:"isPdtCompliant"`
}
