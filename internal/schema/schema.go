// Package schema defines the domain types shared by every stage of the
// execution pipeline: signals, orders, positions, account state, and the
// decision value objects returned by the gates.
package schema

import "time"

// Direction is the side of a signal or position.
type Direction string

const (
	DirectionUnknown Direction = ""
	DirectionLong    Direction = "long"
	DirectionShort   Direction = "short"
)

// Opposite returns the inverse direction.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionLong:
		return DirectionShort
	case DirectionShort:
		return DirectionLong
	default:
		return DirectionUnknown
	}
}

// Timeframe classifies the intended holding horizon of a signal.
type Timeframe string

const (
	TimeframeUnknown Timeframe = ""
	TimeframeScalp   Timeframe = "scalp"
	TimeframeDay     Timeframe = "day"
	TimeframeSwing   Timeframe = "swing"
)

// TradeType marks how a position is managed by the exit monitor.
type TradeType string

const (
	TradeTypeDay   TradeType = "day"
	TradeTypeSwing TradeType = "swing"
)

// TradeTypeFor maps a signal timeframe to the trade type of the resulting position.
func TradeTypeFor(tf Timeframe) TradeType {
	if tf == TimeframeSwing {
		return TradeTypeSwing
	}
	return TradeTypeDay
}

// InstrumentKind identifies the tradable vehicle selected by the router.
type InstrumentKind string

const (
	InstrumentStock        InstrumentKind = "stock"
	InstrumentOption       InstrumentKind = "option"
	InstrumentLeveragedETF InstrumentKind = "leveraged_etf"
)

// Signal is the immutable directional input consumed by the pipeline.
// Price is the reference price observed when the signal was emitted.
type Signal struct {
	ID          string    `json:"id"`
	Ticker      string    `json:"ticker"`
	Direction   Direction `json:"direction"`
	Conviction  int       `json:"conviction"`
	Timeframe   Timeframe `json:"timeframe"`
	Timestamp   time.Time `json:"timestamp"`
	Price       float64   `json:"price"`
	StopLoss    float64   `json:"stopLoss"`
	TargetPrice float64   `json:"targetPrice"`
}

// Quote is a point-in-time market snapshot for one ticker.
type Quote struct {
	Ticker      string    `json:"ticker"`
	Bid         float64   `json:"bid"`
	Ask         float64   `json:"ask"`
	Last        float64   `json:"last"`
	DailyVolume float64   `json:"dailyVolume"`
	Timestamp   time.Time `json:"timestamp"`
}

// Mid returns the quote midpoint, falling back to the last trade.
func (q Quote) Mid() float64 {
	if q.Bid > 0 && q.Ask > 0 {
		return (q.Bid + q.Ask) / 2
	}
	return q.Last
}

// SpreadPct returns the bid/ask spread as a percentage of the midpoint.
func (q Quote) SpreadPct() float64 {
	mid := q.Mid()
	if mid <= 0 || q.Bid <= 0 || q.Ask <= 0 {
		return 0
	}
	return (q.Ask - q.Bid) / mid * 100
}
