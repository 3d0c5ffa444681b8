// Package route maps a validated signal onto a tradable instrument: the
// plain equity, a same-day option, or a leveraged ETF proxy, subject to a
// liquidity gate.
package route

import (
	"context"
	"fmt"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/schema"
)

// Mode selects the routing venue policy. Operator-selected, never derived
// from the signal.
type Mode string

const (
	ModeOptions      Mode = "options"
	ModeLeveragedETF Mode = "leveragedETF"
	ModeBoth         Mode = "both"
)

// Config holds the routing mode and liquidity thresholds.
type Config struct {
	Mode              Mode    `json:"mode"`
	MinAvgDailyVolume float64 `json:"minAvgDailyVolume"`
	MaxSpreadPct      float64 `json:"maxSpreadPct"`
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = ModeBoth
	}
	if c.MinAvgDailyVolume <= 0 {
		c.MinAvgDailyVolume = 500_000
	}
	if c.MaxSpreadPct <= 0 {
		c.MaxSpreadPct = 0.5
	}
	return c
}

// QuoteSource provides the market snapshots backing the liquidity gate.
type QuoteSource interface {
	GetQuote(ctx context.Context, ticker string) (schema.Quote, error)
}

// Router picks the instrument for each signal.
type Router struct {
	cfg    Config
	quotes QuoteSource
	now    func() time.Time
}

// NewRouter creates a router in the configured mode.
func NewRouter(cfg Config, quotes QuoteSource) *Router {
	return &Router{cfg: cfg.withDefaults(), quotes: quotes, now: time.Now}
}

// Route maps the signal to an instrument. Candidates failing the liquidity
// gate fall back to the plain equity.
func (r *Router) Route(ctx context.Context, signal schema.Signal) (schema.InstrumentDecision, error) {
	refPrice := signal.Price
	if q, err := r.quotes.GetQuote(ctx, signal.Ticker); err == nil && q.Mid() > 0 {
		refPrice = q.Mid()
	}

	switch r.venueFor(signal.Timeframe) {
	case schema.InstrumentOption:
		return r.routeOption(signal, refPrice), nil
	case schema.InstrumentLeveragedETF:
		return r.routeLeveraged(ctx, signal, refPrice), nil
	default:
		return r.equity(signal, refPrice, ""), nil
	}
}

func (r *Router) venueFor(tf schema.Timeframe) schema.InstrumentKind {
	switch r.cfg.Mode {
	case ModeOptions:
		if tf == schema.TimeframeScalp {
			return schema.InstrumentOption
		}
		return schema.InstrumentStock
	case ModeLeveragedETF:
		return schema.InstrumentLeveragedETF
	default: // both: timeframe selects the venue
		switch tf {
		case schema.TimeframeScalp:
			return schema.InstrumentOption
		case schema.TimeframeDay:
			return schema.InstrumentLeveragedETF
		default:
			return schema.InstrumentStock
		}
	}
}

func (r *Router) equity(signal schema.Signal, refPrice float64, fallback string) schema.InstrumentDecision {
	return schema.InstrumentDecision{
		Kind:       schema.InstrumentStock,
		Ticker:     signal.Ticker,
		Underlying: signal.Ticker,
		Direction:  signal.Direction,
		RefPrice:   refPrice,
		Fallback:   fallback,
	}
}

// routeOption synthesizes a same-day contract at the nearest whole strike.
// Short signals buy the put side, so the holding itself is long.
func (r *Router) routeOption(signal schema.Signal, refPrice float64) schema.InstrumentDecision {
	strike := float64(int(refPrice + 0.5))
	expiry := r.now().UTC().Truncate(24 * time.Hour)
	right := "C"
	if signal.Direction == schema.DirectionShort {
		right = "P"
	}
	return schema.InstrumentDecision{
		Kind:       schema.InstrumentOption,
		Ticker:     occSymbol(signal.Ticker, expiry, right, strike),
		Underlying: signal.Ticker,
		Direction:  schema.DirectionLong,
		RefPrice:   refPrice,
		Option: &schema.OptionDetail{
			Strike: strike,
			Expiry: expiry,
		},
	}
}

func (r *Router) routeLeveraged(ctx context.Context, signal schema.Signal, refPrice float64) schema.InstrumentDecision {
	entry, match := LookupLeveraged(signal.Ticker)
	ticker := entry.Bull
	if signal.Direction == schema.DirectionShort {
		ticker = entry.Inverse
	}

	q, err := r.quotes.GetQuote(ctx, ticker)
	if err != nil || !r.liquid(q) {
		logs.Warnf("leveraged candidate %s failed liquidity gate (match=%s), falling back to equity", ticker, match)
		return r.equity(signal, refPrice, "illiquid_leveraged_etf")
	}

	return schema.InstrumentDecision{
		Kind:        schema.InstrumentLeveragedETF,
		Ticker:      ticker,
		Underlying:  signal.Ticker,
		Direction:   schema.DirectionLong,
		RefPrice:    q.Mid(),
		Leverage:    entry.Leverage,
		MaxHoldDays: MaxHoldDaysFor(entry.Leverage),
	}
}

func (r *Router) liquid(q schema.Quote) bool {
	if q.DailyVolume < r.cfg.MinAvgDailyVolume {
		return false
	}
	if q.SpreadPct() > r.cfg.MaxSpreadPct {
		return false
	}
	return true
}

// occSymbol renders an OCC-style contract symbol, e.g. AAPL250822C00210000.
func occSymbol(underlying string, expiry time.Time, right string, strike float64) string {
	return fmt.Sprintf("%s%s%s%08d", underlying, expiry.Format("060102"), right, int(strike*1000))
}
