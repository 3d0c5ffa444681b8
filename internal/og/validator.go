package og

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"main/internal/schema"
)

// Validation reason prefixes, stable for alerting.
const (
	reasonBadStatus  = "order status not fillable"
	reasonZeroQty    = "filled quantity is zero"
	reasonZeroPrice  = "filled price is zero"
	reasonSlippage   = "slippage exceeds limit"
	reasonStaleFill  = "fill is stale"
	reasonPartial    = "partial fill below threshold"
	reasonNoPartials = "partial fills not allowed"
)

// ValidatorConfig controls fill acceptance.
type ValidatorConfig struct {
	MaxSlippagePct    float64       `json:"maxSlippagePct"`
	RejectOnSlippage  bool          `json:"rejectOnSlippage"`
	MaxFillAge        time.Duration `json:"maxFillAge"`
	AllowPartial      bool          `json:"allowPartial"`
	MinPartialFillPct float64       `json:"minPartialFillPct"`
}

func (c ValidatorConfig) withDefaults() ValidatorConfig {
	if c.MaxSlippagePct <= 0 {
		c.MaxSlippagePct = 2.0
	}
	if c.MaxFillAge <= 0 {
		c.MaxFillAge = time.Minute
	}
	if c.MinPartialFillPct <= 0 {
		c.MinPartialFillPct = 0.5
	}
	return c
}

// Validator is the sole authority permitted to turn an OrderResult into a
// Position. A failed validation creates nothing.
type Validator struct {
	cfg ValidatorConfig
	now func() time.Time
}

// NewValidator creates a validator with the given acceptance rules.
func NewValidator(cfg ValidatorConfig) *Validator {
	return &Validator{cfg: cfg.withDefaults(), now: time.Now}
}

// ValidateFill inspects a fill against the original order and the expected
// price. Any failing check yields Valid=false.
func (v *Validator) ValidateFill(order schema.Order, res schema.OrderResult, expectedPrice float64) schema.ValidationResult {
	invalid := func(format string, args ...any) schema.ValidationResult {
		return schema.ValidationResult{Valid: false, Reason: fmt.Sprintf(format, args...)}
	}

	switch res.Status {
	case schema.OrderStatusRejected, schema.OrderStatusCancelled, schema.OrderStatusPending:
		return invalid("%s: %s", reasonBadStatus, res.Status)
	}
	if res.FilledQty <= 0 {
		return invalid(reasonZeroQty)
	}
	if res.FilledPrice <= 0 {
		return invalid(reasonZeroPrice)
	}

	out := schema.ValidationResult{Valid: true, AdjustedQty: res.FilledQty}

	if expectedPrice > 0 {
		slippage := math.Abs(res.FilledPrice-expectedPrice) / expectedPrice * 100
		out.SlippagePct = slippage
		if slippage > v.cfg.MaxSlippagePct {
			if v.cfg.RejectOnSlippage {
				r := invalid("%s: %.2f%% > %.2f%%", reasonSlippage, slippage, v.cfg.MaxSlippagePct)
				r.SlippagePct = slippage
				return r
			}
			out.Reason = fmt.Sprintf("%s: %.2f%% (accepted by config)", reasonSlippage, slippage)
		}
	}

	if !res.Timestamp.IsZero() && v.now().Sub(res.Timestamp) > v.cfg.MaxFillAge {
		return invalid("%s: age %s", reasonStaleFill, v.now().Sub(res.Timestamp).Truncate(time.Second))
	}

	if res.FilledQty < order.Qty {
		if !v.cfg.AllowPartial {
			return invalid(reasonNoPartials)
		}
		ratio := res.FilledQty / order.Qty
		if ratio < v.cfg.MinPartialFillPct {
			return invalid("%s: %.0f%% < %.0f%%", reasonPartial, ratio*100, v.cfg.MinPartialFillPct*100)
		}
		out.AdjustedQty = res.FilledQty
	}

	return out
}

// BuildPosition constructs a Position from a validated fill. Stops and
// targets on proxy instruments are translated from the signal's fractional
// distances onto the instrument's entry price.
func (v *Validator) BuildPosition(signal schema.Signal, decision schema.InstrumentDecision, res schema.OrderResult, vr schema.ValidationResult) (schema.Position, error) {
	if !vr.Valid {
		return schema.Position{}, fmt.Errorf("og: refusing to build position from invalid fill: %s", vr.Reason)
	}

	pos := schema.Position{
		ID:           uuid.New().String(),
		Ticker:       decision.Ticker,
		Kind:         decision.Kind,
		Direction:    decision.Direction,
		Quantity:     vr.AdjustedQty,
		EntryPrice:   res.FilledPrice,
		CurrentPrice: res.FilledPrice,
		EntryTime:    res.Timestamp,
		SignalID:     signal.ID,
		TradeType:    schema.TradeTypeFor(signal.Timeframe),
	}
	if pos.EntryTime.IsZero() {
		pos.EntryTime = v.now().UTC()
	}

	switch decision.Kind {
	case schema.InstrumentStock:
		pos.StopLoss = signal.StopLoss
		pos.TargetPrice = signal.TargetPrice
	case schema.InstrumentLeveragedETF:
		pos.Leveraged = &schema.LeveragedDetail{
			OriginalTicker: decision.Underlying,
			Leverage:       decision.Leverage,
			MaxHoldDays:    decision.MaxHoldDays,
		}
		pos.StopLoss, pos.TargetPrice = translateLevels(signal, pos.Direction, res.FilledPrice)
	case schema.InstrumentOption:
		detail := decision.Option
		if detail == nil {
			detail = &schema.OptionDetail{}
		}
		pos.Option = detail
		// Premium stop/target percentages come from exit config; absolute
		// levels stay unset for options.
	}
	return pos, nil
}

// translateLevels maps the signal's stop/target distances onto the proxy
// instrument's entry price.
func translateLevels(signal schema.Signal, dir schema.Direction, entry float64) (stop float64, target float64) {
	if signal.Price <= 0 {
		return 0, 0
	}
	stopPct := math.Abs(signal.Price-signal.StopLoss) / signal.Price
	targetPct := 0.0
	if signal.TargetPrice > 0 {
		targetPct = math.Abs(signal.TargetPrice-signal.Price) / signal.Price
	}
	if dir == schema.DirectionShort {
		stop = entry * (1 + stopPct)
		target = entry * (1 - targetPct)
	} else {
		stop = entry * (1 - stopPct)
		target = entry * (1 + targetPct)
	}
	if targetPct == 0 {
		target = 0
	}
	return stop, target
}
