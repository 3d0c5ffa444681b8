package og

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func goodFill(qty, price float64) schema.OrderResult {
	return schema.OrderResult{
		OrderID:     "o-1",
		ClientID:    "c-1",
		Status:      schema.OrderStatusFilled,
		FilledQty:   qty,
		FilledPrice: price,
		Timestamp:   time.Now(),
	}
}

func TestValidateFillChecks(t *testing.T) {
	order := schema.Order{ClientID: "c-1", Ticker: "AAPL", Side: schema.OrderSideBuy, Qty: 100}

	testCases := []struct {
		desc     string
		cfg      ValidatorConfig
		res      schema.OrderResult
		expected float64
		valid    bool
	}{
		{
			desc:     "clean fill at expected price",
			res:      goodFill(100, 200),
			expected: 200,
			valid:    true,
		},
		{
			desc:     "rejected status",
			res:      schema.OrderResult{Status: schema.OrderStatusRejected},
			expected: 200,
			valid:    false,
		},
		{
			desc:     "cancelled status",
			res:      schema.OrderResult{Status: schema.OrderStatusCancelled},
			expected: 200,
			valid:    false,
		},
		{
			desc:     "zero filled quantity",
			res:      schema.OrderResult{Status: schema.OrderStatusFilled, FilledPrice: 200, Timestamp: time.Now()},
			expected: 200,
			valid:    false,
		},
		{
			desc:     "zero filled price",
			res:      schema.OrderResult{Status: schema.OrderStatusFilled, FilledQty: 100, Timestamp: time.Now()},
			expected: 200,
			valid:    false,
		},
		{
			desc:     "slippage within limit",
			cfg:      ValidatorConfig{MaxSlippagePct: 2.0, RejectOnSlippage: true},
			res:      goodFill(100, 203), // 1.5%
			expected: 200,
			valid:    true,
		},
		{
			desc:     "slippage over limit rejects when configured",
			cfg:      ValidatorConfig{MaxSlippagePct: 2.0, RejectOnSlippage: true},
			res:      goodFill(100, 206), // 3%
			expected: 200,
			valid:    false,
		},
		{
			desc:     "slippage over limit accepted by config",
			cfg:      ValidatorConfig{MaxSlippagePct: 2.0, RejectOnSlippage: false},
			res:      goodFill(100, 206),
			expected: 200,
			valid:    true,
		},
		{
			desc:     "partial below threshold",
			cfg:      ValidatorConfig{AllowPartial: true, MinPartialFillPct: 0.5},
			res:      goodFill(30, 200),
			expected: 200,
			valid:    false,
		},
		{
			desc:     "partial above threshold",
			cfg:      ValidatorConfig{AllowPartial: true, MinPartialFillPct: 0.5},
			res:      goodFill(80, 200),
			expected: 200,
			valid:    true,
		},
		{
			desc:     "partials disallowed",
			cfg:      ValidatorConfig{AllowPartial: false},
			res:      goodFill(80, 200),
			expected: 200,
			valid:    false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			v := NewValidator(tc.cfg)
			got := v.ValidateFill(order, tc.res, tc.expected)
			if got.Valid != tc.valid {
				t.Fatalf("valid mismatch: got %v want %v (reason: %s)", got.Valid, tc.valid, got.Reason)
			}
			if !got.Valid && got.Reason == "" {
				t.Fatal("invalid result must carry a reason")
			}
		})
	}
}

func TestExcessSlippageCreatesNoPosition(t *testing.T) {
	v := NewValidator(ValidatorConfig{MaxSlippagePct: 2.0, RejectOnSlippage: true})
	order := schema.Order{ClientID: "c-1", Ticker: "AAPL", Side: schema.OrderSideBuy, Qty: 100}

	res := goodFill(100, 206) // 3% off an expected 200
	vr := v.ValidateFill(order, res, 200)
	require.False(t, vr.Valid)
	assert.InDelta(t, 3.0, vr.SlippagePct, 1e-9)
	assert.Contains(t, vr.Reason, reasonSlippage)

	_, err := v.BuildPosition(schema.Signal{}, schema.InstrumentDecision{}, res, vr)
	require.Error(t, err)
}

func TestRejectedOrderCreatesNoPosition(t *testing.T) {
	v := NewValidator(ValidatorConfig{})
	order := schema.Order{ClientID: "c-1", Ticker: "AAPL", Side: schema.OrderSideBuy, Qty: 100}

	vr := v.ValidateFill(order, schema.OrderResult{Status: schema.OrderStatusRejected}, 200)
	require.False(t, vr.Valid)

	_, err := v.BuildPosition(schema.Signal{}, schema.InstrumentDecision{}, schema.OrderResult{}, vr)
	require.Error(t, err)
}

func TestStaleFillRejected(t *testing.T) {
	v := NewValidator(ValidatorConfig{MaxFillAge: time.Minute})
	order := schema.Order{ClientID: "c-1", Ticker: "AAPL", Side: schema.OrderSideBuy, Qty: 100}

	res := goodFill(100, 200)
	res.Timestamp = time.Now().Add(-5 * time.Minute)
	vr := v.ValidateFill(order, res, 200)
	assert.False(t, vr.Valid)
}

func TestBuildPositionStock(t *testing.T) {
	v := NewValidator(ValidatorConfig{})
	signal := schema.Signal{
		ID: "s-1", Ticker: "AAPL", Direction: schema.DirectionLong,
		Timeframe: schema.TimeframeSwing, Price: 200, StopLoss: 196, TargetPrice: 212,
	}
	decision := schema.InstrumentDecision{
		Kind: schema.InstrumentStock, Ticker: "AAPL",
		Direction: schema.DirectionLong, RefPrice: 200,
	}
	res := goodFill(100, 200.5)
	vr := v.ValidateFill(schema.Order{Qty: 100}, res, 200)
	require.True(t, vr.Valid)

	pos, err := v.BuildPosition(signal, decision, res, vr)
	require.NoError(t, err)

	assert.NotEmpty(t, pos.ID)
	assert.Equal(t, "s-1", pos.SignalID)
	assert.Equal(t, schema.TradeTypeSwing, pos.TradeType)
	assert.Equal(t, 200.5, pos.EntryPrice)
	assert.Equal(t, 196.0, pos.StopLoss)
	assert.Equal(t, 212.0, pos.TargetPrice)
}

func TestBuildPositionTranslatesLevelsForProxy(t *testing.T) {
	v := NewValidator(ValidatorConfig{})
	// Signal on SPY with a 2% stop and 4% target.
	signal := schema.Signal{
		ID: "s-2", Ticker: "SPY", Direction: schema.DirectionShort,
		Timeframe: schema.TimeframeDay, Price: 500, StopLoss: 510, TargetPrice: 480,
	}
	// Short routed to the inverse ETF, held long.
	decision := schema.InstrumentDecision{
		Kind: schema.InstrumentLeveragedETF, Ticker: "SPXU", Underlying: "SPY",
		Direction: schema.DirectionLong, RefPrice: 20, Leverage: 3, MaxHoldDays: 5,
	}
	res := goodFill(300, 20)
	vr := v.ValidateFill(schema.Order{Qty: 300}, res, 20)
	require.True(t, vr.Valid)

	pos, err := v.BuildPosition(signal, decision, res, vr)
	require.NoError(t, err)

	require.NotNil(t, pos.Leveraged)
	assert.Equal(t, "SPY", pos.Leveraged.OriginalTicker)
	assert.Equal(t, 3.0, pos.Leveraged.Leverage)
	assert.Equal(t, 5, pos.Leveraged.MaxHoldDays)

	// Long ETF position: stop 2% below entry, target 4% above.
	assert.InDelta(t, 19.6, pos.StopLoss, 1e-9)
	assert.InDelta(t, 20.8, pos.TargetPrice, 1e-9)
}
