package sizing

import (
	"testing"

	"main/internal/schema"
)

func account(equity float64) schema.AccountState {
	return schema.AccountState{Equity: equity, BuyingPower: equity * 2}
}

func stockDecision(entry float64) schema.InstrumentDecision {
	return schema.InstrumentDecision{
		Kind:      schema.InstrumentStock,
		Ticker:    "AAPL",
		Direction: schema.DirectionLong,
		RefPrice:  entry,
	}
}

// equity=$100,000 with 5% risk and a 1% stop sizes to riskAmount/(entry*0.01)
// at full conviction.
func TestBaseRiskFormula(t *testing.T) {
	sizer := NewSizer(Config{MaxRiskPerTrade: 0.05, MaxStockQty: 10_000})

	signal := schema.Signal{
		Ticker:     "AAPL",
		Direction:  schema.DirectionLong,
		Conviction: 80,
		Price:      200,
		StopLoss:   198, // 1% below entry
	}
	qty := sizer.Size(signal, stockDecision(200), schema.RiskDecision{Approved: true}, account(100_000))

	// 100000*0.05 / (200*0.01) = 2500
	if qty != 2500 {
		t.Fatalf("qty mismatch: got %v want 2500", qty)
	}
}

func TestConvictionTiers(t *testing.T) {
	sizer := NewSizer(Config{MaxRiskPerTrade: 0.05, MaxStockQty: 10_000})
	base := schema.Signal{Ticker: "AAPL", Price: 200, StopLoss: 198}

	testCases := []struct {
		desc       string
		conviction int
		want       float64
	}{
		{"full multiplier", 75, 2500},
		{"half multiplier", 60, 1250},
		{"below minimum rejects", 40, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			signal := base
			signal.Conviction = tc.conviction
			qty := sizer.Size(signal, stockDecision(200), schema.RiskDecision{Approved: true}, account(100_000))
			if qty != tc.want {
				t.Fatalf("qty mismatch: got %v want %v", qty, tc.want)
			}
		})
	}
}

func TestLeveragedVariantDividesNotional(t *testing.T) {
	sizer := NewSizer(Config{MaxRiskPerTrade: 0.05, MaxETFQty: 10_000})

	signal := schema.Signal{Ticker: "AAPL", Conviction: 80, Price: 200, StopLoss: 198}
	decision := schema.InstrumentDecision{
		Kind:        schema.InstrumentLeveragedETF,
		Ticker:      "TECL",
		Direction:   schema.DirectionLong,
		RefPrice:    50,
		Leverage:    3,
		MaxHoldDays: 5,
	}
	qty := sizer.Size(signal, decision, schema.RiskDecision{Approved: true}, account(100_000))

	// 100000*0.05 / (50*0.01) / 3 = 3333.33 -> floored
	if qty != 3333 {
		t.Fatalf("qty mismatch: got %v want 3333", qty)
	}
}

func TestInstrumentCapApplies(t *testing.T) {
	sizer := NewSizer(Config{MaxRiskPerTrade: 0.05, MaxStockQty: 500})

	signal := schema.Signal{Ticker: "AAPL", Conviction: 90, Price: 200, StopLoss: 198}
	qty := sizer.Size(signal, stockDecision(200), schema.RiskDecision{Approved: true}, account(100_000))
	if qty != 500 {
		t.Fatalf("cap not applied: got %v want 500", qty)
	}
}

func TestRiskAdjustedQtyCaps(t *testing.T) {
	sizer := NewSizer(Config{MaxRiskPerTrade: 0.05, MaxStockQty: 10_000})

	signal := schema.Signal{Ticker: "AAPL", Conviction: 90, Price: 200, StopLoss: 198}
	risk := schema.RiskDecision{Approved: true, AdjustedQty: 100.7}
	qty := sizer.Size(signal, stockDecision(200), risk, account(100_000))
	if qty != 100 {
		t.Fatalf("adjusted cap not applied: got %v want 100", qty)
	}
}

func TestDegenerateInputs(t *testing.T) {
	sizer := NewSizer(Config{})

	testCases := []struct {
		desc   string
		signal schema.Signal
	}{
		{"zero stop", schema.Signal{Conviction: 80, Price: 200}},
		{"zero price", schema.Signal{Conviction: 80, StopLoss: 198}},
		{"stop equals entry", schema.Signal{Conviction: 80, Price: 200, StopLoss: 200}},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			if qty := sizer.Size(tc.signal, stockDecision(tc.signal.Price), schema.RiskDecision{Approved: true}, account(100_000)); qty != 0 {
				t.Fatalf("expected zero qty, got %v", qty)
			}
		})
	}
}
