package route

import (
	"context"
	"testing"
	"time"

	"main/internal/broker"
	"main/internal/schema"
)

func seededQuotes(t *testing.T, liquid bool) *broker.Paper {
	t.Helper()
	p := broker.NewPaper()
	for _, ticker := range []string{"AAPL", "SPY", "SPXL", "SPXU", "TECL", "TECS", "TQQQ", "SQQQ"} {
		q := schema.Quote{
			Ticker:      ticker,
			Bid:         99.95,
			Ask:         100.05,
			Last:        100,
			DailyVolume: 5_000_000,
			Timestamp:   time.Now().UTC(),
		}
		if !liquid {
			q.DailyVolume = 1_000
		}
		p.SetQuote(q)
	}
	return p
}

func TestVenueSelection(t *testing.T) {
	testCases := []struct {
		desc string
		mode Mode
		tf   schema.Timeframe
		kind schema.InstrumentKind
	}{
		{"options mode scalp", ModeOptions, schema.TimeframeScalp, schema.InstrumentOption},
		{"options mode day", ModeOptions, schema.TimeframeDay, schema.InstrumentStock},
		{"options mode swing", ModeOptions, schema.TimeframeSwing, schema.InstrumentStock},
		{"etf mode scalp", ModeLeveragedETF, schema.TimeframeScalp, schema.InstrumentLeveragedETF},
		{"etf mode swing", ModeLeveragedETF, schema.TimeframeSwing, schema.InstrumentLeveragedETF},
		{"both mode scalp", ModeBoth, schema.TimeframeScalp, schema.InstrumentOption},
		{"both mode day", ModeBoth, schema.TimeframeDay, schema.InstrumentLeveragedETF},
		{"both mode swing", ModeBoth, schema.TimeframeSwing, schema.InstrumentStock},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			router := NewRouter(Config{Mode: tc.mode}, seededQuotes(t, true))
			decision, err := router.Route(context.Background(), schema.Signal{
				Ticker:    "AAPL",
				Direction: schema.DirectionLong,
				Timeframe: tc.tf,
				Price:     100,
			})
			if err != nil {
				t.Fatal(err)
			}
			if decision.Kind != tc.kind {
				t.Fatalf("kind mismatch: got %s want %s", decision.Kind, tc.kind)
			}
		})
	}
}

func TestLeveragedCatalogResolution(t *testing.T) {
	testCases := []struct {
		desc   string
		ticker string
		dir    schema.Direction
		want   string
	}{
		{"direct index match long", "SPY", schema.DirectionLong, "SPXL"},
		{"direct index match short", "SPY", schema.DirectionShort, "SPXU"},
		{"sector match long", "AAPL", schema.DirectionLong, "TECL"},
		{"sector match short", "AAPL", schema.DirectionShort, "TECS"},
		{"broad market fallback", "ZZZZ", schema.DirectionLong, "SPXL"},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			router := NewRouter(Config{Mode: ModeLeveragedETF}, seededQuotes(t, true))
			decision, err := router.Route(context.Background(), schema.Signal{
				Ticker:    tc.ticker,
				Direction: tc.dir,
				Timeframe: schema.TimeframeDay,
				Price:     100,
			})
			if err != nil {
				t.Fatal(err)
			}
			if decision.Ticker != tc.want {
				t.Fatalf("ticker mismatch: got %s want %s", decision.Ticker, tc.want)
			}
			// Inverse entries are bought, never shorted.
			if decision.Direction != schema.DirectionLong {
				t.Fatalf("leveraged decision should be long, got %s", decision.Direction)
			}
			if decision.MaxHoldDays == 0 {
				t.Fatal("max hold days should be stamped")
			}
		})
	}
}

func TestIlliquidETFFallsBackToEquity(t *testing.T) {
	router := NewRouter(Config{Mode: ModeLeveragedETF, MinAvgDailyVolume: 1_000_000}, seededQuotes(t, false))
	decision, err := router.Route(context.Background(), schema.Signal{
		Ticker:    "AAPL",
		Direction: schema.DirectionLong,
		Timeframe: schema.TimeframeDay,
		Price:     100,
	})
	if err != nil {
		t.Fatal(err)
	}
	if decision.Kind != schema.InstrumentStock {
		t.Fatalf("expected equity fallback, got %s", decision.Kind)
	}
	if decision.Fallback == "" {
		t.Fatal("fallback reason should be recorded")
	}
}

func TestOptionSynthesis(t *testing.T) {
	router := NewRouter(Config{Mode: ModeOptions}, seededQuotes(t, true))
	decision, err := router.Route(context.Background(), schema.Signal{
		Ticker:    "AAPL",
		Direction: schema.DirectionShort,
		Timeframe: schema.TimeframeScalp,
		Price:     100,
	})
	if err != nil {
		t.Fatal(err)
	}
	if decision.Option == nil {
		t.Fatal("option detail missing")
	}
	if decision.Option.Strike != 100 {
		t.Fatalf("strike mismatch: got %v", decision.Option.Strike)
	}
	if decision.Underlying != "AAPL" {
		t.Fatalf("underlying mismatch: got %s", decision.Underlying)
	}
	// Short signal buys the put side.
	if decision.Direction != schema.DirectionLong {
		t.Fatalf("option decision should be long, got %s", decision.Direction)
	}
}
