// Command paper drives synthetic signals through the full pipeline against
// the simulated broker. It exercises the same risk, sizing, routing, and
// validation path as live trading with no network dependency.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"path/filepath"
	"time"

	"main/internal/broker"
	"main/internal/exits"
	"main/internal/journal"
	"main/internal/market"
	"main/internal/obs"
	"main/internal/og"
	"main/internal/ops"
	"main/internal/pipeline"
	"main/internal/reconcile"
	"main/internal/risk"
	"main/internal/route"
	"main/internal/schema"
	"main/internal/sizing"
	"main/internal/state"
)

var dryRunTickers = []string{"AAPL", "MSFT", "NVDA", "TSLA", "AMZN"}

func main() {
	configPath := flag.String("config", "", "Path to JSON config (default: built-in dry-run config)")
	signalCount := flag.Int("signals", 10, "Number of synthetic signals to generate")
	signalInterval := flag.Duration("signal-interval", 0, "Delay between signals")
	tickCount := flag.Int("ticks", 20, "Exit-monitor passes to run after intake")
	drift := flag.Float64("drift", 0.2, "Per-tick price drift percent applied to quotes")
	seed := flag.Int64("seed", 1, "Random seed for reproducible runs")
	stateDir := flag.String("state-dir", "testdata/paper", "Directory for state and journal output")
	flag.Parse()

	if *signalCount <= 0 {
		log.Fatalf("signals must be > 0")
	}

	cfg, err := loadConfig(*configPath, *stateDir)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx := context.Background()
	// The clock is pinned mid-session so runs behave the same at any wall time.
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatalf("timezone load failed: %v", err)
	}
	sessionNow := time.Date(2026, 8, 24, 10, 30, 0, 0, loc)
	clock, err := market.NewClockAt(cfg.Timezone, func() time.Time { return sessionNow })
	if err != nil {
		log.Fatalf("clock init failed: %v", err)
	}

	paper := broker.NewPaper()
	rng := rand.New(rand.NewSource(*seed))
	prices := make(map[string]float64, len(dryRunTickers))
	for _, ticker := range dryRunTickers {
		prices[ticker] = 50 + rng.Float64()*450
		paper.SetPrice(ticker, prices[ticker])
	}

	fileSink, err := journal.NewFileSink(cfg.Journal.File)
	if err != nil {
		log.Fatalf("journal init failed: %v", err)
	}
	if err := fileSink.Start(ctx); err != nil {
		log.Fatalf("journal start failed: %v", err)
	}
	jnl := journal.New(fileSink)
	defer func() {
		if err := jnl.Close(); err != nil {
			log.Printf("journal close failed: %v", err)
		}
	}()

	monitor, err := exits.NewMonitor(cfg.Exits, clock)
	if err != nil {
		log.Fatalf("exit monitor init failed: %v", err)
	}

	orch, err := pipeline.New(cfg.Pipeline, pipeline.Deps{
		Gate:       risk.NewGate(cfg.Risk),
		Router:     route.NewRouter(cfg.Route, paper),
		Sizer:      sizing.NewSizer(cfg.Sizing),
		Orders:     og.NewRouter(cfg.Orders, paper, nil),
		Validator:  og.NewValidator(cfg.Validator),
		Monitor:    monitor,
		Reconciler: reconcile.New(cfg.Reconcile),
		Store:      state.NewStore(cfg.StatePath),
		Journal:    jnl,
		Metrics:    obs.NewMetrics(),
		Clock:      clock,
		Broker:     paper,
	})
	if err != nil {
		log.Fatalf("pipeline init failed: %v", err)
	}

	for i := 0; i < *signalCount; i++ {
		sig := syntheticSignal(rng, i, prices)
		if err := orch.ProcessSignal(ctx, sig); err != nil {
			log.Printf("signal %s failed: %v", sig.ID, err)
		}
		if *signalInterval > 0 && i < *signalCount-1 {
			time.Sleep(*signalInterval)
		}
	}
	entered := len(orch.Book().OpenPositions())

	for i := 0; i < *tickCount; i++ {
		for ticker, p := range prices {
			p *= 1 + (rng.Float64()*2-1)*(*drift)/100
			prices[ticker] = p
			paper.SetPrice(ticker, p)
		}
		orch.Tick(ctx)
	}

	if err := orch.Reconcile(ctx); err != nil {
		log.Printf("reconcile failed: %v", err)
	}

	st := orch.Book().State()
	log.Printf("dry run completed: signals=%d entered=%d open=%d daily_pnl=%.2f trades=%d",
		*signalCount, entered, len(st.Positions), st.DailyPnL, st.DailyTrades)
}

func syntheticSignal(rng *rand.Rand, n int, prices map[string]float64) schema.Signal {
	ticker := dryRunTickers[rng.Intn(len(dryRunTickers))]
	price := prices[ticker]
	dir := schema.DirectionLong
	if rng.Intn(2) == 1 {
		dir = schema.DirectionShort
	}
	timeframe := schema.TimeframeSwing
	if rng.Intn(2) == 1 {
		timeframe = schema.TimeframeDay
	}

	stopDist := price * (0.5 + rng.Float64()) / 100
	targetDist := stopDist * (1.5 + rng.Float64())
	stop, target := price-stopDist, price+targetDist
	if dir == schema.DirectionShort {
		stop, target = price+stopDist, price-targetDist
	}
	return schema.Signal{
		ID:          fmt.Sprintf("dry-%04d", n),
		Ticker:      ticker,
		Direction:   dir,
		Conviction:  40 + rng.Intn(61),
		Timeframe:   timeframe,
		Price:       price,
		StopLoss:    stop,
		TargetPrice: target,
	}
}

func loadConfig(path, stateDir string) (ops.Loaded, error) {
	if path != "" {
		return ops.Load(path)
	}
	cfg := ops.FileConfig{
		StatePath: filepath.Join(stateDir, "state.json"),
	}
	cfg.Journal.File.Dir = filepath.Join(stateDir, "journal")
	cfg.Route.Mode = route.ModeBoth
	return ops.FromFileConfig(cfg)
}
