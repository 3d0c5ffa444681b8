package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/joho/godotenv"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/broker"
	"main/internal/bus"
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

func main() {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	configReload := flag.Duration("config-reload-interval", 2*time.Second, "Risk-limit reload interval (0=disable)")
	queueSize := flag.Int("queue-size", 1024, "Inbound signal queue capacity")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("load .env failed: %v", err)
	}

	cfg, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Profile.ServerAddress != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: cfg.Profile.AppName,
			ServerAddress:   cfg.Profile.ServerAddress,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() { _ = profiler.Stop() }()
	}

	clock, err := market.NewClock(cfg.Timezone)
	if err != nil {
		log.Fatalf("clock init failed: %v", err)
	}

	primary, err := broker.New(cfg.Brokers.Primary)
	if err != nil {
		log.Fatalf("primary broker init failed: %v", err)
	}
	if err := primary.Connect(ctx); err != nil {
		log.Fatalf("primary broker connect failed: %v", err)
	}
	var secondary broker.Client
	if cfg.Brokers.Secondary != nil {
		secondary, err = broker.New(*cfg.Brokers.Secondary)
		if err != nil {
			log.Fatalf("secondary broker init failed: %v", err)
		}
		if err := secondary.Connect(ctx); err != nil {
			logs.Warnf("secondary broker connect failed, fallback unavailable: %+v", err)
		}
	}

	jnl, closeJournal, err := buildJournal(ctx, cfg.Journal)
	if err != nil {
		log.Fatalf("journal init failed: %v", err)
	}
	defer closeJournal()

	monitor, err := exits.NewMonitor(cfg.Exits, clock)
	if err != nil {
		log.Fatalf("exit monitor init failed: %v", err)
	}

	metrics := obs.NewMetrics()
	orch, err := pipeline.New(cfg.Pipeline, pipeline.Deps{
		Gate:       risk.NewGate(cfg.Risk),
		Router:     route.NewRouter(cfg.Route, primary),
		Sizer:      sizing.NewSizer(cfg.Sizing),
		Orders:     og.NewRouter(cfg.Orders, primary, secondary),
		Validator:  og.NewValidator(cfg.Validator),
		Monitor:    monitor,
		Reconciler: reconcile.New(cfg.Reconcile),
		Store:      state.NewStore(cfg.StatePath),
		Journal:    jnl,
		Metrics:    metrics,
		Clock:      clock,
		Broker:     primary,
	})
	if err != nil {
		log.Fatalf("pipeline init failed: %v", err)
	}
	orch.Start(ctx)

	queue := bus.NewQueue(*queueSize)
	go queue.Run(ctx, func(s schema.Signal) {
		if err := orch.ProcessSignal(ctx, s); err != nil {
			logs.Errorf("signal %s failed: %+v", s.ID, err)
		}
	})

	if *configReload > 0 {
		go watchRiskLimits(ctx, *configPath, *configReload, orch)
	}

	srv := newServer(cfg.Serve.Addr, orch, queue, metrics)
	go func() {
		if err := srv.run(); err != nil {
			logs.Errorf("control server stopped: %+v", err)
		}
	}()
	logs.Infof("trader up: broker=%s serve=%s state=%s", primary.Name(), cfg.Serve.Addr, cfg.StatePath)

	<-sys.Shutdown()
	logs.Infof("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.stop(shutdownCtx)
	queue.Close()
	orch.Stop()
	cancel()
}

// buildJournal assembles the file sink plus the optional postgres sink.
func buildJournal(ctx context.Context, cfg ops.JournalConfig) (*journal.Journal, func(), error) {
	fileSink, err := journal.NewFileSink(cfg.File)
	if err != nil {
		return nil, nil, err
	}
	if err := fileSink.Start(ctx); err != nil {
		return nil, nil, err
	}
	sinks := []journal.Sink{fileSink}
	if cfg.Postgres != nil {
		pgSink, err := journal.NewPGSink(*cfg.Postgres)
		if err != nil {
			_ = fileSink.Close()
			return nil, nil, err
		}
		sinks = append(sinks, pgSink)
	}
	jnl := journal.New(sinks...)
	return jnl, func() {
		if err := jnl.Close(); err != nil {
			logs.Errorf("journal close failed: %+v", err)
		}
	}, nil
}

// watchRiskLimits re-reads the risk section when the config file changes and
// hot-swaps the gate. Other sections require a restart.
func watchRiskLimits(ctx context.Context, path string, interval time.Duration, orch *pipeline.Orchestrator) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastMod time.Time
	if info, err := os.Stat(path); err == nil {
		lastMod = info.ModTime()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				logs.Warnf("config stat failed: %+v", err)
				continue
			}
			if !info.ModTime().After(lastMod) {
				continue
			}
			riskCfg, err := ops.LoadRiskLimits(path)
			if err != nil {
				logs.Warnf("risk limit reload failed, keeping previous limits: %+v", err)
				continue
			}
			orch.SetRiskLimits(riskCfg)
			lastMod = info.ModTime()
		}
	}
}
