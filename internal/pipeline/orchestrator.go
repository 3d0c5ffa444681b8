package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	yerrors "github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/broker"
	"main/internal/exits"
	"main/internal/journal"
	"main/internal/market"
	"main/internal/obs"
	"main/internal/og"
	"main/internal/reconcile"
	"main/internal/risk"
	"main/internal/route"
	"main/internal/schema"
	"main/internal/sizing"
	"main/internal/state"
)

// Options holds the orchestrator's own knobs; component limits live in each
// component's config.
type Options struct {
	TickInterval         time.Duration `json:"tickInterval"`
	DedupeWindow         time.Duration `json:"dedupeWindow"`
	CloseDayTradesOnKill bool          `json:"closeDayTradesOnKill"`
}

func (o Options) withDefaults() Options {
	if o.TickInterval <= 0 {
		o.TickInterval = 5 * time.Second
	}
	if o.DedupeWindow <= 0 {
		o.DedupeWindow = 5 * time.Minute
	}
	return o
}

// Deps collects the pipeline collaborators.
type Deps struct {
	Gate       *risk.Gate
	Router     *route.Router
	Sizer      *sizing.Sizer
	Orders     *og.Router
	Validator  *og.Validator
	Monitor    *exits.Monitor
	Reconciler *reconcile.Reconciler
	Store      *state.Store
	Journal    *journal.Journal
	Metrics    *obs.Metrics
	Clock      *market.Clock
	Broker     broker.Client
}

// Orchestrator is the single externally-callable entry into the pipeline.
// ProcessSignal is the critical section; exit monitoring and reconciliation
// share the Book's mutex so position mutations never interleave.
type Orchestrator struct {
	opt  Options
	book *Book

	gate       atomic.Pointer[risk.Gate]
	router     *route.Router
	sizer      *sizing.Sizer
	orders     *og.Router
	validator  *og.Validator
	monitor    *exits.Monitor
	reconciler *reconcile.Reconciler
	store      *state.Store
	jnl        *journal.Journal
	metrics    *obs.Metrics
	clock      *market.Clock
	broker     broker.Client

	// Guarded by book.mu.
	pending      map[string]schema.Direction
	seen         map[string]time.Time
	lastBrokerOK time.Time

	paused  atomic.Bool
	stopped atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New recovers persisted state and builds the pipeline around it.
func New(opt Options, deps Deps) (*Orchestrator, error) {
	st, err := deps.Store.Load()
	if err != nil {
		return nil, yerrors.Wrap(err, "recover persisted state")
	}
	now := deps.Clock.Now()
	rolled := state.RolloverIfNewDay(st, deps.Clock.TradingDate(now))
	if rolled.LastTradeDate != st.LastTradeDate {
		if err := deps.Store.Save(rolled); err != nil {
			return nil, yerrors.Wrap(err, "persist day rollover")
		}
		st = rolled
	}

	o := &Orchestrator{
		opt:        opt.withDefaults(),
		book:       newBook(st),
		router:     deps.Router,
		sizer:      deps.Sizer,
		orders:     deps.Orders,
		validator:  deps.Validator,
		monitor:    deps.Monitor,
		reconciler: deps.Reconciler,
		store:      deps.Store,
		jnl:        deps.Journal,
		metrics:    deps.Metrics,
		clock:      deps.Clock,
		broker:     deps.Broker,
		pending:    make(map[string]schema.Direction),
		seen:       make(map[string]time.Time),
	}
	o.gate.Store(deps.Gate)
	return o, nil
}

// Book exposes read-only snapshots for the control surface.
func (o *Orchestrator) Book() *Book {
	return o.book
}

// SetRiskLimits swaps the risk gate. Signals already past validation keep
// the limits they were checked against.
func (o *Orchestrator) SetRiskLimits(cfg risk.Config) {
	o.gate.Store(risk.NewGate(cfg))
	logs.Infof("risk limits reloaded")
}

// Start launches the exit-monitor and reconciliation loops.
func (o *Orchestrator) Start(ctx context.Context) {
	ctx, o.cancel = context.WithCancel(ctx)

	o.wg.Add(2)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(o.opt.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.tick(ctx)
			}
		}
	}()
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(o.reconciler.Interval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := o.Reconcile(ctx); err != nil {
					logs.Errorf("reconciliation cycle failed: %+v", err)
				}
			}
		}
	}()
	logs.Infof("pipeline started")
}

// Tick runs one exit-monitor pass on demand.
func (o *Orchestrator) Tick(ctx context.Context) {
	o.tick(ctx)
}

// Stop halts the background loops and waits for them to drain.
func (o *Orchestrator) Stop() {
	o.stopped.Store(true)
	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
	logs.Infof("pipeline stopped")
}

// Pause suspends signal intake; exit monitoring keeps running.
func (o *Orchestrator) Pause() {
	o.paused.Store(true)
	logs.Infof("signal intake paused")
}

// Resume re-enables signal intake.
func (o *Orchestrator) Resume() {
	o.paused.Store(false)
	logs.Infof("signal intake resumed")
}

// Paused reports whether intake is suspended.
func (o *Orchestrator) Paused() bool {
	return o.paused.Load()
}

// ProcessSignal runs the full risk-check, size, route, submit, validate,
// register sequence for one signal. Broker I/O happens outside the lock;
// results are committed store-first.
func (o *Orchestrator) ProcessSignal(ctx context.Context, signal schema.Signal) error {
	if o.stopped.Load() || o.paused.Load() {
		logs.Warnf("signal %s dropped: pipeline not accepting intake", signal.ID)
		return nil
	}
	done := o.metrics.TimeSignal()
	defer done()

	account, err := o.broker.GetAccount(ctx)
	if err != nil {
		return yerrors.Wrap(err, "refresh account").With("signalId", signal.ID)
	}
	now := o.clock.Now()

	decision, acctView, proceed, err := o.admit(signal, account, now)
	if err != nil || !proceed {
		return err
	}
	defer o.clearPending(signal.Ticker)

	inst, err := o.router.Route(ctx, signal)
	if err != nil {
		return yerrors.Wrap(err, "route instrument").With("ticker", signal.Ticker)
	}
	qty := o.sizer.Size(signal, inst, decision, acctView)
	if qty <= 0 {
		o.metrics.ObserveRejection(schema.RiskReasonConviction)
		o.journalRejection(signal, schema.RiskReasonConviction)
		return nil
	}

	order := schema.Order{
		Ticker:      inst.Ticker,
		Side:        schema.SideFor(inst.Direction, false),
		Qty:         qty,
		Type:        schema.OrderTypeMarket,
		TimeInForce: schema.TimeInForceDay,
	}
	submitStart := time.Now()
	outcome, err := o.orders.Submit(ctx, order)
	o.metrics.SubmitLatency.Observe(time.Since(submitStart).Seconds())
	o.metrics.OrderRetries.Add(float64(len(outcome.Retries)))
	if err != nil {
		o.metrics.SignalsTotal.WithLabelValues("routing_error").Inc()
		return yerrors.Wrap(err, "submit order").With("ticker", order.Ticker)
	}
	o.noteBrokerOK()
	o.metrics.OrdersTotal.WithLabelValues(outcome.Broker, string(outcome.Result.Status)).Inc()

	vr := o.validator.ValidateFill(order, outcome.Result, inst.RefPrice)
	if !vr.Valid {
		o.metrics.SignalsTotal.WithLabelValues("validation_failed").Inc()
		logs.Warnf("fill for %s rejected: %s", order.Ticker, vr.Reason)
		if err := o.jnl.Append(journal.Record{
			Type:   journal.RecordValidation,
			Signal: &signal,
			Order:  &order,
			Result: &outcome.Result,
			Reason: vr.Reason,
		}); err != nil {
			o.metrics.JournalFailures.Inc()
		}
		return nil
	}

	pos, err := o.validator.BuildPosition(signal, inst, outcome.Result, vr)
	if err != nil {
		return err
	}
	if err := o.register(pos); err != nil {
		// The fill exists at the broker; the reconciler will import it as an
		// orphan on the next cycle.
		return yerrors.Wrap(err, "persist entry").With("positionId", pos.ID)
	}

	o.metrics.SignalsTotal.WithLabelValues("filled").Inc()
	o.observeAccountGauges()
	if err := o.jnl.Append(journal.Record{
		Type:     journal.RecordEntry,
		Signal:   &signal,
		Position: &pos,
		Order:    &order,
		Result:   &outcome.Result,
	}); err != nil {
		o.metrics.JournalFailures.Inc()
	}
	logs.Infof("entered %s %s x%v @ %v (signal %s)", pos.Direction, pos.Ticker, pos.Quantity, pos.EntryPrice, signal.ID)
	return nil
}

// admit holds the lock for the pre-trade checks: day rollover, kill switch,
// circuit breaker, automatic trip evaluation, and the risk gate. On approval
// the signal's ticker is marked pending.
func (o *Orchestrator) admit(signal schema.Signal, account schema.AccountState, now time.Time) (schema.RiskDecision, schema.AccountState, bool, error) {
	o.book.mu.Lock()

	rolled := state.RolloverIfNewDay(o.book.state, o.clock.TradingDate(now))
	if rolled.LastTradeDate != o.book.state.LastTradeDate {
		st := rolled
		st.Positions = o.book.openLocked()
		if err := o.store.Save(st); err != nil {
			o.book.mu.Unlock()
			return schema.RiskDecision{}, schema.AccountState{}, false, yerrors.Wrap(err, "persist day rollover")
		}
		o.book.state = rolled
	}

	if o.book.state.KillSwitchActive {
		o.book.mu.Unlock()
		o.metrics.ObserveRejection(schema.RiskReasonKillSwitch)
		o.journalRejection(signal, schema.RiskReasonKillSwitch)
		return schema.RiskDecision{}, schema.AccountState{}, false, nil
	}
	if risk.CircuitOpen(o.book.state, now) {
		o.book.mu.Unlock()
		o.metrics.ObserveRejection(schema.RiskReasonCircuitBreaker)
		o.journalRejection(signal, schema.RiskReasonCircuitBreaker)
		return schema.RiskDecision{}, schema.AccountState{}, false, nil
	}

	gate := o.gate.Load()
	if trip, reason := gate.ShouldTrip(o.book.state, account, o.lastBrokerOK, now); trip {
		if err := o.activateKillLocked(string(reason)); err != nil {
			o.book.mu.Unlock()
			return schema.RiskDecision{}, schema.AccountState{}, false, err
		}
		o.book.mu.Unlock()
		o.metrics.ObserveRejection(reason)
		o.journalRejection(signal, reason)
		return schema.RiskDecision{}, schema.AccountState{}, false, nil
	}

	o.book.account = account
	acctView := account
	acctView.OpenPositions = o.book.openLocked()
	acctView.DailyPnL = o.book.state.DailyPnL
	acctView.DailyTrades = o.book.state.DailyTrades

	view := risk.View{
		DuplicateSignal:   o.duplicateLocked(signal, now),
		OppositePending:   o.pending[signal.Ticker] == signal.Direction.Opposite(),
		MarketOpen:        o.clock.IsOpen(now),
		Sector:            route.SectorOf(signal.Ticker),
		SectorExposurePct: o.sectorExposureLocked(signal.Ticker, acctView.Equity),
	}
	o.seen[signal.ID] = now

	decision := gate.Validate(signal, acctView, view)
	if !decision.Approved {
		o.book.mu.Unlock()
		o.metrics.ObserveRejection(decision.Reason)
		o.journalRejection(signal, decision.Reason)
		return decision, acctView, false, nil
	}

	o.pending[signal.Ticker] = signal.Direction
	o.book.mu.Unlock()
	return decision, acctView, true, nil
}

// register commits a new position store-first. A failed save leaves the
// in-memory book untouched.
func (o *Orchestrator) register(pos schema.Position) error {
	o.book.mu.Lock()
	defer o.book.mu.Unlock()

	st := o.book.stateWithPositionsLocked()
	st.Positions = append(st.Positions, pos)
	st.DailyTrades++
	if err := o.store.Save(st); err != nil {
		return err
	}
	o.book.state.DailyTrades++
	o.book.positions[pos.ID] = pos
	return nil
}

func (o *Orchestrator) clearPending(ticker string) {
	o.book.mu.Lock()
	delete(o.pending, ticker)
	o.book.mu.Unlock()
}

func (o *Orchestrator) noteBrokerOK() {
	o.book.mu.Lock()
	o.lastBrokerOK = o.clock.Now()
	o.book.mu.Unlock()
}

func (o *Orchestrator) duplicateLocked(signal schema.Signal, now time.Time) bool {
	if t, ok := o.seen[signal.ID]; ok && now.Sub(t) < o.opt.DedupeWindow {
		return true
	}
	if dir, ok := o.pending[signal.Ticker]; ok && dir == signal.Direction {
		return true
	}
	for id, t := range o.seen {
		if now.Sub(t) >= o.opt.DedupeWindow {
			delete(o.seen, id)
		}
	}
	return false
}

func (o *Orchestrator) sectorExposureLocked(ticker string, equity float64) float64 {
	sector := route.SectorOf(ticker)
	if sector == "" || equity <= 0 {
		return 0
	}
	total := 0.0
	for _, p := range o.book.positions {
		underlying := p.Ticker
		if p.Leveraged != nil {
			underlying = p.Leveraged.OriginalTicker
		}
		if route.SectorOf(underlying) == sector {
			total += p.CurrentPrice * p.Quantity
		}
	}
	return total / equity * 100
}

func (o *Orchestrator) journalRejection(signal schema.Signal, reason schema.RiskReason) {
	if err := o.jnl.Append(journal.Record{
		Type:   journal.RecordRejection,
		Signal: &signal,
		Reason: string(reason),
	}); err != nil {
		o.metrics.JournalFailures.Inc()
	}
}

func (o *Orchestrator) observeAccountGauges() {
	o.book.mu.Lock()
	account := o.book.account
	account.DailyPnL = o.book.state.DailyPnL
	open := len(o.book.positions)
	kill := o.book.state.KillSwitchActive
	o.book.mu.Unlock()
	o.metrics.ObserveAccount(account, open, kill)
}
