package pipeline

import (
	"context"
	"time"

	yerrors "github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/journal"
	"main/internal/schema"
)

// tick runs one exit-monitor pass: refresh quotes outside the lock, evaluate
// the trigger ladder under it, then execute any decisions with the lock
// released again.
func (o *Orchestrator) tick(ctx context.Context) {
	positions := o.book.OpenPositions()
	if len(positions) == 0 {
		return
	}

	closes := make(map[string]float64, len(positions))
	for _, pos := range positions {
		if _, ok := closes[pos.Ticker]; ok {
			continue
		}
		q, err := o.broker.GetQuote(ctx, pos.Ticker)
		if err != nil {
			logs.Warnf("quote for %s unavailable this tick: %+v", pos.Ticker, err)
			continue
		}
		closes[pos.Ticker] = q.Mid()
	}
	if len(closes) > 0 {
		o.noteBrokerOK()
	}

	now := o.clock.Now()
	o.book.mu.Lock()
	var decisions []schema.ExitDecision
	for id, pos := range o.book.positions {
		c, ok := closes[pos.Ticker]
		if !ok || c <= 0 {
			continue
		}
		pos.CurrentPrice = c
		o.book.positions[id] = pos
		if d := o.monitor.Check(pos, c, now); d != nil {
			decisions = append(decisions, *d)
		}
	}
	o.book.mu.Unlock()

	for _, d := range decisions {
		if err := o.executeExit(ctx, d); err != nil {
			logs.Errorf("exit %s for position %s failed: %+v", d.Trigger, d.PositionID, err)
		}
	}
}

// executeExit routes the close order through the same submit and validation
// path as entries. The position leaves the open set only after its exit fill
// validates and the updated state is persisted.
func (o *Orchestrator) executeExit(ctx context.Context, d schema.ExitDecision) error {
	// Broker-only orphans being closed per policy are not in the book; their
	// close order is still submitted and journaled.
	o.book.mu.Lock()
	pos, tracked := o.book.positions[d.PositionID]
	o.book.mu.Unlock()

	outcome, err := o.orders.Submit(ctx, d.Order)
	o.metrics.OrderRetries.Add(float64(len(outcome.Retries)))
	if err != nil {
		return yerrors.Wrap(err, "submit exit order").With("ticker", d.Order.Ticker)
	}
	o.metrics.OrdersTotal.WithLabelValues(outcome.Broker, string(outcome.Result.Status)).Inc()

	expected := 0.0
	if tracked {
		expected = pos.CurrentPrice
	}
	vr := o.validator.ValidateFill(d.Order, outcome.Result, expected)
	if !vr.Valid {
		logs.Warnf("exit fill for %s rejected: %s", d.Order.Ticker, vr.Reason)
		if err := o.jnl.Append(journal.Record{
			Type:    journal.RecordValidation,
			Order:   &d.Order,
			Result:  &outcome.Result,
			Trigger: d.Trigger,
			Reason:  vr.Reason,
		}); err != nil {
			o.metrics.JournalFailures.Inc()
		}
		return nil
	}

	closed, pnl := pos, 0.0
	if !tracked {
		closed = schema.Position{ID: d.PositionID, Ticker: d.Order.Ticker}
	}
	if tracked {
		o.book.mu.Lock()
		closed, pnl, err = o.closePositionLocked(d, outcome.Result)
		o.book.mu.Unlock()
		if err != nil {
			return err
		}
	}

	o.metrics.ObserveExit(d.Trigger)
	o.observeAccountGauges()
	if err := o.jnl.Append(journal.Record{
		Type:     journal.RecordExit,
		Position: &closed,
		Order:    &d.Order,
		Result:   &outcome.Result,
		Trigger:  d.Trigger,
		PnL:      pnl,
	}); err != nil {
		o.metrics.JournalFailures.Inc()
	}
	logs.Infof("exited %s via %s, pnl %.2f", closed.Ticker, d.Trigger, pnl)
	return nil
}

// closePositionLocked books the realized result and removes the position.
// It is the private close path: callers hold book.mu, and it never
// re-acquires the lock, so exits triggered from inside signal processing
// cannot deadlock.
func (o *Orchestrator) closePositionLocked(d schema.ExitDecision, res schema.OrderResult) (schema.Position, float64, error) {
	pos, ok := o.book.positions[d.PositionID]
	if !ok {
		return schema.Position{}, 0, nil
	}

	pnl := realizedPnL(pos, res.FilledPrice)
	gate := o.gate.Load()

	st := o.book.state
	st.DailyPnL += pnl
	switch {
	case gate.QualifiesAsStreakLoss(pnl):
		st.ConsecutiveLosses++
	case pnl > 0:
		st.ConsecutiveLosses = 0
	}

	cfg := gate.Config()
	if st.ConsecutiveLosses >= cfg.ConsecutiveLossLimit && !st.CircuitBreakerOpen {
		st.CircuitBreakerOpen = true
		st.CircuitBreakerUntil = o.clock.Now().Add(cfg.CircuitBreakerCooldown)
		logs.Warnf("circuit breaker opened after %d consecutive losses", st.ConsecutiveLosses)
	}
	if cfg.DailyLossLimit > 0 && st.DailyPnL <= -cfg.DailyLossLimit && !st.KillSwitchActive {
		st.KillSwitchActive = true
		st.KillSwitchReason = string(schema.RiskReasonDailyLoss)
		logs.Errorf("kill switch: daily loss %.2f breached limit %.2f", st.DailyPnL, cfg.DailyLossLimit)
	}

	st.Positions = removeByID(o.book.openLocked(), pos.ID)
	if err := o.store.Save(st); err != nil {
		return schema.Position{}, 0, yerrors.Wrap(err, "persist exit").With("positionId", pos.ID)
	}

	st.Positions = nil
	o.book.state = st
	delete(o.book.positions, pos.ID)
	o.monitor.Forget(pos.ID)
	return pos, pnl, nil
}

// Kill activates the kill switch. New entries are blocked; exit monitoring
// keeps running, and day-trade positions are force-closed when configured.
func (o *Orchestrator) Kill(ctx context.Context, reason string) error {
	o.book.mu.Lock()
	err := o.activateKillLocked(reason)
	o.book.mu.Unlock()
	if err != nil {
		return err
	}

	o.metrics.KillSwitchOn.Set(1)
	if err := o.jnl.Append(journal.Record{
		Type:   journal.RecordKillSwitch,
		Reason: reason,
	}); err != nil {
		o.metrics.JournalFailures.Inc()
	}
	logs.Errorf("kill switch activated: %s", reason)

	if !o.opt.CloseDayTradesOnKill {
		return nil
	}
	for _, pos := range o.book.OpenPositions() {
		if pos.TradeType != schema.TradeTypeDay {
			continue
		}
		d := o.monitor.ForceClose(pos, schema.ExitKillSwitch)
		if err := o.executeExit(ctx, *d); err != nil {
			logs.Errorf("kill-switch close of %s failed: %+v", pos.Ticker, err)
		}
	}
	return nil
}

// activateKillLocked persists the flag before flipping it in memory. Called
// with book.mu held.
func (o *Orchestrator) activateKillLocked(reason string) error {
	if o.book.state.KillSwitchActive {
		return nil
	}
	st := o.book.stateWithPositionsLocked()
	st.KillSwitchActive = true
	st.KillSwitchReason = reason
	if err := o.store.Save(st); err != nil {
		return yerrors.Wrap(err, "persist kill switch")
	}
	o.book.state.KillSwitchActive = true
	o.book.state.KillSwitchReason = reason
	return nil
}

// ClearKill resets the kill switch and the circuit breaker. This is the
// explicit operator reset; day rollover never clears either.
func (o *Orchestrator) ClearKill() error {
	o.book.mu.Lock()
	defer o.book.mu.Unlock()

	st := o.book.stateWithPositionsLocked()
	st.KillSwitchActive = false
	st.KillSwitchReason = ""
	st.CircuitBreakerOpen = false
	st.CircuitBreakerUntil = time.Time{}
	if err := o.store.Save(st); err != nil {
		return yerrors.Wrap(err, "persist kill switch reset")
	}
	o.book.state.KillSwitchActive = false
	o.book.state.KillSwitchReason = ""
	o.book.state.CircuitBreakerOpen = false
	o.book.state.CircuitBreakerUntil = time.Time{}
	o.metrics.KillSwitchOn.Set(0)
	logs.Infof("kill switch cleared")
	return nil
}

func realizedPnL(pos schema.Position, exitPrice float64) float64 {
	diff := exitPrice - pos.EntryPrice
	if pos.Direction == schema.DirectionShort {
		diff = -diff
	}
	return diff * pos.Quantity
}

func removeByID(positions []schema.Position, id string) []schema.Position {
	out := positions[:0]
	for _, p := range positions {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}
