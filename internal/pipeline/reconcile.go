package pipeline

import (
	"context"

	"github.com/google/uuid"
	yerrors "github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/journal"
	"main/internal/reconcile"
	"main/internal/schema"
)

// Reconcile runs one drift-detection cycle against the broker. Corrective
// actions mutate the book under its lock; orphan closes at the broker go
// through the regular order path afterwards.
func (o *Orchestrator) Reconcile(ctx context.Context) error {
	brokerPositions, err := o.broker.GetPositions(ctx)
	if err != nil {
		report := schema.ReconciliationReport{
			Timestamp:   o.clock.Now(),
			FinalStatus: schema.ReconcileFailed,
		}
		o.journalReport(report)
		return yerrors.Wrap(err, "fetch broker positions")
	}
	o.noteBrokerOK()
	now := o.clock.Now()

	o.book.mu.Lock()
	// A ticker with an order in flight may already be filled at the broker
	// but not yet registered locally. Leaving it in the snapshot would import
	// it as an orphan and then register the fill a second time.
	if len(o.pending) > 0 {
		settled := brokerPositions[:0:0]
		for _, p := range brokerPositions {
			if _, inFlight := o.pending[p.Ticker]; inFlight {
				continue
			}
			settled = append(settled, p)
		}
		brokerPositions = settled
	}
	report, actions := o.reconciler.Reconcile(o.book.openLocked(), brokerPositions, now)
	var closeAtBroker []schema.Position
	if len(actions) > 0 {
		closeAtBroker, err = o.applyActionsLocked(actions)
		if err != nil {
			o.book.mu.Unlock()
			report.FinalStatus = schema.ReconcileFailed
			o.journalReport(report)
			return err
		}
	}
	o.book.mu.Unlock()

	o.metrics.Discrepancies.WithLabelValues("ghost").Add(float64(len(report.Ghosts)))
	o.metrics.Discrepancies.WithLabelValues("orphan").Add(float64(len(report.Orphans)))
	o.metrics.Discrepancies.WithLabelValues("quantity").Add(float64(len(report.QuantityMismatches)))
	o.metrics.Discrepancies.WithLabelValues("direction").Add(float64(len(report.DirectionMismatches)))
	o.journalReport(report)
	if !report.Clean() {
		logs.Warnf("reconciliation found drift: %d ghosts, %d orphans, %d qty, %d direction",
			len(report.Ghosts), len(report.Orphans), len(report.QuantityMismatches), len(report.DirectionMismatches))
	}

	for _, pos := range closeAtBroker {
		d := o.monitor.ForceClose(pos, schema.ExitReconcile)
		if err := o.executeExit(ctx, *d); err != nil {
			logs.Errorf("reconciliation close of %s failed: %+v", pos.Ticker, err)
		}
	}
	return nil
}

// applyActionsLocked applies the corrective actions to a scratch copy of the
// position set, persists it, and only then commits to memory. Called with
// book.mu held.
func (o *Orchestrator) applyActionsLocked(actions []reconcile.Action) ([]schema.Position, error) {
	next := make(map[string]schema.Position, len(o.book.positions))
	for id, p := range o.book.positions {
		next[id] = p
	}
	idByTicker := make(map[string]string, len(next))
	for id, p := range next {
		idByTicker[p.Ticker] = id
	}

	var closeAtBroker []schema.Position
	for _, a := range actions {
		switch a.Kind {
		case reconcile.ActionDropLocal:
			if id, ok := idByTicker[a.Ticker]; ok {
				delete(next, id)
				o.monitor.Forget(id)
			}
		case reconcile.ActionImport:
			imported := *a.Broker
			if imported.ID == "" {
				imported.ID = uuid.New().String()
			}
			next[imported.ID] = imported
			idByTicker[imported.Ticker] = imported.ID
		case reconcile.ActionCloseBroker:
			closeAtBroker = append(closeAtBroker, *a.Broker)
		case reconcile.ActionSetQty:
			if id, ok := idByTicker[a.Ticker]; ok {
				p := next[id]
				p.Quantity = a.Qty
				next[id] = p
			}
		case reconcile.ActionSetDirection:
			if id, ok := idByTicker[a.Ticker]; ok {
				p := next[id]
				p.Direction = a.Direction
				p.Quantity = a.Qty
				next[id] = p
			}
		case reconcile.ActionSetCostBasis:
			if id, ok := idByTicker[a.Ticker]; ok {
				p := next[id]
				p.EntryPrice = a.Price
				next[id] = p
			}
		}
	}

	st := o.book.state
	st.Positions = make([]schema.Position, 0, len(next))
	for _, p := range next {
		st.Positions = append(st.Positions, p)
	}
	if err := o.store.Save(st); err != nil {
		return nil, yerrors.Wrap(err, "persist reconciled positions")
	}
	o.book.positions = next
	return closeAtBroker, nil
}

func (o *Orchestrator) journalReport(report schema.ReconciliationReport) {
	if err := o.jnl.Append(journal.Record{
		Type:   journal.RecordReconciliation,
		Report: &report,
	}); err != nil {
		o.metrics.JournalFailures.Inc()
	}
}
