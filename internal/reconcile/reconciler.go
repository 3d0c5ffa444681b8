// Package reconcile detects drift between the locally tracked position set
// and what the broker reports. It classifies each divergence, decides the
// corrective action per policy, and emits an immutable report per cycle. The
// caller runs it under the same lock that guards signal-driven position
// mutations, so reconciliation and trading never interleave on a position.
package reconcile

import (
	"fmt"
	"math"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/schema"
)

// OrphanPolicy selects what happens to broker-only positions.
type OrphanPolicy string

const (
	OrphanImport OrphanPolicy = "import"
	OrphanClose  OrphanPolicy = "close"
)

// Config holds the reconciliation policy.
type Config struct {
	Interval      time.Duration `json:"interval"`
	BrokerIsTruth bool          `json:"brokerIsTruth"`
	OrphanPolicy  OrphanPolicy  `json:"orphanPolicy"`
	PriceDriftPct float64       `json:"priceDriftPct"`
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 300 * time.Second
	}
	if c.OrphanPolicy == "" {
		c.OrphanPolicy = OrphanImport
	}
	if c.PriceDriftPct <= 0 {
		c.PriceDriftPct = 1.0
	}
	return c
}

// ActionKind is a corrective step the orchestrator applies.
type ActionKind string

const (
	ActionDropLocal    ActionKind = "drop_local"
	ActionImport       ActionKind = "import"
	ActionCloseBroker  ActionKind = "close_at_broker"
	ActionSetQty       ActionKind = "set_quantity"
	ActionSetDirection ActionKind = "set_direction"
	ActionSetCostBasis ActionKind = "set_cost_basis"
)

// Action is one corrective step against one position.
type Action struct {
	Kind      ActionKind
	Ticker    string
	Local     *schema.Position
	Broker    *schema.Position
	Qty       float64
	Direction schema.Direction
	Price     float64
}

// Reconciler compares local and broker position sets.
type Reconciler struct {
	cfg Config
}

// New creates a reconciler with the given policy.
func New(cfg Config) *Reconciler {
	return &Reconciler{cfg: cfg.withDefaults()}
}

// Interval returns the configured cycle period.
func (r *Reconciler) Interval() time.Duration {
	return r.cfg.Interval
}

const qtyEpsilon = 1e-9

// Reconcile classifies every divergence between the two sets and returns the
// cycle report alongside the actions the caller must apply. Positions are
// matched by ticker; with unchanged inputs and applied actions a second run
// reports no discrepancies.
func (r *Reconciler) Reconcile(local, broker []schema.Position, now time.Time) (schema.ReconciliationReport, []Action) {
	report := schema.ReconciliationReport{
		Timestamp:           now,
		Ghosts:              []string{},
		Orphans:             []string{},
		QuantityMismatches:  []schema.Mismatch{},
		DirectionMismatches: []schema.Mismatch{},
		ActionsTaken:        []string{},
	}
	var actions []Action

	localByTicker := indexByTicker(local)
	brokerByTicker := indexByTicker(broker)
	unresolved := 0

	for i := range local {
		lp := &local[i]
		bp, ok := brokerByTicker[lp.Ticker]
		if !ok {
			report.Ghosts = append(report.Ghosts, lp.Ticker)
			actions = append(actions, Action{Kind: ActionDropLocal, Ticker: lp.Ticker, Local: lp})
			report.ActionsTaken = append(report.ActionsTaken,
				fmt.Sprintf("ghost %s: closed locally", lp.Ticker))
			logs.Warnf("ghost position %s: tracked locally, unknown to broker", lp.Ticker)
			continue
		}

		if lp.Direction != bp.Direction {
			report.DirectionMismatches = append(report.DirectionMismatches, schema.Mismatch{
				Ticker:    lp.Ticker,
				LocalQty:  lp.Quantity,
				BrokerQty: bp.Quantity,
				LocalDir:  lp.Direction,
				BrokerDir: bp.Direction,
			})
			if r.cfg.BrokerIsTruth {
				actions = append(actions, Action{
					Kind: ActionSetDirection, Ticker: lp.Ticker,
					Local: lp, Broker: bp, Direction: bp.Direction, Qty: bp.Quantity,
				})
				report.ActionsTaken = append(report.ActionsTaken,
					fmt.Sprintf("direction mismatch %s: adopted broker %s", lp.Ticker, bp.Direction))
			} else {
				unresolved++
				logs.Warnf("direction mismatch %s: local=%s broker=%s, escalated", lp.Ticker, lp.Direction, bp.Direction)
			}
			continue
		}

		if math.Abs(lp.Quantity-bp.Quantity) > qtyEpsilon {
			report.QuantityMismatches = append(report.QuantityMismatches, schema.Mismatch{
				Ticker:    lp.Ticker,
				LocalQty:  lp.Quantity,
				BrokerQty: bp.Quantity,
			})
			if r.cfg.BrokerIsTruth {
				actions = append(actions, Action{
					Kind: ActionSetQty, Ticker: lp.Ticker, Local: lp, Broker: bp, Qty: bp.Quantity,
				})
				report.ActionsTaken = append(report.ActionsTaken,
					fmt.Sprintf("quantity mismatch %s: %v -> %v", lp.Ticker, lp.Quantity, bp.Quantity))
			} else {
				unresolved++
				logs.Warnf("quantity mismatch %s: local=%v broker=%v, escalated", lp.Ticker, lp.Quantity, bp.Quantity)
			}
			continue
		}

		if drift := driftPct(lp.EntryPrice, bp.EntryPrice); drift > r.cfg.PriceDriftPct {
			actions = append(actions, Action{
				Kind: ActionSetCostBasis, Ticker: lp.Ticker, Local: lp, Broker: bp, Price: bp.EntryPrice,
			})
			report.ActionsTaken = append(report.ActionsTaken,
				fmt.Sprintf("cost basis drift %s: %.2f%%, adopted broker basis", lp.Ticker, drift))
		}
	}

	for i := range broker {
		bp := &broker[i]
		if _, ok := localByTicker[bp.Ticker]; ok {
			continue
		}
		report.Orphans = append(report.Orphans, bp.Ticker)
		switch r.cfg.OrphanPolicy {
		case OrphanClose:
			actions = append(actions, Action{Kind: ActionCloseBroker, Ticker: bp.Ticker, Broker: bp})
			report.ActionsTaken = append(report.ActionsTaken,
				fmt.Sprintf("orphan %s: closing at broker", bp.Ticker))
		default:
			actions = append(actions, Action{Kind: ActionImport, Ticker: bp.Ticker, Broker: bp})
			report.ActionsTaken = append(report.ActionsTaken,
				fmt.Sprintf("orphan %s: imported from broker", bp.Ticker))
		}
		logs.Warnf("orphan position %s: reported by broker, not tracked locally", bp.Ticker)
	}

	switch {
	case unresolved > 0:
		report.FinalStatus = schema.ReconcilePartial
	default:
		report.FinalStatus = schema.ReconcileSynced
	}
	return report, actions
}

func indexByTicker(positions []schema.Position) map[string]*schema.Position {
	m := make(map[string]*schema.Position, len(positions))
	for i := range positions {
		m[positions[i].Ticker] = &positions[i]
	}
	return m
}

func driftPct(local, broker float64) float64 {
	if local <= 0 || broker <= 0 {
		return 0
	}
	return math.Abs(broker-local) / local * 100
}
