// Package obs exposes pipeline metrics through Prometheus.
package obs

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"main/internal/schema"
)

// Metrics holds every pipeline collector. One instance is shared by all
// components; collectors are safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	SignalsTotal    *prometheus.CounterVec
	OrdersTotal     *prometheus.CounterVec
	OrderRetries    prometheus.Counter
	RiskRejections  *prometheus.CounterVec
	ExitsTotal      *prometheus.CounterVec
	Discrepancies   *prometheus.CounterVec
	JournalFailures prometheus.Counter

	Equity       prometheus.Gauge
	DailyPnL     prometheus.Gauge
	OpenCount    prometheus.Gauge
	KillSwitchOn prometheus.Gauge

	SignalLatency prometheus.Histogram
	SubmitLatency prometheus.Histogram
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SignalsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_signals_total",
			Help: "Signals received, by processing outcome.",
		}, []string{"outcome"}),
		OrdersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_orders_total",
			Help: "Orders submitted, by broker and terminal status.",
		}, []string{"broker", "status"}),
		OrderRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "trader_order_retries_total",
			Help: "Order submission retry attempts.",
		}),
		RiskRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_risk_rejections_total",
			Help: "Risk gate rejections, by reason.",
		}, []string{"reason"}),
		ExitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_exits_total",
			Help: "Position exits, by trigger.",
		}, []string{"trigger"}),
		Discrepancies: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_reconcile_discrepancies_total",
			Help: "Reconciliation discrepancies, by kind.",
		}, []string{"kind"}),
		JournalFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "trader_journal_failures_total",
			Help: "Journal append failures.",
		}),
		Equity: factory.NewGauge(prometheus.GaugeOpts{
			Name: "trader_account_equity",
			Help: "Last observed account equity.",
		}),
		DailyPnL: factory.NewGauge(prometheus.GaugeOpts{
			Name: "trader_daily_pnl",
			Help: "Realized profit and loss for the current trading day.",
		}),
		OpenCount: factory.NewGauge(prometheus.GaugeOpts{
			Name: "trader_open_positions",
			Help: "Currently open positions.",
		}),
		KillSwitchOn: factory.NewGauge(prometheus.GaugeOpts{
			Name: "trader_kill_switch_active",
			Help: "1 while the kill switch blocks new entries.",
		}),
		SignalLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "trader_signal_processing_seconds",
			Help:    "Wall time of one process-signal pass.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		SubmitLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "trader_order_submit_seconds",
			Help:    "Wall time of one routed order submission.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRejection records a risk gate rejection.
func (m *Metrics) ObserveRejection(reason schema.RiskReason) {
	if m == nil {
		return
	}
	m.RiskRejections.WithLabelValues(string(reason)).Inc()
	m.SignalsTotal.WithLabelValues("rejected").Inc()
}

// ObserveExit records a position exit.
func (m *Metrics) ObserveExit(trigger schema.ExitTrigger) {
	if m == nil {
		return
	}
	m.ExitsTotal.WithLabelValues(string(trigger)).Inc()
}

// ObserveAccount refreshes the account-level gauges.
func (m *Metrics) ObserveAccount(account schema.AccountState, open int, killSwitch bool) {
	if m == nil {
		return
	}
	m.Equity.Set(account.Equity)
	m.DailyPnL.Set(account.DailyPnL)
	m.OpenCount.Set(float64(open))
	if killSwitch {
		m.KillSwitchOn.Set(1)
	} else {
		m.KillSwitchOn.Set(0)
	}
}

// TimeSignal returns a stopper recording one process-signal pass.
func (m *Metrics) TimeSignal() func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	return func() { m.SignalLatency.Observe(time.Since(start).Seconds()) }
}
