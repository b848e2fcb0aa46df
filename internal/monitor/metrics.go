package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"signal-engine/internal/gateway"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is a
// valid no-op sink.
type Metrics struct {
	passes        *prometheus.CounterVec
	passDuration  *prometheus.HistogramVec
	items         *prometheus.CounterVec
	ordersPlaced  *prometheus.CounterVec
	ordersFailed  *prometheus.CounterVec
	forcedExits   *prometheus.CounterVec
	tradesResolve *prometheus.CounterVec
	signals       *prometheus.CounterVec
	gateways      *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them on reg. instance is
// attached to every series as a constant label.
func NewMetrics(reg prometheus.Registerer, instance string) *Metrics {
	constLabels := prometheus.Labels{"instance_id": instance}
	m := &Metrics{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "signal_engine_job_runs_total",
			Help:        "Scheduled job runs by job.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		passDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "signal_engine_job_duration_seconds",
			Help:        "Duration of scheduled job runs.",
			Buckets:     prometheus.ExponentialBuckets(0.05, 2, 10),
			ConstLabels: constLabels,
		}, []string{"job"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "signal_engine_job_items_total",
			Help:        "Work items processed by job and outcome.",
			ConstLabels: constLabels,
		}, []string{"job", "outcome"}),
		ordersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "signal_engine_orders_placed_total",
			Help:        "Orders accepted by the exchange.",
			ConstLabels: constLabels,
		}, []string{"side", "strategy"}),
		ordersFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "signal_engine_orders_failed_total",
			Help:        "Orders rejected or not sent.",
			ConstLabels: constLabels,
		}, []string{"side"}),
		forcedExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "signal_engine_forced_exits_total",
			Help:        "Risk-driven sells by reason.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		tradesResolve: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "signal_engine_trades_resolved_total",
			Help:        "WAIT trades moved to a terminal status.",
			ConstLabels: constLabels,
		}, []string{"status"}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "signal_engine_signals_triggered_total",
			Help:        "Reversal triggers by side.",
			ConstLabels: constLabels,
		}, []string{"side"}),
		gateways: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "signal_engine_gateways",
			Help:        "Cached exchange gateways by health.",
			ConstLabels: constLabels,
		}, []string{"state"}),
	}
	reg.MustRegister(m.passes, m.passDuration, m.items, m.ordersPlaced, m.ordersFailed,
		m.forcedExits, m.tradesResolve, m.signals, m.gateways)
	return m
}

// ObserveJob records one run of a scheduled job.
func (m *Metrics) ObserveJob(job string, d time.Duration, succeeded, failed int) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(job).Inc()
	m.passDuration.WithLabelValues(job).Observe(d.Seconds())
	m.items.WithLabelValues(job, "ok").Add(float64(succeeded))
	m.items.WithLabelValues(job, "failed").Add(float64(failed))
}

func (m *Metrics) OrderPlaced(side, strategy string) {
	if m == nil {
		return
	}
	m.ordersPlaced.WithLabelValues(side, strategy).Inc()
}

func (m *Metrics) OrderFailed(side string) {
	if m == nil {
		return
	}
	m.ordersFailed.WithLabelValues(side).Inc()
}

func (m *Metrics) ForcedExit(reason string) {
	if m == nil {
		return
	}
	m.forcedExits.WithLabelValues(reason).Inc()
}

func (m *Metrics) TradeResolved(status string) {
	if m == nil {
		return
	}
	m.tradesResolve.WithLabelValues(status).Inc()
}

func (m *Metrics) SignalTriggered(side string) {
	if m == nil {
		return
	}
	m.signals.WithLabelValues(side).Inc()
}

// SetGatewayPool publishes the gateway cache state.
func (m *Metrics) SetGatewayPool(stats gateway.PoolStats) {
	if m == nil {
		return
	}
	m.gateways.WithLabelValues("healthy").Set(float64(stats.TotalGateways - stats.UnhealthyCount))
	m.gateways.WithLabelValues("unhealthy").Set(float64(stats.UnhealthyCount))
}
