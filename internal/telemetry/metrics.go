package telemetry

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sim_orders_total",
			Help: "Orders by terminal status",
		},
		[]string{"status", "side"},
	)

	mtxRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sim_order_rejections_total",
			Help: "Order rejections by reason code",
		},
		[]string{"reason"},
	)

	mtxEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sim_equity_usd",
			Help: "Current paper equity snapshot",
		},
	)

	mtxHalted = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sim_trading_halted",
			Help: "1 when the drawdown halt is active",
		},
	)

	mtxEvents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sim_events_processed_total",
			Help: "Events consumed by the trading loop",
		},
	)

	mtxReconcileFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sim_reconcile_failures_total",
			Help: "Reconciliation runs that reported a mismatch",
		},
	)

	mtxFillLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sim_fill_latency_ms",
			Help:    "Simulated exchange execution latency",
			Buckets: []float64{1, 5, 20, 100},
		},
	)
)

func init() {
	prometheus.MustRegister(mtxOrders, mtxRejections)
	prometheus.MustRegister(mtxEquity, mtxHalted)
	prometheus.MustRegister(mtxEvents, mtxReconcileFailures, mtxFillLatency)
}

func IncOrder(status, side string) { mtxOrders.WithLabelValues(status, side).Inc() }

func IncRejection(reason string) { mtxRejections.WithLabelValues(reason).Inc() }

func SetEquity(v float64) { mtxEquity.Set(v) }

func IncEvents() { mtxEvents.Inc() }

func IncReconcileFailure() { mtxReconcileFailures.Inc() }

func ObserveFillLatencyMs(v float64) { mtxFillLatency.Observe(v) }

func SetTradingHalted(halted bool) {
	if halted {
		mtxHalted.Set(1)
	} else {
		mtxHalted.Set(0)
	}
}
