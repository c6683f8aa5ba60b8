package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight in-process observability for the paper
// trading loop. Uses atomic operations for thread-safety; the Prometheus
// exposition in the telemetry package runs alongside these.
type Metrics struct {
	// Counters
	eventsProcessed   atomic.Uint64
	ordersSubmitted   atomic.Uint64
	ordersFilled      atomic.Uint64
	ordersRejected    atomic.Uint64
	reconcileFailures atomic.Uint64

	// Latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	tradingHalted atomic.Int32 // 1 = halted, 0 = trading
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordEvent records one processed event with its latency.
func (m *Metrics) RecordEvent(latencyNs int64) {
	m.eventsProcessed.Add(1)
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// RecordOrderSubmitted records an accepted submission.
func (m *Metrics) RecordOrderSubmitted() {
	m.ordersSubmitted.Add(1)
}

// RecordOrderFilled records a terminal fill.
func (m *Metrics) RecordOrderFilled() {
	m.ordersFilled.Add(1)
}

// RecordOrderRejected records a rejection of any kind.
func (m *Metrics) RecordOrderRejected() {
	m.ordersRejected.Add(1)
}

// RecordReconcileFailure records a failed reconciliation run.
func (m *Metrics) RecordReconcileFailure() {
	m.reconcileFailures.Add(1)
}

// SetTradingHalted sets the sticky-halt gauge.
func (m *Metrics) SetTradingHalted(halted bool) {
	if halted {
		m.tradingHalted.Store(1)
	} else {
		m.tradingHalted.Store(0)
	}
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	EventsProcessed   uint64
	OrdersSubmitted   uint64
	OrdersFilled      uint64
	OrdersRejected    uint64
	ReconcileFailures uint64
	AvgLatencyNs      int64
	TradingHalted     bool
	Timestamp         time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		EventsProcessed:   m.eventsProcessed.Load(),
		OrdersSubmitted:   m.ordersSubmitted.Load(),
		OrdersFilled:      m.ordersFilled.Load(),
		OrdersRejected:    m.ordersRejected.Load(),
		ReconcileFailures: m.reconcileFailures.Load(),
		AvgLatencyNs:      avgLatency,
		TradingHalted:     m.tradingHalted.Load() == 1,
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.eventsProcessed.Store(0)
	m.ordersSubmitted.Store(0)
	m.ordersFilled.Store(0)
	m.ordersRejected.Store(0)
	m.reconcileFailures.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.tradingHalted.Store(0)
}
