package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"backtest_go/internal/domain"
	"backtest_go/internal/event"
	"backtest_go/internal/execution"
	"backtest_go/internal/infra"
	"backtest_go/internal/risk"
	"backtest_go/internal/telemetry"
)

// Broadcaster pushes loop state updates to external observers (e.g. the
// websocket telemetry hub). Implementations must not block.
type Broadcaster interface {
	Broadcast(v any)
}

// Journal persists terminal orders for audit.
type Journal interface {
	SaveOrder(order *domain.PaperOrder) error
}

// PaperLoop is the core single-threaded paper trading processor. All
// mutation happens on the loop goroutine; external readers go through
// Snapshot which takes the read lock.
type PaperLoop struct {
	inbox   chan event.Event
	nextSeq uint64

	manager    *execution.OrderManager
	exchange   *execution.SimulatedExchange
	tracker    *execution.PositionTracker
	reconciler *execution.ReconciliationEngine
	limits     *risk.RiskLimits

	correlations risk.CorrelationMap
	initialCash  float64

	lastPrices map[string]float64
	lastDepth  map[string]float64
	lastVol    map[string]float64

	broadcaster Broadcaster
	journal     Journal

	mu sync.RWMutex // Used only for external reads (telemetry, tests)
}

// NewPaperLoop creates a paper trading loop with the given collaborators.
// broadcaster and journal may be nil.
func NewPaperLoop(
	inboxSize int,
	initialCash float64,
	manager *execution.OrderManager,
	exchange *execution.SimulatedExchange,
	tracker *execution.PositionTracker,
	reconciler *execution.ReconciliationEngine,
	limits *risk.RiskLimits,
	correlations risk.CorrelationMap,
	broadcaster Broadcaster,
	journal Journal,
) *PaperLoop {
	return &PaperLoop{
		inbox:        make(chan event.Event, inboxSize),
		nextSeq:      1,
		manager:      manager,
		exchange:     exchange,
		tracker:      tracker,
		reconciler:   reconciler,
		limits:       limits,
		correlations: correlations,
		initialCash:  initialCash,
		lastPrices:   make(map[string]float64),
		lastDepth:    make(map[string]float64),
		lastVol:      make(map[string]float64),
		broadcaster:  broadcaster,
		journal:      journal,
	}
}

// Inbox returns the event channel. External workers send events here.
func (l *PaperLoop) Inbox() chan<- event.Event {
	return l.inbox
}

// Run starts the main event loop. This MUST be run in a single goroutine.
func (l *PaperLoop) Run(ctx context.Context) {
	slog.Info("PaperLoop started (Single-Thread Hotpath)")

	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			l.DumpState("panic_dump.json")
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("PaperLoop stopping...")
			return
		case ev := <-l.inbox:
			l.processEvent(ev)
		}
	}
}

func (l *PaperLoop) processEvent(ev event.Event) {
	start := time.Now()

	// Sequence Gap Check (Halt Policy)
	if ev.GetSeq() != l.nextSeq {
		panic(fmt.Sprintf("SEQUENCE_GAP_DETECTED: expected %d, got %d", l.nextSeq, ev.GetSeq()))
	}

	l.mu.Lock()
	switch e := ev.(type) {
	case *event.PriceUpdateEvent:
		l.handlePriceUpdate(e)
		event.ReleasePriceUpdateEvent(e)
	case *event.OrderRequestEvent:
		l.handleOrderRequest(e)
	default:
		slog.Warn("Unknown event type", slog.Any("type", ev.GetType()))
	}
	l.nextSeq++
	l.mu.Unlock()

	infra.GlobalMetrics.RecordEvent(time.Since(start).Nanoseconds())
	telemetry.IncEvents()
}

func (l *PaperLoop) handlePriceUpdate(e *event.PriceUpdateEvent) {
	l.lastPrices[e.Symbol] = e.Price
	if e.BookDepth > 0 {
		l.lastDepth[e.Symbol] = e.BookDepth
	}
	if e.Volatility >= 0 {
		l.lastVol[e.Symbol] = e.Volatility
	}

	l.tracker.MarkToMarket(l.lastPrices)

	equity := l.currentEquity()
	telemetry.SetEquity(equity)
	if l.limits != nil {
		l.limits.UpdateEquity(equity)
		infra.GlobalMetrics.SetTradingHalted(l.limits.Halted())
		telemetry.SetTradingHalted(l.limits.Halted())
	}

	if l.broadcaster != nil {
		l.broadcaster.Broadcast(l.snapshotLocked())
	}
}

func (l *PaperLoop) handleOrderRequest(e *event.OrderRequestEvent) {
	order := e.Order
	if order == nil {
		slog.Warn("Order request with nil order", slog.Uint64("seq", e.Seq))
		return
	}

	equity := l.currentEquity()
	open := l.tracker.OpenPositions()

	submitted := l.manager.SubmitOrder(order, equity, open, l.correlations)
	if submitted.Status == domain.OrderStateRejected {
		slog.Info("Order rejected",
			slog.String("order_id", submitted.ID),
			slog.String("symbol", submitted.Symbol),
			slog.String("reason", submitted.RejectReason))
		infra.GlobalMetrics.RecordOrderRejected()
		telemetry.IncRejection(submitted.RejectReason)
		telemetry.IncOrder(submitted.Status, submitted.Side)
		l.finalizeOrder(submitted)
		return
	}
	infra.GlobalMetrics.RecordOrderSubmitted()

	price := l.lastPrices[order.Symbol]
	if price <= 0 {
		// No market price yet; cancel rather than guessing.
		if _, err := l.manager.CancelOrder(order.ID); err != nil {
			slog.Error("Cancel failed for unpriced order", slog.Any("error", err))
		}
		l.finalizeOrder(order)
		return
	}

	execStart := time.Now()
	fill := l.exchange.Execute(order, price, l.lastDepth[order.Symbol], l.lastVol[order.Symbol])
	telemetry.ObserveFillLatencyMs(float64(time.Since(execStart).Nanoseconds()) / 1e6)
	if fill.FilledQty > 0 {
		filled, err := l.manager.ApplyFill(order.ID, fill.FilledQty, fill.FillPrice)
		if err != nil {
			slog.Error("Fill application failed", slog.Any("error", err))
			return
		}
		l.tracker.ApplyFill(order.Symbol, order.Side, fill.FilledQty, fill.FillPrice)
		if filled.Status == domain.OrderStateFilled {
			infra.GlobalMetrics.RecordOrderFilled()
		}
		telemetry.IncOrder(filled.Status, order.Side)
	}

	l.manager.UpdateDailyRealizedPnL(l.tracker.RealizedPnL())
	l.finalizeOrder(order)

	if l.broadcaster != nil {
		l.broadcaster.Broadcast(l.snapshotLocked())
	}
}

func (l *PaperLoop) finalizeOrder(order *domain.PaperOrder) {
	if l.journal == nil || !domain.IsTerminalState(order.Status) {
		return
	}
	if err := l.journal.SaveOrder(order); err != nil {
		slog.Error("Order journal write failed",
			slog.String("order_id", order.ID), slog.Any("error", err))
	}
}

// currentEquity is cash plus mark-to-market PnL.
func (l *PaperLoop) currentEquity() float64 {
	state := l.tracker.Snapshot(l.lastPrices)
	return l.initialCash + state.RealizedPnL + state.UnrealizedPnL
}

// Reconcile checks loop-internal position state against an externally
// observed snapshot and records any mismatch.
func (l *PaperLoop) Reconcile(observed execution.TrackerState) execution.ReconciliationResult {
	l.mu.RLock()
	internal := l.tracker.Snapshot(l.lastPrices)
	l.mu.RUnlock()

	result := l.reconciler.Reconcile(internal, observed)
	if !result.OK() {
		infra.GlobalMetrics.RecordReconcileFailure()
		telemetry.IncReconcileFailure()
		slog.Warn("Reconciliation mismatch",
			slog.Any("mismatches", result.Mismatches),
			slog.Float64("drift_abs", result.DriftAbs))
	}
	return result
}

// LoopSnapshot is a point-in-time external view of the loop state.
type LoopSnapshot struct {
	NextSeq   uint64                    `json:"next_seq"`
	Equity    float64                   `json:"equity"`
	Prices    map[string]float64        `json:"prices"`
	Positions execution.TrackerState    `json:"positions"`
	Telemetry execution.Telemetry       `json:"order_telemetry"`
	Risk      risk.RiskMetrics          `json:"risk"`
	Exchange  execution.ExchangeMetrics `json:"exchange"`
}

// Snapshot returns a consistent external view (thread-safe).
func (l *PaperLoop) Snapshot() LoopSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

func (l *PaperLoop) snapshotLocked() LoopSnapshot {
	prices := make(map[string]float64, len(l.lastPrices))
	for k, v := range l.lastPrices {
		prices[k] = v
	}

	snap := LoopSnapshot{
		NextSeq:   l.nextSeq,
		Equity:    l.currentEquity(),
		Prices:    prices,
		Positions: l.tracker.Snapshot(l.lastPrices),
		Telemetry: l.manager.Telemetry(),
		Exchange:  l.exchange.Metrics(),
	}
	if l.limits != nil {
		snap.Risk = l.limits.CurrentMetrics(snap.Equity, l.tracker.OpenPositions())
	}
	return snap
}

// DumpState writes the entire internal state to a file (for post-mortem).
func (l *PaperLoop) DumpState(filename string) {
	slog.Info("Dumping internal state...", slog.String("file", filename))

	b, err := json.MarshalIndent(l.snapshotLocked(), "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	if err := os.WriteFile(filename, b, 0644); err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}
