package execution

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"backtest_go/internal/domain"
	"backtest_go/internal/risk"
)

// Rejection reason codes. Lifecycle rejections are results, not errors.
const (
	RejectKillSwitch       = "kill_switch_enabled"
	RejectMaxLossCircuit   = "max_loss_circuit_breaker"
	RejectRiskCheckFailed  = "risk_check_failed"
	RejectInvalidOrder     = "invalid_order"
	RejectExchangeRejected = "exchange_rejected"
)

var allRejectReasons = []string{
	RejectKillSwitch, RejectMaxLossCircuit, RejectRiskCheckFailed,
	RejectInvalidOrder, RejectExchangeRejected,
}

var allOrderStates = []string{
	domain.OrderStateCreated, domain.OrderStateSubmitted,
	domain.OrderStatePartiallyFilled, domain.OrderStateFilled,
	domain.OrderStateCanceled, domain.OrderStateRejected,
}

// Telemetry is the running counter view exposed for observability. It is
// never used for control flow.
type Telemetry struct {
	Rejections  map[string]int
	StateCounts map[string]int
	OrdersTotal int
}

// OrderManager tracks the paper-order lifecycle and enforces pre-submission
// controls: kill switch and loss circuit breaker first, basic validity next,
// risk admission last. It is mutated by a single logical actor but supports
// concurrent reads.
type OrderManager struct {
	mu sync.RWMutex

	riskLimits      *risk.RiskLimits
	maxDailyLossAbs float64
	killSwitch      bool

	orders            map[string]*domain.PaperOrder
	rejectionCounters map[string]int
	stateCounts       map[string]int
	dailyRealizedPnL  float64
}

// NewOrderManager creates a manager. riskLimits may be nil, in which case no
// admission check is performed. maxDailyLossAbs <= 0 disables the circuit
// breaker.
func NewOrderManager(riskLimits *risk.RiskLimits, maxDailyLossAbs float64) *OrderManager {
	m := &OrderManager{
		riskLimits:        riskLimits,
		maxDailyLossAbs:   maxDailyLossAbs,
		orders:            make(map[string]*domain.PaperOrder),
		rejectionCounters: make(map[string]int, len(allRejectReasons)),
		stateCounts:       make(map[string]int, len(allOrderStates)),
	}
	for _, r := range allRejectReasons {
		m.rejectionCounters[r] = 0
	}
	for _, s := range allOrderStates {
		m.stateCounts[s] = 0
	}
	return m
}

// SetKillSwitch toggles the hard stop checked before anything else.
func (m *OrderManager) SetKillSwitch(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.killSwitch = enabled
}

// UpdateDailyRealizedPnL feeds the loss circuit breaker.
func (m *OrderManager) UpdateDailyRealizedPnL(realizedPnL float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyRealizedPnL = realizedPnL
}

// SubmitOrder runs the pre-submission gauntlet and either tracks the order
// as SUBMITTED or marks it REJECTED with a reason code. The admission check
// runs only when an equity snapshot is supplied.
func (m *OrderManager) SubmitOrder(order *domain.PaperOrder, currentEquity float64, openPositions []domain.Position, correlations risk.CorrelationMap) *domain.PaperOrder {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prepare(order)

	if m.killSwitch {
		return m.reject(order, RejectKillSwitch)
	}

	if m.maxDailyLossAbs > 0 && m.dailyRealizedPnL <= -m.maxDailyLossAbs {
		return m.reject(order, RejectMaxLossCircuit)
	}

	if !validOrder(order) {
		return m.reject(order, RejectInvalidOrder)
	}

	if m.riskLimits != nil && currentEquity > 0 {
		approved, reason := m.riskLimits.CheckOrder(toRiskOrder(order), currentEquity, openPositions, correlations)
		if !approved {
			slog.Warn("risk check rejected order",
				slog.String("order_id", order.ID),
				slog.String("reason", reason))
			return m.reject(order, RejectRiskCheckFailed)
		}
	}

	order.Status = domain.OrderStateSubmitted
	order.UpdatedAt = time.Now().UTC()
	m.orders[order.ID] = order
	m.stateCounts[domain.OrderStateSubmitted]++
	slog.Info("order submitted",
		slog.String("order_id", order.ID),
		slog.String("symbol", order.Symbol),
		slog.String("side", order.Side),
		slog.Float64("quantity", order.Quantity))
	return order
}

// ApplyFill credits a (possibly partial) fill. Quantity is clamped to the
// remaining unfilled amount and the average fill price is a running
// value-weighted mean.
func (m *OrderManager) ApplyFill(orderID string, fillQty, fillPrice float64) (*domain.PaperOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, orderID)
	}
	if domain.IsTerminalState(order.Status) {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrTerminalState, orderID, order.Status)
	}

	if fillQty < 0 {
		fillQty = 0
	}
	if remaining := order.Remaining(); fillQty > remaining {
		fillQty = remaining
	}

	newTotal := order.FilledQty + fillQty
	if newTotal > 0 {
		order.AvgFillPrice = (order.AvgFillPrice*order.FilledQty + fillPrice*fillQty) / newTotal
	}
	order.FilledQty = newTotal

	switch {
	case order.FilledQty == 0:
		order.Status = domain.OrderStateSubmitted
	case order.FilledQty < order.Quantity:
		order.Status = domain.OrderStatePartiallyFilled
		m.stateCounts[domain.OrderStatePartiallyFilled]++
	default:
		order.Status = domain.OrderStateFilled
		m.stateCounts[domain.OrderStateFilled]++
	}

	order.UpdatedAt = time.Now().UTC()
	slog.Info("order fill update",
		slog.String("order_id", order.ID),
		slog.Float64("filled_quantity", order.FilledQty),
		slog.Float64("avg_fill_price", order.AvgFillPrice),
		slog.String("status", order.Status))
	return order, nil
}

// CancelOrder forces CANCELED from any non-terminal state.
func (m *OrderManager) CancelOrder(orderID string) (*domain.PaperOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, orderID)
	}
	if domain.IsTerminalState(order.Status) {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrTerminalState, orderID, order.Status)
	}

	order.Status = domain.OrderStateCanceled
	order.UpdatedAt = time.Now().UTC()
	m.stateCounts[domain.OrderStateCanceled]++
	slog.Info("order canceled", slog.String("order_id", order.ID), slog.String("symbol", order.Symbol))
	return order, nil
}

// GetOrder returns a copy of the tracked order.
func (m *OrderManager) GetOrder(orderID string) (domain.PaperOrder, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order, ok := m.orders[orderID]
	if !ok {
		return domain.PaperOrder{}, false
	}
	return *order, true
}

// OpenOrders returns copies of all non-terminal orders.
func (m *OrderManager) OpenOrders() []domain.PaperOrder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var open []domain.PaperOrder
	for _, o := range m.orders {
		if o.IsOpen() {
			open = append(open, *o)
		}
	}
	return open
}

// Telemetry returns the running counters.
func (m *OrderManager) Telemetry() Telemetry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t := Telemetry{
		Rejections:  make(map[string]int, len(m.rejectionCounters)),
		StateCounts: make(map[string]int, len(m.stateCounts)),
		OrdersTotal: len(m.orders),
	}
	for k, v := range m.rejectionCounters {
		t.Rejections[k] = v
	}
	for k, v := range m.stateCounts {
		t.StateCounts[k] = v
	}
	return t
}

// prepare stamps identity and creation time on first sight. Caller holds the
// lock.
func (m *OrderManager) prepare(order *domain.PaperOrder) {
	now := time.Now().UTC()
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if order.OrderType == "" {
		order.OrderType = domain.OrderTypeMarket
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.Status = domain.OrderStateCreated
	order.UpdatedAt = now
}

// reject transitions to REJECTED and bumps the reason counter. Caller holds
// the lock.
func (m *OrderManager) reject(order *domain.PaperOrder, reason string) *domain.PaperOrder {
	order.Status = domain.OrderStateRejected
	order.RejectReason = reason
	order.UpdatedAt = time.Now().UTC()
	m.orders[order.ID] = order
	m.rejectionCounters[reason]++
	m.stateCounts[domain.OrderStateRejected]++
	slog.Warn("order rejected",
		slog.String("order_id", order.ID),
		slog.String("symbol", order.Symbol),
		slog.String("reason", reason))
	return order
}

func validOrder(order *domain.PaperOrder) bool {
	if order.Quantity <= 0 {
		return false
	}
	if order.Side != domain.SideBuy && order.Side != domain.SideSell {
		return false
	}
	if order.OrderType == domain.OrderTypeLimit && order.LimitPrice <= 0 {
		return false
	}
	return true
}

// toRiskOrder converts the lifecycle record into the admission-control view.
// Market orders carry no price; the original model prices them at 1.0 for
// notional purposes and that contract is preserved.
func toRiskOrder(order *domain.PaperOrder) domain.Order {
	qty := order.Quantity
	if order.Side == domain.SideSell {
		qty = -qty
	}
	price := order.LimitPrice
	if price <= 0 {
		price = 1.0
	}
	return domain.Order{
		Symbol:   order.Symbol,
		Quantity: qty,
		Price:    price,
		Sector:   order.Sector,
		Cluster:  order.Cluster,
	}
}
