package execution

import (
	"errors"
	"math"
	"testing"

	"backtest_go/internal/domain"
	"backtest_go/internal/risk"
)

func buyOrder(qty float64) *domain.PaperOrder {
	return &domain.PaperOrder{Symbol: "BTC", Side: domain.SideBuy, Quantity: qty}
}

func TestSubmitOrderHappyPath(t *testing.T) {
	m := NewOrderManager(nil, 0)

	order := m.SubmitOrder(buyOrder(1), 0, nil, nil)
	if order.Status != domain.OrderStateSubmitted {
		t.Fatalf("status = %s, want SUBMITTED", order.Status)
	}
	if order.ID == "" {
		t.Error("order should receive a generated ID")
	}
	if order.OrderType != domain.OrderTypeMarket {
		t.Errorf("order type = %q, want market default", order.OrderType)
	}
	if order.CreatedAt.IsZero() || order.UpdatedAt.IsZero() {
		t.Error("timestamps should be stamped")
	}
}

func TestSubmitOrderKillSwitch(t *testing.T) {
	m := NewOrderManager(nil, 0)
	m.SetKillSwitch(true)

	order := m.SubmitOrder(buyOrder(1), 0, nil, nil)
	if order.Status != domain.OrderStateRejected {
		t.Fatalf("status = %s, want REJECTED", order.Status)
	}
	if order.RejectReason != RejectKillSwitch {
		t.Errorf("reason = %q, want %q", order.RejectReason, RejectKillSwitch)
	}

	m.SetKillSwitch(false)
	if o := m.SubmitOrder(buyOrder(1), 0, nil, nil); o.Status != domain.OrderStateSubmitted {
		t.Errorf("order should pass after kill switch off, got %s", o.Status)
	}
}

func TestSubmitOrderLossCircuitBreaker(t *testing.T) {
	m := NewOrderManager(nil, 500)

	m.UpdateDailyRealizedPnL(-400)
	if o := m.SubmitOrder(buyOrder(1), 0, nil, nil); o.Status != domain.OrderStateSubmitted {
		t.Errorf("below the limit should pass, got %s", o.Status)
	}

	m.UpdateDailyRealizedPnL(-600)
	order := m.SubmitOrder(buyOrder(1), 0, nil, nil)
	if order.RejectReason != RejectMaxLossCircuit {
		t.Errorf("reason = %q, want %q", order.RejectReason, RejectMaxLossCircuit)
	}
}

func TestSubmitOrderValidity(t *testing.T) {
	m := NewOrderManager(nil, 0)

	cases := []struct {
		name  string
		order *domain.PaperOrder
	}{
		{"zero quantity", &domain.PaperOrder{Symbol: "BTC", Side: domain.SideBuy}},
		{"bad side", &domain.PaperOrder{Symbol: "BTC", Side: "hold", Quantity: 1}},
		{"limit without price", &domain.PaperOrder{
			Symbol: "BTC", Side: domain.SideBuy, Quantity: 1, OrderType: domain.OrderTypeLimit,
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := m.SubmitOrder(tc.order, 0, nil, nil)
			if order.RejectReason != RejectInvalidOrder {
				t.Errorf("reason = %q, want %q", order.RejectReason, RejectInvalidOrder)
			}
		})
	}
}

func TestSubmitOrderRiskRejection(t *testing.T) {
	limits := risk.DefaultLimits()
	limits.MaxPositionSize = 0.0001
	m := NewOrderManager(risk.NewRiskLimits(limits), 0)

	order := &domain.PaperOrder{
		Symbol: "BTC", Side: domain.SideBuy, Quantity: 10,
		OrderType: domain.OrderTypeLimit, LimitPrice: 100,
	}
	got := m.SubmitOrder(order, 10000, nil, nil)
	if got.RejectReason != RejectRiskCheckFailed {
		t.Errorf("reason = %q, want %q", got.RejectReason, RejectRiskCheckFailed)
	}

	// Without an equity snapshot the admission check is skipped entirely.
	order2 := &domain.PaperOrder{
		Symbol: "BTC", Side: domain.SideBuy, Quantity: 10,
		OrderType: domain.OrderTypeLimit, LimitPrice: 100,
	}
	if o := m.SubmitOrder(order2, 0, nil, nil); o.Status != domain.OrderStateSubmitted {
		t.Errorf("no-equity submission should pass, got %s", o.Status)
	}
}

func TestApplyFillLifecycle(t *testing.T) {
	m := NewOrderManager(nil, 0)
	order := m.SubmitOrder(buyOrder(10), 0, nil, nil)

	// Partial fill.
	got, err := m.ApplyFill(order.ID, 4, 100)
	if err != nil {
		t.Fatalf("ApplyFill: %v", err)
	}
	if got.Status != domain.OrderStatePartiallyFilled {
		t.Errorf("status = %s, want PARTIALLY_FILLED", got.Status)
	}

	// Second partial at a different price: VWAP over both fills.
	got, err = m.ApplyFill(order.ID, 4, 110)
	if err != nil {
		t.Fatalf("ApplyFill: %v", err)
	}
	if math.Abs(got.AvgFillPrice-105) > 1e-9 {
		t.Errorf("AvgFillPrice = %v, want 105", got.AvgFillPrice)
	}

	// Overfill clamps to the remaining 2.
	got, err = m.ApplyFill(order.ID, 100, 120)
	if err != nil {
		t.Fatalf("ApplyFill: %v", err)
	}
	if got.FilledQty != 10 {
		t.Errorf("FilledQty = %v, want 10", got.FilledQty)
	}
	if got.Status != domain.OrderStateFilled {
		t.Errorf("status = %s, want FILLED", got.Status)
	}

	// Terminal orders refuse further transitions.
	if _, err := m.ApplyFill(order.ID, 1, 100); !errors.Is(err, domain.ErrTerminalState) {
		t.Errorf("expected ErrTerminalState, got %v", err)
	}
	if _, err := m.CancelOrder(order.ID); !errors.Is(err, domain.ErrTerminalState) {
		t.Errorf("cancel after fill: expected ErrTerminalState, got %v", err)
	}
}

func TestApplyFillUnknownOrder(t *testing.T) {
	m := NewOrderManager(nil, 0)
	if _, err := m.ApplyFill("nope", 1, 100); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
	if _, err := m.CancelOrder("nope"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestCancelOrder(t *testing.T) {
	m := NewOrderManager(nil, 0)
	order := m.SubmitOrder(buyOrder(5), 0, nil, nil)

	got, err := m.CancelOrder(order.ID)
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if got.Status != domain.OrderStateCanceled {
		t.Errorf("status = %s, want CANCELED", got.Status)
	}
	if open := m.OpenOrders(); len(open) != 0 {
		t.Errorf("open orders = %d, want 0", len(open))
	}
}

func TestTelemetryCounters(t *testing.T) {
	m := NewOrderManager(nil, 0)
	m.SubmitOrder(buyOrder(1), 0, nil, nil)
	m.SetKillSwitch(true)
	m.SubmitOrder(buyOrder(1), 0, nil, nil)

	tel := m.Telemetry()
	if tel.OrdersTotal != 2 {
		t.Errorf("OrdersTotal = %d, want 2", tel.OrdersTotal)
	}
	if tel.Rejections[RejectKillSwitch] != 1 {
		t.Errorf("kill switch rejections = %d, want 1", tel.Rejections[RejectKillSwitch])
	}
	if tel.StateCounts[domain.OrderStateSubmitted] != 1 {
		t.Errorf("submitted count = %d, want 1", tel.StateCounts[domain.OrderStateSubmitted])
	}
	// Counters are pre-seeded so dashboards see zeroes, not gaps.
	if _, ok := tel.Rejections[RejectMaxLossCircuit]; !ok {
		t.Error("unused rejection reasons should still be present")
	}
}
