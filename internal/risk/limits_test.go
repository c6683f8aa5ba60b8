package risk

import (
	"strings"
	"testing"

	"backtest_go/internal/domain"
)

// looseLimits keeps every threshold wide open so a single check can be
// tightened per test.
func looseLimits() Limits {
	return Limits{
		MaxPositionSize:       1.0,
		MaxPortfolioHeat:      1.0,
		MaxDrawdown:           1.0,
		DailyLossLimit:        1.0,
		MaxSymbolExposure:     1.0,
		MaxSectorExposure:     1.0,
		MaxClusterExposure:    1.0,
		MaxCorrelatedExposure: 1.0,
		CorrelationThreshold:  0.8,
	}
}

func TestCheckOrderApproved(t *testing.T) {
	r := NewRiskLimits(DefaultLimits())
	order := domain.Order{Symbol: "BTC", Quantity: 1, Price: 100}

	ok, reason := r.CheckOrder(order, 10000, nil, nil)
	if !ok {
		t.Fatalf("order should pass: %s", reason)
	}
	if reason != "Order approved" {
		t.Errorf("reason = %q", reason)
	}
}

func TestSymbolExposureLimit(t *testing.T) {
	// $10,000 equity with a 10% per-symbol cap: an open $500 BTC position
	// plus a new $600 BTC order breaches $1,000.
	limits := looseLimits()
	limits.MaxSymbolExposure = 0.10
	r := NewRiskLimits(limits)

	open := []domain.Position{{Symbol: "BTC", Quantity: 1, EntryPrice: 500, CurrentPrice: 500}}
	order := domain.Order{Symbol: "BTC", Quantity: 1, Price: 600}

	ok, reason := r.CheckOrder(order, 10000, open, nil)
	if ok {
		t.Fatal("order should be rejected")
	}
	if !strings.Contains(reason, "Symbol exposure") {
		t.Errorf("reason = %q, want symbol exposure rejection", reason)
	}
}

func TestPositionSizeLimit(t *testing.T) {
	limits := looseLimits()
	limits.MaxPositionSize = 0.05
	r := NewRiskLimits(limits)

	ok, reason := r.CheckOrder(domain.Order{Symbol: "BTC", Quantity: 6, Price: 100}, 10000, nil, nil)
	if ok {
		t.Fatal("oversized order should be rejected")
	}
	if !strings.Contains(reason, "Position size") {
		t.Errorf("reason = %q", reason)
	}
}

func TestSectorAndClusterLimits(t *testing.T) {
	limits := looseLimits()
	limits.MaxSectorExposure = 0.10
	r := NewRiskLimits(limits)

	open := []domain.Position{{Symbol: "ETH", Quantity: 1, EntryPrice: 800, CurrentPrice: 800, Sector: "crypto"}}
	order := domain.Order{Symbol: "BTC", Quantity: 1, Price: 300, Sector: "crypto"}

	ok, reason := r.CheckOrder(order, 10000, open, nil)
	if ok {
		t.Fatal("sector breach should be rejected")
	}
	if !strings.Contains(reason, "Sector exposure") {
		t.Errorf("reason = %q", reason)
	}

	// Untagged orders skip the sector check entirely.
	order.Sector = ""
	if ok, _ := r.CheckOrder(order, 10000, open, nil); !ok {
		t.Error("untagged order should skip sector check")
	}

	limits = looseLimits()
	limits.MaxClusterExposure = 0.10
	r = NewRiskLimits(limits)
	open[0].Cluster = "l1"
	order = domain.Order{Symbol: "BTC", Quantity: 1, Price: 300, Cluster: "l1"}
	ok, reason = r.CheckOrder(order, 10000, open, nil)
	if ok || !strings.Contains(reason, "Cluster exposure") {
		t.Errorf("cluster breach: ok=%v reason=%q", ok, reason)
	}
}

func TestPortfolioHeatLimit(t *testing.T) {
	limits := looseLimits()
	limits.MaxPortfolioHeat = 0.10
	r := NewRiskLimits(limits)

	// Order risks 10*|100-50| = $500, open position risks 12*|100-50| = $600:
	// combined heat $1,100 over the $1,000 cap.
	open := []domain.Position{{Symbol: "ETH", Quantity: 12, EntryPrice: 100, CurrentPrice: 100, StopLoss: 50}}
	order := domain.Order{Symbol: "BTC", Quantity: 10, Price: 100, StopLoss: 50}

	ok, reason := r.CheckOrder(order, 10000, open, nil)
	if ok {
		t.Fatal("heat breach should be rejected")
	}
	if !strings.Contains(reason, "Portfolio heat") {
		t.Errorf("reason = %q", reason)
	}
}

func TestCorrelatedExposureLimit(t *testing.T) {
	limits := looseLimits()
	limits.MaxCorrelatedExposure = 0.20
	r := NewRiskLimits(limits)

	correlations := CorrelationMap{
		"BTC": {"ETH": 0.9},
		"ETH": {"BTC": 0.9},
	}
	open := []domain.Position{{Symbol: "ETH", Quantity: 1, EntryPrice: 1500, CurrentPrice: 1500}}
	order := domain.Order{Symbol: "BTC", Quantity: 1, Price: 600}

	ok, reason := r.CheckOrder(order, 10000, open, correlations)
	if ok {
		t.Fatal("correlated breach should be rejected")
	}
	if !strings.Contains(reason, "Correlated exposure") {
		t.Errorf("reason = %q", reason)
	}

	// Below the correlation threshold the position does not count.
	correlations["BTC"]["ETH"] = 0.3
	correlations["ETH"]["BTC"] = 0.3
	if ok, _ := r.CheckOrder(order, 10000, open, correlations); !ok {
		t.Error("weakly correlated position should not count toward the cap")
	}
}

func TestDrawdownHaltIsSticky(t *testing.T) {
	limits := looseLimits()
	limits.MaxDrawdown = 0.15
	r := NewRiskLimits(limits)
	r.UpdateEquity(10000) // establish the peak

	order := domain.Order{Symbol: "BTC", Quantity: 1, Price: 10}

	// 20% under the peak trips the halt.
	ok, reason := r.CheckOrder(order, 8000, nil, nil)
	if ok {
		t.Fatal("drawdown breach should be rejected")
	}
	if !strings.Contains(reason, "HALTING ALL TRADING") {
		t.Errorf("reason = %q", reason)
	}
	if !r.Halted() {
		t.Fatal("halt flag should be set")
	}

	// Every subsequent order is refused outright, even at full equity.
	ok, reason = r.CheckOrder(order, 10000, nil, nil)
	if ok || reason != "Trading halted due to risk violation" {
		t.Errorf("halted check: ok=%v reason=%q", ok, reason)
	}

	r.ResumeTrading()
	if r.Halted() {
		t.Error("ResumeTrading should clear the halt")
	}
	if ok, _ := r.CheckOrder(order, 10000, nil, nil); !ok {
		t.Error("order should pass after resume")
	}
}

func TestDailyLossLimit(t *testing.T) {
	limits := looseLimits()
	limits.DailyLossLimit = 0.03
	r := NewRiskLimits(limits)
	r.UpdateEquity(10000) // seeds the daily baseline

	order := domain.Order{Symbol: "BTC", Quantity: 1, Price: 10}

	// Down 5% on the day.
	ok, reason := r.CheckOrder(order, 9500, nil, nil)
	if ok {
		t.Fatal("daily loss breach should be rejected")
	}
	if !strings.Contains(reason, "Daily loss limit") {
		t.Errorf("reason = %q", reason)
	}

	// Re-baselining at the current equity clears the breach.
	r.ResetDaily(9500)
	if ok, _ := r.CheckOrder(order, 9500, nil, nil); !ok {
		t.Error("order should pass after daily reset")
	}
}

func TestCurrentMetrics(t *testing.T) {
	r := NewRiskLimits(DefaultLimits())
	r.UpdateEquity(10000)

	open := []domain.Position{{Symbol: "BTC", Quantity: 2, EntryPrice: 100, CurrentPrice: 110}}
	m := r.CurrentMetrics(9800, open)

	if m.EquityPeak != 10000 {
		t.Errorf("EquityPeak = %v", m.EquityPeak)
	}
	if m.OpenPositions != 1 {
		t.Errorf("OpenPositions = %d", m.OpenPositions)
	}
	if m.UnrealizedPnL != 20 {
		t.Errorf("UnrealizedPnL = %v, want 20", m.UnrealizedPnL)
	}
	if m.DailyPnL != -200 {
		t.Errorf("DailyPnL = %v, want -200", m.DailyPnL)
	}
}
