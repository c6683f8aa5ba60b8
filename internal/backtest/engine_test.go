package backtest

import (
	"errors"
	"math"
	"testing"
	"time"

	"backtest_go/internal/domain"
)

// scriptedStrategy replays a fixed signal column, or misbehaves on demand.
type scriptedStrategy struct {
	signals []int
	err     error
	nilOut  bool
}

func (s *scriptedStrategy) Name() string { return "scripted" }

func (s *scriptedStrategy) GenerateSignals(bars []domain.Bar) ([]domain.Bar, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.nilOut {
		return nil, nil
	}
	out := make([]domain.Bar, len(bars))
	copy(out, bars)
	for i := range out {
		if i < len(s.signals) {
			out[i].Signal = s.signals[i]
		}
	}
	return out, nil
}

func testBars(closes ...float64) []domain.Bar {
	base := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      c, High: c, Low: c, Close: c,
			Volume: 100,
		}
	}
	return bars
}

func TestRunEmptySeries(t *testing.T) {
	eng := NewEngine(Config{InitialCapital: 10000}, nil)
	_, err := eng.Run(&scriptedStrategy{}, nil, nil)
	if !errors.Is(err, domain.ErrEmptySeries) {
		t.Fatalf("expected ErrEmptySeries, got %v", err)
	}
}

func TestRunStrategyContractViolations(t *testing.T) {
	eng := NewEngine(Config{InitialCapital: 10000}, nil)
	bars := testBars(100, 101, 102)

	t.Run("strategy error", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := eng.Run(&scriptedStrategy{err: boom}, bars, nil)
		if !errors.Is(err, boom) {
			t.Errorf("expected wrapped strategy error, got %v", err)
		}
		var ce *domain.ContractError
		if !errors.As(err, &ce) {
			t.Errorf("expected ContractError, got %T", err)
		}
	})

	t.Run("nil signals", func(t *testing.T) {
		_, err := eng.Run(&scriptedStrategy{nilOut: true}, bars, nil)
		if !errors.Is(err, domain.ErrNoSignals) {
			t.Errorf("expected ErrNoSignals, got %v", err)
		}
	})

	t.Run("out of range signal", func(t *testing.T) {
		_, err := eng.Run(&scriptedStrategy{signals: []int{0, 2, 0}}, bars, nil)
		if !errors.Is(err, domain.ErrInvalidSignal) {
			t.Errorf("expected ErrInvalidSignal, got %v", err)
		}
	})
}

func TestRunZeroSignalsFlatEquity(t *testing.T) {
	eng := NewEngine(Config{InitialCapital: 10000, CommissionPct: 0.001}, nil)
	bars := testBars(100, 110, 105, 120)

	res, err := eng.Run(&scriptedStrategy{signals: []int{0, 0, 0, 0}}, bars, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for i, row := range res.Rows {
		if row.Equity != 10000 {
			t.Errorf("row %d equity = %v, want exactly 10000", i, row.Equity)
		}
	}
	if res.Metrics["total_trades"] != 0 {
		t.Errorf("total_trades = %v, want 0", res.Metrics["total_trades"])
	}
	if res.Metrics["turnover"] != 0 {
		t.Errorf("turnover = %v, want 0", res.Metrics["turnover"])
	}
}

func TestRunNoLookahead(t *testing.T) {
	// Zero costs so returns come from the position lag alone.
	eng := NewEngine(Config{InitialCapital: 10000}, nil)
	bars := testBars(100, 110, 121)

	res, err := eng.Run(&scriptedStrategy{signals: []int{1, 1, 1}}, bars, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Bar 0: no prior position, no market return.
	if res.Rows[0].StrategyReturn != 0 {
		t.Errorf("row 0 strategy return = %v, want 0", res.Rows[0].StrategyReturn)
	}
	// Bar 1: market +10%, but the position entering bar 1 was filled at bar 0.
	if want := 0.01 * 0.10; math.Abs(res.Rows[1].StrategyReturn-want) > 1e-12 {
		t.Errorf("row 1 strategy return = %v, want %v", res.Rows[1].StrategyReturn, want)
	}
	if res.Rows[1].PositionLagged != res.Rows[0].RealizedPosition {
		t.Errorf("lagged position %v should equal prior realized %v",
			res.Rows[1].PositionLagged, res.Rows[0].RealizedPosition)
	}
}

func TestRunEquityStartsAtCapital(t *testing.T) {
	// A trade on bar 0 incurs cost, but equity[0] is still pinned.
	eng := NewEngine(Config{InitialCapital: 10000, CommissionPct: 0.01}, nil)
	bars := testBars(100, 101)

	res, err := eng.Run(&scriptedStrategy{signals: []int{1, 1}}, bars, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Rows[0].Costs <= 0 {
		t.Fatalf("expected a cost on bar 0, got %v", res.Rows[0].Costs)
	}
	if res.Rows[0].Equity != 10000 {
		t.Errorf("row 0 equity = %v, want exactly 10000", res.Rows[0].Equity)
	}
}

func TestRunLimitOrdersFillPartially(t *testing.T) {
	eng := NewEngine(Config{InitialCapital: 10000}, nil)
	bars := testBars(100, 101, 102)
	for i := range bars {
		bars[i].OrderType = domain.OrderTypeLimit
		bars[i].BookDepth = 0.005 // thin book relative to the default 1.0
	}

	res, err := eng.Run(&scriptedStrategy{signals: []int{1, 1, 1}}, bars, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	r0 := res.Rows[0]
	if r0.RealizedPosition >= r0.Position {
		t.Errorf("thin-book limit order should fill partially: realized %v target %v",
			r0.RealizedPosition, r0.Position)
	}
	if r0.RealizedPosition <= 0 {
		t.Errorf("some fill expected, got %v", r0.RealizedPosition)
	}
}

// fixedSizer always returns the same currency size.
type fixedSizer struct{ size float64 }

func (f fixedSizer) CalculatePosition(signal int, equity, drawdown float64) float64 {
	if signal == 0 {
		return 0
	}
	return f.size
}

func TestRunSizerConvertsToFraction(t *testing.T) {
	eng := NewEngine(Config{InitialCapital: 10000}, nil)
	bars := testBars(100, 101)

	res, err := eng.Run(&scriptedStrategy{signals: []int{-1, -1}}, bars, fixedSizer{size: 500})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// 500 of 10000 equity, short.
	if want := -0.05; math.Abs(res.Rows[0].Position-want) > 1e-12 {
		t.Errorf("target position = %v, want %v", res.Rows[0].Position, want)
	}
}
