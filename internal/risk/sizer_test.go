package risk

import (
	"math"
	"testing"
)

func TestKellyClampedToMaxRisk(t *testing.T) {
	// win_rate 0.55, avg_win 2%, avg_loss 1.5%: raw Kelly is far above the
	// cap, so the clamp at max_risk decides the size.
	s := NewPositionSizer(MethodKelly, SizingParams{
		WinRate:      0.55,
		AvgWin:       0.02,
		AvgLoss:      0.015,
		SafetyFactor: 0.5,
		MaxRisk:      0.02,
	})

	got := s.CalculatePosition(1, 10000, 0)
	if math.Abs(got-200) > 1e-9 {
		t.Errorf("Kelly position = %v, want 200 (2%% of equity)", got)
	}
}

func TestKellyFallbackOnBadStats(t *testing.T) {
	cases := []struct {
		name    string
		winRate float64
		avgWin  float64
		avgLoss float64
	}{
		{"zero win rate", 0, 0.02, 0.015},
		{"win rate one", 1, 0.02, 0.015},
		{"zero avg win", 0.55, 0, 0.015},
		{"zero avg loss", 0.55, 0.02, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := KellySizing(tc.winRate, tc.avgWin, tc.avgLoss, 10000, 0.5, 0.02)
			// Falls back to fixed fractional at 1%.
			if math.Abs(got-100) > 1e-9 {
				t.Errorf("got %v, want 100", got)
			}
		})
	}
}

func TestKellyNegativeEdgeFloorsAtZero(t *testing.T) {
	// Low win rate with large losses: Kelly goes negative, floor at 0.
	got := KellySizing(0.2, 0.01, 0.10, 10000, 0.5, 0.02)
	if got != 0 {
		t.Errorf("negative-edge Kelly = %v, want 0", got)
	}
}

func TestFixedFractionalRangeGuard(t *testing.T) {
	if got := FixedFractional(10000, 0.05); math.Abs(got-500) > 1e-9 {
		t.Errorf("got %v, want 500", got)
	}
	// Out of (0, 0.1] falls back to 1%.
	if got := FixedFractional(10000, 0.5); math.Abs(got-100) > 1e-9 {
		t.Errorf("oversized fraction: got %v, want 100", got)
	}
	if got := FixedFractional(10000, -0.01); math.Abs(got-100) > 1e-9 {
		t.Errorf("negative fraction: got %v, want 100", got)
	}
}

func TestVolatilityBasedClamps(t *testing.T) {
	// Calm market: scale 0.02/0.001 = 20x, clamped to 2x base.
	if got := VolatilityBased(10000, 0.001, 0.02, 0.01); math.Abs(got-200) > 1e-9 {
		t.Errorf("calm market: got %v, want 200", got)
	}
	// Stressed market: scale far below 0.5x, clamped up.
	if got := VolatilityBased(10000, 0.5, 0.02, 0.01); math.Abs(got-50) > 1e-9 {
		t.Errorf("stressed market: got %v, want 50", got)
	}
	// Bad vol falls back to fixed fractional at base risk.
	if got := VolatilityBased(10000, 0, 0.02, 0.01); math.Abs(got-100) > 1e-9 {
		t.Errorf("zero vol: got %v, want 100", got)
	}
}

func TestDrawdownLadder(t *testing.T) {
	s := NewPositionSizer(MethodFixedFractional, SizingParams{RiskPerTrade: 0.01})

	full := s.CalculatePosition(1, 10000, 0.0)
	mid := s.CalculatePosition(1, 10000, 0.07)
	deep := s.CalculatePosition(1, 10000, 0.15)

	if math.Abs(full-100) > 1e-9 {
		t.Errorf("no drawdown: got %v, want 100", full)
	}
	if math.Abs(mid-60) > 1e-9 {
		t.Errorf("7%% drawdown: got %v, want 60", mid)
	}
	if math.Abs(deep-30) > 1e-9 {
		t.Errorf("15%% drawdown: got %v, want 30", deep)
	}
	if !(full >= mid && mid >= deep) {
		t.Error("ladder must be monotone non-increasing in drawdown")
	}
}

func TestZeroSignalZeroSize(t *testing.T) {
	s := NewPositionSizer(MethodKelly, SizingParams{WinRate: 0.55, AvgWin: 0.02, AvgLoss: 0.015})
	if got := s.CalculatePosition(0, 10000, 0); got != 0 {
		t.Errorf("zero signal: got %v, want 0", got)
	}
}

func TestUnknownMethodFallsBack(t *testing.T) {
	s := NewPositionSizer("martingale", SizingParams{})
	if s.Method != MethodFixedFractional {
		t.Errorf("method = %q, want fixed fractional fallback", s.Method)
	}
	// Defaults filled in.
	if s.Params.RiskPerTrade != 0.01 || s.Params.MaxRisk != 0.02 || s.Params.SafetyFactor != 0.5 {
		t.Errorf("defaults not applied: %+v", s.Params)
	}
}
