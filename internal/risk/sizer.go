package risk

import "log/slog"

// Position sizing methods.
const (
	MethodFixedFractional = "fixed_fractional"
	MethodKelly           = "kelly"
	MethodVolatility      = "volatility_based"
)

// SizingParams carries the method-specific inputs. Zero values fall back to
// the documented defaults at construction time.
type SizingParams struct {
	// fixed fractional
	RiskPerTrade float64

	// kelly
	WinRate      float64
	AvgWin       float64
	AvgLoss      float64
	SafetyFactor float64
	MaxRisk      float64

	// volatility based
	Volatility       float64
	TargetVolatility float64
	BaseRisk         float64
}

// PositionSizer converts a signal and account state into a position size in
// currency units. The engine holds it behind a one-method interface.
type PositionSizer struct {
	Method string
	Params SizingParams
}

// NewPositionSizer builds a sizer with defaults filled in. Unknown methods
// fall back to fixed fractional.
func NewPositionSizer(method string, params SizingParams) *PositionSizer {
	if params.RiskPerTrade == 0 {
		params.RiskPerTrade = 0.01
	}
	if params.SafetyFactor == 0 {
		params.SafetyFactor = 0.5
	}
	if params.MaxRisk == 0 {
		params.MaxRisk = 0.02
	}
	if params.TargetVolatility == 0 {
		params.TargetVolatility = 0.02
	}
	if params.BaseRisk == 0 {
		params.BaseRisk = 0.01
	}
	switch method {
	case MethodKelly, MethodVolatility, MethodFixedFractional:
	default:
		method = MethodFixedFractional
	}
	return &PositionSizer{Method: method, Params: params}
}

// CalculatePosition returns the position size in currency for one signal.
// Every method is scaled by the drawdown de-risking ladder; a zero signal
// always yields zero.
func (s *PositionSizer) CalculatePosition(signal int, equity, drawdown float64) float64 {
	if signal == 0 {
		return 0
	}

	var size float64
	switch s.Method {
	case MethodKelly:
		size = KellySizing(s.Params.WinRate, s.Params.AvgWin, s.Params.AvgLoss,
			equity, s.Params.SafetyFactor, s.Params.MaxRisk)
	case MethodVolatility:
		size = VolatilityBased(equity, s.Params.Volatility,
			s.Params.TargetVolatility, s.Params.BaseRisk)
	default:
		size = FixedFractional(equity, s.Params.RiskPerTrade)
	}

	return size * drawdownMultiplier(drawdown)
}

// drawdownMultiplier is a monotone de-risking ladder independent of the
// sizing method: full size below 5% drawdown, 0.6 between 5-10%, 0.3 beyond.
func drawdownMultiplier(drawdown float64) float64 {
	switch {
	case drawdown < 0.05:
		return 1.0
	case drawdown < 0.10:
		return 0.6
	default:
		return 0.3
	}
}

// FixedFractional risks a fixed percentage of equity per trade. Out-of-range
// fractions are replaced with 1%.
func FixedFractional(equity, riskPerTrade float64) float64 {
	if riskPerTrade <= 0 || riskPerTrade > 0.1 {
		slog.Warn("risk_per_trade out of range, using 0.01",
			slog.Float64("risk_per_trade", riskPerTrade))
		riskPerTrade = 0.01
	}
	return equity * riskPerTrade
}

// KellySizing computes f = p/avgLoss - (1-p)/avgWin, clamped to [0, maxRisk]
// after the safety factor. Degenerate statistics fall back to fixed
// fractional at 1%.
func KellySizing(winRate, avgWin, avgLoss, equity, safetyFactor, maxRisk float64) float64 {
	if winRate <= 0 || winRate >= 1 {
		slog.Warn("invalid win_rate, using fixed fractional", slog.Float64("win_rate", winRate))
		return FixedFractional(equity, 0.01)
	}
	if avgWin <= 0 || avgLoss <= 0 {
		slog.Warn("invalid avg_win/avg_loss, using fixed fractional",
			slog.Float64("avg_win", avgWin), slog.Float64("avg_loss", avgLoss))
		return FixedFractional(equity, 0.01)
	}

	kelly := winRate/avgLoss - (1-winRate)/avgWin
	fraction := kelly * safetyFactor
	if fraction < 0 {
		fraction = 0
	}
	if fraction > maxRisk {
		fraction = maxRisk
	}
	return fraction * equity
}

// VolatilityBased scales the base risk by targetVolatility/volatility,
// clamped between half and twice the base. Non-positive volatility falls
// back to fixed fractional at the base risk.
func VolatilityBased(equity, volatility, targetVolatility, baseRisk float64) float64 {
	if volatility <= 0 {
		slog.Warn("invalid volatility, using fixed fractional", slog.Float64("volatility", volatility))
		return FixedFractional(equity, baseRisk)
	}

	adjusted := baseRisk * targetVolatility / volatility
	if lo := baseRisk * 0.5; adjusted < lo {
		adjusted = lo
	}
	if hi := baseRisk * 2.0; adjusted > hi {
		adjusted = hi
	}
	return equity * adjusted
}
