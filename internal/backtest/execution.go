package backtest

import (
	"math"

	"backtest_go/internal/domain"
)

// FillResult is the outcome of one simulated execution step. It lives for a
// single bar: the engine consumes it and throws it away.
type FillResult struct {
	FillRatio     float64 // fraction of the requested size that filled, [0,1]
	FeeMultiplier float64 // scales the turnover cost for this step
}

// ExecutionModel converts a requested position change into a realized fill
// given order type, available depth and volatility. Market orders always
// fill but pay up under stress; limit orders fill partially and cheaply.
type ExecutionModel struct {
	// LimitFillSensitivity is the exponent constant k in exp(-k*vol).
	LimitFillSensitivity float64
}

// DefaultLimitFillSensitivity matches the calibrated constant of the model.
const DefaultLimitFillSensitivity = 4.0

// NewExecutionModel creates an execution model with the given limit-fill
// sensitivity. Non-positive sensitivity falls back to the default.
func NewExecutionModel(sensitivity float64) *ExecutionModel {
	if sensitivity <= 0 {
		sensitivity = DefaultLimitFillSensitivity
	}
	return &ExecutionModel{LimitFillSensitivity: sensitivity}
}

// SimulateFill returns the fill ratio and fee multiplier for an order of the
// given absolute size. Depth scarcity and volatility both suppress limit
// fills; the two effects multiply, never add.
func (m *ExecutionModel) SimulateFill(orderSize float64, orderType string, bookDepth, volatility float64) FillResult {
	absSize := math.Abs(orderSize)
	if absSize <= 0 {
		return FillResult{FillRatio: 0, FeeMultiplier: 1}
	}

	if orderType != domain.OrderTypeLimit {
		// Market always fills but incurs higher impact under higher vol.
		return FillResult{
			FillRatio:     1,
			FeeMultiplier: 1 + math.Min(2, volatility*20),
		}
	}

	depthFactor := math.Min(1, bookDepth/math.Max(absSize, 1e-9))
	volPenalty := math.Exp(-m.LimitFillSensitivity * math.Max(0, volatility))
	fillRatio := clip(depthFactor*volPenalty, 0, 1)

	// Passive orders earn a fee discount but carry partial-fill risk.
	return FillResult{FillRatio: fillRatio, FeeMultiplier: 0.7}
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
