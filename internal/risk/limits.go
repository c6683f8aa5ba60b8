package risk

import (
	"fmt"
	"log/slog"
	"sync"

	"backtest_go/internal/domain"
)

// CorrelationMap is a symmetric pairwise correlation table supplied by the
// caller. It is never recomputed internally.
type CorrelationMap map[string]map[string]float64

// Limits are the exposure thresholds, all expressed as fractions of equity.
type Limits struct {
	MaxPositionSize       float64
	MaxPortfolioHeat      float64
	MaxDrawdown           float64
	DailyLossLimit        float64
	MaxSymbolExposure     float64
	MaxSectorExposure     float64
	MaxClusterExposure    float64
	MaxCorrelatedExposure float64
	CorrelationThreshold  float64
}

// DefaultLimits mirrors the calibrated production thresholds.
func DefaultLimits() Limits {
	return Limits{
		MaxPositionSize:       0.05,
		MaxPortfolioHeat:      0.10,
		MaxDrawdown:           0.15,
		DailyLossLimit:        0.03,
		MaxSymbolExposure:     0.10,
		MaxSectorExposure:     0.30,
		MaxClusterExposure:    0.25,
		MaxCorrelatedExposure: 0.20,
		CorrelationThreshold:  0.8,
	}
}

// RiskLimits enforces pre-trade admission control for one account. The
// equity peak, daily baseline and halt flag are single-writer state owned by
// this instance; one instance must not be shared across accounts. Reads and
// writes are serialized so telemetry can snapshot concurrently.
type RiskLimits struct {
	mu     sync.Mutex
	limits Limits

	equityPeak       float64 // high-water mark, monotonic non-decreasing
	dailyStartEquity float64 // reset once per trading day
	tradingHalted    bool    // sticky, cleared only by ResumeTrading
}

// RiskMetrics is a point-in-time view of the account risk state.
type RiskMetrics struct {
	Equity         float64
	EquityPeak     float64
	Drawdown       float64
	PositionValue  float64
	PositionPct    float64
	PortfolioHeat  float64
	HeatPct        float64
	UnrealizedPnL  float64
	DailyPnL       float64
	DailyPnLPct    float64
	OpenPositions  int
	TradingHalted  bool
	DailyBaseline  float64
}

// NewRiskLimits creates admission control for a single account.
func NewRiskLimits(limits Limits) *RiskLimits {
	return &RiskLimits{limits: limits}
}

// CheckOrder evaluates the proposed order against every policy in fixed
// order; the first failure wins. The outcome is a structured result, never
// an error: each check is an independent veto with one human-readable
// reason, not a weighted score.
func (r *RiskLimits) CheckOrder(order domain.Order, currentEquity float64, openPositions []domain.Position, correlations CorrelationMap) (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tradingHalted {
		return false, "Trading halted due to risk violation"
	}

	positionValue := order.Value()
	if maxValue := r.limits.MaxPositionSize * currentEquity; positionValue > maxValue {
		return false, fmt.Sprintf("Position size $%.2f exceeds %.1f%% limit ($%.2f)",
			positionValue, r.limits.MaxPositionSize*100, maxValue)
	}

	symbolExposure := positionValue
	for _, p := range openPositions {
		if p.Symbol == order.Symbol {
			symbolExposure += p.Value()
		}
	}
	if maxValue := r.limits.MaxSymbolExposure * currentEquity; symbolExposure > maxValue {
		return false, fmt.Sprintf("Symbol exposure $%.2f exceeds %.1f%% limit ($%.2f)",
			symbolExposure, r.limits.MaxSymbolExposure*100, maxValue)
	}

	if order.Sector != "" {
		sectorExposure := positionValue
		for _, p := range openPositions {
			if p.Sector == order.Sector {
				sectorExposure += p.Value()
			}
		}
		if maxValue := r.limits.MaxSectorExposure * currentEquity; sectorExposure > maxValue {
			return false, fmt.Sprintf("Sector exposure $%.2f exceeds %.1f%% limit ($%.2f)",
				sectorExposure, r.limits.MaxSectorExposure*100, maxValue)
		}
	}

	if order.Cluster != "" {
		clusterExposure := positionValue
		for _, p := range openPositions {
			if p.Cluster == order.Cluster {
				clusterExposure += p.Value()
			}
		}
		if maxValue := r.limits.MaxClusterExposure * currentEquity; clusterExposure > maxValue {
			return false, fmt.Sprintf("Cluster exposure $%.2f exceeds %.1f%% limit ($%.2f)",
				clusterExposure, r.limits.MaxClusterExposure*100, maxValue)
		}
	}

	totalRisk := order.Risk()
	for _, p := range openPositions {
		totalRisk += p.Risk()
	}
	if maxRisk := r.limits.MaxPortfolioHeat * currentEquity; totalRisk > maxRisk {
		return false, fmt.Sprintf("Portfolio heat $%.2f exceeds %.1f%% limit ($%.2f)",
			totalRisk, r.limits.MaxPortfolioHeat*100, maxRisk)
	}

	correlatedExposure := r.correlatedExposure(order, openPositions, correlations) + positionValue
	if maxValue := r.limits.MaxCorrelatedExposure * currentEquity; correlatedExposure > maxValue {
		return false, fmt.Sprintf("Correlated exposure $%.2f exceeds %.1f%% limit ($%.2f)",
			correlatedExposure, r.limits.MaxCorrelatedExposure*100, maxValue)
	}

	drawdown := r.drawdown(currentEquity)
	if drawdown > r.limits.MaxDrawdown {
		// The one condition that converts a local rejection into persistent
		// cross-order state. Only ResumeTrading clears it.
		r.tradingHalted = true
		slog.Error("max drawdown breached, halting all trading",
			slog.Float64("drawdown", drawdown),
			slog.Float64("limit", r.limits.MaxDrawdown))
		return false, fmt.Sprintf("Max drawdown %.2f%% exceeded (limit: %.1f%%) - HALTING ALL TRADING",
			drawdown*100, r.limits.MaxDrawdown*100)
	}

	if r.dailyStartEquity > 0 {
		dailyPnL := currentEquity - r.dailyStartEquity
		if dailyPnL < 0 {
			dailyLossPct := -dailyPnL / r.dailyStartEquity
			if dailyLossPct > r.limits.DailyLossLimit {
				slog.Warn("daily loss limit exceeded",
					slog.Float64("daily_loss_pct", dailyLossPct),
					slog.Float64("limit", r.limits.DailyLossLimit))
				return false, fmt.Sprintf("Daily loss limit %.1f%% exceeded", r.limits.DailyLossLimit*100)
			}
		}
	}

	return true, "Order approved"
}

// correlatedExposure sums open-position values whose correlation with the
// order's symbol meets the threshold. Caller holds the lock.
func (r *RiskLimits) correlatedExposure(order domain.Order, openPositions []domain.Position, correlations CorrelationMap) float64 {
	if correlations == nil {
		return 0
	}
	orderCorrs := correlations[order.Symbol]
	if orderCorrs == nil {
		return 0
	}
	var correlated float64
	for _, p := range openPositions {
		corr := orderCorrs[p.Symbol]
		if corr < 0 {
			corr = -corr
		}
		if corr >= r.limits.CorrelationThreshold {
			correlated += p.Value()
		}
	}
	return correlated
}

// drawdown advances the high-water mark and returns the fractional decline
// from it. Caller holds the lock.
func (r *RiskLimits) drawdown(currentEquity float64) float64 {
	if currentEquity > r.equityPeak {
		r.equityPeak = currentEquity
	}
	if r.equityPeak <= 0 {
		return 0
	}
	return (r.equityPeak - currentEquity) / r.equityPeak
}

// UpdateEquity advances the high-water mark and seeds the daily baseline on
// first sight of the day.
func (r *RiskLimits) UpdateEquity(currentEquity float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if currentEquity > r.equityPeak {
		r.equityPeak = currentEquity
	}
	if r.dailyStartEquity == 0 {
		r.dailyStartEquity = currentEquity
	}
}

// ResetDaily re-baselines the daily loss measurement. Call once per trading
// day.
func (r *RiskLimits) ResetDaily(currentEquity float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dailyStartEquity = currentEquity
	slog.Info("daily risk baseline reset", slog.Float64("equity", currentEquity))
}

// ResumeTrading clears the sticky halt flag. This is the only way to unhalt.
func (r *RiskLimits) ResumeTrading() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tradingHalted = false
	slog.Warn("trading resumed manually")
}

// Halted reports whether the sticky halt flag is set.
func (r *RiskLimits) Halted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tradingHalted
}

// CurrentMetrics derives the risk snapshot for telemetry.
func (r *RiskLimits) CurrentMetrics(currentEquity float64, openPositions []domain.Position) RiskMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	var totalValue, totalRisk, totalPnL float64
	for _, p := range openPositions {
		totalValue += p.Value()
		totalRisk += p.Risk()
		totalPnL += p.PnL()
	}

	m := RiskMetrics{
		Equity:        currentEquity,
		EquityPeak:    r.equityPeak,
		Drawdown:      r.drawdown(currentEquity),
		PositionValue: totalValue,
		PortfolioHeat: totalRisk,
		UnrealizedPnL: totalPnL,
		OpenPositions: len(openPositions),
		TradingHalted: r.tradingHalted,
		DailyBaseline: r.dailyStartEquity,
	}
	if currentEquity > 0 {
		m.PositionPct = totalValue / currentEquity
		m.HeatPct = totalRisk / currentEquity
	}
	if r.dailyStartEquity > 0 {
		m.DailyPnL = currentEquity - r.dailyStartEquity
		m.DailyPnLPct = m.DailyPnL / r.dailyStartEquity
	}
	return m
}
