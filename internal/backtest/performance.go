package backtest

import (
	"math"
	"time"

	"backtest_go/internal/domain"
)

// Performance metrics derived from a completed equity/return series.
// All values are keyed by name in the metrics map the engine returns so the
// reporting layer can consume them without knowing this package.

const (
	tradingDaysPerYear = 252
	minutesPerDay      = 390 // regular session; used to infer bars per day
)

// annualPeriods infers the annualization factor from the median bar spacing.
// Falls back to minute bars when timestamps are missing or degenerate.
func annualPeriods(bars []domain.Bar) float64 {
	barsPerDay := float64(minutesPerDay)
	if len(bars) >= 2 {
		diffs := make([]time.Duration, 0, len(bars)-1)
		for i := 1; i < len(bars); i++ {
			diffs = append(diffs, bars[i].Timestamp.Sub(bars[i-1].Timestamp))
		}
		med := medianDuration(diffs)
		if minutes := med.Minutes(); minutes > 0 {
			barsPerDay = minutesPerDay / minutes
		}
	}
	return tradingDaysPerYear * barsPerDay
}

func medianDuration(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(ds))
	copy(sorted, ds)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return sorted[len(sorted)/2]
}

// SharpeRatio is mean/std of per-bar returns scaled by sqrt(periods per year).
func SharpeRatio(returns []float64, periodsPerYear float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean, std := meanStd(returns)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(periodsPerYear)
}

// SortinoRatio penalizes downside volatility only. Returns +Inf when there
// are no losing bars.
func SortinoRatio(returns []float64, periodsPerYear float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean, _ := meanStd(returns)
	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) == 0 {
		return math.Inf(1)
	}
	_, downStd := meanStd(downside)
	if downStd == 0 {
		return 0
	}
	return mean / downStd * math.Sqrt(periodsPerYear)
}

// MaxDrawdown is the largest peak-to-trough equity decline, as a negative
// fraction (-0.15 for a 15% drawdown).
func MaxDrawdown(equity []float64) float64 {
	if len(equity) < 2 {
		return 0
	}
	runningMax := equity[0]
	maxDD := 0.0
	for _, e := range equity {
		if e > runningMax {
			runningMax = e
		}
		if runningMax > 0 {
			dd := (e - runningMax) / runningMax
			if dd < maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// WinRate is the fraction of non-zero return bars that were profitable.
func WinRate(returns []float64) float64 {
	wins, trades := 0, 0
	for _, r := range returns {
		if r != 0 {
			trades++
			if r > 0 {
				wins++
			}
		}
	}
	if trades == 0 {
		return 0
	}
	return float64(wins) / float64(trades)
}

// ProfitFactor is gross profit over gross loss. +Inf when profitable with no
// losses, 0 when there is nothing on either side.
func ProfitFactor(returns []float64) float64 {
	profits, losses := 0.0, 0.0
	for _, r := range returns {
		if r > 0 {
			profits += r
		} else if r < 0 {
			losses += -r
		}
	}
	if losses == 0 {
		if profits > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return profits / losses
}

// AvgWin is the mean profitable bar return.
func AvgWin(returns []float64) float64 {
	sum, n := 0.0, 0
	for _, r := range returns {
		if r > 0 {
			sum += r
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// AvgLoss is the mean losing bar return, as a positive number.
func AvgLoss(returns []float64) float64 {
	sum, n := 0.0, 0
	for _, r := range returns {
		if r < 0 {
			sum += -r
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// CalculateMetrics derives the full metrics map from a backtest result.
func CalculateMetrics(rows []Row, bars []domain.Bar, initialCapital float64) map[string]float64 {
	if len(rows) == 0 {
		return emptyMetrics()
	}

	returns := make([]float64, len(rows))
	equity := make([]float64, len(rows))
	for i, r := range rows {
		returns[i] = r.NetReturn
		equity[i] = r.Equity
	}

	periodsPerYear := annualPeriods(bars)
	stats := domain.Stats(bars)

	totalReturn := 0.0
	if initialCapital > 0 {
		totalReturn = equity[len(equity)-1]/initialCapital - 1
	}

	m := map[string]float64{
		"sharpe_ratio":  SharpeRatio(returns, periodsPerYear),
		"sortino_ratio": SortinoRatio(returns, periodsPerYear),
		"max_drawdown":  MaxDrawdown(equity),
		"total_return":  totalReturn,
		"win_rate":      WinRate(returns),
		"profit_factor": ProfitFactor(returns),
		"total_trades":  float64(stats.Changes),
		"avg_win":       AvgWin(returns),
		"avg_loss":      AvgLoss(returns),
		"calmar_ratio":  0,
	}

	annualReturn := totalReturn * periodsPerYear / float64(len(returns))
	if dd := m["max_drawdown"]; dd < 0 {
		m["calmar_ratio"] = annualReturn / math.Abs(dd)
	}
	return m
}

func emptyMetrics() map[string]float64 {
	return map[string]float64{
		"sharpe_ratio":  0,
		"sortino_ratio": 0,
		"max_drawdown":  0,
		"total_return":  0,
		"win_rate":      0,
		"profit_factor": 0,
		"total_trades":  0,
		"avg_win":       0,
		"avg_loss":      0,
		"calmar_ratio":  0,
	}
}

func meanStd(xs []float64) (mean, std float64) {
	n := float64(len(xs))
	if n == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= n
	if n < 2 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	// Sample standard deviation.
	std = math.Sqrt(ss / (n - 1))
	return mean, std
}
