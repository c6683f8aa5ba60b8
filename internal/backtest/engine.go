package backtest

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"backtest_go/internal/domain"
	"backtest_go/internal/strategy"
)

// Sizer converts a signal and account state into a position size in currency
// units. Implemented by risk.PositionSizer; the engine only sees this one
// method, resolved at construction time.
type Sizer interface {
	CalculatePosition(signal int, equity, drawdown float64) float64
}

// Config holds the cost and capital parameters of a backtest run.
type Config struct {
	InitialCapital      float64
	CommissionPct       float64
	SlippagePct         float64
	SpreadPct           float64
	ImpactPct           float64
	DefaultRiskPerTrade float64 // used when no sizer is supplied
}

// Row is one output bar: the input bar augmented with the derived columns.
// History already written is never mutated; each bar appends one row.
type Row struct {
	domain.Bar

	MarketReturn     float64 `json:"market_return"`
	Position         float64 `json:"position"`          // target, fraction of equity
	RealizedPosition float64 `json:"realized_position"` // after partial fills
	PositionLagged   float64 `json:"position_lagged"`   // realized position entering the bar
	StrategyReturn   float64 `json:"strategy_return"`
	Costs            float64 `json:"costs"`
	NetReturn        float64 `json:"net_return"`
	Equity           float64 `json:"equity"`
}

// Result is the stable output contract consumed by reporting/attribution.
type Result struct {
	Rows    []Row
	Metrics map[string]float64
}

// Engine orchestrates signal generation, position sizing, the execution
// model, cost accounting and equity accumulation over a historical series.
// The per-bar loop is strictly sequential: each bar's realized position
// depends on the prior bar's, so it must not be parallelized.
type Engine struct {
	cfg  Config
	exec *ExecutionModel
}

// NewEngine builds an engine from cost parameters and an execution model.
// A nil execution model gets the default limit-fill sensitivity.
func NewEngine(cfg Config, exec *ExecutionModel) *Engine {
	if exec == nil {
		exec = NewExecutionModel(DefaultLimitFillSensitivity)
	}
	if cfg.DefaultRiskPerTrade <= 0 {
		cfg.DefaultRiskPerTrade = 0.01
	}
	return &Engine{cfg: cfg, exec: exec}
}

// Run executes the strategy over the series. A nil sizer means a fixed
// default risk fraction per signal. All-zero-signal inputs are valid and
// produce zero trades.
func (e *Engine) Run(strat strategy.Strategy, bars []domain.Bar, sizer Sizer) (*Result, error) {
	if len(bars) == 0 {
		return nil, domain.ErrEmptySeries
	}
	started := time.Now()

	signaled, err := strat.GenerateSignals(bars)
	if err != nil {
		return nil, domain.NewContractError("generate_signals", err)
	}
	if signaled == nil || len(signaled) != len(bars) {
		return nil, domain.NewContractError("generate_signals",
			fmt.Errorf("%w: got %d bars for %d inputs", domain.ErrNoSignals, len(signaled), len(bars)))
	}
	if err := domain.ValidateSignals(signaled); err != nil {
		return nil, domain.NewContractError("generate_signals", err)
	}

	costRateBase := e.cfg.CommissionPct + e.cfg.SlippagePct + e.cfg.SpreadPct

	rows := make([]Row, len(signaled))
	equity := e.cfg.InitialCapital
	equityPeak := e.cfg.InitialCapital
	realizedPrev := 0.0
	totalTurnover := 0.0

	for t, bar := range signaled {
		var marketReturn float64
		if t > 0 && signaled[t-1].Close != 0 {
			marketReturn = bar.Close/signaled[t-1].Close - 1
		}

		// The position entering bar t is the one realized before t, never
		// t's own fill. This lag is the anti-lookahead invariant.
		strategyReturn := realizedPrev * marketReturn

		drawdown := 0.0
		if equityPeak > 0 {
			drawdown = (equityPeak - equity) / equityPeak
		}

		target := e.targetPosition(bar.Signal, equity, drawdown, sizer)

		delta := target - realizedPrev
		fill := e.exec.SimulateFill(math.Abs(delta), orderTypeOf(bar), bookDepthOf(bar), bar.Volatility)
		realized := realizedPrev + fill.FillRatio*delta

		turnover := math.Abs(realized - realizedPrev)
		cost := turnover * (costRateBase + e.cfg.ImpactPct*math.Abs(marketReturn)) * fill.FeeMultiplier
		netReturn := strategyReturn - cost

		if t == 0 {
			// Equity starts exactly at initial capital.
			equity = e.cfg.InitialCapital
		} else {
			equity *= 1 + netReturn
		}
		if equity > equityPeak {
			equityPeak = equity
		}
		totalTurnover += turnover

		rows[t] = Row{
			Bar:              bar,
			MarketReturn:     marketReturn,
			Position:         target,
			RealizedPosition: realized,
			PositionLagged:   realizedPrev,
			StrategyReturn:   strategyReturn,
			Costs:            cost,
			NetReturn:        netReturn,
			Equity:           equity,
		}
		realizedPrev = realized
	}

	metrics := CalculateMetrics(rows, signaled, e.cfg.InitialCapital)
	metrics["turnover"] = totalTurnover
	metrics["runtime_seconds"] = time.Since(started).Seconds()

	slog.Info("backtest complete",
		slog.String("strategy", strat.Name()),
		slog.Int("bars", len(rows)),
		slog.Float64("total_return", metrics["total_return"]),
		slog.Float64("sharpe_ratio", metrics["sharpe_ratio"]),
		slog.Float64("max_drawdown", metrics["max_drawdown"]),
		slog.Float64("turnover", totalTurnover))

	return &Result{Rows: rows, Metrics: metrics}, nil
}

// targetPosition is the sized position as a signed fraction of equity.
func (e *Engine) targetPosition(signal int, equity, drawdown float64, sizer Sizer) float64 {
	if signal == 0 {
		return 0
	}
	if sizer == nil {
		return float64(signal) * e.cfg.DefaultRiskPerTrade
	}
	if equity <= 0 {
		return 0
	}
	size := sizer.CalculatePosition(signal, equity, drawdown)
	return sign(signal) * size / equity
}

func sign(s int) float64 {
	if s < 0 {
		return -1
	}
	return 1
}

func orderTypeOf(b domain.Bar) string {
	if b.OrderType == "" {
		return domain.OrderTypeMarket
	}
	return b.OrderType
}

func bookDepthOf(b domain.Bar) float64 {
	if b.BookDepth == 0 {
		return 1 // full depth by default
	}
	return b.BookDepth
}
