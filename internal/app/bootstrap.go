package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"backtest_go/internal/backtest"
	"backtest_go/internal/domain"
	"backtest_go/internal/engine"
	"backtest_go/internal/event"
	"backtest_go/internal/execution"
	"backtest_go/internal/infra"
	"backtest_go/internal/infra/storage"
	"backtest_go/internal/marketdata"
	"backtest_go/internal/risk"
	"backtest_go/internal/strategy"
	"backtest_go/internal/telemetry"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config  *infra.Config
	Storage *storage.Storage
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization (config, logger, DB).
func (b *Bootstrap) Initialize(configPath string) error {
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	store, err := storage.NewStorage(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("Database initialized")

	return nil
}

func (b *Bootstrap) engineConfig() backtest.Config {
	c := b.Config.Backtest
	return backtest.Config{
		InitialCapital:      c.InitialCapital.InexactFloat64(),
		CommissionPct:       c.CommissionPct.InexactFloat64(),
		SlippagePct:         c.SlippagePct.InexactFloat64(),
		SpreadPct:           c.SpreadPct.InexactFloat64(),
		ImpactPct:           c.ImpactPct.InexactFloat64(),
		DefaultRiskPerTrade: c.DefaultRiskPct.InexactFloat64(),
	}
}

func (b *Bootstrap) executionModel() *backtest.ExecutionModel {
	k := b.Config.Backtest.LimitFillSteepness.InexactFloat64()
	if k <= 0 {
		k = backtest.DefaultLimitFillSensitivity
	}
	return backtest.NewExecutionModel(k)
}

func (b *Bootstrap) sizer() backtest.Sizer {
	s := b.Config.Sizing
	return risk.NewPositionSizer(s.Method, risk.SizingParams{
		RiskPerTrade:     s.RiskPerTrade.InexactFloat64(),
		SafetyFactor:     s.KellySafety.InexactFloat64(),
		MaxRisk:          s.KellyMaxRisk.InexactFloat64(),
		TargetVolatility: s.TargetVolatility.InexactFloat64(),
	})
}

func (b *Bootstrap) limits() risk.Limits {
	r := b.Config.Risk
	limits := risk.DefaultLimits()
	if v := r.MaxPositionPct.InexactFloat64(); v > 0 {
		limits.MaxPositionSize = v
	}
	if v := r.MaxSymbolPct.InexactFloat64(); v > 0 {
		limits.MaxSymbolExposure = v
	}
	if v := r.MaxSectorPct.InexactFloat64(); v > 0 {
		limits.MaxSectorExposure = v
	}
	if v := r.MaxClusterPct.InexactFloat64(); v > 0 {
		limits.MaxClusterExposure = v
	}
	if v := r.MaxPortfolioHeat.InexactFloat64(); v > 0 {
		limits.MaxPortfolioHeat = v
	}
	if v := r.MaxCorrelatedPct.InexactFloat64(); v > 0 {
		limits.MaxCorrelatedExposure = v
	}
	if v := r.CorrelationCutoff.InexactFloat64(); v > 0 {
		limits.CorrelationThreshold = v
	}
	if v := r.MaxDrawdownPct.InexactFloat64(); v > 0 {
		limits.MaxDrawdown = v
	}
	if v := r.MaxDailyLossPct.InexactFloat64(); v > 0 {
		limits.DailyLossLimit = v
	}
	return limits
}

// RunBacktest loads the configured candle file, runs a single backtest and
// persists the run summary.
func (b *Bootstrap) RunBacktest(ctx context.Context) error {
	bars, err := marketdata.LoadCSV(b.Config.Backtest.DataFile)
	if err != nil {
		return fmt.Errorf("load data: %w", err)
	}
	slog.Info("Data loaded", slog.Int("bars", len(bars)))

	strat := strategy.NewMeanReversion(strategy.DefaultMeanReversionConfig())
	eng := backtest.NewEngine(b.engineConfig(), b.executionModel())

	result, err := eng.Run(strat, bars, b.sizer())
	if err != nil {
		return err
	}

	return b.saveRun(strat.Name(), "backtest", len(bars), result.Metrics)
}

// RunWalkForward runs the configured walk-forward validation and persists
// the per-fold results.
func (b *Bootstrap) RunWalkForward(ctx context.Context) error {
	bars, err := marketdata.LoadCSV(b.Config.Backtest.DataFile)
	if err != nil {
		return fmt.Errorf("load data: %w", err)
	}

	strat := strategy.NewMeanReversion(strategy.DefaultMeanReversionConfig())
	eng := backtest.NewEngine(b.engineConfig(), b.executionModel())

	wf := b.Config.WalkForward
	validator, err := backtest.NewWalkForwardValidator(eng, wf.TrainSize, wf.TestSize, wf.Workers)
	if err != nil {
		return err
	}

	folds, summary, err := validator.Run(strat, bars, b.sizer(), nil)
	if err != nil {
		return err
	}
	slog.Info("Walk-forward complete",
		slog.Int("folds", len(folds)),
		slog.Float64("mean_sharpe", summary.MeanSharpe),
		slog.Float64("worst_drawdown", summary.WorstDrawdown))

	runID, err := b.saveRunID(strat.Name(), "walkforward", summary)
	if err != nil {
		return err
	}

	dbFolds := make([]storage.FoldResult, 0, len(folds))
	for _, f := range folds {
		dbFolds = append(dbFolds, storage.FoldResult{
			Fold:        f.Fold,
			TrainFrom:   f.TrainFrom,
			TrainTo:     f.TrainTo,
			TestFrom:    f.TestFrom,
			TestTo:      f.TestTo,
			SharpeRatio: f.Metrics["sharpe_ratio"],
			TotalReturn: f.Metrics["total_return"],
			MaxDrawdown: f.Metrics["max_drawdown"],
			CreatedAt:   time.Now().UTC(),
		})
	}
	return b.Storage.SaveFolds(runID, dbFolds)
}

// RunPaper wires up the paper trading loop, replays the configured candle
// file through it as price events, and submits an order on every signal
// change.
func (b *Bootstrap) RunPaper(ctx context.Context) error {
	bars, err := marketdata.LoadCSV(b.Config.Backtest.DataFile)
	if err != nil {
		return fmt.Errorf("load data: %w", err)
	}

	strat := strategy.NewMeanReversion(strategy.DefaultMeanReversionConfig())
	signaled, err := strat.GenerateSignals(bars)
	if err != nil {
		return fmt.Errorf("generate signals: %w", err)
	}

	limits := risk.NewRiskLimits(b.limits())
	manager := execution.NewOrderManager(limits, b.Config.Risk.MaxDailyLossAbsUSD.InexactFloat64())
	exchange := execution.NewSimulatedExchange(b.Config.Paper.ExchangeSeed)
	tracker := execution.NewPositionTracker()
	reconciler := execution.NewReconciliationEngine(b.Config.Risk.ReconcileTolerance.InexactFloat64())

	var hub *telemetry.Hub
	var server *telemetry.Server
	if b.Config.Telemetry.Enabled {
		hub = telemetry.NewHub()
		server = telemetry.NewServer(b.Config.Telemetry.ListenAddr, hub)
		server.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
	}

	var broadcaster engine.Broadcaster
	if hub != nil {
		broadcaster = hub
	}

	capital := b.Config.Backtest.InitialCapital.InexactFloat64()
	loop := engine.NewPaperLoop(
		b.Config.Paper.InboxSize,
		capital,
		manager, exchange, tracker, reconciler, limits,
		nil, // correlation table is exogenous; none configured
		broadcaster,
		b.Storage,
	)

	event.Warmup()
	go loop.Run(ctx)

	symbol := "SIM"
	nextSeq := uint64(1)
	prevSignal := 0

	for _, bar := range signaled {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ev := event.AcquirePriceUpdateEvent()
		ev.Seq = nextSeq
		ev.TsUnixM = bar.Timestamp.UnixMilli()
		ev.Symbol = symbol
		ev.Price = bar.Close
		ev.BookDepth = bar.BookDepth
		ev.Volatility = bar.Volatility
		loop.Inbox() <- ev
		nextSeq++

		if bar.Signal != prevSignal {
			order := paperOrderFor(symbol, bar, prevSignal, capital)
			if order != nil {
				loop.Inbox() <- &event.OrderRequestEvent{Seq: nextSeq, Order: order}
				nextSeq++
			}
			prevSignal = bar.Signal
		}
	}

	// Drain before reporting.
	for len(loop.Inbox()) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}

	snap := loop.Snapshot()
	slog.Info("Paper session complete",
		slog.Float64("equity", snap.Equity),
		slog.Uint64("events", snap.NextSeq-1),
		slog.Int("open_orders", len(manager.OpenOrders())))

	result := loop.Reconcile(tracker.Snapshot(snap.Prices))
	if !result.OK() {
		slog.Warn("Final reconciliation reported mismatches", slog.Any("mismatches", result.Mismatches))
	}
	return nil
}

// paperOrderFor translates a signal change into a target order sized off a
// fixed fraction of capital. Returns nil when the change needs no order.
func paperOrderFor(symbol string, bar domain.Bar, prevSignal int, capital float64) *domain.PaperOrder {
	if bar.Close <= 0 {
		return nil
	}
	delta := float64(bar.Signal - prevSignal)
	if delta == 0 {
		return nil
	}

	side := domain.SideBuy
	if delta < 0 {
		side = domain.SideSell
		delta = -delta
	}

	qty := capital * 0.01 * delta / bar.Close
	order := &domain.PaperOrder{
		Symbol:    symbol,
		Side:      side,
		Quantity:  qty,
		OrderType: bar.OrderType,
	}
	if order.OrderType == domain.OrderTypeLimit {
		order.LimitPrice = bar.Close
	}
	return order
}

func (b *Bootstrap) saveRun(name, mode string, bars int, metrics map[string]float64) error {
	capital := b.Config.Backtest.InitialCapital.InexactFloat64()
	run := &storage.BacktestRun{
		Strategy:       name,
		Mode:           mode,
		Bars:           bars,
		InitialCapital: capital,
		FinalEquity:    capital * (1 + metrics["total_return"]),
		TotalReturn:    metrics["total_return"],
		SharpeRatio:    metrics["sharpe_ratio"],
		MaxDrawdown:    metrics["max_drawdown"],
		TotalTrades:    int(metrics["total_trades"]),
		RuntimeSeconds: metrics["runtime_seconds"],
		CreatedAt:      time.Now().UTC(),
	}
	id, err := b.Storage.SaveRun(run)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	slog.Info("Run saved", slog.Uint64("run_id", uint64(id)),
		slog.Float64("total_return", run.TotalReturn),
		slog.Float64("sharpe", run.SharpeRatio))
	return nil
}

func (b *Bootstrap) saveRunID(name, mode string, summary backtest.WalkForwardSummary) (uint, error) {
	capital := b.Config.Backtest.InitialCapital.InexactFloat64()
	run := &storage.BacktestRun{
		Strategy:       name,
		Mode:           mode,
		Bars:           summary.TotalTestBars,
		InitialCapital: capital,
		TotalReturn:    summary.MeanReturn,
		SharpeRatio:    summary.MeanSharpe,
		MaxDrawdown:    summary.WorstDrawdown,
		CreatedAt:      time.Now().UTC(),
	}
	id, err := b.Storage.SaveRun(run)
	if err != nil {
		return 0, fmt.Errorf("save run: %w", err)
	}
	return id, nil
}
