package backtest

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"backtest_go/internal/domain"
	"backtest_go/internal/strategy"
)

// Calibrator fits a strategy to a training window. When nil, the validator
// falls back to the strategy's own Fit method if it implements Calibratable.
type Calibrator func(strat strategy.Strategy, train []domain.Bar) error

// FoldResult is one out-of-sample evaluation window.
type FoldResult struct {
	Fold      int
	TrainFrom time.Time
	TrainTo   time.Time
	TestFrom  time.Time
	TestTo    time.Time
	TrainBars int
	TestBars  int
	Metrics   map[string]float64
}

// WalkForwardSummary aggregates fold metrics for quick inspection.
type WalkForwardSummary struct {
	Folds         int
	TotalTestBars int
	MeanSharpe    float64
	MeanReturn    float64
	WorstDrawdown float64
}

// WalkForwardValidator partitions a series into contiguous [train|test]
// windows advancing by the test size and evaluates each test window with the
// backtest engine after per-fold calibration.
type WalkForwardValidator struct {
	engine    *Engine
	trainSize int
	testSize  int
	workers   int
}

// NewWalkForwardValidator builds a validator. Workers bounds how many folds
// run concurrently; values below 1 mean sequential.
func NewWalkForwardValidator(engine *Engine, trainSize, testSize, workers int) (*WalkForwardValidator, error) {
	if engine == nil {
		return nil, errors.New("walkforward: nil engine")
	}
	if trainSize <= 0 || testSize <= 0 {
		return nil, fmt.Errorf("walkforward: invalid window sizes train=%d test=%d", trainSize, testSize)
	}
	if workers < 1 {
		workers = 1
	}
	return &WalkForwardValidator{engine: engine, trainSize: trainSize, testSize: testSize, workers: workers}, nil
}

// Run evaluates every fold and returns per-fold metrics plus a summary.
// Each fold gets an independent strategy copy when the strategy supports
// cloning; otherwise folds share the instance and run strictly one at a time.
func (v *WalkForwardValidator) Run(strat strategy.Strategy, bars []domain.Bar, sizer Sizer, calibrate Calibrator) ([]FoldResult, WalkForwardSummary, error) {
	type window struct {
		fold        int
		train, test []domain.Bar
	}

	var windows []window
	fold := 0
	for i := 0; i+v.trainSize+v.testSize <= len(bars); i += v.testSize {
		train := bars[i : i+v.trainSize]
		test := bars[i+v.trainSize : i+v.trainSize+v.testSize]
		if len(train) == 0 || len(test) == 0 {
			continue
		}
		windows = append(windows, window{fold: fold, train: train, test: test})
		fold++
	}

	_, cloneable := strat.(strategy.Cloner)
	workers := v.workers
	if !cloneable {
		// A shared stateful strategy cannot be calibrated from two folds at
		// once without leakage between them.
		workers = 1
	}

	results := make([]FoldResult, len(windows))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	sem := make(chan struct{}, workers)

	for _, w := range windows {
		wg.Add(1)
		go func(w window) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			mu.Lock()
			failed := firstErr != nil
			mu.Unlock()
			if failed {
				return
			}

			res, err := v.runFold(strat, w.train, w.test, sizer, calibrate)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("fold %d: %w", w.fold, err)
				}
				mu.Unlock()
				return
			}

			results[w.fold] = FoldResult{
				Fold:      w.fold,
				TrainFrom: w.train[0].Timestamp,
				TrainTo:   w.train[len(w.train)-1].Timestamp,
				TestFrom:  w.test[0].Timestamp,
				TestTo:    w.test[len(w.test)-1].Timestamp,
				TrainBars: len(w.train),
				TestBars:  len(w.test),
				Metrics:   res.Metrics,
			}
		}(w)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, WalkForwardSummary{}, firstErr
	}

	summary := summarize(results)
	slog.Info("walk-forward complete",
		slog.String("strategy", strat.Name()),
		slog.Int("folds", summary.Folds),
		slog.Float64("mean_sharpe", summary.MeanSharpe),
		slog.Float64("mean_return", summary.MeanReturn))
	return results, summary, nil
}

func (v *WalkForwardValidator) runFold(strat strategy.Strategy, train, test []domain.Bar, sizer Sizer, calibrate Calibrator) (*Result, error) {
	foldStrat := strat
	if cloner, ok := strat.(strategy.Cloner); ok {
		foldStrat = cloner.Clone()
	}

	switch {
	case calibrate != nil:
		if err := calibrate(foldStrat, train); err != nil {
			return nil, domain.NewContractError("calibrate", err)
		}
	default:
		if fitter, ok := foldStrat.(strategy.Calibratable); ok {
			if err := fitter.Fit(train); err != nil {
				return nil, domain.NewContractError("fit", err)
			}
		}
	}

	return v.engine.Run(foldStrat, test, sizer)
}

func summarize(results []FoldResult) WalkForwardSummary {
	s := WalkForwardSummary{Folds: len(results)}
	if len(results) == 0 {
		return s
	}
	for _, r := range results {
		s.TotalTestBars += r.TestBars
		s.MeanSharpe += r.Metrics["sharpe_ratio"]
		s.MeanReturn += r.Metrics["total_return"]
		if dd := r.Metrics["max_drawdown"]; dd < s.WorstDrawdown {
			s.WorstDrawdown = dd
		}
	}
	s.MeanSharpe /= float64(len(results))
	s.MeanReturn /= float64(len(results))
	return s
}
