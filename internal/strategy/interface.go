package strategy

import "backtest_go/internal/domain"

// Strategy is the single contract the simulation core consumes. It receives
// the historical series and returns it with the Signal field populated for
// every bar. Implementations must only use bars [0..t] when deciding the
// signal for bar t; the engine enforces the lag downstream but cannot detect
// peeking here.
type Strategy interface {
	// Name identifies the strategy in logs and persisted run records.
	Name() string

	// GenerateSignals returns a copy of the input with signals attached.
	// The returned slice must have the same length as the input.
	GenerateSignals(bars []domain.Bar) ([]domain.Bar, error)
}

// Calibratable is implemented by strategies that can fit internal parameters
// to a training window before out-of-sample evaluation.
type Calibratable interface {
	Fit(train []domain.Bar) error
}

// Cloner is implemented by stateful strategies so the walk-forward validator
// can evaluate each fold on an independent copy, avoiding cross-fold leakage.
type Cloner interface {
	Clone() Strategy
}
