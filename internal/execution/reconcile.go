package execution

import (
	"log/slog"
	"math"
	"sync"
	"time"
)

// Reconciliation mismatch labels.
const (
	MismatchSymbolSet      = "position_symbol_set_mismatch"
	MismatchDriftExceeded  = "position_drift_exceeded"
	MismatchMissingUpdates = "missing_updates_detected"
)

// ReconciliationResult reports one comparison between expected and actual
// state. Drift is a non-fatal monitoring signal, never a crash.
type ReconciliationResult struct {
	Timestamp      time.Time
	Mismatches     []string
	DriftAbs       float64
	MissingUpdates int
}

// OK reports whether all three independent failure signals are clear.
// Drift below tolerance is recorded but does not fail the run.
func (r ReconciliationResult) OK() bool {
	return len(r.Mismatches) == 0
}

// DailySummary is the rolling report over a day's reconciliation runs.
type DailySummary struct {
	Runs                int
	FailedRuns          int
	SuccessRate         float64
	MaxDriftAbs         float64
	TotalMissingUpdates int
}

// ReconciliationEngine compares an expected internal state against an
// externally observed one, detecting symbol-set mismatches, quantity/price
// drift beyond a tolerance, and shortfalls in the monotonically increasing
// update counter.
type ReconciliationEngine struct {
	mu             sync.Mutex
	driftTolerance float64
	dailyResults   []ReconciliationResult
}

// NewReconciliationEngine creates an engine with the given drift tolerance.
func NewReconciliationEngine(driftTolerance float64) *ReconciliationEngine {
	if driftTolerance <= 0 {
		driftTolerance = 1e-6
	}
	return &ReconciliationEngine{driftTolerance: driftTolerance}
}

// Reconcile compares the two snapshots and records the result for the daily
// summary.
func (e *ReconciliationEngine) Reconcile(expected, actual TrackerState) ReconciliationResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	var mismatches []string

	if !sameSymbolSet(expected.Positions, actual.Positions) {
		mismatches = append(mismatches, MismatchSymbolSet)
	}

	var driftAbs float64
	for sym, exp := range expected.Positions {
		act, ok := actual.Positions[sym]
		if !ok {
			continue
		}
		driftAbs += math.Abs(exp.Quantity - act.Quantity)
		driftAbs += math.Abs(exp.AvgEntryPrice - act.AvgEntryPrice)
	}
	if driftAbs > e.driftTolerance {
		mismatches = append(mismatches, MismatchDriftExceeded)
	}

	missing := 0
	if expected.UpdateCount > actual.UpdateCount {
		missing = int(expected.UpdateCount - actual.UpdateCount)
	}
	if missing > 0 {
		mismatches = append(mismatches, MismatchMissingUpdates)
	}

	result := ReconciliationResult{
		Timestamp:      time.Now().UTC(),
		Mismatches:     mismatches,
		DriftAbs:       driftAbs,
		MissingUpdates: missing,
	}
	e.dailyResults = append(e.dailyResults, result)
	slog.Info("reconciliation run",
		slog.Bool("ok", result.OK()),
		slog.Any("mismatches", mismatches),
		slog.Float64("drift_abs", driftAbs),
		slog.Int("missing_updates", missing))
	return result
}

// Summary aggregates the day's runs.
func (e *ReconciliationEngine) Summary() DailySummary {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := DailySummary{Runs: len(e.dailyResults), SuccessRate: 1.0}
	for _, r := range e.dailyResults {
		if !r.OK() {
			s.FailedRuns++
		}
		if r.DriftAbs > s.MaxDriftAbs {
			s.MaxDriftAbs = r.DriftAbs
		}
		s.TotalMissingUpdates += r.MissingUpdates
	}
	if s.Runs > 0 {
		s.SuccessRate = float64(s.Runs-s.FailedRuns) / float64(s.Runs)
	}
	slog.Info("daily reconciliation summary",
		slog.Int("runs", s.Runs),
		slog.Int("failed_runs", s.FailedRuns),
		slog.Float64("success_rate", s.SuccessRate),
		slog.Float64("max_drift_abs", s.MaxDriftAbs))
	return s
}

// ResetDay discards the rolling results at the day boundary.
func (e *ReconciliationEngine) ResetDay() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dailyResults = nil
}

func sameSymbolSet(a, b map[string]PositionState) bool {
	if len(a) != len(b) {
		return false
	}
	for sym := range a {
		if _, ok := b[sym]; !ok {
			return false
		}
	}
	return true
}
