package execution

import (
	"testing"
)

func trackerState(updateCount uint64, positions map[string]PositionState) TrackerState {
	return TrackerState{Positions: positions, UpdateCount: updateCount}
}

func TestReconcileMatchingStates(t *testing.T) {
	e := NewReconciliationEngine(1e-6)
	state := trackerState(5, map[string]PositionState{
		"BTC": {Symbol: "BTC", Quantity: 2, AvgEntryPrice: 100},
	})

	result := e.Reconcile(state, state)
	if !result.OK() {
		t.Fatalf("identical states should reconcile: %+v", result)
	}
}

func TestReconcileSymbolSetMismatch(t *testing.T) {
	e := NewReconciliationEngine(1e-6)
	expected := trackerState(1, map[string]PositionState{
		"BTC": {Symbol: "BTC", Quantity: 1, AvgEntryPrice: 100},
	})
	actual := trackerState(1, map[string]PositionState{})

	result := e.Reconcile(expected, actual)
	if result.OK() {
		t.Fatal("missing symbol should fail")
	}
	if !contains(result.Mismatches, MismatchSymbolSet) {
		t.Errorf("mismatches = %v, want %s", result.Mismatches, MismatchSymbolSet)
	}
}

func TestReconcileDrift(t *testing.T) {
	e := NewReconciliationEngine(0.01)
	expected := trackerState(1, map[string]PositionState{
		"BTC": {Symbol: "BTC", Quantity: 2, AvgEntryPrice: 100},
	})

	t.Run("below tolerance", func(t *testing.T) {
		actual := trackerState(1, map[string]PositionState{
			"BTC": {Symbol: "BTC", Quantity: 2.005, AvgEntryPrice: 100},
		})
		result := e.Reconcile(expected, actual)
		if !result.OK() {
			t.Errorf("sub-tolerance drift should pass: %+v", result)
		}
		if result.DriftAbs == 0 {
			t.Error("drift should still be reported")
		}
	})

	t.Run("beyond tolerance", func(t *testing.T) {
		actual := trackerState(1, map[string]PositionState{
			"BTC": {Symbol: "BTC", Quantity: 2.5, AvgEntryPrice: 100},
		})
		result := e.Reconcile(expected, actual)
		if result.OK() {
			t.Fatal("drift beyond tolerance should fail")
		}
		if !contains(result.Mismatches, MismatchDriftExceeded) {
			t.Errorf("mismatches = %v", result.Mismatches)
		}
	})
}

func TestReconcileMissingUpdates(t *testing.T) {
	e := NewReconciliationEngine(1e-6)
	expected := trackerState(5, nil)
	actual := trackerState(3, nil)

	result := e.Reconcile(expected, actual)
	if result.OK() {
		t.Fatal("update shortfall should fail")
	}
	if result.MissingUpdates != 2 {
		t.Errorf("MissingUpdates = %d, want 2", result.MissingUpdates)
	}

	// The other direction (actual ahead) is fine.
	if r := e.Reconcile(actual, expected); !r.OK() {
		t.Errorf("actual ahead of expected should pass: %+v", r)
	}
}

func TestDailySummary(t *testing.T) {
	e := NewReconciliationEngine(1e-6)
	ok := trackerState(1, nil)
	bad := trackerState(4, nil)

	e.Reconcile(ok, ok)
	e.Reconcile(bad, ok) // 3 missing updates

	s := e.Summary()
	if s.Runs != 2 || s.FailedRuns != 1 {
		t.Errorf("summary = %+v", s)
	}
	if s.SuccessRate != 0.5 {
		t.Errorf("SuccessRate = %v, want 0.5", s.SuccessRate)
	}
	if s.TotalMissingUpdates != 3 {
		t.Errorf("TotalMissingUpdates = %d, want 3", s.TotalMissingUpdates)
	}

	e.ResetDay()
	if s := e.Summary(); s.Runs != 0 {
		t.Errorf("runs after reset = %d, want 0", s.Runs)
	}
}

func contains(xs []string, want string) bool {
	for _, x := range xs {
		if x == want {
			return true
		}
	}
	return false
}
