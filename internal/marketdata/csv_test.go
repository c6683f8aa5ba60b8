package marketdata

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"backtest_go/internal/domain"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bars.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadCSV(t *testing.T) {
	path := writeCSV(t, `time,open,high,low,close,volume,signal,order_type,book_depth,volatility
2024-01-01T00:00:00Z,100,101,99,100.5,1000,1,limit,0.8,0.02
2024-01-01T00:01:00Z,100.5,102,100,101,1100,0,,,
`)

	bars, err := LoadCSV(path)
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("Expected 2 bars, got %d", len(bars))
	}

	b := bars[0]
	if b.Open != 100 || b.High != 101 || b.Low != 99 || b.Close != 100.5 || b.Volume != 1000 {
		t.Errorf("Unexpected OHLCV: %+v", b)
	}
	if b.Signal != 1 {
		t.Errorf("Expected signal 1, got %d", b.Signal)
	}
	if b.OrderType != domain.OrderTypeLimit {
		t.Errorf("Expected limit order type, got %q", b.OrderType)
	}
	if b.BookDepth != 0.8 || b.Volatility != 0.02 {
		t.Errorf("Execution columns not parsed: %+v", b)
	}
	// Optional columns default to zero values.
	if bars[1].Signal != 0 || bars[1].OrderType != "" {
		t.Errorf("Empty optionals should stay zero: %+v", bars[1])
	}
}

func TestLoadCSVUnixTimestamps(t *testing.T) {
	path := writeCSV(t, `timestamp,open,high,low,close,volume
1704067260,101,102,100,101.5,500
1704067200,100,101,99,100.5,400
`)

	bars, err := LoadCSV(path)
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("Expected 2 bars, got %d", len(bars))
	}

	// Out-of-order rows come back sorted by time.
	want := time.Unix(1704067200, 0).UTC()
	if !bars[0].Timestamp.Equal(want) {
		t.Errorf("Expected first bar at %s, got %s", want, bars[0].Timestamp)
	}
	if !bars[1].Timestamp.After(bars[0].Timestamp) {
		t.Error("Bars not sorted by timestamp")
	}
}

func TestLoadCSVSkipsBadRows(t *testing.T) {
	path := writeCSV(t, `time,open,high,low,close,volume
2024-01-01T00:00:00Z,100,101,99,100.5,1000
not-a-time,100,101,99,100.5,1000
,100,101,99,100.5,1000
2024-01-01T00:01:00Z,100.5,102,100,101,1100
`)

	bars, err := LoadCSV(path)
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if len(bars) != 2 {
		t.Errorf("Expected bad rows skipped, got %d bars", len(bars))
	}
}

func TestLoadCSVInvalidBars(t *testing.T) {
	// High below the close violates OHLC ordering.
	path := writeCSV(t, `time,open,high,low,close,volume
2024-01-01T00:00:00Z,100,100.1,99,100.5,1000
`)

	_, err := LoadCSV(path)
	if !errors.Is(err, domain.ErrInvalidBars) {
		t.Errorf("Expected ErrInvalidBars, got %v", err)
	}
}

func TestLoadCSVMissingFile(t *testing.T) {
	if _, err := LoadCSV(filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Error("Expected error for missing file")
	}
}
