package domain

import (
	"fmt"
	"time"
)

// Signal values emitted by strategies, one per bar.
const (
	SignalShort = -1
	SignalFlat  = 0
	SignalLong  = 1
)

// Execution hints carried on a bar. Empty order type means market.
const (
	OrderTypeMarket = "market"
	OrderTypeLimit  = "limit"
)

// Bar is one OHLCV sample at a fixed-cadence timestamp, plus the columns a
// strategy or caller may attach before the engine runs: the signal and the
// optional execution-model inputs.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`

	// Strategy output: -1 short, 0 flat, 1 long.
	Signal int `json:"signal"`

	// Optional execution inputs. Zero values mean market order, full depth,
	// zero volatility.
	OrderType  string  `json:"order_type,omitempty"`
	BookDepth  float64 `json:"book_depth,omitempty"`
	Volatility float64 `json:"volatility,omitempty"`
}

// ValidateBars checks the series invariants the engine relies on:
// strictly increasing timestamps, OHLC ordering, non-negative volume.
func ValidateBars(bars []Bar) error {
	for i, b := range bars {
		if i > 0 && !b.Timestamp.After(bars[i-1].Timestamp) {
			return fmt.Errorf("%w: bar %d timestamp %s not after %s",
				ErrInvalidBars, i, b.Timestamp, bars[i-1].Timestamp)
		}
		hi := max(b.Open, b.Close)
		lo := min(b.Open, b.Close)
		if b.High < hi || b.Low > lo {
			return fmt.Errorf("%w: bar %d OHLC out of order (o=%g h=%g l=%g c=%g)",
				ErrInvalidBars, i, b.Open, b.High, b.Low, b.Close)
		}
		if b.Volume < 0 {
			return fmt.Errorf("%w: bar %d negative volume %g", ErrInvalidBars, i, b.Volume)
		}
	}
	return nil
}

// ValidateSignals checks that every bar carries a signal in {-1, 0, 1}.
func ValidateSignals(bars []Bar) error {
	for i, b := range bars {
		if b.Signal < SignalShort || b.Signal > SignalLong {
			return fmt.Errorf("%w: bar %d has signal %d", ErrInvalidSignal, i, b.Signal)
		}
	}
	return nil
}

// SignalStats summarizes the signal column of a series.
type SignalStats struct {
	TotalBars   int
	BuySignals  int
	SellSignals int
	FlatSignals int
	Changes     int
}

// Stats counts signal occurrences and transitions (potential trades).
func Stats(bars []Bar) SignalStats {
	s := SignalStats{TotalBars: len(bars)}
	prev := 0
	for i, b := range bars {
		switch b.Signal {
		case SignalLong:
			s.BuySignals++
		case SignalShort:
			s.SellSignals++
		default:
			s.FlatSignals++
		}
		if i > 0 && b.Signal != prev {
			s.Changes++
		}
		prev = b.Signal
	}
	return s
}
