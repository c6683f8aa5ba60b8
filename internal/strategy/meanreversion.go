package strategy

import (
	"errors"
	"log/slog"
	"math"
	"sort"

	"backtest_go/internal/domain"
)

// MeanReversionConfig tunes the Bollinger+RSI mean reversion strategy.
type MeanReversionConfig struct {
	BollingerWindow int
	BollingerStd    float64
	RSIWindow       int
	RSIOversold     float64
	RSIOverbought   float64
	LongOnly        bool
	StopLossPct     float64
	MaxBarsInTrade  int // 0 disables the time stop
}

// DefaultMeanReversionConfig returns the calibrated defaults.
func DefaultMeanReversionConfig() MeanReversionConfig {
	return MeanReversionConfig{
		BollingerWindow: 20,
		BollingerStd:    2.0,
		RSIWindow:       14,
		RSIOversold:     30,
		RSIOverbought:   70,
		LongOnly:        true,
		StopLossPct:     0.05,
	}
}

// tradeState is the explicit per-bar loop state: it makes each transition
// unit-testable bar by bar instead of hiding it in loop-local variables.
type tradeState struct {
	position    int
	entryPrice  float64
	barsInTrade int
}

func (s *tradeState) enter(position int, price float64) {
	s.position = position
	s.entryPrice = price
	s.barsInTrade = 0
}

func (s *tradeState) exit() {
	s.position = 0
	s.entryPrice = 0
	s.barsInTrade = 0
}

// MeanReversion assumes extreme moves are temporary and price reverts to the
// mean. Entries require the close outside a Bollinger band with RSI
// confirmation; exits trigger on reversion to the middle band, an emergency
// stop, or a time stop.
type MeanReversion struct {
	cfg MeanReversionConfig
}

// NewMeanReversion builds the strategy, filling zero config fields with
// defaults.
func NewMeanReversion(cfg MeanReversionConfig) *MeanReversion {
	def := DefaultMeanReversionConfig()
	if cfg.BollingerWindow <= 0 {
		cfg.BollingerWindow = def.BollingerWindow
	}
	if cfg.BollingerStd <= 0 {
		cfg.BollingerStd = def.BollingerStd
	}
	if cfg.RSIWindow <= 0 {
		cfg.RSIWindow = def.RSIWindow
	}
	if cfg.RSIOversold <= 0 {
		cfg.RSIOversold = def.RSIOversold
	}
	if cfg.RSIOverbought <= 0 {
		cfg.RSIOverbought = def.RSIOverbought
	}
	if cfg.StopLossPct <= 0 {
		cfg.StopLossPct = def.StopLossPct
	}
	return &MeanReversion{cfg: cfg}
}

func (s *MeanReversion) Name() string { return "mean_reversion" }

// Clone returns an independent copy for per-fold calibration.
func (s *MeanReversion) Clone() Strategy {
	cp := *s
	return &cp
}

// GenerateSignals walks the series once, threading the trade state through
// each bar. Only bars up to and including t influence signal t.
func (s *MeanReversion) GenerateSignals(bars []domain.Bar) ([]domain.Bar, error) {
	if len(bars) == 0 {
		return nil, domain.ErrEmptySeries
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	middle, upper, lower := BollingerBands(closes, s.cfg.BollingerWindow, s.cfg.BollingerStd)
	rsi := RSI(closes, s.cfg.RSIWindow)

	out := make([]domain.Bar, len(bars))
	copy(out, bars)

	var state tradeState
	for i := range out {
		px, mid, up, lo, r := closes[i], middle[i], upper[i], lower[i], rsi[i]

		if state.position != 0 {
			state.barsInTrade++
			if s.shouldExit(&state, px, mid, r) {
				state.exit()
			}
		}

		if state.position == 0 {
			buy := px < lo && r < s.cfg.RSIOversold
			sell := px > up && r > s.cfg.RSIOverbought
			if buy {
				state.enter(domain.SignalLong, px)
			} else if sell && !s.cfg.LongOnly {
				state.enter(domain.SignalShort, px)
			}
		}

		out[i].Signal = state.position
	}

	stats := domain.Stats(out)
	slog.Debug("signals generated",
		slog.String("strategy", s.Name()),
		slog.Int("total_bars", stats.TotalBars),
		slog.Int("buy_signals", stats.BuySignals),
		slog.Int("sell_signals", stats.SellSignals),
		slog.Int("signal_changes", stats.Changes))
	return out, nil
}

func (s *MeanReversion) shouldExit(state *tradeState, px, mid, rsi float64) bool {
	timeout := s.cfg.MaxBarsInTrade > 0 && state.barsInTrade >= s.cfg.MaxBarsInTrade
	if state.position == domain.SignalLong {
		meanExit := (!math.IsNaN(mid) && px > mid) || rsi > s.cfg.RSIOverbought
		stopExit := state.entryPrice > 0 && px <= state.entryPrice*(1-s.cfg.StopLossPct)
		return meanExit || stopExit || timeout
	}
	meanExit := (!math.IsNaN(mid) && px < mid) || rsi < s.cfg.RSIOversold
	stopExit := state.entryPrice > 0 && px >= state.entryPrice*(1+s.cfg.StopLossPct)
	return meanExit || stopExit || timeout
}

// Fit calibrates the RSI entry thresholds to the tails of the training
// window's RSI distribution, keeping them inside conservative bounds.
func (s *MeanReversion) Fit(train []domain.Bar) error {
	if len(train) <= s.cfg.RSIWindow {
		return errors.New("training window shorter than RSI window")
	}

	closes := make([]float64, len(train))
	for i, b := range train {
		closes[i] = b.Close
	}
	rsi := RSI(closes, s.cfg.RSIWindow)

	var valid []float64
	for _, v := range rsi {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	if len(valid) < 10 {
		return errors.New("not enough RSI samples to calibrate")
	}
	sort.Float64s(valid)

	oversold := quantile(valid, 0.15)
	overbought := quantile(valid, 0.85)
	s.cfg.RSIOversold = clamp(oversold, 10, 40)
	s.cfg.RSIOverbought = clamp(overbought, 60, 90)

	slog.Info("strategy calibrated",
		slog.String("strategy", s.Name()),
		slog.Int("train_bars", len(train)),
		slog.Float64("rsi_oversold", s.cfg.RSIOversold),
		slog.Float64("rsi_overbought", s.cfg.RSIOverbought))
	return nil
}

func quantile(sorted []float64, q float64) float64 {
	idx := int(q * float64(len(sorted)-1))
	return sorted[idx]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
