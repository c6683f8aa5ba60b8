package execution

import (
	"log/slog"
	"math/rand"
	"time"

	"backtest_go/internal/domain"
)

// FillPayload is what the simulated exchange reports back for one execution
// attempt.
type FillPayload struct {
	OrderID   string
	FilledQty float64
	FillPrice float64
	FillRatio float64
	Status    string // filled / partially_filled / unfilled
}

// ExchangeMetrics summarizes fill activity and latency bookkeeping.
type ExchangeMetrics struct {
	FillEvents       int
	LatencyHistogram map[string]int
	AvgLatencyMs     float64
}

// SimulatedExchange supplies realistic fills for paper trading: market
// orders slip with volatility, limit orders fill only when the price
// crosses, scaled by depth, a volatility penalty and seeded jitter. Latency
// of each execution step is tracked for the histogram.
type SimulatedExchange struct {
	rng           *rand.Rand
	fillLatencyMs []float64
	fillEvents    int
}

// NewSimulatedExchange creates an exchange with a deterministic jitter seed.
func NewSimulatedExchange(seed int64) *SimulatedExchange {
	return &SimulatedExchange{rng: rand.New(rand.NewSource(seed))}
}

// Execute simulates one fill attempt against the current market.
func (x *SimulatedExchange) Execute(order *domain.PaperOrder, marketPrice, bookDepth, volatility float64) FillPayload {
	started := time.Now()

	var fillRatio, fillPrice float64
	if order.OrderType == domain.OrderTypeMarket {
		fillRatio = 1.0
		slippage := volatility * 0.5
		if slippage > 0.01 {
			slippage = 0.01
		}
		if slippage < 0 {
			slippage = 0
		}
		if order.Side == domain.SideBuy {
			fillPrice = marketPrice * (1 + slippage)
		} else {
			fillPrice = marketPrice * (1 - slippage)
		}
	} else {
		fillPrice = marketPrice
		if order.LimitPrice > 0 {
			priceOK := marketPrice <= order.LimitPrice
			if order.Side == domain.SideSell {
				priceOK = marketPrice >= order.LimitPrice
			}
			if priceOK {
				depthFactor := bookDepth / max(order.Quantity, 1e-9)
				if depthFactor > 1 {
					depthFactor = 1
				}
				if depthFactor < 0 {
					depthFactor = 0
				}
				volPenalty := 1 - volatility*5
				if volPenalty < 0.05 {
					volPenalty = 0.05
				}
				jitter := 0.85 + x.rng.Float64()*0.15
				fillRatio = depthFactor * volPenalty * jitter
				if fillRatio > 1 {
					fillRatio = 1
				}
			}
			fillPrice = order.LimitPrice
		}
	}

	filledQty := order.Quantity * fillRatio
	x.fillEvents++
	x.fillLatencyMs = append(x.fillLatencyMs, float64(time.Since(started).Nanoseconds())/1e6)

	status := "unfilled"
	if fillRatio >= 0.999 {
		status = "filled"
	} else if fillRatio > 0 {
		status = "partially_filled"
	}

	payload := FillPayload{
		OrderID:   order.ID,
		FilledQty: filledQty,
		FillPrice: fillPrice,
		FillRatio: fillRatio,
		Status:    status,
	}
	slog.Info("simulated fill",
		slog.String("order_id", payload.OrderID),
		slog.String("symbol", order.Symbol),
		slog.String("order_type", order.OrderType),
		slog.Float64("filled_qty", payload.FilledQty),
		slog.Float64("fill_price", payload.FillPrice),
		slog.String("status", payload.Status))
	return payload
}

// Metrics returns fill counts and the latency histogram.
func (x *SimulatedExchange) Metrics() ExchangeMetrics {
	bins := map[string]int{"lt1ms": 0, "1to5ms": 0, "5to20ms": 0, "20ms_plus": 0}
	var sum float64
	for _, lat := range x.fillLatencyMs {
		sum += lat
		switch {
		case lat < 1:
			bins["lt1ms"]++
		case lat < 5:
			bins["1to5ms"]++
		case lat < 20:
			bins["5to20ms"]++
		default:
			bins["20ms_plus"]++
		}
	}
	m := ExchangeMetrics{FillEvents: x.fillEvents, LatencyHistogram: bins}
	if len(x.fillLatencyMs) > 0 {
		m.AvgLatencyMs = sum / float64(len(x.fillLatencyMs))
	}
	return m
}
