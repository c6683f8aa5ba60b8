package execution

import (
	"log/slog"
	"math"
	"sync"

	"backtest_go/internal/domain"
)

// PositionState is the per-symbol bookkeeping record.
type PositionState struct {
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
	LastPrice     float64 `json:"last_price"`
}

// MarketValue is the signed notional at the last mark.
func (p PositionState) MarketValue() float64 {
	return p.Quantity * p.LastPrice
}

// TrackerState is a complete snapshot of the tracker, comparable by the
// reconciliation engine.
type TrackerState struct {
	RealizedPnL    float64                  `json:"realized_pnl"`
	UnrealizedPnL  float64                  `json:"unrealized_pnl"`
	Positions      map[string]PositionState `json:"positions"`
	SymbolExposure map[string]float64       `json:"symbol_exposure"`
	UpdateCount    uint64                   `json:"update_count"`
}

// PositionTracker maintains realized/unrealized P&L and per-symbol exposure
// from a stream of fills. Same-direction fills extend at a weighted average
// entry; opposite-direction fills close the overlap first, realizing P&L at
// the existing average entry, and any residual opens fresh at the fill
// price. Writes come from one actor; reads may be concurrent.
type PositionTracker struct {
	mu          sync.RWMutex
	positions   map[string]*PositionState
	realizedPnL float64
	updateCount uint64
}

// NewPositionTracker creates an empty tracker.
func NewPositionTracker() *PositionTracker {
	return &PositionTracker{positions: make(map[string]*PositionState)}
}

// ApplyFill books one fill against the position for its symbol.
func (t *PositionTracker) ApplyFill(symbol, side string, quantity, price float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, ok := t.positions[symbol]
	if !ok {
		pos = &PositionState{Symbol: symbol, LastPrice: price}
		t.positions[symbol] = pos
	}

	signedQty := quantity
	if side == domain.SideSell {
		signedQty = -quantity
	}

	sameDirection := pos.Quantity == 0 ||
		(pos.Quantity > 0 && signedQty > 0) ||
		(pos.Quantity < 0 && signedQty < 0)

	if sameDirection {
		newQty := pos.Quantity + signedQty
		if newQty != 0 {
			pos.AvgEntryPrice = (math.Abs(pos.Quantity)*pos.AvgEntryPrice + math.Abs(signedQty)*price) / math.Abs(newQty)
		}
		pos.Quantity = newQty
	} else {
		closeQty := math.Min(math.Abs(pos.Quantity), math.Abs(signedQty))
		if pos.Quantity > 0 {
			t.realizedPnL += closeQty * (price - pos.AvgEntryPrice)
		} else {
			t.realizedPnL += closeQty * (pos.AvgEntryPrice - price)
		}

		residual := math.Abs(signedQty) - closeQty
		if residual > 0 {
			// Position flips: the residual opens fresh at the fill price.
			if signedQty > 0 {
				pos.Quantity = residual
			} else {
				pos.Quantity = -residual
			}
			pos.AvgEntryPrice = price
		} else {
			pos.Quantity += signedQty
			if pos.Quantity == 0 {
				pos.AvgEntryPrice = 0
			}
		}
	}

	pos.LastPrice = price
	t.updateCount++
	slog.Info("position updated",
		slog.String("symbol", symbol),
		slog.Float64("quantity", pos.Quantity),
		slog.Float64("avg_entry_price", pos.AvgEntryPrice),
		slog.Float64("realized_pnl", t.realizedPnL))
}

// MarkToMarket re-prices positions from the given last-trade prices and
// returns total unrealized P&L.
func (t *PositionTracker) MarkToMarket(prices map[string]float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.markToMarketLocked(prices)
}

func (t *PositionTracker) markToMarketLocked(prices map[string]float64) float64 {
	var unrealized float64
	for sym, pos := range t.positions {
		if price, ok := prices[sym]; ok {
			pos.LastPrice = price
		}
		unrealized += pos.Quantity * (pos.LastPrice - pos.AvgEntryPrice)
	}
	return unrealized
}

// RealizedPnL returns the running realized total.
func (t *PositionTracker) RealizedPnL() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.realizedPnL
}

// ExposureBySymbol returns absolute market value per symbol.
func (t *PositionTracker) ExposureBySymbol() map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]float64, len(t.positions))
	for sym, pos := range t.positions {
		out[sym] = math.Abs(pos.MarketValue())
	}
	return out
}

// OpenPositions converts the tracker state into risk-check position records.
func (t *PositionTracker) OpenPositions() []domain.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []domain.Position
	for _, pos := range t.positions {
		if pos.Quantity == 0 {
			continue
		}
		out = append(out, domain.Position{
			Symbol:       pos.Symbol,
			Quantity:     pos.Quantity,
			EntryPrice:   pos.AvgEntryPrice,
			CurrentPrice: pos.LastPrice,
		})
	}
	return out
}

// Snapshot marks to market and returns the full state copy.
func (t *PositionTracker) Snapshot(prices map[string]float64) TrackerState {
	t.mu.Lock()
	defer t.mu.Unlock()

	unrealized := t.markToMarketLocked(prices)
	state := TrackerState{
		RealizedPnL:    t.realizedPnL,
		UnrealizedPnL:  unrealized,
		Positions:      make(map[string]PositionState, len(t.positions)),
		SymbolExposure: make(map[string]float64, len(t.positions)),
		UpdateCount:    t.updateCount,
	}
	for sym, pos := range t.positions {
		state.Positions[sym] = *pos
		state.SymbolExposure[sym] = math.Abs(pos.MarketValue())
	}
	return state
}
