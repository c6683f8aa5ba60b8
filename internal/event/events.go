package event

import "backtest_go/internal/domain"

// Event types processed by the paper-trading loop.
const (
	TypePriceUpdate  = "price_update"
	TypeOrderRequest = "order_request"
)

// Event is the unit of work the loop consumes strictly in sequence order.
type Event interface {
	GetSeq() uint64
	GetType() string
}

// PriceUpdateEvent carries one market tick plus the execution context the
// simulated exchange needs for the symbol.
type PriceUpdateEvent struct {
	Seq        uint64
	TsUnixM    int64 // Unix milliseconds
	Symbol     string
	Price      float64
	BookDepth  float64
	Volatility float64
}

func (e *PriceUpdateEvent) GetSeq() uint64 { return e.Seq }
func (e *PriceUpdateEvent) GetType() string { return TypePriceUpdate }

// OrderRequestEvent asks the loop to run one order through admission,
// submission and simulated execution.
type OrderRequestEvent struct {
	Seq   uint64
	Order *domain.PaperOrder
}

func (e *OrderRequestEvent) GetSeq() uint64 { return e.Seq }
func (e *OrderRequestEvent) GetType() string { return TypeOrderRequest }
