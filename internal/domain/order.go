package domain

import (
	"math"
	"time"
)

// Order sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Paper order lifecycle states. Filled, canceled and rejected are terminal.
const (
	OrderStateCreated         = "CREATED"
	OrderStateSubmitted       = "SUBMITTED"
	OrderStatePartiallyFilled = "PARTIALLY_FILLED"
	OrderStateFilled          = "FILLED"
	OrderStateCanceled        = "CANCELED"
	OrderStateRejected        = "REJECTED"
)

// IsTerminalState reports whether no further lifecycle transition is allowed.
func IsTerminalState(state string) bool {
	return state == OrderStateFilled || state == OrderStateCanceled || state == OrderStateRejected
}

// defaultRiskFraction is the assumed risk of a position with no stop attached.
const defaultRiskFraction = 0.02

// Order is a proposed order as seen by admission control. Quantity is signed
// (negative for shorts). StopLoss 0 means no stop; Sector and Cluster are
// optional tags.
type Order struct {
	Symbol   string
	Quantity float64
	Price    float64
	StopLoss float64
	Sector   string
	Cluster  string
}

// Value is the absolute notional of the order.
func (o Order) Value() float64 {
	return math.Abs(o.Quantity) * o.Price
}

// Risk is the capital lost if the stop is hit, or 2% of notional without one.
func (o Order) Risk() float64 {
	if o.StopLoss == 0 {
		return o.Value() * defaultRiskFraction
	}
	return math.Abs(o.Quantity) * math.Abs(o.Price-o.StopLoss)
}

// Position is an open position snapshot used by risk checks.
type Position struct {
	Symbol       string
	Quantity     float64
	EntryPrice   float64
	CurrentPrice float64
	StopLoss     float64
	Sector       string
	Cluster      string
}

// Value is the absolute notional at the current price.
func (p Position) Value() float64 {
	return math.Abs(p.Quantity) * p.CurrentPrice
}

// Risk is the capital lost if the stop is hit, or 2% of notional without one.
func (p Position) Risk() float64 {
	if p.StopLoss == 0 {
		return p.Value() * defaultRiskFraction
	}
	return math.Abs(p.Quantity) * math.Abs(p.EntryPrice-p.StopLoss)
}

// PnL is the unrealized profit of the position.
func (p Position) PnL() float64 {
	if p.Quantity > 0 {
		return p.Quantity * (p.CurrentPrice - p.EntryPrice)
	}
	return math.Abs(p.Quantity) * (p.EntryPrice - p.CurrentPrice)
}

// PaperOrder is the mutable lifecycle record tracked by the order manager.
// It is never deleted, only transitioned to a terminal state.
type PaperOrder struct {
	ID         string
	Symbol     string
	Side       string // buy/sell
	Quantity   float64
	OrderType  string // market/limit
	LimitPrice float64
	Sector     string
	Cluster    string

	Status       string
	FilledQty    float64
	AvgFillPrice float64
	RejectReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Remaining returns the unfilled quantity.
func (o *PaperOrder) Remaining() float64 {
	return o.Quantity - o.FilledQty
}

// IsOpen reports whether the order can still receive fills.
func (o *PaperOrder) IsOpen() bool {
	return !IsTerminalState(o.Status)
}
