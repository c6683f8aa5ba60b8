package event

import "sync"

// Price updates are the high-frequency event; pooling them keeps the
// hotpath allocation-free.
//
// Usage:
//
//	ev := AcquirePriceUpdateEvent()
//	ev.Symbol = "BTC-USD"
//	// ... enqueue and process ...
//	ReleasePriceUpdateEvent(ev)
var priceUpdatePool = sync.Pool{
	New: func() interface{} {
		return &PriceUpdateEvent{}
	},
}

// AcquirePriceUpdateEvent gets a PriceUpdateEvent from the pool.
// The returned event has zero values and must be initialized.
func AcquirePriceUpdateEvent() *PriceUpdateEvent {
	return priceUpdatePool.Get().(*PriceUpdateEvent)
}

// ReleasePriceUpdateEvent resets the event and returns it to the pool.
func ReleasePriceUpdateEvent(ev *PriceUpdateEvent) {
	if ev == nil {
		return
	}
	ev.Seq = 0
	ev.TsUnixM = 0
	ev.Symbol = ""
	ev.Price = 0
	ev.BookDepth = 0
	ev.Volatility = 0

	priceUpdatePool.Put(ev)
}

// Warmup pre-allocates a batch of price events to reduce GC pressure at
// startup.
func Warmup() {
	const batchSize = 1000

	evs := make([]*PriceUpdateEvent, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		evs = append(evs, AcquirePriceUpdateEvent())
	}
	for _, ev := range evs {
		ReleasePriceUpdateEvent(ev)
	}
}
