package domain

// TradeListener receives each trade synchronously, in execution order,
// on the goroutine that placed the order. A returned error is surfaced
// to that caller.
type TradeListener interface {
	OnTrade(Trade) error
}

// TradeListenerFunc adapts a function to a TradeListener.
type TradeListenerFunc func(Trade) error

// OnTrade calls f(t).
func (f TradeListenerFunc) OnTrade(t Trade) error {
	return f(t)
}
