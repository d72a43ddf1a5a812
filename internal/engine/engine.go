package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/efreitasn/dexbook/internal/domain"
)

// DefaultSnapshotLevels is the number of levels per side captured with
// every book change unless WithSnapshotLevels overrides it.
const DefaultSnapshotLevels = 10

// MatchingEngine owns the book and trade listener of one instrument.
// Every call holds a single mutex, so matching and the listener
// callbacks for one order complete before the next call starts.
type MatchingEngine struct {
	mu             sync.Mutex
	book           Book
	listener       domain.TradeListener
	seq            *Sequencer
	snapshotLevels int
	version        uint64
}

// Option configures a MatchingEngine.
type Option func(*MatchingEngine)

// WithSequencer makes the engine stamp every incoming order's Timestamp
// from seq while it holds the book lock, so arrival order and book order
// agree. Without it the caller's Timestamp is kept.
func WithSequencer(seq *Sequencer) Option {
	return func(e *MatchingEngine) {
		e.seq = seq
	}
}

// WithSnapshotLevels sets how many levels per side a Snapshot carries.
// n <= 0 disables level capture; the version is still reported.
func WithSnapshotLevels(n int) Option {
	return func(e *MatchingEngine) {
		e.snapshotLevels = n
	}
}

// NewMatchingEngine creates a MatchingEngine. A nil listener discards
// trades.
func NewMatchingEngine(book Book, listener domain.TradeListener, opts ...Option) *MatchingEngine {
	e := &MatchingEngine{
		book:           book,
		listener:       listener,
		snapshotLevels: DefaultSnapshotLevels,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Snapshot is the aggregated top of the book taken inside the same
// critical section as the change that produced it. Version increases by
// one with every change, so a later snapshot always has a higher version.
type Snapshot struct {
	Version uint64
	Bids    []PriceLevel
	Asks    []PriceLevel
}

// Execution is the outcome of one order run through the engine.
type Execution struct {
	Order   domain.Order // as admitted, with Timestamp assigned
	Trades  []domain.Trade
	Resting bool // a remainder was placed on the book
	Book    Snapshot
}

// PlaceOrder runs the order through the book and delivers each resulting
// trade to the listener in execution order. The trades are also
// returned.
//
// Every trade is delivered even if the listener fails for an earlier
// one. Failures are returned joined, wrapping
// domain.ErrTradeNotification, together with the trades produced. The
// book is not rolled back.
func (e *MatchingEngine) PlaceOrder(order domain.Order) ([]domain.Trade, error) {
	exec, err := e.Execute(order)
	return exec.Trades, err
}

// Execute is PlaceOrder that also reports the admitted order, whether a
// remainder rests and the book after the change.
func (e *MatchingEngine) Execute(order domain.Order) (Execution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.seq != nil {
		order.Timestamp = e.seq.Next()
	}
	trades, err := e.book.AddOrder(order)
	if err != nil {
		return Execution{}, err
	}
	exec := Execution{Order: order, Trades: trades}
	if o, ok := e.book.Order(order.ID); ok && o.Timestamp == order.Timestamp {
		exec.Resting = true
	}
	exec.Book = e.snapshot()

	if e.listener == nil {
		return exec, nil
	}
	var errs []error
	for _, t := range trades {
		if err := e.listener.OnTrade(t); err != nil {
			errs = append(errs, fmt.Errorf("buy %d sell %d: %w", t.BuyOrderID, t.SellOrderID, err))
		}
	}
	if len(errs) > 0 {
		return exec, fmt.Errorf("%w: %w", domain.ErrTradeNotification, errors.Join(errs...))
	}
	return exec, nil
}

// snapshot bumps the version and captures the top levels. Callers hold
// e.mu.
func (e *MatchingEngine) snapshot() Snapshot {
	e.version++
	s := Snapshot{Version: e.version}
	if e.snapshotLevels > 0 {
		s.Bids = e.book.TopBids(e.snapshotLevels)
		s.Asks = e.book.TopAsks(e.snapshotLevels)
	}
	return s
}

// Cancel removes a resting order. It returns false if the order is not
// on the book.
func (e *MatchingEngine) Cancel(orderID uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.book.CancelOrder(orderID) {
		return false
	}
	e.version++
	return true
}

// Withdraw cancels a resting order and returns its state at the time of
// cancellation along with the book after removal.
func (e *MatchingEngine) Withdraw(orderID uint64) (domain.Order, Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.book.Order(orderID)
	if !ok || !e.book.CancelOrder(orderID) {
		return domain.Order{}, Snapshot{}, false
	}
	return o, e.snapshot(), true
}

// BestBid returns a copy of the order with bid priority.
func (e *MatchingEngine) BestBid() (domain.Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.BestBid()
}

// BestAsk returns a copy of the order with ask priority.
func (e *MatchingEngine) BestAsk() (domain.Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.BestAsk()
}

// BookDepth returns a snapshot of every resting bid and ask.
func (e *MatchingEngine) BookDepth() (bids, asks []domain.Order) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.FullDepth()
}

// Order returns a copy of a resting order.
func (e *MatchingEngine) Order(orderID uint64) (domain.Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Order(orderID)
}

// Levels returns up to n aggregated levels per side, best first.
func (e *MatchingEngine) Levels(n int) (bids, asks []PriceLevel) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.TopBids(n), e.book.TopAsks(n)
}

// Quote simulates a market order of the given side and quantity against
// the current book.
func (e *MatchingEngine) Quote(side domain.Side, quantity uint64) QuoteResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Quote(side, quantity)
}
