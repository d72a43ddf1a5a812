package engine

import (
	"fmt"
	"slices"

	"github.com/efreitasn/dexbook/internal/domain"
	"github.com/google/btree"
)

// Book is the order book capability the MatchingEngine drives.
type Book interface {
	AddOrder(order domain.Order) ([]domain.Trade, error)
	CancelOrder(orderID uint64) bool
	BestBid() (domain.Order, bool)
	BestAsk() (domain.Order, bool)
	FullDepth() (bids, asks []domain.Order)
	Order(orderID uint64) (domain.Order, bool)
	TopBids(n int) []PriceLevel
	TopAsks(n int) []PriceLevel
	Quote(side domain.Side, quantity uint64) QuoteResult
}

// PriceLevel represents an aggregated price level in the order book.
type PriceLevel struct {
	Price         uint64
	TotalQuantity uint64
	OrderCount    int
}

// level is the FIFO queue of resting orders at one exact price on one
// side. orders[0] has time priority.
type level struct {
	price  uint64
	orders []*domain.Order
}

// bidLess orders bid levels by price descending, so Min() is the best bid.
func bidLess(a, b *level) bool {
	return a.price > b.price
}

// askLess orders ask levels by price ascending, so Min() is the best ask.
func askLess(a, b *level) bool {
	return a.price < b.price
}

// OrderBook holds the resting orders of a single instrument in two
// B-trees of price levels, with a secondary index for O(log n) lookup
// by order ID. It is not safe for concurrent use; MatchingEngine
// serializes access to it.
type OrderBook struct {
	bids  *btree.BTreeG[*level]
	asks  *btree.BTreeG[*level]
	index map[uint64]*domain.Order // order_id → resting order
}

// NewOrderBook creates an empty order book.
func NewOrderBook() *OrderBook {
	const degree = 32
	return &OrderBook{
		bids:  btree.NewG[*level](degree, bidLess),
		asks:  btree.NewG[*level](degree, askLess),
		index: make(map[uint64]*domain.Order),
	}
}

func (ob *OrderBook) side(s domain.Side) *btree.BTreeG[*level] {
	if s == domain.SideBuy {
		return ob.bids
	}
	return ob.asks
}

// AddOrder matches an incoming order against the opposite side and
// returns the trades produced, in execution order. Levels are visited
// best price first (asks ascending, bids descending) and orders within
// a level in arrival order; the walk stops at the first level the order
// does not cross. Any remainder of a limit or post-only order rests at
// the back of its own price level.
//
// Rejected orders leave the book untouched.
func (ob *OrderBook) AddOrder(order domain.Order) ([]domain.Trade, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}
	if _, ok := ob.index[order.ID]; ok {
		return nil, fmt.Errorf("order %d: %w", order.ID, domain.ErrDuplicateOrder)
	}
	if order.Type == domain.OrderTypePostOnly {
		if best, ok := ob.side(order.Side.Opposite()).Min(); ok && order.Crosses(best.price) {
			return nil, fmt.Errorf("order %d at %d: %w", order.ID, order.Price, domain.ErrWouldCross)
		}
	}

	taker := order
	trades := ob.match(&taker)

	if taker.Quantity > 0 && taker.Type.Rests() {
		ob.rest(&taker)
	}
	return trades, nil
}

// match walks the opposite side consuming liquidity until the taker is
// filled or the best remaining level no longer crosses. Fully filled
// makers are removed and emptied levels are pruned as the walk leaves
// them.
func (ob *OrderBook) match(taker *domain.Order) []domain.Trade {
	book := ob.side(taker.Side.Opposite())
	var trades []domain.Trade

	for taker.Quantity > 0 {
		lvl, ok := book.Min()
		if !ok || !taker.Crosses(lvl.price) {
			break
		}

		for taker.Quantity > 0 && len(lvl.orders) > 0 {
			maker := lvl.orders[0]
			qty := min(taker.Quantity, maker.Quantity)

			taker.Quantity -= qty
			maker.Quantity -= qty
			trades = append(trades, domain.NewTrade(taker, maker, lvl.price, qty))

			// A partially filled maker keeps its place at the front.
			if maker.Quantity == 0 {
				lvl.orders[0] = nil
				lvl.orders = lvl.orders[1:]
				delete(ob.index, maker.ID)
			}
		}

		if len(lvl.orders) == 0 {
			book.Delete(lvl)
		}
	}
	return trades
}

// rest appends order to the back of its price level, creating the
// level if needed.
func (ob *OrderBook) rest(order *domain.Order) {
	book := ob.side(order.Side)
	lvl, ok := book.Get(&level{price: order.Price})
	if !ok {
		lvl = &level{price: order.Price}
		book.ReplaceOrInsert(lvl)
	}
	lvl.orders = append(lvl.orders, order)
	ob.index[order.ID] = order
}

// CancelOrder removes the resting order with the given ID in its
// entirety. It returns false if no such order is resting.
func (ob *OrderBook) CancelOrder(orderID uint64) bool {
	order, ok := ob.index[orderID]
	if !ok {
		return false
	}
	delete(ob.index, orderID)

	book := ob.side(order.Side)
	lvl, ok := book.Get(&level{price: order.Price})
	if !ok {
		return true
	}
	if i := slices.Index(lvl.orders, order); i >= 0 {
		lvl.orders = slices.Delete(lvl.orders, i, i+1)
	}
	if len(lvl.orders) == 0 {
		book.Delete(lvl)
	}
	return true
}

// BestBid returns a copy of the front order at the highest bid price.
func (ob *OrderBook) BestBid() (domain.Order, bool) {
	return front(ob.bids)
}

// BestAsk returns a copy of the front order at the lowest ask price.
func (ob *OrderBook) BestAsk() (domain.Order, bool) {
	return front(ob.asks)
}

func front(tree *btree.BTreeG[*level]) (domain.Order, bool) {
	lvl, ok := tree.Min()
	if !ok || len(lvl.orders) == 0 {
		return domain.Order{}, false
	}
	return *lvl.orders[0], true
}

// FullDepth returns copies of every resting order, bids from the highest
// price down and asks from the lowest price up, arrival order within a
// level. The slices do not change when the book does.
func (ob *OrderBook) FullDepth() (bids, asks []domain.Order) {
	return snapshot(ob.bids), snapshot(ob.asks)
}

func snapshot(tree *btree.BTreeG[*level]) []domain.Order {
	orders := make([]domain.Order, 0)
	tree.Ascend(func(lvl *level) bool {
		for _, o := range lvl.orders {
			orders = append(orders, *o)
		}
		return true
	})
	return orders
}

// Order returns a copy of the resting order with the given ID.
func (ob *OrderBook) Order(orderID uint64) (domain.Order, bool) {
	o, ok := ob.index[orderID]
	if !ok {
		return domain.Order{}, false
	}
	return *o, true
}

// TopBids returns up to n aggregated price levels from the bid side,
// ordered by price descending.
func (ob *OrderBook) TopBids(n int) []PriceLevel {
	return topLevels(ob.bids, n)
}

// TopAsks returns up to n aggregated price levels from the ask side,
// ordered by price ascending.
func (ob *OrderBook) TopAsks(n int) []PriceLevel {
	return topLevels(ob.asks, n)
}

func topLevels(tree *btree.BTreeG[*level], n int) []PriceLevel {
	if n <= 0 {
		return nil
	}
	levels := make([]PriceLevel, 0, min(n, tree.Len()))
	tree.Ascend(func(lvl *level) bool {
		if len(levels) >= n {
			return false
		}
		pl := PriceLevel{Price: lvl.price, OrderCount: len(lvl.orders)}
		for _, o := range lvl.orders {
			pl.TotalQuantity += o.Quantity
		}
		levels = append(levels, pl)
		return true
	})
	return levels
}

// BidCount returns the number of individual bid orders on the book.
func (ob *OrderBook) BidCount() int {
	return count(ob.bids)
}

// AskCount returns the number of individual ask orders on the book.
func (ob *OrderBook) AskCount() int {
	return count(ob.asks)
}

func count(tree *btree.BTreeG[*level]) int {
	n := 0
	tree.Ascend(func(lvl *level) bool {
		n += len(lvl.orders)
		return true
	})
	return n
}
