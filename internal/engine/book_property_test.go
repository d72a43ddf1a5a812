package engine

import (
	"cmp"
	"errors"
	"reflect"
	"slices"
	"testing"

	"github.com/efreitasn/dexbook/internal/domain"
	"pgregory.net/rapid"
)

// modelBook is a deliberately naive book: a flat list of resting orders
// in arrival order, searched linearly for the best counterparty.
type modelBook struct {
	orders []domain.Order
}

// better reports whether resting order a has priority over b. Ties keep
// the earlier arrival, which the linear scan visits first.
func better(a, b domain.Order) bool {
	if a.Side == domain.SideSell {
		return a.Price < b.Price
	}
	return a.Price > b.Price
}

func (m *modelBook) add(o domain.Order) ([]domain.Trade, error) {
	if o.Type == domain.OrderTypePostOnly {
		for _, r := range m.orders {
			if r.Side != o.Side && o.Crosses(r.Price) {
				return nil, domain.ErrWouldCross
			}
		}
	}
	var trades []domain.Trade
	for o.Quantity > 0 {
		best := -1
		for i, r := range m.orders {
			if r.Side == o.Side || !o.Crosses(r.Price) {
				continue
			}
			if best == -1 || better(r, m.orders[best]) {
				best = i
			}
		}
		if best == -1 {
			break
		}
		maker := &m.orders[best]
		qty := min(o.Quantity, maker.Quantity)
		o.Quantity -= qty
		maker.Quantity -= qty
		trades = append(trades, domain.NewTrade(&o, maker, maker.Price, qty))
		if maker.Quantity == 0 {
			m.orders = slices.Delete(m.orders, best, best+1)
		}
	}
	if o.Quantity > 0 && o.Type.Rests() {
		m.orders = append(m.orders, o)
	}
	return trades, nil
}

func (m *modelBook) cancel(id uint64) bool {
	i := slices.IndexFunc(m.orders, func(o domain.Order) bool { return o.ID == id })
	if i < 0 {
		return false
	}
	m.orders = slices.Delete(m.orders, i, i+1)
	return true
}

func (m *modelBook) depth() (bids, asks []domain.Order) {
	bids, asks = make([]domain.Order, 0), make([]domain.Order, 0)
	for _, o := range m.orders {
		if o.Side == domain.SideBuy {
			bids = append(bids, o)
		} else {
			asks = append(asks, o)
		}
	}
	slices.SortStableFunc(bids, func(a, b domain.Order) int { return cmp.Compare(b.Price, a.Price) })
	slices.SortStableFunc(asks, func(a, b domain.Order) int { return cmp.Compare(a.Price, b.Price) })
	return bids, asks
}

var orderTypes = []domain.OrderType{
	domain.OrderTypeLimit,
	domain.OrderTypeLimit,
	domain.OrderTypeLimit,
	domain.OrderTypeMarket,
	domain.OrderTypeImmediateOrCancel,
	domain.OrderTypePostOnly,
}

func genOrder(id uint64) *rapid.Generator[domain.Order] {
	return rapid.Custom(func(t *rapid.T) domain.Order {
		return domain.Order{
			ID:        id,
			UserID:    rapid.Uint64Range(1, 5).Draw(t, "user"),
			Side:      rapid.SampledFrom([]domain.Side{domain.SideBuy, domain.SideSell}).Draw(t, "side"),
			Type:      rapid.SampledFrom(orderTypes).Draw(t, "type"),
			Price:     rapid.Uint64Range(95, 105).Draw(t, "price"),
			Quantity:  rapid.Uint64Range(1, 20).Draw(t, "qty"),
			Timestamp: id,
		}
	})
}

// checkBookInvariants verifies the structural invariants of the book:
// no empty levels, no zero-quantity orders, each order on the side
// matching its Side, indexed exactly once, and an uncrossed top of book.
func checkBookInvariants(t *rapid.T, ob *OrderBook) {
	seen := make(map[uint64]bool)
	check := func(tree string, side domain.Side, lvl *level) {
		if len(lvl.orders) == 0 {
			t.Fatalf("%s: empty level at %d", tree, lvl.price)
		}
		for _, o := range lvl.orders {
			if o.Quantity == 0 {
				t.Fatalf("%s: order %d rests with zero quantity", tree, o.ID)
			}
			if o.Side != side || o.Price != lvl.price {
				t.Fatalf("%s: order %d (%s@%d) in level %d", tree, o.ID, o.Side, o.Price, lvl.price)
			}
			if seen[o.ID] {
				t.Fatalf("order %d appears twice", o.ID)
			}
			seen[o.ID] = true
			if ob.index[o.ID] != o {
				t.Fatalf("order %d not indexed", o.ID)
			}
		}
	}
	ob.bids.Ascend(func(lvl *level) bool { check("bids", domain.SideBuy, lvl); return true })
	ob.asks.Ascend(func(lvl *level) bool { check("asks", domain.SideSell, lvl); return true })
	if len(seen) != len(ob.index) {
		t.Fatalf("index has %d orders, book has %d", len(ob.index), len(seen))
	}

	bid, hasBid := ob.BestBid()
	ask, hasAsk := ob.BestAsk()
	if hasBid && hasAsk && bid.Price >= ask.Price {
		t.Fatalf("book is crossed: best bid %d >= best ask %d", bid.Price, ask.Price)
	}
}

func TestProperty_BookMatchesReferenceModel(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ob := NewOrderBook()
		model := &modelBook{}
		var nextID uint64

		steps := rapid.IntRange(1, 80).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			if nextID > 0 && rapid.IntRange(0, 4).Draw(t, "op") == 0 {
				id := rapid.Uint64Range(1, nextID+1).Draw(t, "cancelID")
				got, want := ob.CancelOrder(id), model.cancel(id)
				if got != want {
					t.Fatalf("CancelOrder(%d) = %v, model says %v", id, got, want)
				}
			} else {
				nextID++
				o := genOrder(nextID).Draw(t, "order")
				got, err := ob.AddOrder(o)
				want, wantErr := model.add(o)
				if !errors.Is(err, wantErr) {
					t.Fatalf("AddOrder(%+v) error = %v, model error = %v", o, err, wantErr)
				}
				if len(got) != 0 || len(want) != 0 {
					if !reflect.DeepEqual(got, want) {
						t.Fatalf("AddOrder(%+v) trades = %+v, model = %+v", o, got, want)
					}
				}
			}

			checkBookInvariants(t, ob)
			gotBids, gotAsks := ob.FullDepth()
			wantBids, wantAsks := model.depth()
			if !reflect.DeepEqual(gotBids, wantBids) || !reflect.DeepEqual(gotAsks, wantAsks) {
				t.Fatalf("depth mismatch:\n bids %+v\n want %+v\n asks %+v\n want %+v",
					gotBids, wantBids, gotAsks, wantAsks)
			}
		}
	})
}

func TestProperty_PriceTimePriorityAndConservation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ob := NewOrderBook()
		sides := make(map[uint64]domain.Side)

		n := rapid.IntRange(1, 40).Draw(t, "restingOrders")
		for i := 1; i <= n; i++ {
			o := genOrder(uint64(i)).Draw(t, "resting")
			o.Type = domain.OrderTypeLimit
			sides[o.ID] = o.Side
			if _, err := ob.AddOrder(o); err != nil {
				t.Fatalf("AddOrder(%d): %v", o.ID, err)
			}
		}

		before := make(map[uint64]uint64)
		bids, asks := ob.FullDepth()
		for _, o := range append(bids, asks...) {
			before[o.ID] = o.Quantity
		}

		taker := genOrder(uint64(n+1)).Draw(t, "taker")
		taker.Type = domain.OrderTypeLimit
		sides[taker.ID] = taker.Side
		trades, err := ob.AddOrder(taker)
		if err != nil {
			t.Fatalf("AddOrder(taker): %v", err)
		}

		var filled uint64
		consumed := make(map[uint64]uint64)
		for i, tr := range trades {
			if sides[tr.BuyOrderID] != domain.SideBuy || sides[tr.SellOrderID] != domain.SideSell {
				t.Fatalf("trade %d pairs %s order %d with %s order %d",
					i, sides[tr.BuyOrderID], tr.BuyOrderID, sides[tr.SellOrderID], tr.SellOrderID)
			}
			if tr.Quantity == 0 {
				t.Fatalf("trade %d has zero quantity", i)
			}
			if !taker.Crosses(tr.Price) {
				t.Fatalf("trade %d at %d does not cross taker limit %d", i, tr.Price, taker.Price)
			}
			if i > 0 {
				prev := trades[i-1].Price
				if taker.Side == domain.SideBuy && tr.Price < prev {
					t.Fatalf("buy taker filled at %d after %d", tr.Price, prev)
				}
				if taker.Side == domain.SideSell && tr.Price > prev {
					t.Fatalf("sell taker filled at %d after %d", tr.Price, prev)
				}
			}
			maker := tr.SellOrderID
			if taker.Side == domain.SideSell {
				maker = tr.BuyOrderID
			}
			consumed[maker] += tr.Quantity
			filled += tr.Quantity
		}

		// Taker: filled + resting remainder == original quantity.
		var rested uint64
		if o, ok := ob.Order(taker.ID); ok {
			rested = o.Quantity
		}
		if filled+rested != taker.Quantity {
			t.Fatalf("taker conservation: filled %d + rested %d != %d", filled, rested, taker.Quantity)
		}

		// Makers: quantity removed from the book equals what they traded.
		for id, qty := range before {
			var now uint64
			if o, ok := ob.Order(id); ok {
				now = o.Quantity
			}
			if qty-now != consumed[id] {
				t.Fatalf("maker %d: book lost %d, trades consumed %d", id, qty-now, consumed[id])
			}
		}

		checkBookInvariants(t, ob)
	})
}

func TestProperty_CancelUnknownLeavesBookUnchanged(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ob := NewOrderBook()
		n := rapid.IntRange(0, 30).Draw(t, "orders")
		for i := 1; i <= n; i++ {
			o := genOrder(uint64(i)).Draw(t, "order")
			o.Type = domain.OrderTypeLimit
			ob.AddOrder(o)
		}
		bids, asks := ob.FullDepth()

		id := rapid.Uint64Range(uint64(n)+1, uint64(n)+1000).Draw(t, "unknownID")
		if ob.CancelOrder(id) {
			t.Fatalf("CancelOrder(%d) = true for an id never placed", id)
		}
		gotBids, gotAsks := ob.FullDepth()
		if !reflect.DeepEqual(bids, gotBids) || !reflect.DeepEqual(asks, gotAsks) {
			t.Fatal("book changed after cancelling an unknown id")
		}
	})
}
