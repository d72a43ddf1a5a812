package engine

import (
	"github.com/efreitasn/dexbook/internal/domain"
	"github.com/google/btree"
)

// QuoteLevel is the quantity a simulated market order would take at one
// price.
type QuoteLevel struct {
	Price    uint64
	Quantity uint64
}

// QuoteResult holds the result of a market order simulation.
type QuoteResult struct {
	QuantityAvailable uint64
	FullyFillable     bool
	Levels            []QuoteLevel
}

// Quote performs a read-only walk of the opposite side of the book to
// estimate the result of a market order without placing it. Buy quotes
// walk asks lowest first, sell quotes walk bids highest first.
func (ob *OrderBook) Quote(side domain.Side, quantity uint64) QuoteResult {
	return quote(ob.side(side.Opposite()), quantity)
}

func quote(tree *btree.BTreeG[*level], quantity uint64) QuoteResult {
	result := QuoteResult{Levels: make([]QuoteLevel, 0)}
	remaining := quantity

	tree.Ascend(func(lvl *level) bool {
		if remaining == 0 {
			return false
		}
		var take uint64
		for _, o := range lvl.orders {
			take += min(o.Quantity, remaining-take)
			if take == remaining {
				break
			}
		}
		remaining -= take
		result.QuantityAvailable += take
		result.Levels = append(result.Levels, QuoteLevel{Price: lvl.price, Quantity: take})
		return true
	})

	result.FullyFillable = result.QuantityAvailable >= quantity
	return result
}
