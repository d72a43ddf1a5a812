package domain

import "fmt"

// OrderType selects the admission rule applied to an incoming order.
type OrderType string

const (
	OrderTypeLimit             OrderType = "limit"
	OrderTypeMarket            OrderType = "market"
	OrderTypePostOnly          OrderType = "post_only"
	OrderTypeImmediateOrCancel OrderType = "ioc"
)

// Valid reports whether t is one of the known order types.
func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeLimit, OrderTypeMarket, OrderTypePostOnly, OrderTypeImmediateOrCancel:
		return true
	}
	return false
}

// Rests reports whether an unfilled remainder of this type is placed on the book.
func (t OrderType) Rests() bool {
	return t == OrderTypeLimit || t == OrderTypePostOnly
}

// Side indicates whether an order buys or sells.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is buy or sell.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Opposite returns the side an order of side s matches against.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Order is an instruction to buy or sell the instrument. ID, UserID,
// Side, Type, Price and Timestamp never change once the order is placed;
// Quantity holds the remaining size and only decreases.
type Order struct {
	ID        uint64
	UserID    uint64
	Side      Side
	Type      OrderType
	Price     uint64 // ignored for matching when Type is market
	Quantity  uint64
	Timestamp uint64 // arrival sequence
}

// Validate checks the fields the engine relies on. It returns
// ErrInvalidQuantity for a zero quantity and a *ValidationError for an
// unknown side or type.
func (o Order) Validate() error {
	if !o.Side.Valid() {
		return &ValidationError{Message: fmt.Sprintf("side must be 'buy' or 'sell', got %q", o.Side)}
	}
	if !o.Type.Valid() {
		return &ValidationError{
			Message: fmt.Sprintf("Unknown order type: %s. Must be one of: limit, market, post_only, ioc", o.Type),
		}
	}
	if o.Quantity == 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// Crosses reports whether o is willing to trade at price against the
// opposite side. Market orders cross any price.
func (o Order) Crosses(price uint64) bool {
	if o.Type == OrderTypeMarket {
		return true
	}
	if o.Side == SideBuy {
		return o.Price >= price
	}
	return o.Price <= price
}
