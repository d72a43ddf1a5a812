package domain

// Trade is an execution between a buy order and a sell order. Price is
// always the resting (maker) order's price and Timestamp is the taker's.
type Trade struct {
	BuyOrderID  uint64
	SellOrderID uint64
	Price       uint64
	Quantity    uint64
	Timestamp   uint64
}

// NewTrade builds the trade produced when taker executes quantity
// against maker at price.
func NewTrade(taker, maker *Order, price, quantity uint64) Trade {
	t := Trade{
		Price:     price,
		Quantity:  quantity,
		Timestamp: taker.Timestamp,
	}
	if taker.Side == SideBuy {
		t.BuyOrderID, t.SellOrderID = taker.ID, maker.ID
	} else {
		t.BuyOrderID, t.SellOrderID = maker.ID, taker.ID
	}
	return t
}
