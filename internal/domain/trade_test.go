package domain

import "testing"

func TestNewTrade_IncomingBuy(t *testing.T) {
	taker := &Order{ID: 9, Side: SideBuy, Price: 110, Timestamp: 7}
	maker := &Order{ID: 4, Side: SideSell, Price: 103, Timestamp: 2}

	tr := NewTrade(taker, maker, maker.Price, 5)
	want := Trade{BuyOrderID: 9, SellOrderID: 4, Price: 103, Quantity: 5, Timestamp: 7}
	if tr != want {
		t.Errorf("NewTrade() = %+v, want %+v", tr, want)
	}
}

func TestNewTrade_IncomingSell(t *testing.T) {
	taker := &Order{ID: 2, Side: SideSell, Price: 0, Timestamp: 2}
	maker := &Order{ID: 1, Side: SideBuy, Price: 110, Timestamp: 1}

	tr := NewTrade(taker, maker, maker.Price, 5)
	want := Trade{BuyOrderID: 1, SellOrderID: 2, Price: 110, Quantity: 5, Timestamp: 2}
	if tr != want {
		t.Errorf("NewTrade() = %+v, want %+v", tr, want)
	}
}

func TestTradeListenerFunc(t *testing.T) {
	var got []Trade
	var l TradeListener = TradeListenerFunc(func(tr Trade) error {
		got = append(got, tr)
		return nil
	})
	if err := l.OnTrade(Trade{BuyOrderID: 1, SellOrderID: 2, Quantity: 3}); err != nil {
		t.Fatalf("OnTrade() error: %v", err)
	}
	if len(got) != 1 || got[0].Quantity != 3 {
		t.Errorf("listener received %+v", got)
	}
}
