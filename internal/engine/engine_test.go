package engine

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/efreitasn/dexbook/internal/domain"
)

// recordingListener collects trades and can be told to fail.
type recordingListener struct {
	mu     sync.Mutex
	trades []domain.Trade
	failAt int // 1-based call number that fails; 0 never fails
	calls  int
}

func (l *recordingListener) OnTrade(t domain.Trade) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.failAt != 0 && l.calls == l.failAt {
		return errors.New("sink unavailable")
	}
	l.trades = append(l.trades, t)
	return nil
}

func newTestEngine(l domain.TradeListener) *MatchingEngine {
	return NewMatchingEngine(NewOrderBook(), l)
}

func TestPlaceOrder_NotifiesInExecutionOrder(t *testing.T) {
	l := &recordingListener{}
	e := newTestEngine(l)

	for _, o := range []domain.Order{
		limit(10, domain.SideSell, 103, 5),
		limit(11, domain.SideSell, 103, 10),
	} {
		if _, err := e.PlaceOrder(o); err != nil {
			t.Fatalf("PlaceOrder(%d): %v", o.ID, err)
		}
	}
	if len(l.trades) != 0 {
		t.Fatalf("listener called for resting orders: %+v", l.trades)
	}

	trades, err := e.PlaceOrder(limit(9, domain.SideBuy, 103, 15))
	if err != nil {
		t.Fatalf("PlaceOrder(9): %v", err)
	}
	if !reflect.DeepEqual(l.trades, trades) {
		t.Errorf("listener saw %+v, PlaceOrder returned %+v", l.trades, trades)
	}
	if len(trades) != 2 || trades[0].SellOrderID != 10 || trades[1].SellOrderID != 11 {
		t.Errorf("trades = %+v, want fills against 10 then 11", trades)
	}
}

func TestPlaceOrder_ListenerFailureSurfaces(t *testing.T) {
	l := &recordingListener{failAt: 2}
	e := newTestEngine(l)
	e.PlaceOrder(limit(1, domain.SideSell, 100, 5))
	e.PlaceOrder(limit(2, domain.SideSell, 101, 5))
	e.PlaceOrder(limit(3, domain.SideSell, 102, 5))

	trades, err := e.PlaceOrder(limit(4, domain.SideBuy, 102, 15))
	if !errors.Is(err, domain.ErrTradeNotification) {
		t.Fatalf("PlaceOrder() error = %v, want ErrTradeNotification", err)
	}
	if len(trades) != 3 {
		t.Errorf("expected the 3 executed trades alongside the error, got %d", len(trades))
	}
	if l.calls != 3 {
		t.Errorf("listener called %d times, want every trade delivered", l.calls)
	}
	if len(l.trades) != 2 || l.trades[0].SellOrderID != 1 || l.trades[1].SellOrderID != 3 {
		t.Errorf("listener kept %+v, want the fills against 1 and 3", l.trades)
	}

	// Matching is not rolled back.
	bids, asks := e.BookDepth()
	if len(bids) != 0 || len(asks) != 0 {
		t.Errorf("expected empty book after fills, got bids=%d asks=%d", len(bids), len(asks))
	}
}

func TestPlaceOrder_ListenerFailuresAreJoined(t *testing.T) {
	down := errors.New("sink down")
	e := newTestEngine(domain.TradeListenerFunc(func(domain.Trade) error { return down }))
	e.PlaceOrder(limit(1, domain.SideSell, 100, 5))
	e.PlaceOrder(limit(2, domain.SideSell, 100, 5))

	_, err := e.PlaceOrder(limit(3, domain.SideBuy, 100, 10))
	if !errors.Is(err, domain.ErrTradeNotification) || !errors.Is(err, down) {
		t.Fatalf("PlaceOrder() error = %v, want ErrTradeNotification wrapping the sink error", err)
	}
}

func TestPlaceOrder_RejectionSkipsListener(t *testing.T) {
	l := &recordingListener{}
	e := newTestEngine(l)

	_, err := e.PlaceOrder(limit(1, domain.SideBuy, 100, 0))
	if !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Fatalf("PlaceOrder() error = %v, want ErrInvalidQuantity", err)
	}
	if l.calls != 0 {
		t.Errorf("listener called %d times for a rejected order", l.calls)
	}
}

func TestPlaceOrder_NilListener(t *testing.T) {
	e := newTestEngine(nil)
	e.PlaceOrder(limit(1, domain.SideBuy, 100, 5))
	trades, err := e.PlaceOrder(limit(2, domain.SideSell, 100, 5))
	if err != nil {
		t.Fatalf("PlaceOrder() unexpected error: %v", err)
	}
	if len(trades) != 1 {
		t.Errorf("expected 1 trade, got %d", len(trades))
	}
}

func TestCancel_NoNotification(t *testing.T) {
	l := &recordingListener{}
	e := newTestEngine(l)
	e.PlaceOrder(limit(1, domain.SideBuy, 100, 5))

	if !e.Cancel(1) {
		t.Fatal("Cancel(1) = false, want true")
	}
	if e.Cancel(1) {
		t.Error("second Cancel(1) = true, want false")
	}
	if l.calls != 0 {
		t.Errorf("listener called %d times on cancel", l.calls)
	}
	if _, ok := e.BestBid(); ok {
		t.Error("expected no best bid after cancel")
	}
}

func TestEngine_Queries(t *testing.T) {
	e := newTestEngine(nil)
	e.PlaceOrder(limit(1, domain.SideBuy, 99, 5))
	e.PlaceOrder(limit(2, domain.SideSell, 101, 7))

	if bid, ok := e.BestBid(); !ok || bid.ID != 1 {
		t.Errorf("BestBid() = %+v (ok=%v)", bid, ok)
	}
	if ask, ok := e.BestAsk(); !ok || ask.ID != 2 {
		t.Errorf("BestAsk() = %+v (ok=%v)", ask, ok)
	}
	if o, ok := e.Order(2); !ok || o.Quantity != 7 {
		t.Errorf("Order(2) = %+v (ok=%v)", o, ok)
	}
	bids, asks := e.Levels(10)
	if len(bids) != 1 || len(asks) != 1 || asks[0].TotalQuantity != 7 {
		t.Errorf("Levels(10) = %+v / %+v", bids, asks)
	}
}

func TestEngine_ConcurrentPlaceOrder(t *testing.T) {
	l := &recordingListener{}
	e := newTestEngine(l)

	const perSide = 200
	var wg sync.WaitGroup
	for i := 0; i < perSide; i++ {
		wg.Add(2)
		go func(id uint64) {
			defer wg.Done()
			e.PlaceOrder(limit(id, domain.SideBuy, 100, 1))
		}(uint64(2*i + 1))
		go func(id uint64) {
			defer wg.Done()
			e.PlaceOrder(limit(id, domain.SideSell, 100, 1))
		}(uint64(2*i + 2))
	}
	wg.Wait()

	bids, asks := e.BookDepth()
	var filled uint64
	for _, tr := range l.trades {
		filled += tr.Quantity
	}
	if filled != perSide {
		t.Errorf("filled %d, want %d", filled, perSide)
	}
	if len(bids) != 0 || len(asks) != 0 {
		t.Errorf("expected empty book, got bids=%d asks=%d", len(bids), len(asks))
	}
}

func TestExecute_ReportsResting(t *testing.T) {
	e := newTestEngine(nil)

	exec, err := e.Execute(limit(1, domain.SideSell, 100, 5))
	if err != nil || !exec.Resting || len(exec.Trades) != 0 {
		t.Fatalf("Execute(resting sell) = %+v, %v", exec, err)
	}

	exec, err = e.Execute(limit(2, domain.SideBuy, 100, 8))
	if err != nil || !exec.Resting || len(exec.Trades) != 1 {
		t.Fatalf("Execute(partial buy) = %+v, %v", exec, err)
	}

	ioc := limit(3, domain.SideSell, 100, 20)
	ioc.Type = domain.OrderTypeImmediateOrCancel
	exec, err = e.Execute(ioc)
	if err != nil || exec.Resting || len(exec.Trades) != 1 {
		t.Fatalf("Execute(ioc) = %+v, %v", exec, err)
	}
}

func TestWithdraw(t *testing.T) {
	e := newTestEngine(nil)
	e.PlaceOrder(limit(1, domain.SideBuy, 100, 5))
	e.PlaceOrder(limit(2, domain.SideSell, 100, 2))

	o, snap, ok := e.Withdraw(1)
	if !ok || o.ID != 1 || o.Quantity != 3 {
		t.Fatalf("Withdraw(1) = %+v (ok=%v), want remaining 3", o, ok)
	}
	if len(snap.Bids) != 0 || len(snap.Asks) != 0 {
		t.Errorf("snapshot after withdraw = %+v, want empty book", snap)
	}
	if _, _, ok := e.Withdraw(1); ok {
		t.Error("second Withdraw(1) succeeded")
	}
}

func TestExecute_SnapshotVersionsIncrease(t *testing.T) {
	e := newTestEngine(nil)

	first, _ := e.Execute(limit(1, domain.SideBuy, 99, 5))
	if len(first.Book.Bids) != 1 || first.Book.Bids[0].TotalQuantity != 5 {
		t.Fatalf("snapshot bids = %+v", first.Book.Bids)
	}
	e.Cancel(1)
	second, _ := e.Execute(limit(2, domain.SideSell, 101, 7))
	if second.Book.Version <= first.Book.Version+1 {
		t.Errorf("version %d after cancel and place, first was %d", second.Book.Version, first.Book.Version)
	}
	if len(second.Book.Bids) != 0 || len(second.Book.Asks) != 1 {
		t.Errorf("snapshot = %+v, want one ask level", second.Book)
	}

	if _, err := e.Execute(limit(2, domain.SideSell, 101, 7)); err == nil {
		t.Fatal("duplicate id accepted")
	}
	third, _ := e.Execute(limit(3, domain.SideSell, 102, 1))
	if third.Book.Version != second.Book.Version+1 {
		t.Errorf("rejected order changed the version: %d after %d", third.Book.Version, second.Book.Version)
	}
}

func TestExecute_SnapshotLevelsOption(t *testing.T) {
	e := NewMatchingEngine(NewOrderBook(), nil, WithSnapshotLevels(1))
	e.Execute(limit(1, domain.SideBuy, 99, 5))
	exec, _ := e.Execute(limit(2, domain.SideBuy, 98, 5))
	if len(exec.Book.Bids) != 1 || exec.Book.Bids[0].Price != 99 {
		t.Errorf("snapshot bids = %+v, want only the best level", exec.Book.Bids)
	}

	e = NewMatchingEngine(NewOrderBook(), nil, WithSnapshotLevels(0))
	exec, _ = e.Execute(limit(1, domain.SideBuy, 99, 5))
	if exec.Book.Bids != nil || exec.Book.Version != 1 {
		t.Errorf("snapshot = %+v, want version only", exec.Book)
	}
}

func TestExecute_SequencerStampsArrival(t *testing.T) {
	e := NewMatchingEngine(NewOrderBook(), nil, WithSequencer(NewSequencer(41)))

	exec, err := e.Execute(limit(1, domain.SideBuy, 100, 5))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if exec.Order.Timestamp != 42 {
		t.Errorf("Timestamp = %d, want 42", exec.Order.Timestamp)
	}
	if o, _ := e.Order(1); o.Timestamp != 42 {
		t.Errorf("resting Timestamp = %d, want 42", o.Timestamp)
	}
}

func TestExecute_ConcurrentArrivalsKeepLevelFIFO(t *testing.T) {
	e := NewMatchingEngine(NewOrderBook(), nil, WithSequencer(NewSequencer(0)))

	const n = 2000
	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			e.Execute(domain.Order{ID: id, Side: domain.SideBuy, Type: domain.OrderTypeLimit, Price: 100, Quantity: 1})
		}(uint64(i))
	}
	wg.Wait()

	bids, _ := e.BookDepth()
	if len(bids) != n {
		t.Fatalf("got %d resting bids, want %d", len(bids), n)
	}
	for i := 1; i < len(bids); i++ {
		if bids[i].Timestamp <= bids[i-1].Timestamp {
			t.Fatalf("queue position %d has timestamp %d behind position %d with timestamp %d",
				i, bids[i].Timestamp, i-1, bids[i-1].Timestamp)
		}
	}
}
