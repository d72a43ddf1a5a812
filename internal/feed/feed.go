package feed

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/efreitasn/dexbook/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	subscriberBuffer = 64
	writeWait        = 5 * time.Second
)

// Message is the envelope written to websocket clients.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// TradeView is a trade as streamed to clients.
type TradeView struct {
	Symbol      string `json:"symbol"`
	BuyOrderID  uint64 `json:"buy_order_id"`
	SellOrderID uint64 `json:"sell_order_id"`
	Price       string `json:"price"`
	Quantity    uint64 `json:"quantity"`
	Timestamp   uint64 `json:"timestamp"`
}

// LevelView is one aggregated price level.
type LevelView struct {
	Price      string `json:"price"`
	Quantity   uint64 `json:"quantity"`
	OrderCount int    `json:"order_count"`
}

// BookView is the top of the book as streamed to clients. A higher
// Version is a newer book.
type BookView struct {
	Symbol  string      `json:"symbol"`
	Version uint64      `json:"version"`
	Bids    []LevelView `json:"bids"`
	Asks    []LevelView `json:"asks"`
}

// Feed streams trades and book updates to websocket clients. It is a
// domain.TradeListener.
type Feed struct {
	symbol   string
	scale    int32
	hub      *hub[Message]
	upgrader websocket.Upgrader
	logger   *slog.Logger

	bookMu      sync.Mutex
	bookVersion uint64
}

// New creates a Feed for one instrument. Prices are formatted at scale.
func New(symbol string, scale int32, logger *slog.Logger) *Feed {
	return &Feed{
		symbol:   symbol,
		scale:    scale,
		hub:      newHub[Message](),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		logger:   logger,
	}
}

// OnTrade implements domain.TradeListener. Slow clients miss messages
// rather than stall matching, so it never fails.
func (f *Feed) OnTrade(t domain.Trade) error {
	f.hub.Broadcast(Message{Type: "trade", Data: TradeView{
		Symbol:      f.symbol,
		BuyOrderID:  t.BuyOrderID,
		SellOrderID: t.SellOrderID,
		Price:       domain.FormatPrice(t.Price, f.scale),
		Quantity:    t.Quantity,
		Timestamp:   t.Timestamp,
	}})
	return nil
}

// PublishBook broadcasts a book update. A view whose Version is not
// newer than the last one broadcast is dropped; version 0 is always sent.
func (f *Feed) PublishBook(view BookView) {
	f.bookMu.Lock()
	defer f.bookMu.Unlock()

	if view.Version != 0 {
		if view.Version <= f.bookVersion {
			return
		}
		f.bookVersion = view.Version
	}
	f.hub.Broadcast(Message{Type: "book", Data: view})
}

// Subscribers returns the number of connected clients.
func (f *Feed) Subscribers() int {
	return f.hub.Len()
}

// Close disconnects every client.
func (f *Feed) Close() {
	f.hub.Close()
}

// ServeWS upgrades the request to a websocket and streams messages until
// the client goes away or the feed is closed.
func (f *Feed) ServeWS(w http.ResponseWriter, r *http.Request) {
	// Subscribe before the handshake completes so a client sees every
	// message published after its dial returns.
	sub := f.hub.Subscribe(subscriberBuffer)
	defer f.hub.Unsubscribe(sub)

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case msg, ok := <-sub.ch:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				f.logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}
