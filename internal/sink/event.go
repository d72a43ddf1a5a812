package sink

import (
	"time"

	"github.com/efreitasn/dexbook/internal/domain"
	"github.com/google/uuid"
)

// TradeEvent is the envelope published to external sinks for each trade.
type TradeEvent struct {
	EventID     string    `json:"event_id"`
	Symbol      string    `json:"symbol"`
	BuyOrderID  uint64    `json:"buy_order_id"`
	SellOrderID uint64    `json:"sell_order_id"`
	Price       uint64    `json:"price"`
	Quantity    uint64    `json:"quantity"`
	Timestamp   uint64    `json:"timestamp"`
	PublishedAt time.Time `json:"published_at"`
}

// NewTradeEvent wraps t in an envelope with a fresh event ID.
func NewTradeEvent(symbol string, t domain.Trade) TradeEvent {
	return TradeEvent{
		EventID:     uuid.New().String(),
		Symbol:      symbol,
		BuyOrderID:  t.BuyOrderID,
		SellOrderID: t.SellOrderID,
		Price:       t.Price,
		Quantity:    t.Quantity,
		Timestamp:   t.Timestamp,
		PublishedAt: time.Now().UTC(),
	}
}

// Trade returns the trade carried by the event.
func (e TradeEvent) Trade() domain.Trade {
	return domain.Trade{
		BuyOrderID:  e.BuyOrderID,
		SellOrderID: e.SellOrderID,
		Price:       e.Price,
		Quantity:    e.Quantity,
		Timestamp:   e.Timestamp,
	}
}
