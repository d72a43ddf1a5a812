package service

import (
	"fmt"
	"time"

	"github.com/efreitasn/dexbook/internal/domain"
	"github.com/efreitasn/dexbook/internal/engine"
	"github.com/efreitasn/dexbook/internal/store"
	"github.com/shopspring/decimal"
)

const (
	maxBookLevels  = 50
	maxTradesLimit = 500
)

// PriceResponse represents the reference price of the instrument.
type PriceResponse struct {
	Symbol         string
	CurrentPrice   *uint64 // nil when no trades ever
	Window         string  // e.g. "5m"
	TradesInWindow int
	LastTradeAt    *time.Time // nil when no trades ever
}

// BookResponse represents the top levels of the book.
type BookResponse struct {
	Symbol     string
	Bids       []engine.PriceLevel
	Asks       []engine.PriceLevel
	Spread     *uint64 // nil if either side empty
	SnapshotAt time.Time
}

// TopOfBook holds the front order on each side.
type TopOfBook struct {
	Symbol  string
	BestBid *domain.Order
	BestAsk *domain.Order
	Spread  *uint64
}

// QuoteResponse represents a simulated market order.
type QuoteResponse struct {
	Symbol            string
	Side              domain.Side
	QuantityRequested uint64
	QuantityAvailable uint64
	FullyFillable     bool
	EstimatedAvgPrice *uint64          // ticks, nil when no liquidity
	EstimatedTotal    *decimal.Decimal // ticks × quantity, nil when no liquidity
	Levels            []engine.QuoteLevel
	QuotedAt          time.Time
}

// MarketService answers price, book, trade and quote queries.
type MarketService struct {
	engine     *engine.MatchingEngine
	tradeStore *store.TradeStore
	vwapWindow time.Duration
	symbol     string
}

// NewMarketService creates a new MarketService with the given dependencies.
func NewMarketService(
	eng *engine.MatchingEngine,
	tradeStore *store.TradeStore,
	vwapWindow time.Duration,
	symbol string,
) *MarketService {
	return &MarketService{
		engine:     eng,
		tradeStore: tradeStore,
		vwapWindow: vwapWindow,
		symbol:     symbol,
	}
}

// GetPrice returns the reference price, computed as VWAP over the
// configured time window. Falls back to the last trade's price if no
// trades exist in the window. Returns a nil price if no trades have ever
// occurred.
func (s *MarketService) GetPrice() *PriceResponse {
	resp := &PriceResponse{
		Symbol: s.symbol,
		Window: formatDuration(s.vwapWindow),
	}

	last, ok := s.tradeStore.Last()
	if !ok {
		return resp
	}
	resp.LastTradeAt = &last.ExecutedAt

	inWindow := s.tradeStore.Since(time.Now().Add(-s.vwapWindow))
	resp.TradesInWindow = len(inWindow)

	if len(inWindow) == 0 {
		resp.CurrentPrice = &last.Trade.Price
		return resp
	}

	// VWAP = sum(price * quantity) / sum(quantity), truncated to a tick.
	sumPQ := decimal.Zero
	sumQ := decimal.Zero
	for _, e := range inWindow {
		q := decimal.NewFromUint64(e.Trade.Quantity)
		sumPQ = sumPQ.Add(decimal.NewFromUint64(e.Trade.Price).Mul(q))
		sumQ = sumQ.Add(q)
	}
	vwap, _ := sumPQ.QuoRem(sumQ, 0)
	v := vwap.BigInt().Uint64()
	resp.CurrentPrice = &v
	return resp
}

// GetBook returns up to levels aggregated price levels per side.
func (s *MarketService) GetBook(levels int) (*BookResponse, error) {
	if levels < 1 || levels > maxBookLevels {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("levels must be between 1 and %d", maxBookLevels),
		}
	}

	bids, asks := s.engine.Levels(levels)
	resp := &BookResponse{
		Symbol:     s.symbol,
		Bids:       bids,
		Asks:       asks,
		SnapshotAt: time.Now(),
	}
	if len(bids) > 0 && len(asks) > 0 {
		spread := asks[0].Price - bids[0].Price
		resp.Spread = &spread
	}
	return resp, nil
}

// GetDepth returns every resting order, best price first on each side.
func (s *MarketService) GetDepth() (bids, asks []domain.Order) {
	return s.engine.BookDepth()
}

// GetTop returns the front order on each side and the spread.
func (s *MarketService) GetTop() *TopOfBook {
	top := &TopOfBook{Symbol: s.symbol}
	if bid, ok := s.engine.BestBid(); ok {
		top.BestBid = &bid
	}
	if ask, ok := s.engine.BestAsk(); ok {
		top.BestAsk = &ask
	}
	if top.BestBid != nil && top.BestAsk != nil {
		spread := top.BestAsk.Price - top.BestBid.Price
		top.Spread = &spread
	}
	return top
}

// GetTrades returns up to limit trades, newest first.
func (s *MarketService) GetTrades(limit int) ([]store.TapeEntry, error) {
	if limit < 1 || limit > maxTradesLimit {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("limit must be between 1 and %d", maxTradesLimit),
		}
	}
	return s.tradeStore.Recent(limit), nil
}

// GetQuote simulates a market order against the current book and returns
// the estimated result without placing an order.
func (s *MarketService) GetQuote(side domain.Side, quantity uint64) (*QuoteResponse, error) {
	if !side.Valid() {
		return nil, &domain.ValidationError{Message: "side must be 'buy' or 'sell'"}
	}
	if quantity == 0 {
		return nil, &domain.ValidationError{Message: "quantity must be a positive integer"}
	}

	result := s.engine.Quote(side, quantity)
	resp := &QuoteResponse{
		Symbol:            s.symbol,
		Side:              side,
		QuantityRequested: quantity,
		QuantityAvailable: result.QuantityAvailable,
		FullyFillable:     result.FullyFillable,
		Levels:            result.Levels,
		QuotedAt:          time.Now(),
	}

	if result.QuantityAvailable > 0 {
		total := decimal.Zero
		for _, l := range result.Levels {
			total = total.Add(decimal.NewFromUint64(l.Price).Mul(decimal.NewFromUint64(l.Quantity)))
		}
		q, _ := total.QuoRem(decimal.NewFromUint64(result.QuantityAvailable), 0)
		avg := q.BigInt().Uint64()
		resp.EstimatedAvgPrice = &avg
		resp.EstimatedTotal = &total
	}
	return resp, nil
}

// formatDuration converts a time.Duration to a human-readable string
// like "5m" for the window field.
func formatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	minutes := int(d.Minutes())
	if d == time.Duration(minutes)*time.Minute && minutes > 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return d.String()
}
