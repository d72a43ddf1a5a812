package handler

import (
	"net/http"
	"strconv"

	"github.com/efreitasn/dexbook/internal/domain"
	"github.com/efreitasn/dexbook/internal/engine"
	"github.com/efreitasn/dexbook/internal/service"
)

const (
	defaultBookLevels  = 10
	defaultTradesLimit = 50
	timeFormat         = "2006-01-02T15:04:05Z"
)

// MarketHandler handles HTTP requests for market data endpoints.
type MarketHandler struct {
	marketSvc *service.MarketService
	scale     int32
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(marketSvc *service.MarketService, scale int32) *MarketHandler {
	return &MarketHandler{marketSvc: marketSvc, scale: scale}
}

// priceResponse is the JSON response for GET /price.
type priceResponse struct {
	Symbol       string  `json:"symbol"`
	CurrentPrice *string `json:"current_price"`
	Window       string  `json:"window"`
	TradesInWin  int     `json:"trades_in_window"`
	LastTradeAt  *string `json:"last_trade_at"`
}

// bookLevelResponse is a single price level in the book response.
type bookLevelResponse struct {
	Price         string `json:"price"`
	TotalQuantity uint64 `json:"total_quantity"`
	OrderCount    int    `json:"order_count"`
}

// bookResponse is the JSON response for GET /book.
type bookResponse struct {
	Symbol     string              `json:"symbol"`
	Bids       []bookLevelResponse `json:"bids"`
	Asks       []bookLevelResponse `json:"asks"`
	Spread     *string             `json:"spread"`
	SnapshotAt string              `json:"snapshot_at"`
}

// depthResponse is the JSON response for GET /book/depth.
type depthResponse struct {
	Bids []orderResponse `json:"bids"`
	Asks []orderResponse `json:"asks"`
}

// topResponse is the JSON response for GET /book/top.
type topResponse struct {
	Symbol  string         `json:"symbol"`
	BestBid *orderResponse `json:"best_bid"`
	BestAsk *orderResponse `json:"best_ask"`
	Spread  *string        `json:"spread"`
}

// tapeTradeResponse is a trade in GET /trades.
type tapeTradeResponse struct {
	Seq uint64 `json:"seq"`
	tradeResponse
	ExecutedAt string `json:"executed_at"`
}

// quoteLevelResponse is a single price level in the quote response.
type quoteLevelResponse struct {
	Price    string `json:"price"`
	Quantity uint64 `json:"quantity"`
}

// quoteResponse is the JSON response for GET /quote.
type quoteResponse struct {
	Symbol            string               `json:"symbol"`
	Side              string               `json:"side"`
	QuantityRequested uint64               `json:"quantity_requested"`
	QuantityAvailable uint64               `json:"quantity_available"`
	FullyFillable     bool                 `json:"fully_fillable"`
	EstimatedAvgPrice *string              `json:"estimated_average_price"`
	EstimatedTotal    *string              `json:"estimated_total"`
	PriceLevels       []quoteLevelResponse `json:"price_levels"`
	QuotedAt          string               `json:"quoted_at"`
}

// GetPrice handles GET /price.
func (h *MarketHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	price := h.marketSvc.GetPrice()

	resp := priceResponse{
		Symbol:      price.Symbol,
		Window:      price.Window,
		TradesInWin: price.TradesInWindow,
	}
	if price.CurrentPrice != nil {
		v := domain.FormatPrice(*price.CurrentPrice, h.scale)
		resp.CurrentPrice = &v
	}
	if price.LastTradeAt != nil {
		s := price.LastTradeAt.UTC().Format(timeFormat)
		resp.LastTradeAt = &s
	}

	WriteJSON(w, http.StatusOK, resp)
}

// GetBook handles GET /book.
func (h *MarketHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	levels, ok := queryInt(w, r, "levels", defaultBookLevels)
	if !ok {
		return
	}

	book, err := h.marketSvc.GetBook(levels)
	if err != nil {
		mapOrderError(w, err)
		return
	}

	resp := bookResponse{
		Symbol:     book.Symbol,
		Bids:       h.bookLevels(book.Bids),
		Asks:       h.bookLevels(book.Asks),
		Spread:     h.optionalPrice(book.Spread),
		SnapshotAt: book.SnapshotAt.UTC().Format(timeFormat),
	}

	WriteJSON(w, http.StatusOK, resp)
}

func (h *MarketHandler) bookLevels(levels []engine.PriceLevel) []bookLevelResponse {
	result := make([]bookLevelResponse, len(levels))
	for i, pl := range levels {
		result[i] = bookLevelResponse{
			Price:         domain.FormatPrice(pl.Price, h.scale),
			TotalQuantity: pl.TotalQuantity,
			OrderCount:    pl.OrderCount,
		}
	}
	return result
}

// GetDepth handles GET /book/depth.
func (h *MarketHandler) GetDepth(w http.ResponseWriter, r *http.Request) {
	bids, asks := h.marketSvc.GetDepth()

	resp := depthResponse{
		Bids: make([]orderResponse, len(bids)),
		Asks: make([]orderResponse, len(asks)),
	}
	for i, o := range bids {
		resp.Bids[i] = buildOrderResponse(o, h.scale)
	}
	for i, o := range asks {
		resp.Asks[i] = buildOrderResponse(o, h.scale)
	}

	WriteJSON(w, http.StatusOK, resp)
}

// GetTop handles GET /book/top.
func (h *MarketHandler) GetTop(w http.ResponseWriter, r *http.Request) {
	top := h.marketSvc.GetTop()

	resp := topResponse{
		Symbol: top.Symbol,
		Spread: h.optionalPrice(top.Spread),
	}
	if top.BestBid != nil {
		o := buildOrderResponse(*top.BestBid, h.scale)
		resp.BestBid = &o
	}
	if top.BestAsk != nil {
		o := buildOrderResponse(*top.BestAsk, h.scale)
		resp.BestAsk = &o
	}

	WriteJSON(w, http.StatusOK, resp)
}

// GetTrades handles GET /trades.
func (h *MarketHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", defaultTradesLimit)
	if !ok {
		return
	}

	entries, err := h.marketSvc.GetTrades(limit)
	if err != nil {
		mapOrderError(w, err)
		return
	}

	resp := make([]tapeTradeResponse, len(entries))
	for i, e := range entries {
		resp[i] = tapeTradeResponse{
			Seq:           e.Seq,
			tradeResponse: buildTradeResponse(e.Trade, h.scale),
			ExecutedAt:    e.ExecutedAt.UTC().Format(timeFormat),
		}
	}

	WriteJSON(w, http.StatusOK, resp)
}

// GetQuote handles GET /quote?side=buy&quantity=10.
func (h *MarketHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	side := domain.Side(r.URL.Query().Get("side"))

	qtyStr := r.URL.Query().Get("quantity")
	if qtyStr == "" {
		WriteError(w, http.StatusBadRequest, "validation_error", "quantity is required")
		return
	}
	quantity, err := strconv.ParseUint(qtyStr, 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "quantity must be a positive integer")
		return
	}

	quote, err := h.marketSvc.GetQuote(side, quantity)
	if err != nil {
		mapOrderError(w, err)
		return
	}

	levels := make([]quoteLevelResponse, len(quote.Levels))
	for i, l := range quote.Levels {
		levels[i] = quoteLevelResponse{
			Price:    domain.FormatPrice(l.Price, h.scale),
			Quantity: l.Quantity,
		}
	}

	resp := quoteResponse{
		Symbol:            quote.Symbol,
		Side:              string(quote.Side),
		QuantityRequested: quote.QuantityRequested,
		QuantityAvailable: quote.QuantityAvailable,
		FullyFillable:     quote.FullyFillable,
		EstimatedAvgPrice: h.optionalPrice(quote.EstimatedAvgPrice),
		PriceLevels:       levels,
		QuotedAt:          quote.QuotedAt.UTC().Format(timeFormat),
	}
	if quote.EstimatedTotal != nil {
		s := quote.EstimatedTotal.Shift(-h.scale).StringFixed(h.scale)
		resp.EstimatedTotal = &s
	}

	WriteJSON(w, http.StatusOK, resp)
}

func (h *MarketHandler) optionalPrice(ticks *uint64) *string {
	if ticks == nil {
		return nil
	}
	s := domain.FormatPrice(*ticks, h.scale)
	return &s
}

// queryInt reads an optional integer query parameter. On a malformed
// value it writes a 400 and returns false.
func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", name+" must be a valid integer")
		return 0, false
	}
	return n, true
}
