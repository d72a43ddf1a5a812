package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/efreitasn/dexbook/internal/domain"
	"github.com/efreitasn/dexbook/internal/service"
	"github.com/go-chi/chi/v5"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	orderSvc *service.OrderService
	scale    int32
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderSvc *service.OrderService, scale int32) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc, scale: scale}
}

// submitOrderRequest is the JSON request body for POST /orders. Price
// accepts a JSON number or a decimal string.
type submitOrderRequest struct {
	ID       uint64       `json:"id"`
	UserID   uint64       `json:"user_id"`
	Side     string       `json:"side"`
	Type     string       `json:"type"`
	Price    *json.Number `json:"price"`
	Quantity uint64       `json:"quantity"`
}

// submitOrderResponse is the JSON response for POST /orders.
type submitOrderResponse struct {
	ID                uint64          `json:"id"`
	UserID            uint64          `json:"user_id"`
	Side              string          `json:"side"`
	Type              string          `json:"type"`
	Price             *string         `json:"price"` // null for market orders
	Quantity          uint64          `json:"quantity"`
	Timestamp         uint64          `json:"timestamp"`
	Status            string          `json:"status"`
	FilledQuantity    uint64          `json:"filled_quantity"`
	RemainingQuantity uint64          `json:"remaining_quantity"`
	Resting           bool            `json:"resting"`
	Trades            []tradeResponse `json:"trades"`
	NotificationError *string         `json:"notification_error"`
}

// orderResponse is a resting order.
type orderResponse struct {
	ID                uint64 `json:"id"`
	UserID            uint64 `json:"user_id"`
	Side              string `json:"side"`
	Type              string `json:"type"`
	Price             string `json:"price"`
	RemainingQuantity uint64 `json:"remaining_quantity"`
	Timestamp         uint64 `json:"timestamp"`
}

// tradeResponse is a single executed trade.
type tradeResponse struct {
	BuyOrderID  uint64 `json:"buy_order_id"`
	SellOrderID uint64 `json:"sell_order_id"`
	Price       string `json:"price"`
	Quantity    uint64 `json:"quantity"`
	Timestamp   uint64 `json:"timestamp"`
}

// SubmitOrder handles POST /orders.
func (h *OrderHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req submitOrderRequest
	if err := ParseJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var price *string
	if req.Price != nil {
		p := req.Price.String()
		price = &p
	}

	res, err := h.orderSvc.SubmitOrder(service.SubmitOrderRequest{
		ID:       req.ID,
		UserID:   req.UserID,
		Side:     domain.Side(req.Side),
		Type:     domain.OrderType(req.Type),
		Price:    price,
		Quantity: req.Quantity,
	})
	if err != nil {
		mapOrderError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, h.buildSubmitResponse(res))
}

// GetOrder handles GET /orders/{order_id}.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	order, err := h.orderSvc.GetOrder(orderID)
	if err != nil {
		mapOrderError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, buildOrderResponse(order, h.scale))
}

// CancelOrder handles DELETE /orders/{order_id}.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	order, err := h.orderSvc.CancelOrder(orderID)
	if err != nil {
		mapOrderError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, buildOrderResponse(order, h.scale))
}

func parseOrderID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "order_id"), 10, 64)
	if err != nil || id == 0 {
		WriteError(w, http.StatusBadRequest, "validation_error", "order_id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *OrderHandler) buildSubmitResponse(res *service.OrderResult) submitOrderResponse {
	o := res.Order
	resp := submitOrderResponse{
		ID:                o.ID,
		UserID:            o.UserID,
		Side:              string(o.Side),
		Type:              string(o.Type),
		Quantity:          o.Quantity,
		Timestamp:         o.Timestamp,
		Status:            string(res.Status),
		FilledQuantity:    res.Filled,
		RemainingQuantity: res.Remaining,
		Resting:           res.Resting,
		Trades:            buildTradeResponses(res.Trades, h.scale),
	}
	if o.Type != domain.OrderTypeMarket {
		p := domain.FormatPrice(o.Price, h.scale)
		resp.Price = &p
	}
	if res.NotificationError != nil {
		s := res.NotificationError.Error()
		resp.NotificationError = &s
	}
	return resp
}

func buildOrderResponse(o domain.Order, scale int32) orderResponse {
	return orderResponse{
		ID:                o.ID,
		UserID:            o.UserID,
		Side:              string(o.Side),
		Type:              string(o.Type),
		Price:             domain.FormatPrice(o.Price, scale),
		RemainingQuantity: o.Quantity,
		Timestamp:         o.Timestamp,
	}
}

// buildTradeResponses converts domain trades to response trades.
func buildTradeResponses(trades []domain.Trade, scale int32) []tradeResponse {
	result := make([]tradeResponse, len(trades))
	for i, t := range trades {
		result[i] = buildTradeResponse(t, scale)
	}
	return result
}

func buildTradeResponse(t domain.Trade, scale int32) tradeResponse {
	return tradeResponse{
		BuyOrderID:  t.BuyOrderID,
		SellOrderID: t.SellOrderID,
		Price:       domain.FormatPrice(t.Price, scale),
		Quantity:    t.Quantity,
		Timestamp:   t.Timestamp,
	}
}

// mapOrderError maps domain errors to HTTP responses for order endpoints.
func mapOrderError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}

	switch {
	case errors.Is(err, domain.ErrInvalidQuantity):
		WriteError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be a positive integer")
	case errors.Is(err, domain.ErrInvalidPrice):
		WriteError(w, http.StatusBadRequest, "invalid_price", err.Error())
	case errors.Is(err, domain.ErrOrderNotFound):
		WriteError(w, http.StatusNotFound, "order_not_found", err.Error())
	case errors.Is(err, domain.ErrDuplicateOrder):
		WriteError(w, http.StatusConflict, "duplicate_order", err.Error())
	case errors.Is(err, domain.ErrWouldCross):
		WriteError(w, http.StatusConflict, "would_cross", err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
