package service

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/efreitasn/dexbook/internal/domain"
	"github.com/efreitasn/dexbook/internal/engine"
	"github.com/efreitasn/dexbook/internal/feed"
)

// OrderStatus describes what happened to a submitted order.
type OrderStatus string

const (
	OrderStatusAccepted        OrderStatus = "accepted"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

// SubmitOrderRequest represents the input for order submission.
type SubmitOrderRequest struct {
	ID       uint64
	UserID   uint64
	Side     domain.Side
	Type     domain.OrderType
	Price    *string // decimal; required unless Type is market
	Quantity uint64
}

// OrderResult is the outcome of a submitted order.
type OrderResult struct {
	Order     domain.Order // as submitted, with Timestamp assigned
	Trades    []domain.Trade
	Filled    uint64
	Remaining uint64
	Resting   bool
	Status    OrderStatus

	// NotificationError is set when the order executed but a trade sink
	// failed. Matching is not rolled back.
	NotificationError error
}

// BookPublisher receives a book view after every change. Views may
// arrive out of order; Version tells which is newer.
type BookPublisher interface {
	PublishBook(view feed.BookView)
}

// OrderService handles order submission, retrieval and cancellation for
// one instrument.
type OrderService struct {
	engine    *engine.MatchingEngine
	publisher BookPublisher
	symbol    string
	scale     int32
	logger    *slog.Logger
}

// NewOrderService creates a new OrderService. publisher may be nil. The
// engine assigns arrival timestamps, so eng should be built with
// engine.WithSequencer.
func NewOrderService(
	eng *engine.MatchingEngine,
	publisher BookPublisher,
	symbol string,
	scale int32,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		engine:    eng,
		publisher: publisher,
		symbol:    symbol,
		scale:     scale,
		logger:    logger,
	}
}

// SubmitOrder validates the request and runs the order through the
// matching engine, which assigns the arrival timestamp.
func (s *OrderService) SubmitOrder(req SubmitOrderRequest) (*OrderResult, error) {
	order, err := s.buildOrder(req)
	if err != nil {
		return nil, err
	}

	exec, err := s.engine.Execute(order)
	var notifyErr error
	if err != nil {
		if !errors.Is(err, domain.ErrTradeNotification) {
			return nil, err
		}
		notifyErr = err
		s.logger.Error("trade notification failed",
			"order_id", order.ID, "trades", len(exec.Trades), "error", err)
	}

	result := &OrderResult{
		Order:             exec.Order,
		Trades:            exec.Trades,
		Resting:           exec.Resting,
		NotificationError: notifyErr,
	}
	if result.Trades == nil {
		result.Trades = []domain.Trade{}
	}
	for _, t := range exec.Trades {
		result.Filled += t.Quantity
	}
	result.Remaining = order.Quantity - result.Filled

	switch {
	case result.Remaining == 0:
		result.Status = OrderStatusFilled
	case !result.Resting:
		result.Status = OrderStatusCancelled
	case result.Filled > 0:
		result.Status = OrderStatusPartiallyFilled
	default:
		result.Status = OrderStatusAccepted
	}

	s.publishBook(exec.Book)
	return result, nil
}

func (s *OrderService) buildOrder(req SubmitOrderRequest) (domain.Order, error) {
	if req.ID == 0 {
		return domain.Order{}, &domain.ValidationError{Message: "id must be a positive integer"}
	}
	if !req.Side.Valid() {
		return domain.Order{}, &domain.ValidationError{Message: "side must be 'buy' or 'sell'"}
	}
	if !req.Type.Valid() {
		return domain.Order{}, &domain.ValidationError{
			Message: fmt.Sprintf("Unknown order type: %s. Must be one of: limit, market, post_only, ioc", req.Type),
		}
	}
	if req.Quantity == 0 {
		return domain.Order{}, domain.ErrInvalidQuantity
	}

	var price uint64
	if req.Type == domain.OrderTypeMarket {
		if req.Price != nil {
			return domain.Order{}, &domain.ValidationError{Message: "market orders must not include price"}
		}
	} else {
		if req.Price == nil {
			return domain.Order{}, &domain.ValidationError{
				Message: fmt.Sprintf("price is required for %s orders", req.Type),
			}
		}
		p, err := domain.ParsePrice(*req.Price, s.scale)
		if err != nil {
			return domain.Order{}, err
		}
		if p == 0 {
			return domain.Order{}, fmt.Errorf("%w: must be greater than 0", domain.ErrInvalidPrice)
		}
		price = p
	}

	return domain.Order{
		ID:       req.ID,
		UserID:   req.UserID,
		Side:     req.Side,
		Type:     req.Type,
		Price:    price,
		Quantity: req.Quantity,
	}, nil
}

// GetOrder returns a resting order. It returns domain.ErrOrderNotFound
// if the order is not on the book.
func (s *OrderService) GetOrder(orderID uint64) (domain.Order, error) {
	o, ok := s.engine.Order(orderID)
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

// CancelOrder removes a resting order and returns its state at the time
// of cancellation. It returns domain.ErrOrderNotFound if the order is not
// on the book.
func (s *OrderService) CancelOrder(orderID uint64) (domain.Order, error) {
	o, snap, ok := s.engine.Withdraw(orderID)
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	s.publishBook(snap)
	return o, nil
}

func (s *OrderService) publishBook(snap engine.Snapshot) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishBook(feed.BookView{
		Symbol:  s.symbol,
		Version: snap.Version,
		Bids:    levelViews(snap.Bids, s.scale),
		Asks:    levelViews(snap.Asks, s.scale),
	})
}

func levelViews(levels []engine.PriceLevel, scale int32) []feed.LevelView {
	views := make([]feed.LevelView, len(levels))
	for i, pl := range levels {
		views[i] = feed.LevelView{
			Price:      domain.FormatPrice(pl.Price, scale),
			Quantity:   pl.TotalQuantity,
			OrderCount: pl.OrderCount,
		}
	}
	return views
}
