package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrInvalidQuantity   = errors.New("invalid_quantity")
	ErrDuplicateOrder    = errors.New("duplicate_order")
	ErrWouldCross        = errors.New("would_cross")
	ErrOrderNotFound     = errors.New("order_not_found")
	ErrTradeNotification = errors.New("trade_notification_failed")
	ErrInvalidPrice      = errors.New("invalid_price")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
