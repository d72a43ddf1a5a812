package sink

import (
	"log/slog"

	"github.com/efreitasn/dexbook/internal/domain"
)

// Logger writes one structured log line per trade.
type Logger struct {
	logger *slog.Logger
	symbol string
}

// NewLogger creates a Logger listener.
func NewLogger(logger *slog.Logger, symbol string) *Logger {
	return &Logger{logger: logger, symbol: symbol}
}

// OnTrade implements domain.TradeListener.
func (l *Logger) OnTrade(t domain.Trade) error {
	l.logger.Info("trade executed",
		slog.String("symbol", l.symbol),
		slog.Uint64("buy_order_id", t.BuyOrderID),
		slog.Uint64("sell_order_id", t.SellOrderID),
		slog.Uint64("price", t.Price),
		slog.Uint64("quantity", t.Quantity),
		slog.Uint64("timestamp", t.Timestamp),
	)
	return nil
}
