package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/efreitasn/dexbook/internal/domain"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TradeModel maps to the trades table. Postgres has no unsigned 64-bit
// integer, so ids, prices and quantities are numeric(20,0).
type TradeModel struct {
	ID          uint64          `gorm:"primaryKey;autoIncrement"`
	EventID     string          `gorm:"type:uuid;uniqueIndex"`
	Symbol      string          `gorm:"type:varchar(20);index"`
	BuyOrderID  decimal.Decimal `gorm:"type:numeric(20,0);index"`
	SellOrderID decimal.Decimal `gorm:"type:numeric(20,0);index"`
	Price       decimal.Decimal `gorm:"type:numeric(20,0)"`
	Quantity    decimal.Decimal `gorm:"type:numeric(20,0)"`
	Timestamp   decimal.Decimal `gorm:"type:numeric(20,0)"`
	CreatedAt   time.Time
}

// TableName sets the table name for TradeModel.
func (TradeModel) TableName() string {
	return "trades"
}

// NewTradeModel converts an event to its row.
func NewTradeModel(e TradeEvent) TradeModel {
	return TradeModel{
		EventID:     e.EventID,
		Symbol:      e.Symbol,
		BuyOrderID:  decimal.NewFromUint64(e.BuyOrderID),
		SellOrderID: decimal.NewFromUint64(e.SellOrderID),
		Price:       decimal.NewFromUint64(e.Price),
		Quantity:    decimal.NewFromUint64(e.Quantity),
		Timestamp:   decimal.NewFromUint64(e.Timestamp),
		CreatedAt:   e.PublishedAt,
	}
}

// PostgresArchive inserts every trade into a Postgres table.
type PostgresArchive struct {
	db      *gorm.DB
	symbol  string
	timeout time.Duration
}

// OpenPostgresArchive connects to dsn and migrates the trades table.
func OpenPostgresArchive(dsn, symbol string, timeout time.Duration) (*PostgresArchive, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a := &PostgresArchive{db: db, symbol: symbol, timeout: timeout}
	if err := db.AutoMigrate(&TradeModel{}); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate trades: %w", err)
	}
	return a, nil
}

// OnTrade implements domain.TradeListener.
func (a *PostgresArchive) OnTrade(t domain.Trade) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	row := NewTradeModel(NewTradeEvent(a.symbol, t))
	if err := a.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("archive trade %d/%d: %w", t.BuyOrderID, t.SellOrderID, err)
	}
	return nil
}

// Close closes the database connection pool.
func (a *PostgresArchive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
