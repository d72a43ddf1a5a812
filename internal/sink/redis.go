package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/efreitasn/dexbook/internal/domain"
	"github.com/go-redis/redis/v8"
)

// RedisPublisher publishes each trade as a JSON TradeEvent on a Redis
// pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	symbol  string
	timeout time.Duration
}

// RedisConfig configures a RedisPublisher.
type RedisConfig struct {
	Addr     string
	Password string
	Channel  string
	Symbol   string
	Timeout  time.Duration
}

// NewRedisPublisher creates a publisher. No connection is made until the
// first trade is published.
func NewRedisPublisher(cfg RedisConfig) *RedisPublisher {
	return &RedisPublisher{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       0,
		}),
		channel: cfg.Channel,
		symbol:  cfg.Symbol,
		timeout: cfg.Timeout,
	}
}

// OnTrade implements domain.TradeListener.
func (p *RedisPublisher) OnTrade(t domain.Trade) error {
	payload, err := json.Marshal(NewTradeEvent(p.symbol, t))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", p.channel, err)
	}
	return nil
}

// Close closes the Redis client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
