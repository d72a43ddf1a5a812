package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/efreitasn/dexbook/internal/domain"
	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes each trade as a JSON TradeEvent to a Kafka
// topic, keyed by symbol so one instrument's trades stay ordered within
// a partition.
type KafkaPublisher struct {
	writer  *kafka.Writer
	symbol  string
	timeout time.Duration
}

// KafkaConfig configures a KafkaPublisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	Symbol  string
	Timeout time.Duration
}

// NewKafkaPublisher creates a synchronous publisher that waits for all
// in-sync replicas to acknowledge each write.
func NewKafkaPublisher(cfg KafkaConfig) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
		symbol:  cfg.Symbol,
		timeout: cfg.Timeout,
	}
}

// OnTrade implements domain.TradeListener.
func (p *KafkaPublisher) OnTrade(t domain.Trade) error {
	payload, err := json.Marshal(NewTradeEvent(p.symbol, t))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(p.symbol),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("kafka write %s: %w", p.writer.Topic, err)
	}
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
