package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/trogers1052/trade-ledger-service/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes ledger change events to Kafka
type Producer struct {
	writer messageWriter
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
	}
}

// PublishTradeOpened publishes a trade opened event
func (p *Producer) PublishTradeOpened(ctx context.Context, trade *models.Trade) error {
	return p.publish(ctx, models.EventTypeTradeOpened, trade)
}

// PublishTradeClosed publishes a trade closed event
func (p *Producer) PublishTradeClosed(ctx context.Context, trade *models.Trade) error {
	return p.publish(ctx, models.EventTypeTradeClosed, trade)
}

// Keyed by user and symbol so one position's events stay ordered on a partition
func (p *Producer) publish(ctx context.Context, eventType string, trade *models.Trade) error {
	event := models.TradeEvent{
		EventType: eventType,
		UserID:    trade.UserID,
		Trade:     trade,
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(trade.UserID + ":" + trade.Symbol),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
