package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/trogers1052/trade-ledger-service/internal/models"
	"go.uber.org/zap"
)

// FillHandler books a single pushed fill into the ledger
type FillHandler interface {
	ApplyFill(ctx context.Context, userID string, order models.Order) error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Config() kafka.ReaderConfig
	Close() error
}

// FillConsumer consumes ORDER_FILLED events so fills are booked without
// waiting for the next poll. Polling remains the source of truth.
type FillConsumer struct {
	reader  messageReader
	handler FillHandler
	log     *zap.Logger
}

// NewFillConsumer creates a new Kafka consumer for fill events
func NewFillConsumer(brokers []string, topic, groupID string, handler FillHandler, log *zap.Logger) *FillConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second,
	})

	return &FillConsumer{
		reader:  reader,
		handler: handler,
		log:     log,
	}
}

// Start consumes until ctx is cancelled
func (c *FillConsumer) Start(ctx context.Context) error {
	c.log.Info("starting fill consumer", zap.String("topic", c.reader.Config().Topic))

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("fill consumer shutting down")
				return nil
			}
			c.log.Error("error reading message", zap.Error(err))
			continue
		}

		if err := c.processMessage(ctx, msg); err != nil {
			c.log.Error("error processing fill event",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
		}
	}
}

func (c *FillConsumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var event models.FillEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal fill event: %w", err)
	}

	if event.EventType != models.EventTypeOrderFilled {
		c.log.Debug("ignoring event type", zap.String("event_type", event.EventType))
		return nil
	}
	if event.UserID == "" {
		return errors.New("fill event has no user_id")
	}
	if event.Order == nil {
		return errors.New("fill event has no order")
	}
	if !event.Order.IsFilled() {
		c.log.Debug("ignoring unfilled order", zap.String("order_id", event.Order.ID), zap.String("status", event.Order.Status))
		return nil
	}

	if err := c.handler.ApplyFill(ctx, event.UserID, *event.Order); err != nil {
		return fmt.Errorf("failed to apply fill %s: %w", event.Order.ID, err)
	}
	return nil
}

// Close closes the Kafka consumer
func (c *FillConsumer) Close() error {
	return c.reader.Close()
}
