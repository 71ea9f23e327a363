// Package events connects the workflows to the Kafka event bus: leader trade
// executions in, outbound notifications out.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/aksrustagi/PULL-backend-sub010/config"
	"github.com/aksrustagi/PULL-backend-sub010/models"
)

// TradeConsumer consumes leader order-execution events from Kafka.
type TradeConsumer struct {
	reader *kafka.Reader
}

// NewTradeConsumer creates a Kafka consumer for leader trade events.
func NewTradeConsumer(cfg config.KafkaConfig) *TradeConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		GroupID: cfg.GroupID,
		Topic:   cfg.TopicLeaderTrades,
	})
	return &TradeConsumer{reader: reader}
}

// Consume reads leader trade events and passes them to the handler. A
// malformed payload fails the consumer rather than being silently dropped.
func (c *TradeConsumer) Consume(ctx context.Context, handler func(context.Context, models.LeaderTrade) error) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			return fmt.Errorf("kafka read: %w", err)
		}

		var trade models.LeaderTrade
		if err := json.Unmarshal(msg.Value, &trade); err != nil {
			return fmt.Errorf("unmarshal leader trade: %w", err)
		}

		if err := handler(ctx, trade); err != nil {
			return err
		}
	}
}

// Close closes the underlying Kafka reader.
func (c *TradeConsumer) Close() error {
	return c.reader.Close()
}
