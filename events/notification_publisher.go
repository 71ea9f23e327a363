package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/aksrustagi/PULL-backend-sub010/activities"
	"github.com/aksrustagi/PULL-backend-sub010/config"
)

// NotificationPublisher publishes outbound user notifications to Kafka,
// keyed by recipient so one user's notifications stay ordered.
type NotificationPublisher struct {
	writer *kafka.Writer
	Topic  string
}

// NewNotificationPublisher creates a Kafka publisher for notifications.
func NewNotificationPublisher(cfg config.KafkaConfig) *NotificationPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.TopicNotifications,
		RequiredAcks:           kafka.RequireAll,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return &NotificationPublisher{writer: writer, Topic: cfg.TopicNotifications}
}

// Send publishes one notification to the configured topic.
func (p *NotificationPublisher) Send(ctx context.Context, n activities.Notification) error {
	value, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(n.RecipientID),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close closes the underlying Kafka writer.
func (p *NotificationPublisher) Close() error {
	return p.writer.Close()
}
