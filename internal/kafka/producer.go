package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-storefront/internal/config"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes order lifecycle events, one topic per event type, keyed
// by order id so every event of an order lands on the same partition.
type Producer struct {
	Writer messageWriter
	Topics config.TopicConfig
	Logger *logger.Logger
}

func NewProducer(brokers []string, topics config.TopicConfig, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Producer{Writer: writer, Topics: topics, Logger: log}
}

func (p *Producer) topicFor(kind models.OrderEventType) (string, error) {
	switch kind {
	case models.EventOrderCreated:
		return p.Topics.OrderCreated, nil
	case models.EventOrderPaid:
		return p.Topics.OrderPaid, nil
	case models.EventOrderCancelled:
		return p.Topics.OrderCancelled, nil
	case models.EventOrderExpired:
		return p.Topics.OrderExpired, nil
	default:
		return "", fmt.Errorf("no topic for event type %q", kind)
	}
}

// PublishOrderEvent streams one order event to Kafka.
func (p *Producer) PublishOrderEvent(ctx context.Context, event models.OrderEvent) error {
	topic, err := p.topicFor(event.Type)
	if err != nil {
		return err
	}
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(event.OrderID),
		Value: msgBytes,
		Time:  event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	p.Logger.LogKafka("PUBLISHED", topic, fmt.Sprintf("%s %s", event.Type, event.OrderNumber))
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
