package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"

	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PaymentHandler applies a payment verdict to an order.
type PaymentHandler interface {
	HandlePaymentOutcome(ctx context.Context, orderID string, result models.PaymentResult) (*models.Order, error)
}

type Consumer struct {
	reader  messageReader
	handler PaymentHandler
	logger  *logger.Logger
	retries int
	backoff time.Duration
}

// NewConsumer creates a payment-results consumer for the given topic and group.
func NewConsumer(brokers []string, topic, groupID string, handler PaymentHandler, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, handler: handler, logger: log, retries: 5, backoff: time.Second}
}

// Start consumes until ctx is cancelled. Each message is committed once it
// has been applied or judged unprocessable; a message interrupted by
// shutdown is left uncommitted.
func (c *Consumer) Start(ctx context.Context) {
	c.logger.Info("KAFKA", "Payment results consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("KAFKA", "Payment results consumer stopped")
				return
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			if !c.sleep(ctx, c.backoff) {
				return
			}
			continue
		}

		if !c.process(ctx, msg) {
			c.logger.Info("KAFKA", fmt.Sprintf("Stopped before applying offset %d; it will be redelivered", msg.Offset))
			return
		}

		if err := c.reader.CommitMessages(context.WithoutCancel(ctx), msg); err != nil {
			c.logger.Error("KAFKA", fmt.Sprintf("Failed to commit offset %d: %v", msg.Offset, err))
		}
	}
}

// process reports whether msg is finished with, applied or deliberately
// dropped. It returns false only when ctx ended during a retry.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	var result models.PaymentResultMessage
	if err := json.Unmarshal(msg.Value, &result); err != nil || result.OrderID == "" {
		c.logger.Warn("KAFKA", fmt.Sprintf("Dropping malformed payment result at offset %d: %v", msg.Offset, err))
		return true
	}

	for attempt := 1; ; attempt++ {
		_, err := c.handler.HandlePaymentOutcome(ctx, result.OrderID, result.Result())
		switch {
		case err == nil:
			c.logger.Info("KAFKA", fmt.Sprintf("Applied payment %s for order %s", result.Outcome, result.OrderID))
			return true
		case !errors.Is(err, models.ErrStoreUnavailable):
			c.logger.Warn("KAFKA", fmt.Sprintf("Payment result for %s not applied: %v", result.OrderID, err))
			return true
		case attempt >= c.retries:
			c.logger.LogReconcile(result.OrderID, fmt.Sprintf("payment %s not applied after %d attempts: %v", result.Outcome, attempt, err))
			return true
		}
		if !c.sleep(ctx, c.backoff*time.Duration(attempt)) {
			return false
		}
	}
}

func (c *Consumer) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
