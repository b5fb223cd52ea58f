package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	Reader MessageReader
	Logger *logger.Logger
}

// NewConsumer creates a Kafka consumer for the given topic and group
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  250 * time.Millisecond,
	})
	return &Consumer{Reader: reader, Logger: log}
}

// Start hands every decoded seat event to handler until ctx is done.
func (c *Consumer) Start(ctx context.Context, handler func(event models.SeatStatusChangeEvent)) {
	c.Logger.Info("KAFKA", "Seat event consumer started")

	for {
		msg, err := c.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.Logger.Info("KAFKA", "Seat event consumer stopped")
				return
			}
			c.Logger.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		var event models.SeatStatusChangeEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.Logger.Warn("KAFKA", fmt.Sprintf("Failed to unmarshal seat event at offset %d: %v", msg.Offset, err))
			continue
		}
		handler(event)
	}
}

func (c *Consumer) Close() error {
	return c.Reader.Close()
}
