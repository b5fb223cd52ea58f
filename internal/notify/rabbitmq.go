package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	EventBookingConfirmed = "booking.confirmed"
	EventBookingCancelled = "booking.cancelled"
)

// BookingEvent is the message body published for every booking status change.
type BookingEvent struct {
	Type        string               `json:"type"`
	BookingID   string               `json:"booking_id"`
	UserID      string               `json:"user_id"`
	ScreeningID string               `json:"screening_id"`
	SeatIDs     []string             `json:"seat_ids"`
	TotalAmount float64              `json:"total_amount"`
	Status      models.BookingStatus `json:"status"`
	OccurredAt  time.Time            `json:"occurred_at"`
}

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Dialer opens a fresh channel. The returned closer releases whatever the
// channel depends on (the connection, for a real broker).
type Dialer func() (Channel, func() error, error)

// AMQPDialer dials a RabbitMQ broker at url.
func AMQPDialer(url string) Dialer {
	return func() (Channel, func() error, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return nil, nil, fmt.Errorf("rabbitmq dial: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("rabbitmq channel: %w", err)
		}
		return ch, conn.Close, nil
	}
}

// RabbitPublisher pushes booking events to a durable queue. The channel is
// opened lazily and reopened after a failed publish.
type RabbitPublisher struct {
	dial   Dialer
	queue  string
	logger *logger.Logger
	now    func() time.Time

	mu      sync.Mutex
	channel Channel
	closer  func() error
}

func NewRabbitPublisher(dial Dialer, queue string, log *logger.Logger) *RabbitPublisher {
	return &RabbitPublisher{dial: dial, queue: queue, logger: log, now: time.Now}
}

func (p *RabbitPublisher) BookingConfirmed(ctx context.Context, booking models.Booking) error {
	return p.publish(ctx, EventBookingConfirmed, booking)
}

func (p *RabbitPublisher) BookingCancelled(ctx context.Context, booking models.Booking) error {
	return p.publish(ctx, EventBookingCancelled, booking)
}

func (p *RabbitPublisher) publish(ctx context.Context, eventType string, booking models.Booking) error {
	body, err := json.Marshal(BookingEvent{
		Type:        eventType,
		BookingID:   booking.BookingID,
		UserID:      booking.UserID,
		ScreeningID: booking.ScreeningID,
		SeatIDs:     booking.SeatIDs,
		TotalAmount: booking.TotalAmount,
		Status:      booking.Status,
		OccurredAt:  p.now().UTC(),
	})
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channelLocked()
	if err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now().UTC(),
		Type:         eventType,
		MessageId:    booking.BookingID + ":" + string(booking.Status),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		p.resetLocked()
		return fmt.Errorf("rabbitmq publish: %w", err)
	}

	p.logger.Debug("NOTIFY", fmt.Sprintf("%s %s seats=%s", eventType, booking.BookingID, strings.Join(booking.SeatIDs, ",")))
	return nil
}

func (p *RabbitPublisher) channelLocked() (Channel, error) {
	if p.channel != nil {
		return p.channel, nil
	}
	ch, closer, err := p.dial()
	if err != nil {
		return nil, err
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		if closer != nil {
			_ = closer()
		}
		return nil, fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	p.channel, p.closer = ch, closer
	return ch, nil
}

func (p *RabbitPublisher) resetLocked() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.closer != nil {
		_ = p.closer()
	}
	p.channel, p.closer = nil, nil
}

func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	return nil
}

// Noop drops every notification.
type Noop struct{}

func (Noop) BookingConfirmed(context.Context, models.Booking) error { return nil }
func (Noop) BookingCancelled(context.Context, models.Booking) error { return nil }
