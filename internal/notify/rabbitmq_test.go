package notify

import (
	"context"
	"encoding/json"
	"errors"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	declared   []string
	published  []amqp.Publishing
	keys       []string
	publishErr error
	closed     bool
}

func (c *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	c.declared = append(c.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if c.publishErr != nil {
		return c.publishErr
	}
	c.keys = append(c.keys, key)
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

var testBooking = models.Booking{
	BookingID:   "bk-1",
	UserID:      "u1",
	ScreeningID: "show-1",
	SeatIDs:     []string{"A1"},
	TotalAmount: 250,
	Status:      models.BookingConfirmed,
}

func TestRabbitPublisher_PublishesPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	dials := 0
	p := NewRabbitPublisher(func() (Channel, func() error, error) {
		dials++
		return ch, nil, nil
	}, "booking.notifications", logger.NewTestLogger(nil))

	require.NoError(t, p.BookingConfirmed(context.Background(), testBooking))
	cancelled := testBooking
	cancelled.Status = models.BookingCancelled
	require.NoError(t, p.BookingCancelled(context.Background(), cancelled))

	assert.Equal(t, 1, dials)
	assert.Equal(t, []string{"booking.notifications"}, ch.declared)
	assert.Equal(t, []string{"booking.notifications", "booking.notifications"}, ch.keys)
	require.Len(t, ch.published, 2)
	assert.Equal(t, amqp.Persistent, ch.published[0].DeliveryMode)
	assert.Equal(t, "application/json", ch.published[0].ContentType)

	var ev BookingEvent
	require.NoError(t, json.Unmarshal(ch.published[1].Body, &ev))
	assert.Equal(t, EventBookingCancelled, ev.Type)
	assert.Equal(t, models.BookingCancelled, ev.Status)
	assert.Equal(t, "bk-1", ev.BookingID)
}

func TestRabbitPublisher_RedialsAfterFailure(t *testing.T) {
	broken := &fakeChannel{publishErr: errors.New("channel closed")}
	healthy := &fakeChannel{}
	channels := []*fakeChannel{broken, healthy}
	p := NewRabbitPublisher(func() (Channel, func() error, error) {
		ch := channels[0]
		channels = channels[1:]
		return ch, nil, nil
	}, "q", logger.NewTestLogger(nil))

	assert.Error(t, p.BookingConfirmed(context.Background(), testBooking))
	assert.True(t, broken.closed)

	require.NoError(t, p.BookingConfirmed(context.Background(), testBooking))
	assert.Len(t, healthy.published, 1)
}

func TestRabbitPublisher_DialError(t *testing.T) {
	p := NewRabbitPublisher(func() (Channel, func() error, error) {
		return nil, nil, errors.New("connection refused")
	}, "q", logger.NewTestLogger(nil))
	assert.Error(t, p.BookingConfirmed(context.Background(), testBooking))
}
