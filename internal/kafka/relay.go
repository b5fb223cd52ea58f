package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"sync/atomic"
)

type EventSink interface {
	Publish(event models.SeatStatusChangeEvent)
}

// SeatRelay mirrors committed seat events to a Kafka topic so other service
// instances can feed their own subscribers. Publish only enqueues; Run does
// the writes.
type SeatRelay struct {
	producer *Producer
	topic    string
	origin   string
	queue    chan models.SeatStatusChangeEvent
	logger   *logger.Logger

	dropped atomic.Uint64
}

func NewSeatRelay(producer *Producer, topic, origin string, queueSize int, log *logger.Logger) *SeatRelay {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &SeatRelay{
		producer: producer,
		topic:    topic,
		origin:   origin,
		queue:    make(chan models.SeatStatusChangeEvent, queueSize),
		logger:   log,
	}
}

func (r *SeatRelay) Publish(event models.SeatStatusChangeEvent) {
	if event.Origin != r.origin {
		return
	}
	select {
	case r.queue <- event:
	default:
		if n := r.dropped.Add(1); n%100 == 1 {
			r.logger.Warn("KAFKA", fmt.Sprintf("Relay queue full, %d seat events dropped so far", n))
		}
	}
}

// Run writes queued events until ctx is done.
func (r *SeatRelay) Run(ctx context.Context) {
	r.logger.LogKafka("RELAY", r.topic, "outbound relay started")
	for {
		select {
		case <-ctx.Done():
			r.logger.LogKafka("RELAY", r.topic, "outbound relay stopped")
			return
		case event := <-r.queue:
			value, err := json.Marshal(event)
			if err != nil {
				r.logger.Error("KAFKA", fmt.Sprintf("Encode seat event: %v", err))
				continue
			}
			// Keyed by screening so one screening's events stay ordered.
			r.producer.Publish(ctx, r.topic, event.ScreeningID, value)
		}
	}
}

// Forward consumes the topic and republishes events committed by other
// instances to the local sink.
func (r *SeatRelay) Forward(ctx context.Context, consumer *Consumer, local EventSink) {
	consumer.Start(ctx, func(event models.SeatStatusChangeEvent) {
		if event.Origin == r.origin || event.ScreeningID == "" {
			return
		}
		local.Publish(event)
	})
}

func (r *SeatRelay) Dropped() uint64 {
	return r.dropped.Load()
}
