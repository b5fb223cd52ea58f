package broadcast

import (
	"context"
	"ms-booking/internal/models"
	"sync"
	"sync/atomic"
)

const defaultBuffer = 32

// Broadcaster fans seat events out to the subscribers of each screening.
// Delivery is best-effort: a subscriber whose buffer is full misses the event
// and is expected to resync from a seat map snapshot.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[string][]chan models.SeatStatusChangeEvent
	buffer  int

	published atomic.Uint64
	dropped   atomic.Uint64
}

func New(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Broadcaster{
		clients: make(map[string][]chan models.SeatStatusChangeEvent),
		buffer:  buffer,
	}
}

// Subscribe returns a channel of events for one screening. The channel is
// closed once ctx is done.
func (b *Broadcaster) Subscribe(ctx context.Context, screeningID string) <-chan models.SeatStatusChangeEvent {
	clientChan := make(chan models.SeatStatusChangeEvent, b.buffer)

	b.mu.Lock()
	b.clients[screeningID] = append(b.clients[screeningID], clientChan)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(screeningID, clientChan)
	}()

	return clientChan
}

// Publish never blocks.
func (b *Broadcaster) Publish(event models.SeatStatusChangeEvent) {
	b.published.Add(1)

	// Sends happen under the read lock so remove cannot close a channel
	// mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, clientChan := range b.clients[event.ScreeningID] {
		select {
		case clientChan <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *Broadcaster) remove(screeningID string, clientChan chan models.SeatStatusChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	clients := b.clients[screeningID]
	for i, ch := range clients {
		if ch == clientChan {
			b.clients[screeningID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}
	if len(b.clients[screeningID]) == 0 {
		delete(b.clients, screeningID)
	}
}

func (b *Broadcaster) SubscriberCount(screeningID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[screeningID])
}

type Stats struct {
	Screenings  int    `json:"screenings"`
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
}

func (b *Broadcaster) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := Stats{Screenings: len(b.clients), Published: b.published.Load(), Dropped: b.dropped.Load()}
	for _, clients := range b.clients {
		s.Subscribers += len(clients)
	}
	return s
}

// Sink is anything that accepts seat events without blocking.
type Sink interface {
	Publish(event models.SeatStatusChangeEvent)
}

// Fanout publishes every event to each sink in order.
type Fanout []Sink

func (f Fanout) Publish(event models.SeatStatusChangeEvent) {
	for _, sink := range f {
		sink.Publish(event)
	}
}
