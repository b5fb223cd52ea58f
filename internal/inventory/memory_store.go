package inventory

import (
	"context"
	"ms-booking/internal/models"
	"sync"
	"time"
)

type screenState struct {
	mu    sync.RWMutex
	seats map[string]SeatRecord
}

// MemoryStore keeps seat states in process. Each screening has its own lock,
// so transitions on different screenings never contend.
type MemoryStore struct {
	mu      sync.Mutex
	screens map[string]*screenState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{screens: make(map[string]*screenState)}
}

func (m *MemoryStore) screen(screeningID string) *screenState {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.screens[screeningID]
	if !ok {
		s = &screenState{seats: make(map[string]SeatRecord)}
		m.screens[screeningID] = s
	}
	return s
}

func (m *MemoryStore) Snapshot(ctx context.Context, screeningID string, now time.Time) (map[string]SeatRecord, error) {
	s := m.screen(screeningID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]SeatRecord, len(s.seats))
	for id, rec := range s.seats {
		if rec = rec.effective(now); rec.State != models.SeatFree {
			out[id] = rec
		}
	}
	return out, nil
}

func (m *MemoryStore) Transition(ctx context.Context, screeningID string, seatIDs []string, from, to models.SeatState, token string, deadline, now time.Time) ([]string, error) {
	s := m.screen(screeningID)
	s.mu.Lock()
	defer s.mu.Unlock()

	current := func(id string) SeatRecord {
		return s.seats[id].effective(now)
	}
	if c := conflicts(seatIDs, current, from, token); len(c) > 0 {
		return c, nil
	}

	for _, id := range seatIDs {
		if to == models.SeatFree {
			delete(s.seats, id)
			continue
		}
		s.seats[id] = SeatRecord{State: to, Token: token, Deadline: deadline}
	}
	return nil, nil
}
