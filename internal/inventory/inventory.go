package inventory

import (
	"context"
	"errors"
	"fmt"
	"ms-booking/internal/models"
	"sync"
	"time"
)

var (
	ErrIllegalTransition = errors.New("illegal seat transition")
	ErrEmptySeatSet      = errors.New("no seats given")
	ErrTokenRequired     = errors.New("hold token required")
)

// Catalog resolves a screening the first time its seats are touched.
type Catalog interface {
	GetScreening(ctx context.Context, id string) (*models.Screening, error)
}

// SeatRecord is the stored state of a non-free seat. Held records carry the
// instant after which the store itself treats the seat as free again.
type SeatRecord struct {
	State    models.SeatState
	Token    string
	Deadline time.Time
}

func (r SeatRecord) effective(now time.Time) SeatRecord {
	if r.State == models.SeatHeld && !r.Deadline.IsZero() && !now.Before(r.Deadline) {
		return SeatRecord{State: models.SeatFree}
	}
	if r.State == "" {
		r.State = models.SeatFree
	}
	return r
}

// Store keeps seat states of many screenings. Transition must be atomic per
// screening: either every seat moves or none does.
type Store interface {
	Snapshot(ctx context.Context, screeningID string, now time.Time) (map[string]SeatRecord, error)
	Transition(ctx context.Context, screeningID string, seatIDs []string, from, to models.SeatState, token string, deadline, now time.Time) ([]string, error)
}

type layout struct {
	seats []models.Seat
	index map[string]int
}

// Inventory is the authoritative seat state of every screening. The
// reservation coordinator is its only writer.
type Inventory struct {
	catalog Catalog
	store   Store
	now     func() time.Time

	mu      sync.RWMutex
	layouts map[string]*layout
}

type Option func(*Inventory)

func WithClock(now func() time.Time) Option {
	return func(inv *Inventory) { inv.now = now }
}

func New(catalog Catalog, store Store, opts ...Option) *Inventory {
	inv := &Inventory{
		catalog: catalog,
		store:   store,
		now:     time.Now,
		layouts: make(map[string]*layout),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// GetSeatMap returns every seat of the screening with its current state,
// ordered by row then number.
func (inv *Inventory) GetSeatMap(ctx context.Context, screeningID string) ([]models.SeatView, error) {
	l, err := inv.layout(ctx, screeningID)
	if err != nil {
		return nil, err
	}

	records, err := inv.store.Snapshot(ctx, screeningID, inv.now())
	if err != nil {
		return nil, fmt.Errorf("load seat states of %s: %w", screeningID, err)
	}

	views := make([]models.SeatView, len(l.seats))
	for i, seat := range l.seats {
		state := models.SeatFree
		if rec, ok := records[seat.ID]; ok {
			state = rec.State
		}
		views[i] = models.SeatView{Seat: seat, State: state}
	}
	return views, nil
}

// Seats returns the static layout of a screening.
func (inv *Inventory) Seats(ctx context.Context, screeningID string) ([]models.Seat, error) {
	l, err := inv.layout(ctx, screeningID)
	if err != nil {
		return nil, err
	}
	return append([]models.Seat(nil), l.seats...), nil
}

// TryTransition moves every seat in seatIDs from one state to another, or none
// of them. The returned conflicts list the seats that were not in `from` (or
// not owned by token); unknown seats are conflicts too. err is reserved for
// infrastructure failures and illegal requests.
func (inv *Inventory) TryTransition(ctx context.Context, screeningID string, seatIDs []string, from, to models.SeatState, token string, expiresAt time.Time) ([]string, error) {
	if len(seatIDs) == 0 {
		return nil, ErrEmptySeatSet
	}
	if !legal(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	if token == "" {
		return nil, ErrTokenRequired
	}

	l, err := inv.layout(ctx, screeningID)
	if err != nil {
		return nil, err
	}
	var unknown []string
	for _, id := range seatIDs {
		if _, ok := l.index[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		return unknown, nil
	}

	deadline := time.Time{}
	if to == models.SeatHeld {
		deadline = expiresAt
	}
	conflicts, err := inv.store.Transition(ctx, screeningID, seatIDs, from, to, token, deadline, inv.now())
	if err != nil {
		return nil, fmt.Errorf("transition %s seats of %s: %w", to, screeningID, err)
	}
	return conflicts, nil
}

func (inv *Inventory) layout(ctx context.Context, screeningID string) (*layout, error) {
	inv.mu.RLock()
	l, ok := inv.layouts[screeningID]
	inv.mu.RUnlock()
	if ok {
		return l, nil
	}

	screening, err := inv.catalog.GetScreening(ctx, screeningID)
	if err != nil {
		return nil, err
	}
	seats := screening.Seats()
	l = &layout{seats: seats, index: make(map[string]int, len(seats))}
	for i, seat := range seats {
		l.index[seat.ID] = i
	}

	inv.mu.Lock()
	if existing, ok := inv.layouts[screeningID]; ok {
		l = existing
	} else {
		inv.layouts[screeningID] = l
	}
	inv.mu.Unlock()
	return l, nil
}

func legal(from, to models.SeatState) bool {
	switch from {
	case models.SeatFree:
		return to == models.SeatHeld
	case models.SeatHeld:
		return to == models.SeatFree || to == models.SeatHeld || to == models.SeatBooked
	case models.SeatBooked:
		return to == models.SeatFree
	}
	return false
}

// conflicts reports the seats whose current record does not match `from` for
// the given token. A free seat has no owner.
func conflicts(seatIDs []string, current func(string) SeatRecord, from models.SeatState, token string) []string {
	var out []string
	for _, id := range seatIDs {
		rec := current(id)
		if rec.State != from || (from != models.SeatFree && rec.Token != token) {
			out = append(out, id)
		}
	}
	return out
}
