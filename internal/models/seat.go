package models

import (
	"strings"
)

// SeatState is the availability of one seat of one screening.
type SeatState string

const (
	SeatFree   SeatState = "free"
	SeatHeld   SeatState = "held"
	SeatBooked SeatState = "booked"
)

func (s SeatState) Valid() bool {
	switch s {
	case SeatFree, SeatHeld, SeatBooked:
		return true
	}
	return false
}

type Seat struct {
	ID          string   `json:"seat_id"`
	ScreeningID string   `json:"screening_id"`
	Row         string   `json:"row"`
	Number      int      `json:"number"`
	Type        SeatType `json:"type"`
	Price       float64  `json:"price"`
}

// SeatView is a seat together with its current state.
type SeatView struct {
	Seat
	State SeatState `json:"state"`
}

// NormalizeSeatIDs upper-cases, trims and de-duplicates seat ids while keeping
// the caller's order.
func NormalizeSeatIDs(seatIDs []string) []string {
	seen := make(map[string]struct{}, len(seatIDs))
	out := make([]string, 0, len(seatIDs))
	for _, id := range seatIDs {
		id = strings.ToUpper(strings.TrimSpace(id))
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
