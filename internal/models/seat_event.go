package models

import (
	"errors"
	"time"
)

// SeatStatusChangeEvent describes one committed transition. Seq increases per
// screening in commit order; Origin names the instance that committed it.
type SeatStatusChangeEvent struct {
	ScreeningID string    `json:"screening_id"`
	SeatIDs     []string  `json:"seat_ids"`
	State       SeatState `json:"state"`
	Seq         uint64    `json:"seq"`
	Origin      string    `json:"origin,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func NewSeatStatusChangeEvent(screeningID string, seatIDs []string, state SeatState, seq uint64, at time.Time) (SeatStatusChangeEvent, error) {
	if screeningID == "" {
		return SeatStatusChangeEvent{}, errors.New("screening id is required")
	}
	if len(seatIDs) == 0 {
		return SeatStatusChangeEvent{}, errors.New("seat ids are required")
	}
	if !state.Valid() {
		return SeatStatusChangeEvent{}, errors.New("invalid seat state")
	}

	return SeatStatusChangeEvent{
		ScreeningID: screeningID,
		SeatIDs:     append([]string(nil), seatIDs...),
		State:       state,
		Seq:         seq,
		OccurredAt:  at.UTC(),
	}, nil
}
