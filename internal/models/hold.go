package models

import "time"

type HoldRequest struct {
	ScreeningID  string   `json:"screening_id"`
	SeatIDs      []string `json:"seat_ids"`
	SessionToken string   `json:"session_token"`
}

// Hold is a time-bounded claim on a set of seats of one screening.
type Hold struct {
	Token        string    `json:"hold_token"`
	ScreeningID  string    `json:"screening_id"`
	SeatIDs      []string  `json:"seat_ids"`
	SessionToken string    `json:"session_token,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	Renewals     int       `json:"renewals"`
}

func (h *Hold) Expired(now time.Time) bool {
	return !now.Before(h.ExpiresAt)
}

func (h *Hold) Clone() *Hold {
	c := *h
	c.SeatIDs = append([]string(nil), h.SeatIDs...)
	return &c
}

// BookingDraft is the result of promoting a hold. The seats are already
// booked; the ledger turns the draft into a persisted Booking.
type BookingDraft struct {
	BookingID    string    `json:"booking_id"`
	HoldToken    string    `json:"hold_token"`
	ScreeningID  string    `json:"screening_id"`
	SeatIDs      []string  `json:"seat_ids"`
	SessionToken string    `json:"session_token,omitempty"`
	TotalAmount  float64   `json:"total_amount"`
	PromotedAt   time.Time `json:"promoted_at"`
}
