package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type SeatType string

const (
	SeatTypeStandard SeatType = "standard"
	SeatTypePremium  SeatType = "premium"
	SeatTypeVIP      SeatType = "vip"
)

// DefaultSeatsPerRow is used when a screening only declares a total seat count.
const DefaultSeatsPerRow = 10

const (
	maxRows     = 26 * 27
	maxCapacity = 10000
)

// SeatTier overrides the type and price of whole rows.
type SeatTier struct {
	Type  SeatType `json:"type"`
	Rows  []string `json:"rows"`
	Price float64  `json:"price"`
}

type SeatMap struct {
	Rows        int        `json:"rows"`
	SeatsPerRow int        `json:"seats_per_row"`
	Tiers       []SeatTier `json:"tiers,omitempty"`
}

func (m SeatMap) complete() bool {
	return m.Rows > 0 && m.SeatsPerRow > 0
}

type Screening struct {
	bun.BaseModel `bun:"table:screenings"`

	ScreeningID string    `bun:"screening_id,pk" json:"screening_id"`
	MovieID     string    `bun:"movie_id,notnull" json:"movie_id"`
	TheaterID   string    `bun:"theater_id,notnull" json:"theater_id"`
	Date        string    `bun:"date,notnull" json:"date"`
	Time        string    `bun:"time,notnull" json:"time"`
	Price       float64   `bun:"price,notnull" json:"price"`
	TotalSeats  int       `bun:"total_seats" json:"total_seats,omitempty"`
	SeatMap     SeatMap   `bun:"seat_map,type:jsonb" json:"seat_map"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

type CreateScreeningRequest struct {
	MovieID    string   `json:"movie_id"`
	TheaterID  string   `json:"theater_id"`
	Date       string   `json:"date"`
	Time       string   `json:"time"`
	Price      float64  `json:"price"`
	TotalSeats int      `json:"total_seats,omitempty"`
	SeatMap    *SeatMap `json:"seat_map,omitempty"`
}

// Validate checks the identifying fields and the seat layout of a screening.
func (s *Screening) Validate() error {
	if strings.TrimSpace(s.MovieID) == "" {
		return errors.New("movie_id is required")
	}
	if strings.TrimSpace(s.TheaterID) == "" {
		return errors.New("theater_id is required")
	}
	if _, err := time.Parse("2006-01-02", s.Date); err != nil {
		return fmt.Errorf("date must be YYYY-MM-DD: %q", s.Date)
	}
	if _, err := time.Parse("15:04", s.Time); err != nil {
		return fmt.Errorf("time must be HH:MM: %q", s.Time)
	}
	if s.Price < 0 {
		return errors.New("price must not be negative")
	}

	layout := s.Layout()
	if layout.Rows <= 0 || layout.SeatsPerRow <= 0 {
		return errors.New("screening needs a seat map or a positive total_seats")
	}
	if layout.Rows > maxRows {
		return fmt.Errorf("seat map has %d rows, max is %d", layout.Rows, maxRows)
	}
	if layout.Rows*layout.SeatsPerRow > maxCapacity {
		return fmt.Errorf("seat map exceeds %d seats", maxCapacity)
	}

	known := make(map[string]bool, layout.Rows)
	for i := 0; i < layout.Rows; i++ {
		known[RowLabel(i)] = true
	}
	for _, tier := range layout.Tiers {
		switch tier.Type {
		case SeatTypeStandard, SeatTypePremium, SeatTypeVIP:
		default:
			return fmt.Errorf("unknown seat type %q", tier.Type)
		}
		if tier.Price < 0 {
			return fmt.Errorf("tier %s has a negative price", tier.Type)
		}
		for _, row := range tier.Rows {
			if !known[strings.ToUpper(row)] {
				return fmt.Errorf("tier %s references unknown row %q", tier.Type, row)
			}
		}
	}
	return nil
}

// Layout returns the effective seat map. Screenings created from a bare seat
// count get rows of DefaultSeatsPerRow.
func (s *Screening) Layout() SeatMap {
	if s.SeatMap.complete() {
		return s.SeatMap
	}
	if s.TotalSeats <= 0 {
		return SeatMap{}
	}
	return SeatMap{
		Rows:        (s.TotalSeats + DefaultSeatsPerRow - 1) / DefaultSeatsPerRow,
		SeatsPerRow: DefaultSeatsPerRow,
		Tiers:       s.SeatMap.Tiers,
	}
}

// Seats expands the layout into concrete seats ordered by row then number.
func (s *Screening) Seats() []Seat {
	layout := s.Layout()
	capacity := layout.Rows * layout.SeatsPerRow
	if !s.SeatMap.complete() && s.TotalSeats > 0 && s.TotalSeats < capacity {
		capacity = s.TotalSeats
	}

	tiers := make(map[string]SeatTier)
	for _, tier := range layout.Tiers {
		for _, row := range tier.Rows {
			tiers[strings.ToUpper(row)] = tier
		}
	}

	seats := make([]Seat, 0, capacity)
	for r := 0; r < layout.Rows && len(seats) < capacity; r++ {
		row := RowLabel(r)
		seatType, price := SeatTypeStandard, s.Price
		if tier, ok := tiers[row]; ok {
			seatType, price = tier.Type, tier.Price
		}
		for n := 1; n <= layout.SeatsPerRow && len(seats) < capacity; n++ {
			seats = append(seats, Seat{
				ID:          fmt.Sprintf("%s%d", row, n),
				ScreeningID: s.ScreeningID,
				Row:         row,
				Number:      n,
				Type:        seatType,
				Price:       price,
			})
		}
	}
	return seats
}

// RowLabel maps a zero-based row index to A..Z, AA..AZ, BA..
func RowLabel(i int) string {
	if i < 26 {
		return string(rune('A' + i))
	}
	return RowLabel(i/26-1) + string(rune('A'+i%26))
}
