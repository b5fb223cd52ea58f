package models

import (
	"time"

	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

type PaymentMethod string

const (
	PaymentCard   PaymentMethod = "card"
	PaymentUPI    PaymentMethod = "upi"
	PaymentWallet PaymentMethod = "wallet"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCard, PaymentUPI, PaymentWallet:
		return true
	}
	return false
}

type PromoteRequest struct {
	UserID              string        `json:"user_id"`
	PaymentMethod       PaymentMethod `json:"payment_method"`
	PaymentConfirmation string        `json:"payment_confirmation"`
}

// PaymentInfo is what the external payment flow hands over on promotion.
type PaymentInfo struct {
	UserID       string
	Method       PaymentMethod
	Confirmation string
}

type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	BookingID     string        `bun:"booking_id,pk" json:"booking_id"`
	UserID        string        `bun:"user_id,notnull" json:"user_id"`
	ScreeningID   string        `bun:"screening_id,notnull" json:"screening_id"`
	SeatIDs       []string      `bun:"seat_ids,type:jsonb" json:"seat_ids"`
	TotalAmount   float64       `bun:"total_amount" json:"total_amount"`
	PaymentMethod PaymentMethod `bun:"payment_method" json:"payment_method"`
	PaymentRef    string        `bun:"payment_ref" json:"payment_ref"`
	HoldToken     string        `bun:"hold_token" json:"-"`
	Status        BookingStatus `bun:"status,notnull" json:"status"`
	CreatedAt     time.Time     `bun:"created_at,notnull" json:"created_at"`
	CancelledAt   *time.Time    `bun:"cancelled_at" json:"cancelled_at,omitempty"`
}

func (b *Booking) Cancelled() bool {
	return b.Status == BookingCancelled
}
