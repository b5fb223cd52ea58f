package checkout

import (
	"context"
	"errors"
	"fmt"
	"ms-booking/internal/ledger"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"strings"
	"time"
)

var ErrInvalidPayment = errors.New("invalid payment")

type Promoter interface {
	Promote(ctx context.Context, token string) (*models.BookingDraft, error)
}

type Recorder interface {
	Record(ctx context.Context, draft *models.BookingDraft, payment models.PaymentInfo) (string, error)
}

// Confirmation is what the client gets back after a successful promotion.
// Persisted is false while the ledger write waits for reconciliation.
type Confirmation struct {
	BookingID   string               `json:"booking_id"`
	ScreeningID string               `json:"screening_id"`
	SeatIDs     []string             `json:"seat_ids"`
	TotalAmount float64              `json:"total_amount"`
	Status      models.BookingStatus `json:"status"`
	Persisted   bool                 `json:"persisted"`
	ConfirmedAt time.Time            `json:"confirmed_at"`
}

type Service struct {
	promoter Promoter
	recorder Recorder
	logger   *logger.Logger
}

func NewService(promoter Promoter, recorder Recorder, log *logger.Logger) *Service {
	return &Service{promoter: promoter, recorder: recorder, logger: log}
}

// Confirm turns a live hold into a booking. Payment details are checked
// before the hold is touched, so a malformed request leaves the hold intact.
func (s *Service) Confirm(ctx context.Context, holdToken string, req models.PromoteRequest) (*Confirmation, error) {
	payment, err := paymentInfo(req)
	if err != nil {
		return nil, err
	}

	draft, err := s.promoter.Promote(ctx, holdToken)
	if err != nil {
		return nil, err
	}

	confirmation := &Confirmation{
		BookingID:   draft.BookingID,
		ScreeningID: draft.ScreeningID,
		SeatIDs:     draft.SeatIDs,
		TotalAmount: draft.TotalAmount,
		Status:      models.BookingConfirmed,
		Persisted:   true,
		ConfirmedAt: draft.PromotedAt,
	}

	bookingID, err := s.recorder.Record(ctx, draft, payment)
	if errors.Is(err, ledger.ErrPersistence) {
		// The seats are booked; the ledger keeps retrying in the background.
		s.logger.Warn("LEDGER", fmt.Sprintf("Booking %s confirmed before it was persisted", bookingID))
		confirmation.Persisted = false
		return confirmation, nil
	}
	if err != nil {
		return nil, err
	}
	confirmation.BookingID = bookingID
	return confirmation, nil
}

func paymentInfo(req models.PromoteRequest) (models.PaymentInfo, error) {
	info := models.PaymentInfo{
		UserID:       strings.TrimSpace(req.UserID),
		Method:       models.PaymentMethod(strings.ToLower(strings.TrimSpace(string(req.PaymentMethod)))),
		Confirmation: strings.TrimSpace(req.PaymentConfirmation),
	}
	if info.Method == "" {
		info.Method = models.PaymentCard
	}

	switch {
	case info.UserID == "":
		return info, fmt.Errorf("%w: user_id is required", ErrInvalidPayment)
	case info.Confirmation == "":
		return info, fmt.Errorf("%w: payment_confirmation is required", ErrInvalidPayment)
	case !info.Method.Valid():
		return info, fmt.Errorf("%w: unsupported payment method %q", ErrInvalidPayment, req.PaymentMethod)
	}
	return info, nil
}
