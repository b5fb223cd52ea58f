package booking_api

import (
	"errors"
	"fmt"
	"ms-booking/internal/catalog"
	"ms-booking/internal/checkout"
	"ms-booking/internal/ledger"
	"ms-booking/internal/ledger/qr"
	"ms-booking/internal/reservation"
	"ms-booking/internal/utils"
	"net/http"
	"time"
)

// RejectionResponse is the body of a refused hold operation.
type RejectionResponse struct {
	Success     bool      `json:"success"`
	Message     string    `json:"message"`
	Reason      string    `json:"reason"`
	Unavailable []string  `json:"unavailable,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	var rejection *reservation.Rejection
	if errors.As(err, &rejection) {
		status := http.StatusGone
		message := "Hold has expired"
		switch rejection.Reason {
		case reservation.ReasonSeatsUnavailable:
			status, message = http.StatusConflict, "Seats are not available"
		case reservation.ReasonInvalid:
			status, message = http.StatusBadRequest, rejection.Detail
		}
		utils.WriteJSON(w, status, RejectionResponse{
			Message:     message,
			Reason:      rejection.Reason,
			Unavailable: rejection.Unavailable,
			Timestamp:   time.Now(),
		})
		return
	}

	switch {
	case errors.Is(err, catalog.ErrScreeningNotFound):
		utils.WriteError(w, http.StatusNotFound, "Screening not found", nil)
	case errors.Is(err, ledger.ErrBookingNotFound):
		utils.WriteError(w, http.StatusNotFound, "Booking not found", nil)
	case errors.Is(err, checkout.ErrInvalidPayment):
		utils.WriteError(w, http.StatusBadRequest, "Invalid payment", err)
	case errors.Is(err, qr.ErrInvalidPass):
		utils.WriteError(w, http.StatusBadRequest, "Invalid booking pass", nil)
	default:
		h.Logger.Error("API", fmt.Sprintf("%s failed: %v", op, err))
		utils.WriteError(w, http.StatusInternalServerError, op+" failed", nil)
	}
}
