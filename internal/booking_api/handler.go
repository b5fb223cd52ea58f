package booking_api

import (
	"context"
	"encoding/json"
	"fmt"
	"ms-booking/internal/checkout"
	"ms-booking/internal/ledger/qr"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

type Reservations interface {
	SeatMap(ctx context.Context, screeningID string) ([]models.SeatView, error)
	Hold(ctx context.Context, screeningID string, seatIDs []string, sessionToken string) (*models.Hold, error)
	Get(ctx context.Context, token string) (*models.Hold, error)
	Renew(ctx context.Context, token string) (*models.Hold, error)
	Release(ctx context.Context, token string) error
}

type Checkout interface {
	Confirm(ctx context.Context, holdToken string, req models.PromoteRequest) (*checkout.Confirmation, error)
}

type Bookings interface {
	Get(ctx context.Context, bookingID string) (*models.Booking, error)
	Cancel(ctx context.Context, bookingID string) (*models.Booking, error)
	ListByUser(ctx context.Context, userID string) ([]models.Booking, error)
	ListByScreening(ctx context.Context, screeningID string) ([]models.Booking, error)
}

type Subscriber interface {
	Subscribe(ctx context.Context, screeningID string) <-chan models.SeatStatusChangeEvent
}

type Handler struct {
	Reservations   Reservations
	Checkout       Checkout
	Bookings       Bookings
	Events         Subscriber
	QR             *qr.Generator
	Logger         *logger.Logger
	ResyncInterval time.Duration
}

// RegisterRoutes registers the customer-facing seat, hold and booking routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/screenings/{screeningId}/seats", h.GetSeatMap)
	r.Get("/api/screenings/{screeningId}/events", h.StreamSeatEvents)

	r.Route("/api/holds", func(r chi.Router) {
		r.Post("/", h.CreateHold)
		r.Get("/{holdToken}", h.GetHold)
		r.Post("/{holdToken}/renew", h.RenewHold)
		r.Post("/{holdToken}/promote", h.PromoteHold)
		r.Delete("/{holdToken}", h.ReleaseHold)
	})

	r.Route("/api/bookings", func(r chi.Router) {
		r.Get("/", h.ListBookings)
		r.Post("/checkin", h.CheckinBooking)
		r.Get("/{bookingId}", h.GetBooking)
		r.Post("/{bookingId}/cancel", h.CancelBooking)
		r.Get("/{bookingId}/qr", h.GetBookingQR)
	})
}

func (h *Handler) GetSeatMap(w http.ResponseWriter, r *http.Request) {
	screeningID := chi.URLParam(r, "screeningId")
	seats, err := h.Reservations.SeatMap(r.Context(), screeningID)
	if err != nil {
		h.writeError(w, "Seat map", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(fmt.Sprintf("Seat map of %s", screeningID), seats))
}

func (h *Handler) CreateHold(w http.ResponseWriter, r *http.Request) {
	var req models.HoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	hold, err := h.Reservations.Hold(r.Context(), req.ScreeningID, req.SeatIDs, req.SessionToken)
	if err != nil {
		h.writeError(w, "Hold", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Seats held", hold))
}

func (h *Handler) GetHold(w http.ResponseWriter, r *http.Request) {
	hold, err := h.Reservations.Get(r.Context(), chi.URLParam(r, "holdToken"))
	if err != nil {
		h.writeError(w, "Hold", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Hold", hold))
}

func (h *Handler) RenewHold(w http.ResponseWriter, r *http.Request) {
	hold, err := h.Reservations.Renew(r.Context(), chi.URLParam(r, "holdToken"))
	if err != nil {
		h.writeError(w, "Renew", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Hold renewed", hold))
}

func (h *Handler) PromoteHold(w http.ResponseWriter, r *http.Request) {
	var req models.PromoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	confirmation, err := h.Checkout.Confirm(r.Context(), chi.URLParam(r, "holdToken"), req)
	if err != nil {
		h.writeError(w, "Promote", err)
		return
	}

	message := "Booking confirmed"
	if !confirmation.Persisted {
		message = "Booking confirmed, record pending"
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse(message, confirmation))
}

// ReleaseHold is idempotent: unknown, expired and promoted tokens all get 204.
func (h *Handler) ReleaseHold(w http.ResponseWriter, r *http.Request) {
	if err := h.Reservations.Release(r.Context(), chi.URLParam(r, "holdToken")); err != nil {
		h.writeError(w, "Release", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
