package booking_api

import (
	"encoding/json"
	"fmt"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := h.Bookings.Get(r.Context(), chi.URLParam(r, "bookingId"))
	if err != nil {
		h.writeError(w, "Get booking", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking", booking))
}

// ListBookings → GET /api/bookings?user_id=... or ?screening_id=...
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	var (
		bookings []models.Booking
		err      error
	)
	query := r.URL.Query()
	switch {
	case query.Get("user_id") != "":
		bookings, err = h.Bookings.ListByUser(r.Context(), query.Get("user_id"))
	case query.Get("screening_id") != "":
		bookings, err = h.Bookings.ListByScreening(r.Context(), query.Get("screening_id"))
	default:
		utils.WriteError(w, http.StatusBadRequest, "user_id or screening_id is required", nil)
		return
	}
	if err != nil {
		h.writeError(w, "List bookings", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(fmt.Sprintf("%d bookings", len(bookings)), bookings))
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := h.Bookings.Cancel(r.Context(), chi.URLParam(r, "bookingId"))
	if err != nil {
		h.writeError(w, "Cancel booking", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking cancelled", booking))
}

// GetBookingQR renders the encrypted booking pass as a PNG QR code.
func (h *Handler) GetBookingQR(w http.ResponseWriter, r *http.Request) {
	booking, err := h.Bookings.Get(r.Context(), chi.URLParam(r, "bookingId"))
	if err != nil {
		h.writeError(w, "Booking QR", err)
		return
	}
	if booking.Cancelled() {
		utils.WriteError(w, http.StatusConflict, "Booking is cancelled", nil)
		return
	}

	png, err := h.QR.PNG(*booking, time.Now())
	if err != nil {
		h.writeError(w, "Booking QR", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// CheckinBooking verifies a scanned pass against the ledger.
// Expected POST request body: {"encrypted_qr": "base64_encrypted_string"}
func (h *Handler) CheckinBooking(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EncryptedQR string `json:"encrypted_qr"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.EncryptedQR == "" {
		utils.WriteError(w, http.StatusBadRequest, "encrypted_qr is required", err)
		return
	}

	pass, err := h.QR.Open(body.EncryptedQR)
	if err != nil {
		h.writeError(w, "Checkin", err)
		return
	}
	booking, err := h.Bookings.Get(r.Context(), pass.BookingID)
	if err != nil {
		h.writeError(w, "Checkin", err)
		return
	}
	if booking.Cancelled() {
		utils.WriteError(w, http.StatusConflict, "Booking is cancelled", nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Pass valid", booking))
}
