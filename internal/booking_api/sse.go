package booking_api

import (
	"encoding/json"
	"fmt"
	"ms-booking/internal/models"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const defaultResyncInterval = 30 * time.Second

type seatSnapshot struct {
	ScreeningID string            `json:"screening_id"`
	Seats       []models.SeatView `json:"seats"`
	TakenAt     time.Time         `json:"taken_at"`
}

// StreamSeatEvents streams seat changes of one screening. The stream opens
// with a full snapshot and repeats it periodically so clients that missed
// events converge.
func (h *Handler) StreamSeatEvents(w http.ResponseWriter, r *http.Request) {
	screeningID := chi.URLParam(r, "screeningId")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	// Subscribe before the first snapshot so no transition falls between them.
	events := h.Events.Subscribe(ctx, screeningID)

	seats, err := h.Reservations.SeatMap(ctx, screeningID)
	if err != nil {
		h.writeError(w, "Seat events", err)
		return
	}

	setupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := writeSnapshot(w, screeningID, seats); err != nil {
		return
	}
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("Client subscribed to seat events of %s", screeningID))

	interval := h.ResyncInterval
	if interval <= 0 {
		interval = defaultResyncInterval
	}
	resync := time.NewTicker(interval)
	defer resync.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize seat event: %v", err))
				continue
			}
			fmt.Fprintf(w, "id: %d\nevent: seat\ndata: %s\n\n", event.Seq, data)
			flusher.Flush()

		case <-resync.C:
			seats, err := h.Reservations.SeatMap(ctx, screeningID)
			if err != nil {
				h.Logger.Warn("SSE", fmt.Sprintf("Resync of %s failed: %v", screeningID, err))
				continue
			}
			if err := writeSnapshot(w, screeningID, seats); err != nil {
				return
			}
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from seat events of %s", screeningID))
			return
		}
	}
}

func writeSnapshot(w http.ResponseWriter, screeningID string, seats []models.SeatView) error {
	data, err := json.Marshal(seatSnapshot{ScreeningID: screeningID, Seats: seats, TakenAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data)
	return err
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
