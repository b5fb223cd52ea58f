package main

import (
	"bytes"
	"encoding/json"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeAPI(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/screenings/show-1/seats", func(w http.ResponseWriter, r *http.Request) {
		seats := []models.SeatView{
			{Seat: models.Seat{ID: "A1", Row: "A", Number: 1}, State: models.SeatFree},
			{Seat: models.Seat{ID: "A2", Row: "A", Number: 2}, State: models.SeatHeld},
			{Seat: models.Seat{ID: "B1", Row: "B", Number: 1, Type: models.SeatTypeVIP}, State: models.SeatBooked},
		}
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Seat map", seats))
	})
	mux.HandleFunc("/api/bookings", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "u1", r.URL.Query().Get("user_id"))
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("1 bookings", []models.Booking{
			{BookingID: "bk-1", UserID: "u1", ScreeningID: "show-1", SeatIDs: []string{"A1"}, Status: models.BookingConfirmed},
		}))
	})
	mux.HandleFunc("/api/bookings/bk-1/cancel", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking cancelled",
			models.Booking{BookingID: "bk-1", SeatIDs: []string{"A1"}, Status: models.BookingCancelled}))
	})
	mux.HandleFunc("/api/bookings/missing/cancel", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteError(w, http.StatusNotFound, "Booking not found", nil)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientDecodesEnvelope(t *testing.T) {
	c := NewClient(fakeAPI(t).URL + "/")

	seats, err := c.SeatMap("show-1")
	require.NoError(t, err)
	require.Len(t, seats, 3)
	assert.Equal(t, models.SeatHeld, seats[1].State)

	bookings, err := c.Bookings("u1", "")
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, "bk-1", bookings[0].BookingID)

	booking, err := c.Cancel("bk-1")
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, booking.Status)
}

func TestClientSurfacesErrors(t *testing.T) {
	c := NewClient(fakeAPI(t).URL)
	_, err := c.Cancel("missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "Booking not found")
}

func TestRenderSeatMap(t *testing.T) {
	color.NoColor = true
	seats, err := NewClient(fakeAPI(t).URL).SeatMap("show-1")
	require.NoError(t, err)

	var out bytes.Buffer
	renderSeatMap(&out, "show-1", seats)
	text := out.String()
	assert.Contains(t, strings.ToUpper(text), "SCREENING SHOW-1")
	assert.Contains(t, text, "B*")
	assert.Contains(t, strings.ToUpper(text), "FREE 1  HELD 1  BOOKED 1")
}

func TestCommandsRunAgainstAPI(t *testing.T) {
	color.NoColor = true
	srv := fakeAPI(t)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--api", srv.URL, "cancel", "bk-1", "--yes"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "booking bk-1 (1 seats released)")

	out.Reset()
	rootCmd.SetArgs([]string{"--api", srv.URL, "bookings"})
	assert.Error(t, rootCmd.Execute())

	out.Reset()
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, version+"\n", out.String())
}

func TestEnvelopeShape(t *testing.T) {
	raw, err := json.Marshal(utils.SuccessResponse("ok", []int{1}))
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.True(t, env.Success)
	assert.JSONEq(t, "[1]", string(env.Data))
}
