package main

import (
	"fmt"
	"io"
	"ms-booking/internal/models"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
)

var stateColor = map[models.SeatState]*color.Color{
	models.SeatFree:   color.New(color.FgGreen),
	models.SeatHeld:   color.New(color.FgYellow),
	models.SeatBooked: color.New(color.FgRed),
}

// renderSeatMap draws one table row per seat row, each seat colored by state.
func renderSeatMap(w io.Writer, screeningID string, seats []models.SeatView) {
	var (
		rows    []string
		byRow   = map[string][]models.SeatView{}
		counts  = map[models.SeatState]int{}
		maxCols int
	)
	for _, seat := range seats {
		if _, ok := byRow[seat.Row]; !ok {
			rows = append(rows, seat.Row)
		}
		byRow[seat.Row] = append(byRow[seat.Row], seat)
		if len(byRow[seat.Row]) > maxCols {
			maxCols = len(byRow[seat.Row])
		}
		counts[seat.State]++
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Screening " + screeningID)

	header := table.Row{"Row"}
	for i := 1; i <= maxCols; i++ {
		header = append(header, i)
	}
	t.AppendHeader(header)

	for _, row := range rows {
		line := table.Row{row}
		for _, seat := range byRow[row] {
			line = append(line, seatCell(seat))
		}
		t.AppendRow(line)
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("free %d  held %d  booked %d",
		counts[models.SeatFree], counts[models.SeatHeld], counts[models.SeatBooked])})
	t.Render()
}

func seatCell(seat models.SeatView) string {
	label := strings.ToUpper(string(seat.State[0:1]))
	if seat.Type != "" && seat.Type != models.SeatTypeStandard {
		label += "*"
	}
	if c, ok := stateColor[seat.State]; ok {
		return c.Sprint(label)
	}
	return label
}

func renderBookings(w io.Writer, bookings []models.Booking) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Booking", "User", "Screening", "Seats", "Total", "Status", "Created"})
	for _, b := range bookings {
		status := string(b.Status)
		if b.Cancelled() {
			status = color.RedString(status)
		} else {
			status = color.GreenString(status)
		}
		t.AppendRow(table.Row{
			b.BookingID, b.UserID, b.ScreeningID, strings.Join(b.SeatIDs, ","),
			fmt.Sprintf("%.2f", b.TotalAmount), status, b.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	t.Style().Options.SeparateRows = true
	t.Render()
}

func renderScreenings(w io.Writer, screenings []models.Screening) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Screening", "Movie", "Theater", "Date", "Time", "Price", "Seats"})
	for _, s := range screenings {
		t.AppendRow(table.Row{s.ScreeningID, s.MovieID, s.TheaterID, s.Date, s.Time, fmt.Sprintf("%.2f", s.Price), s.TotalSeats})
	}
	t.Render()
}
