package db

import (
	"context"
	"ms-booking/internal/models"
	"time"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- BOOKINGS ----------------

// CreateBooking → insert; re-inserting the same booking id is a no-op
func (d *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	_, err := d.Bun.NewInsert().
		Model(booking).
		On("CONFLICT (booking_id) DO NOTHING").
		Exec(ctx)
	return err
}

// GetBookingByID → fetch one booking, sql.ErrNoRows when missing
func (d *DB) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	err := d.Bun.NewSelect().
		Model(&booking).
		Where("booking_id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// ListByUser → a user's bookings, newest first
func (d *DB) ListByUser(ctx context.Context, userID string) ([]models.Booking, error) {
	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	return bookings, err
}

// ListByScreening → every booking of a screening, oldest first
func (d *DB) ListByScreening(ctx context.Context, screeningID string) ([]models.Booking, error) {
	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("screening_id = ?", screeningID).
		Order("created_at ASC").
		Scan(ctx)
	return bookings, err
}

// MarkCancelled flips a confirmed booking to cancelled. It reports false when
// the booking was not confirmed any more.
func (d *DB) MarkCancelled(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("status = ?", models.BookingCancelled).
		Set("cancelled_at = ?", at).
		Where("booking_id = ?", id).
		Where("status = ?", models.BookingConfirmed).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CreateSchema creates the bookings table and its lookup indexes when they do
// not exist yet.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	if _, err := db.NewCreateTable().
		Model((*models.Booking)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return err
	}
	for name, column := range map[string]string{
		"bookings_user_id_idx":      "user_id",
		"bookings_screening_id_idx": "screening_id",
	} {
		if _, err := db.NewCreateIndex().
			Model((*models.Booking)(nil)).
			Index(name).
			Column(column).
			IfNotExists().
			Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}
