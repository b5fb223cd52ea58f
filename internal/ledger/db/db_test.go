package db_test

import (
	"context"
	"database/sql"
	"errors"
	"ms-booking/internal/ledger/db"
	"ms-booking/internal/models"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) *db.DB {
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	require.NoError(t, db.CreateSchema(context.Background(), bunDB))
	return &db.DB{Bun: bunDB}
}

func booking(user, screening string, created time.Time, seats ...string) *models.Booking {
	return &models.Booking{
		BookingID:     uuid.New().String(),
		UserID:        user,
		ScreeningID:   screening,
		SeatIDs:       seats,
		TotalAmount:   float64(len(seats)) * 100,
		PaymentMethod: models.PaymentCard,
		PaymentRef:    "pay_123",
		HoldToken:     uuid.New().String(),
		Status:        models.BookingConfirmed,
		CreatedAt:     created,
	}
}

func TestCreateAndGetBooking(t *testing.T) {
	ledgerDB := setupTestDB(t)
	ctx := context.Background()
	b := booking("u1", "show-1", time.Now().UTC(), "A1", "A2")

	require.NoError(t, ledgerDB.CreateBooking(ctx, b))
	// Replaying the same write is harmless.
	require.NoError(t, ledgerDB.CreateBooking(ctx, b))

	got, err := ledgerDB.GetBookingByID(ctx, b.BookingID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A2"}, got.SeatIDs)
	assert.Equal(t, models.BookingConfirmed, got.Status)
	assert.Equal(t, b.HoldToken, got.HoldToken)
	assert.Nil(t, got.CancelledAt)

	_, err = ledgerDB.GetBookingByID(ctx, "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestListByUserAndScreening(t *testing.T) {
	ledgerDB := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 11, 1, 10, 0, 0, 0, time.UTC)

	first := booking("u1", "show-1", base, "A1")
	second := booking("u1", "show-2", base.Add(time.Hour), "B1")
	other := booking("u2", "show-1", base.Add(2*time.Hour), "A2")
	for _, b := range []*models.Booking{first, second, other} {
		require.NoError(t, ledgerDB.CreateBooking(ctx, b))
	}

	byUser, err := ledgerDB.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, byUser, 2)
	assert.Equal(t, second.BookingID, byUser[0].BookingID)

	byScreening, err := ledgerDB.ListByScreening(ctx, "show-1")
	require.NoError(t, err)
	require.Len(t, byScreening, 2)
	assert.Equal(t, first.BookingID, byScreening[0].BookingID)
	assert.Equal(t, other.BookingID, byScreening[1].BookingID)
}

func TestMarkCancelled_OnlyOnce(t *testing.T) {
	ledgerDB := setupTestDB(t)
	ctx := context.Background()
	b := booking("u1", "show-1", time.Now().UTC(), "C1")
	require.NoError(t, ledgerDB.CreateBooking(ctx, b))

	changed, err := ledgerDB.MarkCancelled(ctx, b.BookingID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = ledgerDB.MarkCancelled(ctx, b.BookingID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := ledgerDB.GetBookingByID(ctx, b.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, got.Status)
	assert.NotNil(t, got.CancelledAt)
}
