package db

import (
	"context"
	"ms-booking/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- SCREENINGS ----------------

// CreateScreening → insert a new screening
func (d *DB) CreateScreening(ctx context.Context, screening *models.Screening) error {
	_, err := d.Bun.NewInsert().Model(screening).Exec(ctx)
	return err
}

// GetScreeningByID → fetch one screening, sql.ErrNoRows when missing
func (d *DB) GetScreeningByID(ctx context.Context, id string) (*models.Screening, error) {
	var screening models.Screening
	err := d.Bun.NewSelect().
		Model(&screening).
		Where("screening_id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &screening, nil
}

// ListScreenings → all screenings, optionally filtered by movie
func (d *DB) ListScreenings(ctx context.Context, movieID string) ([]models.Screening, error) {
	var screenings []models.Screening
	q := d.Bun.NewSelect().
		Model(&screenings).
		Order("date ASC", "time ASC")
	if movieID != "" {
		q = q.Where("movie_id = ?", movieID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return screenings, nil
}

// CreateSchema creates the screenings table when it does not exist yet. The
// postgres deployment runs the SQL migrations instead.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().
		Model((*models.Screening)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}
