package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrScreeningNotFound = errors.New("screening not found")
	ErrInvalidScreening  = errors.New("invalid screening")
)

type DBLayer interface {
	CreateScreening(ctx context.Context, screening *models.Screening) error
	GetScreeningByID(ctx context.Context, id string) (*models.Screening, error)
	ListScreenings(ctx context.Context, movieID string) ([]models.Screening, error)
}

type Service struct {
	DB     DBLayer
	Logger *logger.Logger
}

func NewService(db DBLayer, log *logger.Logger) *Service {
	return &Service{DB: db, Logger: log}
}

func (s *Service) CreateScreening(ctx context.Context, req models.CreateScreeningRequest) (*models.Screening, error) {
	screening := &models.Screening{
		ScreeningID: uuid.New().String(),
		MovieID:     strings.TrimSpace(req.MovieID),
		TheaterID:   strings.TrimSpace(req.TheaterID),
		Date:        req.Date,
		Time:        req.Time,
		Price:       req.Price,
		TotalSeats:  req.TotalSeats,
	}
	if req.SeatMap != nil {
		screening.SeatMap = *req.SeatMap
	}
	for i := range screening.SeatMap.Tiers {
		screening.SeatMap.Tiers[i].Rows = models.NormalizeSeatIDs(screening.SeatMap.Tiers[i].Rows)
	}

	if err := screening.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScreening, err)
	}
	if screening.TotalSeats == 0 {
		layout := screening.Layout()
		screening.TotalSeats = layout.Rows * layout.SeatsPerRow
	}

	if err := s.DB.CreateScreening(ctx, screening); err != nil {
		s.Logger.Error("CATALOG", fmt.Sprintf("Failed to create screening for movie %s: %v", screening.MovieID, err))
		return nil, fmt.Errorf("create screening: %w", err)
	}

	s.Logger.Info("CATALOG", fmt.Sprintf("Screening %s created: movie=%s theater=%s %s %s seats=%d",
		screening.ScreeningID, screening.MovieID, screening.TheaterID, screening.Date, screening.Time, screening.TotalSeats))
	return screening, nil
}

// GetScreening is the lookup the seat inventory uses to initialise a screening.
func (s *Service) GetScreening(ctx context.Context, id string) (*models.Screening, error) {
	screening, err := s.DB.GetScreeningByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrScreeningNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get screening %s: %w", id, err)
	}
	return screening, nil
}

func (s *Service) ListScreenings(ctx context.Context) ([]models.Screening, error) {
	return s.DB.ListScreenings(ctx, "")
}

func (s *Service) ListScreeningsByMovie(ctx context.Context, movieID string) ([]models.Screening, error) {
	if strings.TrimSpace(movieID) == "" {
		return nil, fmt.Errorf("%w: movie id is required", ErrInvalidScreening)
	}
	return s.DB.ListScreenings(ctx, movieID)
}
