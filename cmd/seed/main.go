package main

import (
	"context"
	"flag"
	"fmt"
	"ms-booking/internal/catalog"
	catalogdb "ms-booking/internal/catalog/db"
	"ms-booking/internal/config"
	"ms-booking/internal/database"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
)

// demoScreenings is a small week of shows across two theaters.
func demoScreenings(start time.Time) []models.CreateScreeningRequest {
	day := func(offset int) string { return start.AddDate(0, 0, offset).Format("2006-01-02") }
	premium := &models.SeatMap{Rows: 8, SeatsPerRow: 12, Tiers: []models.SeatTier{
		{Type: models.SeatTypePremium, Rows: []string{"E", "F"}, Price: 320},
		{Type: models.SeatTypeVIP, Rows: []string{"G", "H"}, Price: 450},
	}}

	return []models.CreateScreeningRequest{
		{MovieID: "movie-dune-3", TheaterID: "pvr-downtown", Date: day(0), Time: "18:30", Price: 220, SeatMap: premium},
		{MovieID: "movie-dune-3", TheaterID: "pvr-downtown", Date: day(0), Time: "21:45", Price: 250, SeatMap: premium},
		{MovieID: "movie-dune-3", TheaterID: "inox-mall", Date: day(1), Time: "19:00", Price: 200, TotalSeats: 60},
		{MovieID: "movie-paddington", TheaterID: "inox-mall", Date: day(1), Time: "11:00", Price: 150, TotalSeats: 40},
		{MovieID: "movie-paddington", TheaterID: "pvr-downtown", Date: day(2), Time: "14:15", Price: 180, TotalSeats: 80},
	}
}

func reset(ctx context.Context, db *bun.DB) error {
	for _, m := range []interface{}{(*models.Booking)(nil), (*models.Screening)(nil)} {
		if _, err := db.NewDelete().Model(m).Where("1 = 1").Exec(ctx); err != nil {
			return fmt.Errorf("clear %T: %w", m, err)
		}
	}
	return nil
}

func main() {
	wipe := flag.Bool("reset", false, "delete every booking and screening before seeding")
	flag.Parse()

	_ = godotenv.Load()
	log := logger.NewLogger()
	defer log.Close()

	ctx := context.Background()
	bunDB, err := database.Open(ctx, config.Load().Database, log)
	if err != nil {
		log.Error("DATABASE", err.Error())
		os.Exit(1)
	}
	defer bunDB.Close()

	if *wipe {
		log.Info("DATABASE", "Clearing bookings and screenings...")
		if err := reset(ctx, bunDB); err != nil {
			log.Error("DATABASE", err.Error())
			os.Exit(1)
		}
	}

	service := catalog.NewService(&catalogdb.DB{Bun: bunDB}, log)
	for _, req := range demoScreenings(time.Now()) {
		screening, err := service.CreateScreening(ctx, req)
		if err != nil {
			log.Error("CATALOG", fmt.Sprintf("Seeding %s at %s failed: %v", req.MovieID, req.TheaterID, err))
			os.Exit(1)
		}
		fmt.Printf("%s  %s %s  %-18s %-14s %d seats\n",
			screening.ScreeningID, screening.Date, screening.Time, screening.MovieID, screening.TheaterID, screening.TotalSeats)
	}
	log.Info("APP", "✅ Done.")
}
