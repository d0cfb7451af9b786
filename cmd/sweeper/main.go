package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"coachbook/internal/config"
	"coachbook/internal/database"
	"coachbook/internal/domain/notification"
	"coachbook/internal/sweeper"
)

// One-shot sweep for cron-style deployments; the API server runs the same
// passes on an interval.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}

	notifService := notification.NewService(notification.NewRepository(db))
	sw := sweeper.New(db, notifService, cfg.GroupLookahead, cfg.NotificationRetention)

	report, err := sw.RunSweepOnce(context.Background())
	if err != nil {
		log.Fatalf("sweep finished with errors: %v", err)
	}

	log.Printf("sweep completed: bookings_timed_out=%d cards_expired=%d sessions_ended=%d",
		report.BookingsTimedOut, report.CardsExpired, report.SessionsEnded)
}
