package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"coachbook/internal/config"
	"coachbook/internal/database"
	"coachbook/internal/domain/address"
	"coachbook/internal/domain/auth"
	"coachbook/internal/domain/booking"
	"coachbook/internal/domain/card"
	"coachbook/internal/domain/group"
	"coachbook/internal/domain/notification"
	"coachbook/internal/domain/relationship"
	"coachbook/internal/middleware"
	jwtsvc "coachbook/internal/pkg/jwt"
	"coachbook/internal/pkg/response"
	"coachbook/internal/sweeper"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is empty")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}

	if err := db.AutoMigrate(
		&auth.User{},
		&address.Address{},
		&relationship.Relationship{},
		&relationship.Category{},
		&relationship.CategoryBalance{},
		&relationship.CreditLog{},
		&card.CardTemplate{},
		&card.CardInstance{},
		&booking.Booking{},
		&booking.CoachTimeTemplate{},
		&group.GroupSession{},
		&group.GroupRegistration{},
		&notification.Notification{},
	); err != nil {
		log.Fatal(err)
	}

	j := jwtsvc.New(cfg.JWTSecret, cfg.JWTAccessTTL)

	users := auth.NewDirectory(db)
	addresses := address.NewDirectory(db)

	notifRepo := notification.NewRepository(db)
	notifService := notification.NewService(notifRepo)
	notifHandler := notification.NewHandler(notifService)

	relService := relationship.NewService(db)
	relHandler := relationship.NewHandler(relService)

	cardService := card.NewService(db)
	cardHandler := card.NewHandler(cardService)

	bookingService := booking.NewService(db, relService, cardService, users, addresses, notifService)
	bookingHandler := booking.NewHandler(bookingService)

	groupService := group.NewService(db, relService, notifService)
	groupHandler := group.NewHandler(groupService)

	sw := sweeper.New(db, notifService, cfg.GroupLookahead, cfg.NotificationRetention)

	r := gin.Default()
	r.Use(middleware.CORS(), middleware.ErrorLogger())

	v1 := r.Group("/api/v1")
	{
		protected := v1.Group("/")
		protected.Use(middleware.Auth(j))
		{
			relHandler.RegisterRoutes(protected)
			cardHandler.RegisterRoutes(protected)
			bookingHandler.RegisterRoutes(protected)
			groupHandler.RegisterRoutes(protected)
			notifHandler.RegisterRoutes(protected)
		}

		ops := v1.Group("/ops")
		ops.Use(middleware.Auth(j), middleware.RequireRole("admin"))
		ops.POST("/sweep", func(c *gin.Context) {
			report, err := sw.RunSweepOnce(c.Request.Context())
			if err != nil {
				response.Error(c, http.StatusInternalServerError, "SWEEP_FAILED", err.Error())
				return
			}
			response.Success(c, http.StatusOK, gin.H{"report": report})
		})
	}

	stopSweeper := sw.Schedule(context.Background(), cfg.SweepInterval)
	defer close(stopSweeper)

	log.Printf("listening on %s (env=%s, sweep every %v)", cfg.HTTPAddr, cfg.AppEnv, cfg.SweepInterval)
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatal(err)
	}
}
