package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/eventure/booking/internal/booking"
	"github.com/eventure/booking/internal/clock"
	"github.com/eventure/booking/internal/config"
	"github.com/eventure/booking/internal/database"
	"github.com/eventure/booking/internal/handler"
	"github.com/eventure/booking/internal/queue"
	"github.com/eventure/booking/internal/repository"
	"github.com/eventure/booking/internal/router"
	"github.com/eventure/booking/migrations"
)

func main() {
	// .env is optional; in production configuration comes from the
	// environment itself.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	if err := migrations.Apply(context.Background(), db); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	// Redis backs rate limiting and the availability cache; both turn
	// themselves off when the client is nil.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable, rate limiting and caching disabled")
	}

	store := repository.NewStore(db)
	svc := booking.NewService(store, clock.NewSystem())

	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e)
	router.RegisterPublic(e, handler.NewAvailabilityHandler(svc), rdb)
	router.RegisterBooking(e, handler.NewBookingHandler(svc), handler.NewCheckInHandler(svc), cfg.JWTSecret, rdb)

	go func() {
		if err := queue.StartOrderConsumer(); err != nil {
			log.Printf("order consumer stopped: %v", err)
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
