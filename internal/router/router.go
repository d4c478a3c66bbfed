// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/eventure/booking/internal/config"
	"github.com/eventure/booking/internal/handler"
	"github.com/eventure/booking/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterPublic registers the unauthenticated browse endpoints.  The
// availability view goes through the Redis response cache when one is
// configured; its numbers are advisory, so a short TTL of staleness is
// acceptable.
func RegisterPublic(e *echo.Echo, a *handler.AvailabilityHandler, rdb *redis.Client) {
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)
	e.GET("/v1/events/:id/availability", a.GetEventAvailability, cache)
}

// RegisterBooking registers the authenticated purchase endpoints.  All
// of them require a valid access token; the check-in endpoint is
// additionally restricted to gate staff.  The write endpoints share a
// Redis token-bucket rate limit.
func RegisterBooking(e *echo.Echo, b *handler.BookingHandler, ci *handler.CheckInHandler, jwtSecret string, rdb *redis.Client) {
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))

	customer := auth.Group("", middleware.RequireRole("CUSTOMER", "STAFF", "OWNER"))
	customer.POST("/orders", b.PlaceOrder, limiter)
	customer.GET("/my-orders", b.ListOrders)
	customer.GET("/orders/:id", b.GetOrder)
	customer.DELETE("/orders/:id", b.CancelOrder, limiter)
	customer.GET("/events/:id/allowance", b.Allowance)

	staff := auth.Group("", middleware.RequireRole("STAFF", "OWNER"))
	staff.POST("/checkin", ci.CheckIn, limiter)
}
