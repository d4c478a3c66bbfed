package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/eventure/booking/internal/booking"
)

// AvailabilityHandler serves the unauthenticated browse endpoints, so
// guests can inspect remaining stock before logging in to buy.
type AvailabilityHandler struct {
	Svc *booking.Service
}

// NewAvailabilityHandler constructs an AvailabilityHandler.  The
// service must be non-nil.
func NewAvailabilityHandler(svc *booking.Service) *AvailabilityHandler {
	if svc == nil {
		panic("nil service passed to NewAvailabilityHandler")
	}
	return &AvailabilityHandler{Svc: svc}
}

// GetEventAvailability handles GET /v1/events/:id/availability.  It
// lists the remaining stock of every non-hidden ticket type of the
// event.  The numbers are advisory and may trail concurrent bookings;
// responses are served through the Redis cache when it is enabled.
func (h *AvailabilityHandler) GetEventAvailability(c echo.Context) error {
	eventID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || eventID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	avail, err := h.Svc.EventAvailability(c.Request().Context(), eventID)
	if err != nil {
		return bookingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": avail})
}
