// Package handler exposes the HTTP surface of the booking service.
// Authenticated routes assume JWT validation has already run and read
// the caller's identity from the echo context.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/eventure/booking/internal/booking"
)

// getUserID extracts the user_id from echo.Context and converts it to
// uint64.  The JWT middleware stores the raw subject claim, whose Go
// type depends on how the token was encoded.
func getUserID(c echo.Context) (uint64, error) {
	v := c.Get("user_id")
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// bookingError translates the booking package's errors into HTTP
// responses.  Rejections that carry data (remaining allowance, the
// conflicting seats) surface that data in the body so clients can show
// it directly.
func bookingError(c echo.Context, err error) error {
	var refErr *booking.InvalidReferenceError
	if errors.As(err, &refErr) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": refErr.Error()})
	}
	var quotaErr *booking.QuotaExceededError
	if errors.As(err, &quotaErr) {
		return c.JSON(http.StatusConflict, echo.Map{
			"error":     quotaErr.Error(),
			"remaining": quotaErr.Remaining,
		})
	}
	var stockErr *booking.InsufficientStockError
	if errors.As(err, &stockErr) {
		return c.JSON(http.StatusConflict, echo.Map{
			"error":     stockErr.Error(),
			"remaining": stockErr.Remaining,
		})
	}
	var seatErr *booking.SeatConflictError
	if errors.As(err, &seatErr) {
		return c.JSON(http.StatusConflict, echo.Map{
			"error":       seatErr.Error(),
			"unavailable": seatErr.SeatIDs,
		})
	}
	switch {
	case errors.Is(err, booking.ErrNoLineItems),
		errors.Is(err, booking.ErrInvalidQuantity),
		errors.Is(err, booking.ErrTooManyUnits),
		errors.Is(err, booking.ErrTooManySeats):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, booking.ErrOrderNotFound),
		errors.Is(err, booking.ErrTicketNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, booking.ErrOrderNotCancellable),
		errors.Is(err, booking.ErrTicketUsed),
		errors.Is(err, booking.ErrTicketCancelled):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, booking.ErrTransientContention):
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "booking busy, retry shortly"})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
}
