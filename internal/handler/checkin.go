package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eventure/booking/internal/booking"
)

// CheckInHandler serves the entrance-scanner endpoint.  Routes using it
// are restricted to STAFF and OWNER roles by middleware.
type CheckInHandler struct {
	Svc *booking.Service
}

// NewCheckInHandler constructs a CheckInHandler.  The service must be
// non-nil.
func NewCheckInHandler(svc *booking.Service) *CheckInHandler {
	if svc == nil {
		panic("nil service passed to NewCheckInHandler")
	}
	return &CheckInHandler{Svc: svc}
}

// CheckIn handles POST /v1/checkin.  The body carries the scanned
// ticket code; a valid ticket transitions to USED and the response
// echoes the ticket so the scanner can display seat and event.  Used
// and cancelled tickets respond with 409 and a reason the gate staff
// can read out.
func (h *CheckInHandler) CheckIn(c echo.Context) error {
	var body struct {
		Code string `json:"code"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.Code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code is required"})
	}
	t, err := h.Svc.RedeemTicket(c.Request().Context(), body.Code)
	if err != nil {
		return bookingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ticket": toTicketResponse(t)})
}
