package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eventure/booking/internal/booking"
	"github.com/eventure/booking/internal/model"
	"github.com/eventure/booking/internal/queue"
	queue_publisher "github.com/eventure/booking/internal/service"
)

// BookingHandler serves the authenticated purchase endpoints.  All
// methods assume that JWT authentication and role validation has
// already been performed by middleware and may return 401 when the
// user ID cannot be extracted from the context.
type BookingHandler struct {
	Svc *booking.Service
}

// NewBookingHandler constructs a BookingHandler.  The service must be
// non-nil.
func NewBookingHandler(svc *booking.Service) *BookingHandler {
	if svc == nil {
		panic("nil service passed to NewBookingHandler")
	}
	return &BookingHandler{Svc: svc}
}

// orderResponse is the sanitized order representation returned to
// clients.
type orderResponse struct {
	ID         uint64    `json:"id"`
	Reference  string    `json:"reference"`
	Status     string    `json:"status"`
	TotalCents int64     `json:"total_cents"`
	CreatedAt  time.Time `json:"created_at"`
}

// ticketResponse is the sanitized ticket representation returned to
// clients.  The QR payload is a base64 PNG whose content is the code.
type ticketResponse struct {
	ID           uint64     `json:"id"`
	Code         string     `json:"code"`
	Status       string     `json:"status"`
	PriceCents   int64      `json:"price_cents"`
	SeatID       *uint64    `json:"seat_id,omitempty"`
	EventID      uint64     `json:"event_id"`
	TicketTypeID uint64     `json:"ticket_type_id"`
	QRPayload    string     `json:"qr_png_base64"`
	UsedAt       *time.Time `json:"used_at,omitempty"`
}

func toOrderResponse(o model.Order) orderResponse {
	return orderResponse{
		ID:         o.ID,
		Reference:  o.Reference,
		Status:     string(o.Status),
		TotalCents: o.TotalCents,
		CreatedAt:  o.CreatedAt,
	}
}

func toTicketResponse(t model.Ticket) ticketResponse {
	return ticketResponse{
		ID:           t.ID,
		Code:         t.Code,
		Status:       string(t.Status),
		PriceCents:   t.PriceCents,
		SeatID:       t.SeatID,
		EventID:      t.EventID,
		TicketTypeID: t.TicketTypeID,
		QRPayload:    t.QRPayload,
		UsedAt:       t.UsedAt,
	}
}

func toTicketResponses(ts []model.Ticket) []ticketResponse {
	out := make([]ticketResponse, 0, len(ts))
	for _, t := range ts {
		out = append(out, toTicketResponse(t))
	}
	return out
}

// PlaceOrder handles POST /v1/orders.  The body carries the requested
// line items and an optional seat selection:
//
//	{"items": [{"ticket_type_id": 1, "quantity": 2}], "seat_ids": [11, 12]}
//
// Seats are assigned to ticket units positionally.  On success a 201
// response returns the order and its tickets with codes and QR images,
// and an order.placed event is published for downstream consumers.
func (h *BookingHandler) PlaceOrder(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		Items   []booking.LineItem `json:"items"`
		SeatIDs []uint64           `json:"seat_ids"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	placed, err := h.Svc.PlaceOrder(c.Request().Context(), userID, body.Items, body.SeatIDs)
	if err != nil {
		return bookingError(c, err)
	}

	// Publishing is best effort; the order is already committed.
	codes := make([]string, 0, len(placed.Tickets))
	for _, t := range placed.Tickets {
		codes = append(codes, t.Code)
	}
	_ = queue_publisher.PublishOrderPlaced(c.Request().Context(), queue.OrderPlacedEvent{
		OrderID:     placed.Order.ID,
		Reference:   placed.Order.Reference,
		UserID:      placed.Order.UserID,
		TotalCents:  placed.Order.TotalCents,
		TicketCount: len(placed.Tickets),
		Codes:       codes,
		PlacedAt:    placed.Order.CreatedAt.Format(time.RFC3339),
	})

	return c.JSON(http.StatusCreated, echo.Map{
		"order":   toOrderResponse(placed.Order),
		"tickets": toTicketResponses(placed.Tickets),
	})
}

// ListOrders handles GET /v1/my-orders.  It returns all orders of the
// current user, newest first, each with its tickets.
func (h *BookingHandler) ListOrders(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orders, err := h.Svc.ListOrders(c.Request().Context(), userID)
	if err != nil {
		return bookingError(c, err)
	}
	items := make([]echo.Map, 0, len(orders))
	for _, o := range orders {
		items = append(items, echo.Map{
			"order":   toOrderResponse(o.Order),
			"tickets": toTicketResponses(o.Tickets),
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// GetOrder handles GET /v1/orders/:id.  Orders belonging to a
// different user read as 404.
func (h *BookingHandler) GetOrder(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || orderID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	placed, err := h.Svc.GetOrder(c.Request().Context(), userID, orderID)
	if err != nil {
		return bookingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"order":   toOrderResponse(placed.Order),
		"tickets": toTicketResponses(placed.Tickets),
	})
}

// CancelOrder handles DELETE /v1/orders/:id.  Cancelling releases the
// order's stock, seats and quota slots.  Orders with a checked-in
// ticket respond with 409.
func (h *BookingHandler) CancelOrder(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || orderID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	if err := h.Svc.CancelOrder(c.Request().Context(), userID, orderID); err != nil {
		return bookingError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Allowance handles GET /v1/events/:id/allowance.  It reports how many
// more tickets the current user may buy for the event.  The number is
// advisory; only the booking transaction's own check is binding.
func (h *BookingHandler) Allowance(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	eventID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || eventID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	a, err := h.Svc.RemainingAllowance(c.Request().Context(), userID, eventID)
	if err != nil {
		return bookingError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}
