package booking

import (
	"context"
	"time"

	"github.com/eventure/booking/internal/model"
)

// LineItem is one requested (ticket type, quantity) pair of a purchase.
type LineItem struct {
	TicketTypeID uint64 `json:"ticket_type_id"`
	Quantity     uint32 `json:"quantity"`
}

// Availability is the advisory remaining-stock view of one ticket type.
// It is served outside any lock and may be slightly stale; only the
// booking transaction itself is authoritative.
type Availability struct {
	TicketTypeID uint64                 `json:"ticket_type_id"`
	Name         string                 `json:"name"`
	PriceCents   int64                  `json:"price_cents"`
	Status       model.TicketTypeStatus `json:"status"`
	Remaining    uint32                 `json:"remaining"`
}

// Store is the persistence port of the booking engine.  Methods invoked
// inside the function passed to WithTx run in one atomic unit; the
// *ForUpdate reads must lock the selected rows until that unit commits
// or rolls back, so that two concurrent bookings cannot both observe
// "stock available" or "seat free" and both commit.
//
// Reads return ErrNotFound when a referenced row does not exist, and
// CreateTickets returns ErrDuplicateCode on a ticket-code collision.
// WithTx returns ErrTransientContention when the unit was aborted by
// concurrent contention (deadlock, lock wait timeout); the coordinator
// restarts the whole validation sequence in that case.
type Store interface {
	// WithTx runs fn inside one atomic unit, committing when fn returns
	// nil and rolling back every write otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	// EventForUpdate loads an event and locks its row.  Locking the event
	// serializes the quota check across concurrent orders of one user,
	// even when the orders touch disjoint ticket types.
	EventForUpdate(ctx context.Context, id uint64) (model.Event, error)

	// TicketTypesForUpdate loads and locks the given ticket types.  IDs
	// that do not exist are simply absent from the returned map.
	TicketTypesForUpdate(ctx context.Context, ids []uint64) (map[uint64]model.TicketType, error)

	// SeatsForUpdate loads and locks the given seats.  Locking the seat
	// rows serializes concurrent claims of the same seat, which is what
	// makes the derived taken-check safe: no second transaction can pass
	// it for a seat this one is about to bind.
	SeatsForUpdate(ctx context.Context, ids []uint64) (map[uint64]model.Seat, error)

	// TakenSeats returns the subset of seatIDs that already carry a
	// non-cancelled ticket for the event.
	TakenSeats(ctx context.Context, eventID uint64, seatIDs []uint64) ([]uint64, error)

	// CountActiveTickets returns the user's non-cancelled ticket count for
	// the event.
	CountActiveTickets(ctx context.Context, userID, eventID uint64) (uint32, error)

	// AddSold moves a ticket type's sold counter by delta (negative for
	// cancellations) and writes the recomputed status.
	AddSold(ctx context.Context, ticketTypeID uint64, delta int32, status model.TicketTypeStatus) error

	// CreateOrder persists a new order and fills in its generated ID.
	CreateOrder(ctx context.Context, o *model.Order) error

	// CreateTickets persists all tickets of an order in one statement and
	// fills in their generated IDs.
	CreateTickets(ctx context.Context, ts []model.Ticket) error

	// Event loads an event without locking (advisory reads).
	Event(ctx context.Context, id uint64) (model.Event, error)

	// OrderByID loads an order without locking.
	OrderByID(ctx context.Context, id uint64) (model.Order, error)

	// OrderForUpdate loads an order and locks its row for cancellation.
	OrderForUpdate(ctx context.Context, id uint64) (model.Order, error)

	// OrdersByUser lists a user's orders, newest first.
	OrdersByUser(ctx context.Context, userID uint64) ([]model.Order, error)

	// TicketsByOrder lists the tickets of an order in creation order.
	TicketsByOrder(ctx context.Context, orderID uint64) ([]model.Ticket, error)

	// TicketByCodeForUpdate loads a ticket by its code and locks it, so
	// two concurrent check-ins of the same code cannot both succeed.
	TicketByCodeForUpdate(ctx context.Context, code string) (model.Ticket, error)

	// UpdateTicketStatus moves a ticket from one status to another,
	// recording usedAt when the transition is a check-in.  The write is
	// guarded on the current status: a ticket that is no longer in the
	// from status is reported as ErrTransientContention, so a caller
	// holding a stale read re-runs against fresh state instead of
	// overwriting a transition that committed after its read.
	UpdateTicketStatus(ctx context.Context, id uint64, from, to model.TicketStatus, usedAt *time.Time) error

	// UpdateOrderStatus moves an order to the given status.
	UpdateOrderStatus(ctx context.Context, id uint64, status model.OrderStatus) error

	// TicketTypeAvailability returns the advisory stock view for every
	// non-hidden ticket type of the event.
	TicketTypeAvailability(ctx context.Context, eventID uint64) ([]Availability, error)
}
