// Package booking implements the reservation engine: turning a user's
// requested ticket quantities and optional seat picks into a durable,
// non-oversellable order.  All validation and every write happen inside
// one atomic unit provided by the Store; any rejection leaves state
// untouched.
package booking

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Sentinel errors.  Handlers translate these into HTTP responses; see
// the typed errors below for rejections that carry data.
var (
	// ErrNoLineItems is returned when a purchase request has no line items.
	ErrNoLineItems = errors.New("order has no line items")

	// ErrInvalidQuantity is returned when a line item requests zero units.
	ErrInvalidQuantity = errors.New("line item quantity must be positive")

	// ErrTooManySeats is returned when more seats are supplied than ticket
	// units requested; seat assignment is positional so the extras could
	// never be bound to anything.
	ErrTooManySeats = errors.New("more seats supplied than ticket units requested")

	// ErrTooManyUnits is returned when a request's total ticket units
	// exceed the per-order limit.
	ErrTooManyUnits = errors.New("order requests too many ticket units")

	// ErrTransientContention is returned when the atomic commit could not
	// be established because of concurrent contention, after the bounded
	// internal retries are exhausted.  The whole call is safe to retry.
	ErrTransientContention = errors.New("booking aborted due to concurrent contention")

	// ErrCodeIssuanceExhausted is returned when ticket code generation kept
	// colliding with existing codes.  This is a system fault, not a
	// problem with the request.
	ErrCodeIssuanceExhausted = errors.New("could not issue a unique ticket code")

	// ErrOrderNotFound is returned when an order does not exist or belongs
	// to a different user.
	ErrOrderNotFound = errors.New("order not found")

	// ErrOrderNotCancellable is returned when an order is already
	// cancelled or one of its tickets has been checked in.
	ErrOrderNotCancellable = errors.New("order cannot be cancelled")

	// ErrTicketNotFound is returned at check-in for an unknown code.
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrTicketUsed is returned at check-in for an already-used ticket.
	ErrTicketUsed = errors.New("ticket already used")

	// ErrTicketCancelled is returned at check-in for a cancelled ticket.
	ErrTicketCancelled = errors.New("ticket is cancelled")

	// ErrNotFound is the generic not-found signal returned by Store reads.
	// The service maps it to the reference-specific errors above.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateCode is returned by Store.CreateTickets when a generated
	// code collides with the unique index.  The coordinator regenerates
	// codes and retries a bounded number of times.
	ErrDuplicateCode = errors.New("duplicate ticket code")
)

// InvalidReferenceError reports a line item or seat list naming a record
// that does not exist (or is not usable for the targeted event).
type InvalidReferenceError struct {
	Kind string // "event", "ticket_type" or "seat"
	ID   uint64
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("unknown %s %d", e.Kind, e.ID)
}

// QuotaExceededError reports that committing the order would put the
// user over the event's per-user cap.  Remaining is how many more units
// the user may still buy, for direct display ("you may buy N more").
type QuotaExceededError struct {
	EventID   uint64
	Cap       uint32
	Purchased uint32
	Requested uint32
	Remaining uint32
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("event %d: requesting %d tickets would exceed the cap of %d (already have %d, %d remaining)",
		e.EventID, e.Requested, e.Cap, e.Purchased, e.Remaining)
}

// InsufficientStockError reports a ticket type that cannot satisfy the
// requested quantity.  Remaining is the quantity actually left; it is
// zero when the type is sold out or withheld from sale.
type InsufficientStockError struct {
	TicketTypeID uint64
	Requested    uint32
	Remaining    uint32
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("ticket type %d: requested %d but only %d remaining",
		e.TicketTypeID, e.Requested, e.Remaining)
}

// SeatConflictError reports seats that already carry a non-cancelled
// ticket for the event (or were requested twice in the same order).
type SeatConflictError struct {
	EventID uint64
	SeatIDs []uint64
}

func (e *SeatConflictError) Error() string {
	ids := make([]string, len(e.SeatIDs))
	for i, id := range e.SeatIDs {
		ids[i] = strconv.FormatUint(id, 10)
	}
	return fmt.Sprintf("event %d: seats already taken: %s", e.EventID, strings.Join(ids, ", "))
}
