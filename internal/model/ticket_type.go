package model

import "time"

// TicketTypeStatus enumerates the sale states of a ticket type.
type TicketTypeStatus string

const (
	// TicketTypeActive means units of this type can be purchased.
	TicketTypeActive TicketTypeStatus = "ACTIVE"
	// TicketTypeSoldOut means every unit has been sold.  The status is
	// recomputed inside the same transaction that moves the sold counter.
	TicketTypeSoldOut TicketTypeStatus = "SOLD_OUT"
	// TicketTypeHidden means the type is withheld from sale by an admin.
	TicketTypeHidden TicketTypeStatus = "HIDDEN"
)

// TicketType is a priced allocation of tickets for one event.  Its two
// counters are the single point of write contention in the whole core:
// QuantitySold only moves inside the booking transaction (increment) or
// the cancellation flow (decrement), and 0 <= QuantitySold <=
// QuantityTotal holds at all times.
//
// Fields:
//  ID            – primary key identifier.
//  EventID       – event this allocation belongs to.
//  Name          – tier name (e.g. "Early Bird", "VIP").
//  PriceCents    – unit price in cents at the time of sale.
//  QuantityTotal – capacity, set at creation; grown only by an explicit
//                  admin action outside this core.
//  QuantitySold  – units sold so far.
//  Status        – ACTIVE, SOLD_OUT or HIDDEN.
//  CreatedAt     – creation timestamp.
//  UpdatedAt     – last update timestamp.
type TicketType struct {
	ID            uint64           // ticket_types.id
	EventID       uint64           // ticket_types.event_id
	Name          string           // ticket_types.name
	PriceCents    int64            // ticket_types.price_cents
	QuantityTotal uint32           // ticket_types.quantity_total
	QuantitySold  uint32           // ticket_types.quantity_sold
	Status        TicketTypeStatus // ticket_types.status
	CreatedAt     time.Time        // ticket_types.created_at
	UpdatedAt     time.Time        // ticket_types.updated_at
}

// Remaining returns the number of unsold units.
func (t TicketType) Remaining() uint32 {
	if t.QuantitySold >= t.QuantityTotal {
		return 0
	}
	return t.QuantityTotal - t.QuantitySold
}
