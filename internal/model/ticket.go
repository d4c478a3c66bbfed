package model

import "time"

// TicketStatus enumerates the lifecycle states of a ticket.  Valid
// tickets may transition to USED (check-in) or CANCELLED (order
// cancellation); both of those states are terminal.
type TicketStatus string

const (
	TicketValid     TicketStatus = "VALID"
	TicketUsed      TicketStatus = "USED"
	TicketCancelled TicketStatus = "CANCELLED"
)

// Ticket is one purchased unit.  Tickets are created exclusively by the
// booking transaction, one row per unit, and are never deleted.  The
// price is a snapshot of the ticket type's price at purchase time and is
// never recomputed.
//
// Fields:
//  ID           – primary key identifier.
//  Code         – short unique alphanumeric code printed on the ticket;
//                 immutable after creation (UNIQUE index).
//  Status       – VALID, USED or CANCELLED.
//  PriceCents   – price paid for this unit, snapshot at purchase.
//  SeatID       – optional seat assignment; nil for unseated tickets.
//  UserID       – buyer.
//  OrderID      – order this unit was purchased under.
//  EventID      – event the ticket admits to.
//  TicketTypeID – allocation the unit was drawn from.
//  QRPayload    – base64 PNG of a QR code whose content is Code.
//  CreatedAt    – purchase timestamp.
//  UsedAt       – check-in timestamp, set when Status becomes USED.
type Ticket struct {
	ID           uint64       // tickets.id
	Code         string       // tickets.code
	Status       TicketStatus // tickets.status
	PriceCents   int64        // tickets.price_cents
	SeatID       *uint64      // tickets.seat_id (nullable)
	UserID       uint64       // tickets.user_id
	OrderID      uint64       // tickets.order_id
	EventID      uint64       // tickets.event_id
	TicketTypeID uint64       // tickets.ticket_type_id
	QRPayload    string       // tickets.qr_payload
	CreatedAt    time.Time    // tickets.created_at
	UsedAt       *time.Time   // tickets.used_at (nullable)
}
