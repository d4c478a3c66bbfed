package model

import "time"

// DefaultMaxTicketsPerUser is the per-event purchase cap applied when an
// event does not configure its own limit.
const DefaultMaxTicketsPerUser uint32 = 10

// Event is the reference record for a sellable event.  Events are created
// and edited by the admin application; the booking core only reads them.
// An event may be associated with a room, in which case buyers can pick
// individual seats for their tickets.  Events without a room sell
// unseated (general admission) tickets only.
//
// Fields:
//  ID                – primary key identifier.
//  RoomID            – optional room providing the seat map.
//  Name              – display name, used in notifications.
//  MaxTicketsPerUser – per-user purchase cap; 0 means unset and the
//                      default of DefaultMaxTicketsPerUser applies.
//  CreatedAt         – creation timestamp.
//  UpdatedAt         – last update timestamp.
type Event struct {
	ID                uint64    // events.id
	RoomID            *uint64   // events.room_id (nullable)
	Name              string    // events.name
	MaxTicketsPerUser uint32    // events.max_tickets_per_user (0 = unset)
	CreatedAt         time.Time // events.created_at
	UpdatedAt         time.Time // events.updated_at
}

// Cap returns the effective per-user ticket cap for the event.
func (e Event) Cap() uint32 {
	if e.MaxTicketsPerUser == 0 {
		return DefaultMaxTicketsPerUser
	}
	return e.MaxTicketsPerUser
}
