package model

import "time"

// Room is a physical venue space whose seats can be sold for any event
// associated with it.  Rooms and their seats are managed by the room
// admin screens; the booking core treats them as read-only reference
// data.
type Room struct {
	ID        uint64    // rooms.id
	Name      string    // rooms.name
	CreatedAt time.Time // rooms.created_at
	UpdatedAt time.Time // rooms.updated_at
}
