package model

import "time"

// Seat describes a physical seat in a room.  Seats are uniquely
// identified by their room, row label and seat number.  A seat carries
// no per-event "taken" flag: whether a seat is taken for a given event
// is derived from the non-cancelled tickets referencing it, so the
// ticket table stays the single source of truth.
//
// Fields:
//  ID         – primary key identifier.
//  RoomID     – room to which this seat belongs.
//  RowLabel   – letter or string designating the row.
//  SeatNumber – number of the seat within the row.
//  IsActive   – whether the seat is bookable at all (room admin flag).
//  CreatedAt  – creation timestamp.
//  UpdatedAt  – last update timestamp.
type Seat struct {
	ID         uint64    // seats.id
	RoomID     uint64    // seats.room_id
	RowLabel   string    // seats.row_label
	SeatNumber uint32    // seats.seat_number
	IsActive   bool      // seats.is_active
	CreatedAt  time.Time // seats.created_at
	UpdatedAt  time.Time // seats.updated_at
}
