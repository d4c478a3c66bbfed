package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/eventure/booking/internal/booking"
	"github.com/eventure/booking/internal/model"
)

const eventColumns = `id, room_id, name, max_tickets_per_user, created_at, updated_at`

func scanEvent(row *sql.Row) (model.Event, error) {
	var ev model.Event
	var roomID sql.NullInt64
	err := row.Scan(&ev.ID, &roomID, &ev.Name, &ev.MaxTicketsPerUser, &ev.CreatedAt, &ev.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, booking.ErrNotFound
	}
	if err != nil {
		return model.Event{}, err
	}
	if roomID.Valid {
		rid := uint64(roomID.Int64)
		ev.RoomID = &rid
	}
	return ev, nil
}

// Event loads an event without locking.  Used by the advisory read
// paths (allowance, availability).
func (s *Store) Event(ctx context.Context, id uint64) (model.Event, error) {
	const q = `SELECT ` + eventColumns + ` FROM events WHERE id = ?`
	return scanEvent(s.q(ctx).QueryRowContext(ctx, q, id))
}

// EventForUpdate loads an event and locks its row for the remainder of
// the transaction.  Holding the event row serializes the per-user quota
// check across concurrent orders, including orders that touch disjoint
// ticket types of the same event.
func (s *Store) EventForUpdate(ctx context.Context, id uint64) (model.Event, error) {
	const q = `SELECT ` + eventColumns + ` FROM events WHERE id = ? FOR UPDATE`
	return scanEvent(s.q(ctx).QueryRowContext(ctx, q, id))
}
