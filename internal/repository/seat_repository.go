package repository

import (
	"context"

	"github.com/eventure/booking/internal/model"
)

// SeatsForUpdate loads the requested seats and locks their rows.  The
// seat rows are the lock anchor for seat claims: a "taken" state is
// derived from tickets rather than stored, so without these locks two
// transactions could both see a seat as free and both bind it.
func (s *Store) SeatsForUpdate(ctx context.Context, ids []uint64) (map[uint64]model.Seat, error) {
	out := make(map[uint64]model.Seat, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := `SELECT id, room_id, row_label, seat_number, is_active, created_at, updated_at
	          FROM seats WHERE id IN (` + placeholders(len(ids)) + `) FOR UPDATE`
	rows, err := s.q(ctx).QueryContext(ctx, query, idArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var seat model.Seat
		if err := rows.Scan(&seat.ID, &seat.RoomID, &seat.RowLabel, &seat.SeatNumber,
			&seat.IsActive, &seat.CreatedAt, &seat.UpdatedAt); err != nil {
			return nil, err
		}
		out[seat.ID] = seat
	}
	return out, rows.Err()
}

// TakenSeats returns the subset of seatIDs that already carry a
// non-cancelled ticket for the event.  Run it only after SeatsForUpdate
// in the same transaction; on its own the answer can be stale by the
// time it is acted on.
func (s *Store) TakenSeats(ctx context.Context, eventID uint64, seatIDs []uint64) ([]uint64, error) {
	if len(seatIDs) == 0 {
		return nil, nil
	}
	query := `SELECT DISTINCT seat_id FROM tickets
	          WHERE event_id = ? AND status <> ? AND seat_id IN (` + placeholders(len(seatIDs)) + `)`
	args := append([]interface{}{eventID, model.TicketCancelled}, idArgs(seatIDs)...)
	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var taken []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		taken = append(taken, id)
	}
	return taken, rows.Err()
}
