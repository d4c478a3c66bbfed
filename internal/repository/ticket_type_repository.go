package repository

import (
	"context"
	"fmt"

	"github.com/eventure/booking/internal/booking"
	"github.com/eventure/booking/internal/model"
)

// TicketTypesForUpdate loads the requested ticket types and locks their
// rows, serializing every stock decision on them until the transaction
// ends.  IDs with no row are absent from the result; the caller decides
// whether that is an invalid reference.
func (s *Store) TicketTypesForUpdate(ctx context.Context, ids []uint64) (map[uint64]model.TicketType, error) {
	out := make(map[uint64]model.TicketType, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := `SELECT id, event_id, name, price_cents, quantity_total, quantity_sold, status, created_at, updated_at
	          FROM ticket_types WHERE id IN (` + placeholders(len(ids)) + `) FOR UPDATE`
	rows, err := s.q(ctx).QueryContext(ctx, query, idArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var tt model.TicketType
		if err := rows.Scan(&tt.ID, &tt.EventID, &tt.Name, &tt.PriceCents,
			&tt.QuantityTotal, &tt.QuantitySold, &tt.Status, &tt.CreatedAt, &tt.UpdatedAt); err != nil {
			return nil, err
		}
		out[tt.ID] = tt
	}
	return out, rows.Err()
}

// AddSold moves the sold counter by delta and writes the recomputed
// status.  The WHERE guard keeps 0 <= quantity_sold <= quantity_total
// even if a caller races the admin capacity editor; a violated guard
// means the row was concurrently changed under us, which the caller
// surfaces as contention.
func (s *Store) AddSold(ctx context.Context, ticketTypeID uint64, delta int32, status model.TicketTypeStatus) error {
	const q = `UPDATE ticket_types
	           SET quantity_sold = quantity_sold + ?, status = ?
	           WHERE id = ?
	             AND quantity_sold + ? >= 0
	             AND quantity_sold + ? <= quantity_total`
	res, err := s.q(ctx).ExecContext(ctx, q, delta, status, ticketTypeID, delta, delta)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: ticket type %d counter moved concurrently", booking.ErrTransientContention, ticketTypeID)
	}
	return nil
}

// TicketTypeAvailability returns the advisory remaining-stock view for
// every non-hidden ticket type of the event.  No locks are taken; the
// numbers may trail concurrent bookings.
func (s *Store) TicketTypeAvailability(ctx context.Context, eventID uint64) ([]booking.Availability, error) {
	const q = `SELECT id, name, price_cents, status, quantity_total - quantity_sold
	           FROM ticket_types
	           WHERE event_id = ? AND status <> ?
	           ORDER BY id`
	rows, err := s.q(ctx).QueryContext(ctx, q, eventID, model.TicketTypeHidden)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]booking.Availability, 0)
	for rows.Next() {
		var a booking.Availability
		if err := rows.Scan(&a.TicketTypeID, &a.Name, &a.PriceCents, &a.Status, &a.Remaining); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
