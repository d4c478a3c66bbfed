package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eventure/booking/internal/booking"
	"github.com/eventure/booking/internal/model"
)

const ticketColumns = `id, code, status, price_cents, seat_id, user_id, order_id, event_id, ticket_type_id, qr_payload, created_at, used_at`

// CreateTickets inserts every ticket of an order, populating generated
// IDs.  Rows are inserted one by one so the generated ID of each unit
// is known; a duplicate code anywhere in the batch aborts with
// booking.ErrDuplicateCode and the coordinator reissues all codes.
func (s *Store) CreateTickets(ctx context.Context, ts []model.Ticket) error {
	const q = `INSERT INTO tickets (code, status, price_cents, seat_id, user_id, order_id, event_id, ticket_type_id, qr_payload, created_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for i := range ts {
		t := &ts[i]
		var seatID interface{}
		if t.SeatID != nil {
			seatID = *t.SeatID
		}
		res, err := s.q(ctx).ExecContext(ctx, q,
			t.Code, t.Status, t.PriceCents, seatID, t.UserID, t.OrderID,
			t.EventID, t.TicketTypeID, t.QRPayload, t.CreatedAt)
		if err != nil {
			if isDuplicateEntry(err) {
				// Remove the rows already inserted for this batch so the
				// reissue attempt starts from a clean order.
				if _, delErr := s.q(ctx).ExecContext(ctx, `DELETE FROM tickets WHERE order_id = ?`, t.OrderID); delErr != nil {
					return delErr
				}
				return booking.ErrDuplicateCode
			}
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		t.ID = uint64(id)
	}
	return nil
}

func scanTicket(scan func(dest ...interface{}) error) (model.Ticket, error) {
	var t model.Ticket
	var seatID sql.NullInt64
	var usedAt sql.NullTime
	err := scan(&t.ID, &t.Code, &t.Status, &t.PriceCents, &seatID, &t.UserID,
		&t.OrderID, &t.EventID, &t.TicketTypeID, &t.QRPayload, &t.CreatedAt, &usedAt)
	if err != nil {
		return model.Ticket{}, err
	}
	if seatID.Valid {
		sid := uint64(seatID.Int64)
		t.SeatID = &sid
	}
	if usedAt.Valid {
		ua := usedAt.Time
		t.UsedAt = &ua
	}
	return t, nil
}

// TicketsByOrder lists an order's tickets in creation order.
func (s *Store) TicketsByOrder(ctx context.Context, orderID uint64) ([]model.Ticket, error) {
	const q = `SELECT ` + ticketColumns + ` FROM tickets WHERE order_id = ? ORDER BY id`
	rows, err := s.q(ctx).QueryContext(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TicketByCodeForUpdate loads a ticket by code and locks its row, so
// two concurrent check-ins of the same code serialize and the second
// one sees status USED.
func (s *Store) TicketByCodeForUpdate(ctx context.Context, code string) (model.Ticket, error) {
	const q = `SELECT ` + ticketColumns + ` FROM tickets WHERE code = ? FOR UPDATE`
	t, err := scanTicket(s.q(ctx).QueryRowContext(ctx, q, code).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Ticket{}, booking.ErrNotFound
	}
	if err != nil {
		return model.Ticket{}, err
	}
	return t, nil
}

// CountActiveTickets returns the user's non-cancelled ticket count for
// the event; the number the per-event cap is enforced against.
func (s *Store) CountActiveTickets(ctx context.Context, userID, eventID uint64) (uint32, error) {
	const q = `SELECT COUNT(*) FROM tickets WHERE user_id = ? AND event_id = ? AND status <> ?`
	var n uint32
	err := s.q(ctx).QueryRowContext(ctx, q, userID, eventID, model.TicketCancelled).Scan(&n)
	return n, err
}

// UpdateTicketStatus moves a ticket from from to to, stamping used_at
// on check-in transitions.  The status guard in the WHERE clause keeps
// a caller whose read predates a concurrent commit from overwriting
// that commit; USED and CANCELLED stay terminal.
func (s *Store) UpdateTicketStatus(ctx context.Context, id uint64, from, to model.TicketStatus, usedAt *time.Time) error {
	const q = `UPDATE tickets SET status = ?, used_at = ? WHERE id = ? AND status = ?`
	var ua interface{}
	if usedAt != nil {
		ua = *usedAt
	}
	res, err := s.q(ctx).ExecContext(ctx, q, to, ua, id, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: ticket %d left status %s concurrently", booking.ErrTransientContention, id, from)
	}
	return nil
}
