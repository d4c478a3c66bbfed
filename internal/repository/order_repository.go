package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/eventure/booking/internal/booking"
	"github.com/eventure/booking/internal/model"
)

const orderColumns = `id, reference, user_id, status, total_cents, created_at`

func scanOrder(row *sql.Row) (model.Order, error) {
	var o model.Order
	err := row.Scan(&o.ID, &o.Reference, &o.UserID, &o.Status, &o.TotalCents, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, booking.ErrNotFound
	}
	if err != nil {
		return model.Order{}, err
	}
	return o, nil
}

// CreateOrder inserts the order row and populates its generated ID.
func (s *Store) CreateOrder(ctx context.Context, o *model.Order) error {
	const q = `INSERT INTO orders (reference, user_id, status, total_cents, created_at) VALUES (?, ?, ?, ?, ?)`
	res, err := s.q(ctx).ExecContext(ctx, q, o.Reference, o.UserID, o.Status, o.TotalCents, o.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	o.ID = uint64(id)
	return nil
}

// OrderByID loads an order without locking.
func (s *Store) OrderByID(ctx context.Context, id uint64) (model.Order, error) {
	const q = `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`
	return scanOrder(s.q(ctx).QueryRowContext(ctx, q, id))
}

// OrderForUpdate loads an order and locks its row so that cancellation
// and any concurrent mutation of the same order serialize.
func (s *Store) OrderForUpdate(ctx context.Context, id uint64) (model.Order, error) {
	const q = `SELECT ` + orderColumns + ` FROM orders WHERE id = ? FOR UPDATE`
	return scanOrder(s.q(ctx).QueryRowContext(ctx, q, id))
}

// OrdersByUser lists the user's orders, newest first.
func (s *Store) OrdersByUser(ctx context.Context, userID uint64) ([]model.Order, error) {
	const q = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = ? ORDER BY created_at DESC, id DESC`
	rows, err := s.q(ctx).QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Order, 0)
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.ID, &o.Reference, &o.UserID, &o.Status, &o.TotalCents, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// UpdateOrderStatus moves an order to the given status.
func (s *Store) UpdateOrderStatus(ctx context.Context, id uint64, status model.OrderStatus) error {
	const q = `UPDATE orders SET status = ? WHERE id = ?`
	res, err := s.q(ctx).ExecContext(ctx, q, status, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return booking.ErrNotFound
	}
	return nil
}
