package model

import "time"

// OrderStatus enumerates the states of an order.  Orders are created
// directly as PAID (the platform auto-settles; there is no payment
// gateway step) and only the cancellation flow moves them to CANCELLED.
type OrderStatus string

const (
	OrderPaid      OrderStatus = "PAID"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Order groups the tickets bought in one booking transaction.  It is
// written exactly once by that transaction; the cancellation flow is the
// only later mutation.
//
// Fields:
//  ID         – primary key identifier.
//  Reference  – opaque UUID handed to collaborators (emails, support).
//  UserID     – buyer.
//  Status     – PAID or CANCELLED.
//  TotalCents – sum of the ticket prices at purchase time.
//  CreatedAt  – purchase timestamp.
type Order struct {
	ID         uint64      // orders.id
	Reference  string      // orders.reference
	UserID     uint64      // orders.user_id
	Status     OrderStatus // orders.status
	TotalCents int64       // orders.total_cents
	CreatedAt  time.Time   // orders.created_at
}
