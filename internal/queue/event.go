// Package queue defines message payloads exchanged over the message broker.
package queue

// OrderPlacedEvent is published after a booking transaction commits.
// It contains enough information for downstream consumers to log,
// notify or trigger analytics without querying the primary database.
type OrderPlacedEvent struct {
	OrderID     uint64   `json:"order_id"`
	Reference   string   `json:"reference"`
	UserID      uint64   `json:"user_id"`
	TotalCents  int64    `json:"total_cents"`
	TicketCount int      `json:"ticket_count"`
	Codes       []string `json:"codes"`
	PlacedAt    string   `json:"placed_at"`
}
