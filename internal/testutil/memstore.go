// Package testutil provides an in-memory booking.Store so the booking
// service can be exercised without a database.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/eventure/booking/internal/booking"
	"github.com/eventure/booking/internal/model"
)

type txKey struct{}

// MemStore implements booking.Store over plain maps.  WithTx holds one
// mutex for the whole unit, which gives the same serialization the row
// locks give in MySQL, and rolls the maps back when fn fails, which
// gives the same all-or-nothing commit.
//
// FailTxTimes and DuplicateCodeTimes inject faults: the next N WithTx
// calls abort with ErrTransientContention, and the next N CreateTickets
// calls fail with ErrDuplicateCode.
type MemStore struct {
	mu sync.Mutex

	Events      map[uint64]model.Event
	Seats       map[uint64]model.Seat
	TicketTypes map[uint64]model.TicketType
	Orders      map[uint64]model.Order
	Tickets     map[uint64]model.Ticket

	nextOrderID  uint64
	nextTicketID uint64

	FailTxTimes        int
	DuplicateCodeTimes int
}

var _ booking.Store = (*MemStore)(nil)

// NewMemStore returns an empty store; tests seed the maps directly.
func NewMemStore() *MemStore {
	return &MemStore{
		Events:      make(map[uint64]model.Event),
		Seats:       make(map[uint64]model.Seat),
		TicketTypes: make(map[uint64]model.TicketType),
		Orders:      make(map[uint64]model.Order),
		Tickets:     make(map[uint64]model.Ticket),
	}
}

// lock takes the mutex unless the context already runs inside WithTx,
// which holds it for the whole unit.
func (m *MemStore) lock(ctx context.Context) func() {
	if ctx.Value(txKey{}) != nil {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *MemStore) snapshot() (map[uint64]model.TicketType, map[uint64]model.Order, map[uint64]model.Ticket, uint64, uint64) {
	tt := make(map[uint64]model.TicketType, len(m.TicketTypes))
	for k, v := range m.TicketTypes {
		tt[k] = v
	}
	os := make(map[uint64]model.Order, len(m.Orders))
	for k, v := range m.Orders {
		os[k] = v
	}
	ts := make(map[uint64]model.Ticket, len(m.Tickets))
	for k, v := range m.Tickets {
		ts[k] = v
	}
	return tt, os, ts, m.nextOrderID, m.nextTicketID
}

// WithTx implements booking.Store.
func (m *MemStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailTxTimes > 0 {
		m.FailTxTimes--
		return fmt.Errorf("%w: injected", booking.ErrTransientContention)
	}

	tt, os, ts, no, nt := m.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, struct{}{})); err != nil {
		m.TicketTypes, m.Orders, m.Tickets = tt, os, ts
		m.nextOrderID, m.nextTicketID = no, nt
		return err
	}
	return nil
}

// Event implements booking.Store.
func (m *MemStore) Event(ctx context.Context, id uint64) (model.Event, error) {
	defer m.lock(ctx)()
	ev, ok := m.Events[id]
	if !ok {
		return model.Event{}, booking.ErrNotFound
	}
	return ev, nil
}

// EventForUpdate implements booking.Store.
func (m *MemStore) EventForUpdate(ctx context.Context, id uint64) (model.Event, error) {
	return m.Event(ctx, id)
}

// TicketTypesForUpdate implements booking.Store.
func (m *MemStore) TicketTypesForUpdate(ctx context.Context, ids []uint64) (map[uint64]model.TicketType, error) {
	defer m.lock(ctx)()
	out := make(map[uint64]model.TicketType, len(ids))
	for _, id := range ids {
		if tt, ok := m.TicketTypes[id]; ok {
			out[id] = tt
		}
	}
	return out, nil
}

// SeatsForUpdate implements booking.Store.
func (m *MemStore) SeatsForUpdate(ctx context.Context, ids []uint64) (map[uint64]model.Seat, error) {
	defer m.lock(ctx)()
	out := make(map[uint64]model.Seat, len(ids))
	for _, id := range ids {
		if s, ok := m.Seats[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

// TakenSeats implements booking.Store.
func (m *MemStore) TakenSeats(ctx context.Context, eventID uint64, seatIDs []uint64) ([]uint64, error) {
	defer m.lock(ctx)()
	want := make(map[uint64]bool, len(seatIDs))
	for _, id := range seatIDs {
		want[id] = true
	}
	seen := make(map[uint64]bool)
	var taken []uint64
	for _, t := range m.Tickets {
		if t.EventID != eventID || t.Status == model.TicketCancelled || t.SeatID == nil {
			continue
		}
		if want[*t.SeatID] && !seen[*t.SeatID] {
			seen[*t.SeatID] = true
			taken = append(taken, *t.SeatID)
		}
	}
	sort.Slice(taken, func(i, j int) bool { return taken[i] < taken[j] })
	return taken, nil
}

// CountActiveTickets implements booking.Store.
func (m *MemStore) CountActiveTickets(ctx context.Context, userID, eventID uint64) (uint32, error) {
	defer m.lock(ctx)()
	var n uint32
	for _, t := range m.Tickets {
		if t.UserID == userID && t.EventID == eventID && t.Status != model.TicketCancelled {
			n++
		}
	}
	return n, nil
}

// AddSold implements booking.Store.
func (m *MemStore) AddSold(ctx context.Context, ticketTypeID uint64, delta int32, status model.TicketTypeStatus) error {
	defer m.lock(ctx)()
	tt, ok := m.TicketTypes[ticketTypeID]
	if !ok {
		return booking.ErrNotFound
	}
	next := int64(tt.QuantitySold) + int64(delta)
	if next < 0 || next > int64(tt.QuantityTotal) {
		return fmt.Errorf("%w: ticket type %d counter moved concurrently", booking.ErrTransientContention, ticketTypeID)
	}
	tt.QuantitySold = uint32(next)
	tt.Status = status
	m.TicketTypes[ticketTypeID] = tt
	return nil
}

// CreateOrder implements booking.Store.
func (m *MemStore) CreateOrder(ctx context.Context, o *model.Order) error {
	defer m.lock(ctx)()
	m.nextOrderID++
	o.ID = m.nextOrderID
	m.Orders[o.ID] = *o
	return nil
}

// CreateTickets implements booking.Store.
func (m *MemStore) CreateTickets(ctx context.Context, ts []model.Ticket) error {
	defer m.lock(ctx)()
	if m.DuplicateCodeTimes > 0 {
		m.DuplicateCodeTimes--
		return booking.ErrDuplicateCode
	}
	codes := make(map[string]bool, len(m.Tickets))
	for _, t := range m.Tickets {
		codes[t.Code] = true
	}
	for i := range ts {
		if codes[ts[i].Code] {
			return booking.ErrDuplicateCode
		}
		codes[ts[i].Code] = true
	}
	for i := range ts {
		m.nextTicketID++
		ts[i].ID = m.nextTicketID
		m.Tickets[ts[i].ID] = ts[i]
	}
	return nil
}

// OrderByID implements booking.Store.
func (m *MemStore) OrderByID(ctx context.Context, id uint64) (model.Order, error) {
	defer m.lock(ctx)()
	o, ok := m.Orders[id]
	if !ok {
		return model.Order{}, booking.ErrNotFound
	}
	return o, nil
}

// OrderForUpdate implements booking.Store.
func (m *MemStore) OrderForUpdate(ctx context.Context, id uint64) (model.Order, error) {
	return m.OrderByID(ctx, id)
}

// OrdersByUser implements booking.Store.
func (m *MemStore) OrdersByUser(ctx context.Context, userID uint64) ([]model.Order, error) {
	defer m.lock(ctx)()
	out := make([]model.Order, 0)
	for _, o := range m.Orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// TicketsByOrder implements booking.Store.
func (m *MemStore) TicketsByOrder(ctx context.Context, orderID uint64) ([]model.Ticket, error) {
	defer m.lock(ctx)()
	out := make([]model.Ticket, 0)
	for _, t := range m.Tickets {
		if t.OrderID == orderID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// TicketByCodeForUpdate implements booking.Store.
func (m *MemStore) TicketByCodeForUpdate(ctx context.Context, code string) (model.Ticket, error) {
	defer m.lock(ctx)()
	for _, t := range m.Tickets {
		if t.Code == code {
			return t, nil
		}
	}
	return model.Ticket{}, booking.ErrNotFound
}

// UpdateTicketStatus implements booking.Store.
func (m *MemStore) UpdateTicketStatus(ctx context.Context, id uint64, from, to model.TicketStatus, usedAt *time.Time) error {
	defer m.lock(ctx)()
	t, ok := m.Tickets[id]
	if !ok {
		return booking.ErrNotFound
	}
	if t.Status != from {
		return fmt.Errorf("%w: ticket %d left status %s concurrently", booking.ErrTransientContention, id, from)
	}
	t.Status = to
	t.UsedAt = usedAt
	m.Tickets[id] = t
	return nil
}

// UpdateOrderStatus implements booking.Store.
func (m *MemStore) UpdateOrderStatus(ctx context.Context, id uint64, status model.OrderStatus) error {
	defer m.lock(ctx)()
	o, ok := m.Orders[id]
	if !ok {
		return booking.ErrNotFound
	}
	o.Status = status
	m.Orders[id] = o
	return nil
}

// TicketTypeAvailability implements booking.Store.
func (m *MemStore) TicketTypeAvailability(ctx context.Context, eventID uint64) ([]booking.Availability, error) {
	defer m.lock(ctx)()
	out := make([]booking.Availability, 0)
	for _, tt := range m.TicketTypes {
		if tt.EventID != eventID || tt.Status == model.TicketTypeHidden {
			continue
		}
		out = append(out, booking.Availability{
			TicketTypeID: tt.ID,
			Name:         tt.Name,
			PriceCents:   tt.PriceCents,
			Status:       tt.Status,
			Remaining:    tt.Remaining(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TicketTypeID < out[j].TicketTypeID })
	return out, nil
}
