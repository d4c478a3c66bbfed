package booking

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/eventure/booking/internal/clock"
	"github.com/eventure/booking/internal/model"
)

// maxTxAttempts bounds how often a booking restarts after the atomic
// unit was aborted by concurrent contention.  Each restart re-runs the
// whole validation sequence against fresh state, never just the write.
const maxTxAttempts = 3

// maxCodeAttempts bounds how often ticket codes are regenerated after a
// collision with the unique index before the order is aborted.
const maxCodeAttempts = 5

// maxOrderUnits caps the total ticket units one order may request.  It
// sits far above any per-event purchase cap and keeps the quantity
// arithmetic inside the transaction out of overflow territory.
const maxOrderUnits = 1000

// Service is the booking transaction coordinator.  It validates a
// purchase request against the per-user quota, the stock counters and
// the seat map, and commits the multi-entity write as one atomic unit
// through its Store.
type Service struct {
	store Store
	clock clock.Clock
}

// NewService returns a coordinator over the given store and clock.
func NewService(store Store, clk clock.Clock) *Service {
	if store == nil || clk == nil {
		panic("nil dependency passed to booking.NewService")
	}
	return &Service{store: store, clock: clk}
}

// PlacedOrder is the result of a successful booking: the order row plus
// its tickets, codes and QR payloads included, in line-item order.
type PlacedOrder struct {
	Order   model.Order    `json:"order"`
	Tickets []model.Ticket `json:"tickets"`
}

// Allowance is the advisory quota view returned by RemainingAllowance.
type Allowance struct {
	Cap       uint32 `json:"cap"`
	Purchased uint32 `json:"already_purchased"`
	Remaining uint32 `json:"remaining"`
}

// PlaceOrder books the requested quantities for the user and returns
// the created order with its tickets.  seatIDs, when supplied, are
// assigned positionally: ticket unit i (in the flattened line-item
// order) gets seat i; units beyond the seat list stay unseated.
//
// The whole call either fully lands or fully reverts: every rejection
// (InvalidReferenceError, QuotaExceededError, InsufficientStockError,
// SeatConflictError) is raised before any write is committed.
func (s *Service) PlaceOrder(ctx context.Context, userID uint64, items []LineItem, seatIDs []uint64) (*PlacedOrder, error) {
	if len(items) == 0 {
		return nil, ErrNoLineItems
	}
	var units uint64
	for _, it := range items {
		if it.Quantity == 0 {
			return nil, ErrInvalidQuantity
		}
		units += uint64(it.Quantity)
	}
	if units > maxOrderUnits {
		return nil, ErrTooManyUnits
	}
	if uint64(len(seatIDs)) > units {
		return nil, ErrTooManySeats
	}

	var placed *PlacedOrder
	err := s.runTx(ctx, func(ctx context.Context) error {
		placed = nil
		return s.placeOrderTx(ctx, userID, items, seatIDs, &placed)
	})
	if err != nil {
		return nil, err
	}
	return placed, nil
}

// runTx executes fn inside the store's atomic unit, restarting the
// whole unit a bounded number of times when it aborts with
// ErrTransientContention.
func (s *Service) runTx(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = s.store.WithTx(ctx, fn)
		if !errors.Is(err, ErrTransientContention) {
			return err
		}
	}
	return err
}

func (s *Service) placeOrderTx(ctx context.Context, userID uint64, items []LineItem, seatIDs []uint64, out **PlacedOrder) error {
	// Resolve and lock every requested ticket type.  typeIDs keeps the
	// first-mention order so error reporting is deterministic.
	typeIDs := make([]uint64, 0, len(items))
	requested := make(map[uint64]uint32, len(items))
	for _, it := range items {
		if _, seen := requested[it.TicketTypeID]; !seen {
			typeIDs = append(typeIDs, it.TicketTypeID)
		}
		requested[it.TicketTypeID] += it.Quantity
	}
	types, err := s.store.TicketTypesForUpdate(ctx, typeIDs)
	if err != nil {
		return err
	}
	for _, id := range typeIDs {
		if _, ok := types[id]; !ok {
			return &InvalidReferenceError{Kind: "ticket_type", ID: id}
		}
	}

	// Group requested quantities by owning event and check each event's
	// per-user cap.  Events are locked in ascending ID order so that
	// concurrent multi-event orders take their locks in the same order.
	perEvent := make(map[uint64]uint32)
	for id, qty := range requested {
		perEvent[types[id].EventID] += qty
	}
	eventIDs := make([]uint64, 0, len(perEvent))
	for id := range perEvent {
		eventIDs = append(eventIDs, id)
	}
	sort.Slice(eventIDs, func(i, j int) bool { return eventIDs[i] < eventIDs[j] })

	events := make(map[uint64]model.Event, len(eventIDs))
	for _, eid := range eventIDs {
		ev, err := s.store.EventForUpdate(ctx, eid)
		if errors.Is(err, ErrNotFound) {
			return &InvalidReferenceError{Kind: "event", ID: eid}
		}
		if err != nil {
			return err
		}
		events[eid] = ev

		have, err := s.store.CountActiveTickets(ctx, userID, eid)
		if err != nil {
			return err
		}
		limit := ev.Cap()
		req := perEvent[eid]
		if uint64(have)+uint64(req) > uint64(limit) {
			var rem uint32
			if limit > have {
				rem = limit - have
			}
			return &QuotaExceededError{EventID: eid, Cap: limit, Purchased: have, Requested: req, Remaining: rem}
		}
	}

	// Stock check for every line item; the whole request is rejected on
	// the first failing type, with no partial booking of the others.
	for _, id := range typeIDs {
		tt := types[id]
		req := requested[id]
		if tt.Status != model.TicketTypeActive {
			return &InsufficientStockError{TicketTypeID: id, Requested: req}
		}
		if uint64(tt.QuantitySold)+uint64(req) > uint64(tt.QuantityTotal) {
			return &InsufficientStockError{TicketTypeID: id, Requested: req, Remaining: tt.Remaining()}
		}
	}

	// Seat checks, against the event of the first line item (orders with
	// seat selection are single-event by construction of the seat model).
	if len(seatIDs) > 0 {
		seatEvent := types[items[0].TicketTypeID].EventID
		if dups := duplicateIDs(seatIDs); len(dups) > 0 {
			return &SeatConflictError{EventID: seatEvent, SeatIDs: dups}
		}
		ev := events[seatEvent]
		if ev.RoomID == nil {
			// The event has no seat map at all.
			return &InvalidReferenceError{Kind: "seat", ID: seatIDs[0]}
		}
		seats, err := s.store.SeatsForUpdate(ctx, seatIDs)
		if err != nil {
			return err
		}
		for _, sid := range seatIDs {
			seat, ok := seats[sid]
			if !ok || !seat.IsActive || seat.RoomID != *ev.RoomID {
				return &InvalidReferenceError{Kind: "seat", ID: sid}
			}
		}
		taken, err := s.store.TakenSeats(ctx, seatEvent, seatIDs)
		if err != nil {
			return err
		}
		if len(taken) > 0 {
			return &SeatConflictError{EventID: seatEvent, SeatIDs: taken}
		}
	}

	// All checks passed; perform the multi-entity write.
	now := s.clock.Now()
	var total int64
	for _, it := range items {
		total += types[it.TicketTypeID].PriceCents * int64(it.Quantity)
	}
	order := model.Order{
		Reference:  uuid.NewString(),
		UserID:     userID,
		Status:     model.OrderPaid,
		TotalCents: total,
		CreatedAt:  now,
	}
	if err := s.store.CreateOrder(ctx, &order); err != nil {
		return err
	}

	tickets, err := s.createTickets(ctx, order, items, types, seatIDs, now)
	if err != nil {
		return err
	}

	for _, id := range typeIDs {
		tt := types[id]
		req := requested[id]
		status := tt.Status
		if uint64(tt.QuantitySold)+uint64(req) == uint64(tt.QuantityTotal) {
			status = model.TicketTypeSoldOut
		}
		if err := s.store.AddSold(ctx, id, int32(req), status); err != nil {
			return err
		}
	}

	*out = &PlacedOrder{Order: order, Tickets: tickets}
	return nil
}

// createTickets builds one ticket per requested unit, issues codes and
// QR payloads, and inserts them.  A collision against the code's unique
// index regenerates every code and retries, bounded by maxCodeAttempts.
func (s *Service) createTickets(ctx context.Context, order model.Order, items []LineItem, types map[uint64]model.TicketType, seatIDs []uint64, now time.Time) ([]model.Ticket, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		tickets := make([]model.Ticket, 0)
		unit := 0
		for _, it := range items {
			tt := types[it.TicketTypeID]
			for i := uint32(0); i < it.Quantity; i++ {
				code, err := GenerateCode()
				if err != nil {
					return nil, err
				}
				qr, err := EncodeQR(code)
				if err != nil {
					return nil, err
				}
				t := model.Ticket{
					Code:         code,
					Status:       model.TicketValid,
					PriceCents:   tt.PriceCents,
					UserID:       order.UserID,
					OrderID:      order.ID,
					EventID:      tt.EventID,
					TicketTypeID: tt.ID,
					QRPayload:    qr,
					CreatedAt:    now,
				}
				if unit < len(seatIDs) {
					sid := seatIDs[unit]
					t.SeatID = &sid
				}
				tickets = append(tickets, t)
				unit++
			}
		}
		err := s.store.CreateTickets(ctx, tickets)
		if err == nil {
			return tickets, nil
		}
		if !errors.Is(err, ErrDuplicateCode) {
			return nil, err
		}
	}
	return nil, ErrCodeIssuanceExhausted
}

// RemainingAllowance reports how many more tickets the user may buy for
// the event.  It takes no locks and may lag behind concurrent bookings;
// only PlaceOrder's own check is authoritative.
func (s *Service) RemainingAllowance(ctx context.Context, userID, eventID uint64) (Allowance, error) {
	ev, err := s.store.Event(ctx, eventID)
	if errors.Is(err, ErrNotFound) {
		return Allowance{}, &InvalidReferenceError{Kind: "event", ID: eventID}
	}
	if err != nil {
		return Allowance{}, err
	}
	have, err := s.store.CountActiveTickets(ctx, userID, eventID)
	if err != nil {
		return Allowance{}, err
	}
	limit := ev.Cap()
	var rem uint32
	if limit > have {
		rem = limit - have
	}
	return Allowance{Cap: limit, Purchased: have, Remaining: rem}, nil
}

// EventAvailability returns the advisory remaining-stock view for the
// event's ticket types.
func (s *Service) EventAvailability(ctx context.Context, eventID uint64) ([]Availability, error) {
	if _, err := s.store.Event(ctx, eventID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &InvalidReferenceError{Kind: "event", ID: eventID}
		}
		return nil, err
	}
	return s.store.TicketTypeAvailability(ctx, eventID)
}

// GetOrder returns one of the user's orders with its tickets.  Orders
// of other users are reported as not found rather than forbidden, so
// order IDs cannot be probed.
func (s *Service) GetOrder(ctx context.Context, userID, orderID uint64) (*PlacedOrder, error) {
	o, err := s.store.OrderByID(ctx, orderID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrOrderNotFound
	}
	tickets, err := s.store.TicketsByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &PlacedOrder{Order: o, Tickets: tickets}, nil
}

// ListOrders returns all of the user's orders with their tickets,
// newest first.
func (s *Service) ListOrders(ctx context.Context, userID uint64) ([]PlacedOrder, error) {
	orders, err := s.store.OrdersByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]PlacedOrder, 0, len(orders))
	for _, o := range orders {
		tickets, err := s.store.TicketsByOrder(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, PlacedOrder{Order: o, Tickets: tickets})
	}
	return out, nil
}

// CancelOrder cancels one of the user's orders: its valid tickets
// become CANCELLED, the sold counters move back down and SOLD_OUT types
// reopen.  Orders with a checked-in ticket cannot be cancelled.
func (s *Service) CancelOrder(ctx context.Context, userID, orderID uint64) error {
	return s.runTx(ctx, func(ctx context.Context) error {
		return s.cancelOrderTx(ctx, userID, orderID)
	})
}

func (s *Service) cancelOrderTx(ctx context.Context, userID, orderID uint64) error {
	o, err := s.store.OrderForUpdate(ctx, orderID)
	if errors.Is(err, ErrNotFound) {
		return ErrOrderNotFound
	}
	if err != nil {
		return err
	}
	if o.UserID != userID {
		return ErrOrderNotFound
	}
	if o.Status != model.OrderPaid {
		return ErrOrderNotCancellable
	}

	tickets, err := s.store.TicketsByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	toRelease := make(map[uint64]uint32)
	for _, t := range tickets {
		if t.Status == model.TicketUsed {
			return ErrOrderNotCancellable
		}
		if t.Status == model.TicketValid {
			toRelease[t.TicketTypeID]++
		}
	}

	typeIDs := make([]uint64, 0, len(toRelease))
	for id := range toRelease {
		typeIDs = append(typeIDs, id)
	}
	sort.Slice(typeIDs, func(i, j int) bool { return typeIDs[i] < typeIDs[j] })
	types, err := s.store.TicketTypesForUpdate(ctx, typeIDs)
	if err != nil {
		return err
	}
	for _, id := range typeIDs {
		tt, ok := types[id]
		if !ok {
			return &InvalidReferenceError{Kind: "ticket_type", ID: id}
		}
		n := toRelease[id]
		status := tt.Status
		if tt.Status == model.TicketTypeSoldOut && tt.QuantitySold-n < tt.QuantityTotal {
			status = model.TicketTypeActive
		}
		if err := s.store.AddSold(ctx, id, -int32(n), status); err != nil {
			return err
		}
	}

	for _, t := range tickets {
		if t.Status != model.TicketValid {
			continue
		}
		if err := s.store.UpdateTicketStatus(ctx, t.ID, model.TicketValid, model.TicketCancelled, nil); err != nil {
			return err
		}
	}
	return s.store.UpdateOrderStatus(ctx, orderID, model.OrderCancelled)
}

// RedeemTicket checks a ticket in by its code: VALID becomes USED with
// a used-at timestamp.  Used and cancelled tickets are rejected with
// their own errors so the scanner can show why entry was refused.
func (s *Service) RedeemTicket(ctx context.Context, code string) (model.Ticket, error) {
	var out model.Ticket
	err := s.runTx(ctx, func(ctx context.Context) error {
		t, err := s.store.TicketByCodeForUpdate(ctx, code)
		if errors.Is(err, ErrNotFound) {
			return ErrTicketNotFound
		}
		if err != nil {
			return err
		}
		switch t.Status {
		case model.TicketUsed:
			return ErrTicketUsed
		case model.TicketCancelled:
			return ErrTicketCancelled
		}
		now := s.clock.Now()
		if err := s.store.UpdateTicketStatus(ctx, t.ID, model.TicketValid, model.TicketUsed, &now); err != nil {
			return err
		}
		t.Status = model.TicketUsed
		t.UsedAt = &now
		out = t
		return nil
	})
	return out, err
}

// duplicateIDs returns the IDs that appear more than once, each once.
func duplicateIDs(ids []uint64) []uint64 {
	seen := make(map[uint64]int, len(ids))
	var dups []uint64
	for _, id := range ids {
		seen[id]++
		if seen[id] == 2 {
			dups = append(dups, id)
		}
	}
	return dups
}
