package booking_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/eventure/booking/internal/booking"
	"github.com/eventure/booking/internal/clock"
	"github.com/eventure/booking/internal/model"
	"github.com/eventure/booking/internal/testutil"
)

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newService(st *testutil.MemStore) *booking.Service {
	return booking.NewService(st, clock.NewFixed(testTime))
}

func seedEvent(st *testutil.MemStore, id uint64, roomID *uint64, cap uint32) {
	st.Events[id] = model.Event{ID: id, RoomID: roomID, Name: "event", MaxTicketsPerUser: cap}
}

func seedType(st *testutil.MemStore, id, eventID uint64, price int64, total, sold uint32, status model.TicketTypeStatus) {
	st.TicketTypes[id] = model.TicketType{
		ID: id, EventID: eventID, Name: "tier",
		PriceCents: price, QuantityTotal: total, QuantitySold: sold, Status: status,
	}
}

func seedSeat(st *testutil.MemStore, id, roomID uint64, active bool) {
	st.Seats[id] = model.Seat{ID: id, RoomID: roomID, RowLabel: "A", SeatNumber: uint32(id), IsActive: active}
}

func TestPlaceOrderValidation(t *testing.T) {
	st := testutil.NewMemStore()
	seedEvent(st, 1, nil, 0)
	seedType(st, 1, 1, 1000, 10, 0, model.TicketTypeActive)
	svc := newService(st)
	ctx := context.Background()

	t.Run("no line items", func(t *testing.T) {
		if _, err := svc.PlaceOrder(ctx, 1, nil, nil); !errors.Is(err, booking.ErrNoLineItems) {
			t.Fatalf("got %v, want ErrNoLineItems", err)
		}
	})
	t.Run("zero quantity", func(t *testing.T) {
		items := []booking.LineItem{{TicketTypeID: 1, Quantity: 0}}
		if _, err := svc.PlaceOrder(ctx, 1, items, nil); !errors.Is(err, booking.ErrInvalidQuantity) {
			t.Fatalf("got %v, want ErrInvalidQuantity", err)
		}
	})
	t.Run("more seats than units", func(t *testing.T) {
		items := []booking.LineItem{{TicketTypeID: 1, Quantity: 1}}
		if _, err := svc.PlaceOrder(ctx, 1, items, []uint64{1, 2}); !errors.Is(err, booking.ErrTooManySeats) {
			t.Fatalf("got %v, want ErrTooManySeats", err)
		}
	})
}

func TestPlaceOrderQuantityBound(t *testing.T) {
	st := testutil.NewMemStore()
	seedEvent(st, 1, nil, 3)
	seedType(st, 1, 1, 1000, 10, 0, model.TicketTypeActive)
	svc := newService(st)
	ctx := context.Background()

	if _, err := svc.PlaceOrder(ctx, 5, []booking.LineItem{{TicketTypeID: 1, Quantity: 1}}, nil); err != nil {
		t.Fatalf("first order: %v", err)
	}

	t.Run("single huge quantity", func(t *testing.T) {
		// With one ticket already held, a sum that wraps uint32 would land
		// back under the cap; the unit bound has to reject it first.
		items := []booking.LineItem{{TicketTypeID: 1, Quantity: math.MaxUint32}}
		if _, err := svc.PlaceOrder(ctx, 5, items, nil); !errors.Is(err, booking.ErrTooManyUnits) {
			t.Fatalf("got %v, want ErrTooManyUnits", err)
		}
	})
	t.Run("line items summing past uint32", func(t *testing.T) {
		items := []booking.LineItem{
			{TicketTypeID: 1, Quantity: math.MaxUint32/2 + 1},
			{TicketTypeID: 1, Quantity: math.MaxUint32/2 + 1},
		}
		if _, err := svc.PlaceOrder(ctx, 5, items, nil); !errors.Is(err, booking.ErrTooManyUnits) {
			t.Fatalf("got %v, want ErrTooManyUnits", err)
		}
	})

	if len(st.Orders) != 1 || len(st.Tickets) != 1 {
		t.Error("rejected orders left writes behind")
	}
}

func TestPlaceOrderSuccess(t *testing.T) {
	st := testutil.NewMemStore()
	room := uint64(7)
	seedEvent(st, 1, &room, 0)
	seedType(st, 1, 1, 2500, 10, 0, model.TicketTypeActive)
	seedType(st, 2, 1, 5000, 5, 0, model.TicketTypeActive)
	seedSeat(st, 11, room, true)
	seedSeat(st, 12, room, true)
	svc := newService(st)

	items := []booking.LineItem{
		{TicketTypeID: 1, Quantity: 2},
		{TicketTypeID: 2, Quantity: 1},
	}
	placed, err := svc.PlaceOrder(context.Background(), 42, items, []uint64{11, 12})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	if placed.Order.Status != model.OrderPaid {
		t.Errorf("order status = %s, want PAID", placed.Order.Status)
	}
	if placed.Order.Reference == "" {
		t.Error("order reference is empty")
	}
	if want := int64(2*2500 + 5000); placed.Order.TotalCents != want {
		t.Errorf("total = %d, want %d", placed.Order.TotalCents, want)
	}
	if len(placed.Tickets) != 3 {
		t.Fatalf("got %d tickets, want 3", len(placed.Tickets))
	}

	codes := make(map[string]bool)
	for i, tk := range placed.Tickets {
		if len(tk.Code) != 10 {
			t.Errorf("ticket %d code %q: want length 10", i, tk.Code)
		}
		if codes[tk.Code] {
			t.Errorf("duplicate code %q", tk.Code)
		}
		codes[tk.Code] = true
		if tk.QRPayload == "" {
			t.Errorf("ticket %d has no QR payload", i)
		}
		if tk.Status != model.TicketValid {
			t.Errorf("ticket %d status = %s, want VALID", i, tk.Status)
		}
	}

	// Seats bind positionally; the third unit stays unseated.
	if placed.Tickets[0].SeatID == nil || *placed.Tickets[0].SeatID != 11 {
		t.Errorf("ticket 0 seat = %v, want 11", placed.Tickets[0].SeatID)
	}
	if placed.Tickets[1].SeatID == nil || *placed.Tickets[1].SeatID != 12 {
		t.Errorf("ticket 1 seat = %v, want 12", placed.Tickets[1].SeatID)
	}
	if placed.Tickets[2].SeatID != nil {
		t.Errorf("ticket 2 seat = %v, want unseated", placed.Tickets[2].SeatID)
	}

	// Prices are snapshots of the type price.
	if placed.Tickets[0].PriceCents != 2500 || placed.Tickets[2].PriceCents != 5000 {
		t.Errorf("ticket prices = %d, %d; want 2500, 5000",
			placed.Tickets[0].PriceCents, placed.Tickets[2].PriceCents)
	}

	if got := st.TicketTypes[1].QuantitySold; got != 2 {
		t.Errorf("type 1 sold = %d, want 2", got)
	}
	if got := st.TicketTypes[2].QuantitySold; got != 1 {
		t.Errorf("type 2 sold = %d, want 1", got)
	}
}

func TestPlaceOrderSellsOutLastUnits(t *testing.T) {
	st := testutil.NewMemStore()
	seedEvent(st, 1, nil, 0)
	seedType(st, 1, 1, 1000, 3, 1, model.TicketTypeActive)
	svc := newService(st)

	items := []booking.LineItem{{TicketTypeID: 1, Quantity: 2}}
	if _, err := svc.PlaceOrder(context.Background(), 1, items, nil); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	tt := st.TicketTypes[1]
	if tt.QuantitySold != 3 || tt.Status != model.TicketTypeSoldOut {
		t.Errorf("type = sold %d status %s, want sold 3 status SOLD_OUT", tt.QuantitySold, tt.Status)
	}
}

func TestPlaceOrderInvalidReferences(t *testing.T) {
	st := testutil.NewMemStore()
	room := uint64(7)
	seedEvent(st, 1, &room, 0)
	seedEvent(st, 2, nil, 0)
	seedType(st, 1, 1, 1000, 10, 0, model.TicketTypeActive)
	seedType(st, 2, 2, 1000, 10, 0, model.TicketTypeActive)
	seedSeat(st, 11, room, true)
	seedSeat(st, 12, room, false)
	seedSeat(st, 13, 99, true)
	svc := newService(st)
	ctx := context.Background()

	cases := []struct {
		name  string
		items []booking.LineItem
		seats []uint64
		kind  string
	}{
		{"unknown ticket type", []booking.LineItem{{TicketTypeID: 77, Quantity: 1}}, nil, "ticket_type"},
		{"unknown seat", []booking.LineItem{{TicketTypeID: 1, Quantity: 1}}, []uint64{99}, "seat"},
		{"inactive seat", []booking.LineItem{{TicketTypeID: 1, Quantity: 1}}, []uint64{12}, "seat"},
		{"seat of another room", []booking.LineItem{{TicketTypeID: 1, Quantity: 1}}, []uint64{13}, "seat"},
		{"seat for roomless event", []booking.LineItem{{TicketTypeID: 2, Quantity: 1}}, []uint64{11}, "seat"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.PlaceOrder(ctx, 1, tc.items, tc.seats)
			var refErr *booking.InvalidReferenceError
			if !errors.As(err, &refErr) {
				t.Fatalf("got %v, want InvalidReferenceError", err)
			}
			if refErr.Kind != tc.kind {
				t.Errorf("kind = %s, want %s", refErr.Kind, tc.kind)
			}
			if len(st.Orders) != 0 || len(st.Tickets) != 0 {
				t.Error("rejected order left writes behind")
			}
		})
	}
}

func TestQuotaExceeded(t *testing.T) {
	st := testutil.NewMemStore()
	seedEvent(st, 1, nil, 3)
	seedType(st, 1, 1, 1000, 100, 0, model.TicketTypeActive)
	svc := newService(st)
	ctx := context.Background()

	// The user already holds 2 of the 3 allowed tickets.
	items := []booking.LineItem{{TicketTypeID: 1, Quantity: 2}}
	if _, err := svc.PlaceOrder(ctx, 5, items, nil); err != nil {
		t.Fatalf("first order: %v", err)
	}

	_, err := svc.PlaceOrder(ctx, 5, items, nil)
	var quotaErr *booking.QuotaExceededError
	if !errors.As(err, &quotaErr) {
		t.Fatalf("got %v, want QuotaExceededError", err)
	}
	if quotaErr.Cap != 3 || quotaErr.Purchased != 2 || quotaErr.Requested != 2 || quotaErr.Remaining != 1 {
		t.Errorf("quota error = %+v, want cap 3 purchased 2 requested 2 remaining 1", quotaErr)
	}
	if len(st.Orders) != 1 {
		t.Errorf("got %d orders, want only the first", len(st.Orders))
	}
}

func TestQuotaCountsAcrossTicketTypes(t *testing.T) {
	st := testutil.NewMemStore()
	seedEvent(st, 1, nil, 3)
	seedType(st, 1, 1, 1000, 100, 0, model.TicketTypeActive)
	seedType(st, 2, 1, 2000, 100, 0, model.TicketTypeActive)
	svc := newService(st)
	ctx := context.Background()

	if _, err := svc.PlaceOrder(ctx, 5, []booking.LineItem{{TicketTypeID: 1, Quantity: 2}}, nil); err != nil {
		t.Fatalf("first order: %v", err)
	}
	// A different type of the same event still counts against the cap.
	_, err := svc.PlaceOrder(ctx, 5, []booking.LineItem{{TicketTypeID: 2, Quantity: 2}}, nil)
	var quotaErr *booking.QuotaExceededError
	if !errors.As(err, &quotaErr) {
		t.Fatalf("got %v, want QuotaExceededError", err)
	}
}

func TestInsufficientStock(t *testing.T) {
	st := testutil.NewMemStore()
	seedEvent(st, 1, nil, 0)
	seedType(st, 1, 1, 1000, 10, 8, model.TicketTypeActive)
	seedType(st, 2, 1, 1000, 10, 0, model.TicketTypeHidden)
	svc := newService(st)
	ctx := context.Background()

	t.Run("not enough remaining", func(t *testing.T) {
		_, err := svc.PlaceOrder(ctx, 1, []booking.LineItem{{TicketTypeID: 1, Quantity: 3}}, nil)
		var stockErr *booking.InsufficientStockError
		if !errors.As(err, &stockErr) {
			t.Fatalf("got %v, want InsufficientStockError", err)
		}
		if stockErr.Remaining != 2 {
			t.Errorf("remaining = %d, want 2", stockErr.Remaining)
		}
	})
	t.Run("type not on sale", func(t *testing.T) {
		_, err := svc.PlaceOrder(ctx, 1, []booking.LineItem{{TicketTypeID: 2, Quantity: 1}}, nil)
		var stockErr *booking.InsufficientStockError
		if !errors.As(err, &stockErr) {
			t.Fatalf("got %v, want InsufficientStockError", err)
		}
		if stockErr.Remaining != 0 {
			t.Errorf("remaining = %d, want 0", stockErr.Remaining)
		}
	})
}

func TestSeatConflict(t *testing.T) {
	st := testutil.NewMemStore()
	room := uint64(7)
	seedEvent(st, 1, &room, 0)
	seedType(st, 1, 1, 1000, 10, 0, model.TicketTypeActive)
	seedSeat(st, 11, room, true)
	seedSeat(st, 12, room, true)
	svc := newService(st)
	ctx := context.Background()

	items := []booking.LineItem{{TicketTypeID: 1, Quantity: 1}}
	if _, err := svc.PlaceOrder(ctx, 1, items, []uint64{11}); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	t.Run("taken seat named, free seat unclaimed", func(t *testing.T) {
		_, err := svc.PlaceOrder(ctx, 2, []booking.LineItem{{TicketTypeID: 1, Quantity: 2}}, []uint64{11, 12})
		var seatErr *booking.SeatConflictError
		if !errors.As(err, &seatErr) {
			t.Fatalf("got %v, want SeatConflictError", err)
		}
		if len(seatErr.SeatIDs) != 1 || seatErr.SeatIDs[0] != 11 {
			t.Errorf("conflicting seats = %v, want [11]", seatErr.SeatIDs)
		}
		// Seat 12 must still be free for the next attempt.
		if _, err := svc.PlaceOrder(ctx, 2, items, []uint64{12}); err != nil {
			t.Fatalf("seat 12 not rebookable after rejection: %v", err)
		}
	})
	t.Run("same seat twice in one order", func(t *testing.T) {
		_, err := svc.PlaceOrder(ctx, 3, []booking.LineItem{{TicketTypeID: 1, Quantity: 2}}, []uint64{13, 13})
		var seatErr *booking.SeatConflictError
		if !errors.As(err, &seatErr) {
			t.Fatalf("got %v, want SeatConflictError", err)
		}
	})
	t.Run("cancelled ticket frees the seat", func(t *testing.T) {
		placed, err := svc.PlaceOrder(ctx, 4, items, []uint64{14})
		if err == nil {
			t.Fatal("seat 14 does not exist, claim should fail")
		}
		seedSeat(st, 14, room, true)
		placed, err = svc.PlaceOrder(ctx, 4, items, []uint64{14})
		if err != nil {
			t.Fatalf("claim seat 14: %v", err)
		}
		if err := svc.CancelOrder(ctx, 4, placed.Order.ID); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if _, err := svc.PlaceOrder(ctx, 5, items, []uint64{14}); err != nil {
			t.Fatalf("seat 14 not free after cancellation: %v", err)
		}
	})
}

func TestAtomicRejection(t *testing.T) {
	st := testutil.NewMemStore()
	seedEvent(st, 1, nil, 0)
	seedType(st, 1, 1, 1000, 10, 0, model.TicketTypeActive)
	seedType(st, 2, 1, 1000, 2, 2, model.TicketTypeSoldOut)
	svc := newService(st)

	// The first line item could be satisfied; the second cannot.  Nothing
	// may land.
	items := []booking.LineItem{
		{TicketTypeID: 1, Quantity: 2},
		{TicketTypeID: 2, Quantity: 1},
	}
	_, err := svc.PlaceOrder(context.Background(), 1, items, nil)
	var stockErr *booking.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("got %v, want InsufficientStockError", err)
	}
	if len(st.Orders) != 0 || len(st.Tickets) != 0 {
		t.Error("rejected order left writes behind")
	}
	if got := st.TicketTypes[1].QuantitySold; got != 0 {
		t.Errorf("type 1 sold = %d, want 0", got)
	}
}

func TestConcurrentNoOversell(t *testing.T) {
	st := testutil.NewMemStore()
	seedEvent(st, 1, nil, 0)
	seedType(st, 1, 1, 1000, 50, 0, model.TicketTypeActive)
	svc := newService(st)

	const buyers = 100
	var wg sync.WaitGroup
	errs := make([]error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			items := []booking.LineItem{{TicketTypeID: 1, Quantity: 1}}
			_, errs[i] = svc.PlaceOrder(context.Background(), uint64(i+1), items, nil)
		}(i)
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		default:
			var stockErr *booking.InsufficientStockError
			if !errors.As(err, &stockErr) {
				t.Fatalf("unexpected error: %v", err)
			}
			rejected++
		}
	}
	if ok != 50 || rejected != 50 {
		t.Fatalf("ok = %d rejected = %d, want 50/50", ok, rejected)
	}
	tt := st.TicketTypes[1]
	if tt.QuantitySold != 50 || tt.Status != model.TicketTypeSoldOut {
		t.Errorf("type = sold %d status %s, want sold 50 status SOLD_OUT", tt.QuantitySold, tt.Status)
	}
	codes := make(map[string]bool)
	for _, tk := range st.Tickets {
		if codes[tk.Code] {
			t.Fatalf("duplicate code %q across orders", tk.Code)
		}
		codes[tk.Code] = true
	}
	if len(st.Tickets) != 50 {
		t.Errorf("got %d tickets, want 50", len(st.Tickets))
	}
}

func TestConcurrentLastUnit(t *testing.T) {
	st := testutil.NewMemStore()
	seedEvent(st, 1, nil, 0)
	seedType(st, 1, 1, 1000, 1, 0, model.TicketTypeActive)
	svc := newService(st)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			items := []booking.LineItem{{TicketTypeID: 1, Quantity: 1}}
			_, errs[i] = svc.PlaceOrder(context.Background(), uint64(i+1), items, nil)
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		var stockErr *booking.InsufficientStockError
		if !errors.As(err, &stockErr) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("ok = %d, want exactly 1", ok)
	}
	if got := st.TicketTypes[1].QuantitySold; got != 1 {
		t.Errorf("sold = %d, want 1", got)
	}
}

func TestConcurrentQuota(t *testing.T) {
	st := testutil.NewMemStore()
	seedEvent(st, 1, nil, 2)
	seedType(st, 1, 1, 1000, 100, 0, model.TicketTypeActive)
	seedType(st, 2, 1, 1000, 100, 0, model.TicketTypeActive)
	svc := newService(st)

	// Same user, two concurrent 2-ticket orders on disjoint types; the
	// cap of 2 admits exactly one of them.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			items := []booking.LineItem{{TicketTypeID: uint64(i + 1), Quantity: 2}}
			_, errs[i] = svc.PlaceOrder(context.Background(), 9, items, nil)
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		var quotaErr *booking.QuotaExceededError
		if !errors.As(err, &quotaErr) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("ok = %d, want exactly 1", ok)
	}
}

func TestConcurrentSeatClaim(t *testing.T) {
	st := testutil.NewMemStore()
	room := uint64(7)
	seedEvent(st, 1, &room, 0)
	seedType(st, 1, 1, 1000, 10, 0, model.TicketTypeActive)
	seedSeat(st, 11, room, true)
	svc := newService(st)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			items := []booking.LineItem{{TicketTypeID: 1, Quantity: 1}}
			_, errs[i] = svc.PlaceOrder(context.Background(), uint64(i+1), items, []uint64{11})
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		var seatErr *booking.SeatConflictError
		if !errors.As(err, &seatErr) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("ok = %d, want exactly 1", ok)
	}
}

func TestContentionRetry(t *testing.T) {
	t.Run("recovers within the retry budget", func(t *testing.T) {
		st := testutil.NewMemStore()
		seedEvent(st, 1, nil, 0)
		seedType(st, 1, 1, 1000, 10, 0, model.TicketTypeActive)
		st.FailTxTimes = 2
		svc := newService(st)

		items := []booking.LineItem{{TicketTypeID: 1, Quantity: 1}}
		if _, err := svc.PlaceOrder(context.Background(), 1, items, nil); err != nil {
			t.Fatalf("PlaceOrder: %v", err)
		}
	})
	t.Run("gives up after the budget", func(t *testing.T) {
		st := testutil.NewMemStore()
		seedEvent(st, 1, nil, 0)
		seedType(st, 1, 1, 1000, 10, 0, model.TicketTypeActive)
		st.FailTxTimes = 10
		svc := newService(st)

		items := []booking.LineItem{{TicketTypeID: 1, Quantity: 1}}
		_, err := svc.PlaceOrder(context.Background(), 1, items, nil)
		if !errors.Is(err, booking.ErrTransientContention) {
			t.Fatalf("got %v, want ErrTransientContention", err)
		}
		if len(st.Orders) != 0 {
			t.Error("failed booking left an order behind")
		}
	})
}

func TestCodeCollisionRetry(t *testing.T) {
	t.Run("reissues after a collision", func(t *testing.T) {
		st := testutil.NewMemStore()
		seedEvent(st, 1, nil, 0)
		seedType(st, 1, 1, 1000, 10, 0, model.TicketTypeActive)
		st.DuplicateCodeTimes = 1
		svc := newService(st)

		items := []booking.LineItem{{TicketTypeID: 1, Quantity: 2}}
		placed, err := svc.PlaceOrder(context.Background(), 1, items, nil)
		if err != nil {
			t.Fatalf("PlaceOrder: %v", err)
		}
		if len(placed.Tickets) != 2 {
			t.Fatalf("got %d tickets, want 2", len(placed.Tickets))
		}
	})
	t.Run("aborts when collisions persist", func(t *testing.T) {
		st := testutil.NewMemStore()
		seedEvent(st, 1, nil, 0)
		seedType(st, 1, 1, 1000, 10, 0, model.TicketTypeActive)
		st.DuplicateCodeTimes = 100
		svc := newService(st)

		items := []booking.LineItem{{TicketTypeID: 1, Quantity: 1}}
		_, err := svc.PlaceOrder(context.Background(), 1, items, nil)
		if !errors.Is(err, booking.ErrCodeIssuanceExhausted) {
			t.Fatalf("got %v, want ErrCodeIssuanceExhausted", err)
		}
		if len(st.Orders) != 0 || len(st.Tickets) != 0 {
			t.Error("failed booking left writes behind")
		}
	})
}

func TestRemainingAllowance(t *testing.T) {
	st := testutil.NewMemStore()
	seedEvent(st, 1, nil, 0)
	seedType(st, 1, 1, 1000, 100, 0, model.TicketTypeActive)
	svc := newService(st)
	ctx := context.Background()

	items := []booking.LineItem{{TicketTypeID: 1, Quantity: 4}}
	if _, err := svc.PlaceOrder(ctx, 1, items, nil); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	a, err := svc.RemainingAllowance(ctx, 1, 1)
	if err != nil {
		t.Fatalf("RemainingAllowance: %v", err)
	}
	if a.Cap != model.DefaultMaxTicketsPerUser || a.Purchased != 4 || a.Remaining != 6 {
		t.Errorf("allowance = %+v, want cap 10 purchased 4 remaining 6", a)
	}

	if _, err := svc.RemainingAllowance(ctx, 1, 99); err == nil {
		t.Fatal("unknown event accepted")
	}
}

func TestEventAvailability(t *testing.T) {
	st := testutil.NewMemStore()
	seedEvent(st, 1, nil, 0)
	seedType(st, 1, 1, 1000, 10, 4, model.TicketTypeActive)
	seedType(st, 2, 1, 2000, 5, 5, model.TicketTypeSoldOut)
	seedType(st, 3, 1, 3000, 10, 0, model.TicketTypeHidden)
	svc := newService(st)

	avail, err := svc.EventAvailability(context.Background(), 1)
	if err != nil {
		t.Fatalf("EventAvailability: %v", err)
	}
	if len(avail) != 2 {
		t.Fatalf("got %d entries, want 2 (hidden excluded)", len(avail))
	}
	if avail[0].TicketTypeID != 1 || avail[0].Remaining != 6 {
		t.Errorf("entry 0 = %+v, want type 1 remaining 6", avail[0])
	}
	if avail[1].TicketTypeID != 2 || avail[1].Remaining != 0 || avail[1].Status != model.TicketTypeSoldOut {
		t.Errorf("entry 1 = %+v, want type 2 remaining 0 SOLD_OUT", avail[1])
	}
}

func TestOrderReads(t *testing.T) {
	st := testutil.NewMemStore()
	seedEvent(st, 1, nil, 0)
	seedType(st, 1, 1, 1000, 10, 0, model.TicketTypeActive)
	svc := newService(st)
	ctx := context.Background()

	items := []booking.LineItem{{TicketTypeID: 1, Quantity: 2}}
	placed, err := svc.PlaceOrder(ctx, 1, items, nil)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	t.Run("own order", func(t *testing.T) {
		got, err := svc.GetOrder(ctx, 1, placed.Order.ID)
		if err != nil {
			t.Fatalf("GetOrder: %v", err)
		}
		if got.Order.Reference != placed.Order.Reference || len(got.Tickets) != 2 {
			t.Errorf("got %+v, want the placed order with 2 tickets", got)
		}
	})
	t.Run("someone else's order reads as missing", func(t *testing.T) {
		if _, err := svc.GetOrder(ctx, 2, placed.Order.ID); !errors.Is(err, booking.ErrOrderNotFound) {
			t.Fatalf("got %v, want ErrOrderNotFound", err)
		}
	})
	t.Run("list", func(t *testing.T) {
		orders, err := svc.ListOrders(ctx, 1)
		if err != nil {
			t.Fatalf("ListOrders: %v", err)
		}
		if len(orders) != 1 || len(orders[0].Tickets) != 2 {
			t.Errorf("got %d orders, want 1 with 2 tickets", len(orders))
		}
	})
}

func TestCancelOrder(t *testing.T) {
	st := testutil.NewMemStore()
	seedEvent(st, 1, nil, 2)
	seedType(st, 1, 1, 1000, 2, 0, model.TicketTypeActive)
	svc := newService(st)
	ctx := context.Background()

	items := []booking.LineItem{{TicketTypeID: 1, Quantity: 2}}
	placed, err := svc.PlaceOrder(ctx, 1, items, nil)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if st.TicketTypes[1].Status != model.TicketTypeSoldOut {
		t.Fatalf("type should be SOLD_OUT after buying everything")
	}

	if err := svc.CancelOrder(ctx, 1, placed.Order.ID); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}

	tt := st.TicketTypes[1]
	if tt.QuantitySold != 0 || tt.Status != model.TicketTypeActive {
		t.Errorf("type = sold %d status %s, want sold 0 status ACTIVE", tt.QuantitySold, tt.Status)
	}
	got, err := svc.GetOrder(ctx, 1, placed.Order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got.Order.Status != model.OrderCancelled {
		t.Errorf("order status = %s, want CANCELLED", got.Order.Status)
	}
	for _, tk := range got.Tickets {
		if tk.Status != model.TicketCancelled {
			t.Errorf("ticket %d status = %s, want CANCELLED", tk.ID, tk.Status)
		}
	}
	// The quota slots are released.
	a, err := svc.RemainingAllowance(ctx, 1, 1)
	if err != nil {
		t.Fatalf("RemainingAllowance: %v", err)
	}
	if a.Purchased != 0 || a.Remaining != 2 {
		t.Errorf("allowance = %+v, want purchased 0 remaining 2", a)
	}

	t.Run("cancel twice", func(t *testing.T) {
		if err := svc.CancelOrder(ctx, 1, placed.Order.ID); !errors.Is(err, booking.ErrOrderNotCancellable) {
			t.Fatalf("got %v, want ErrOrderNotCancellable", err)
		}
	})
	t.Run("someone else's order", func(t *testing.T) {
		if err := svc.CancelOrder(ctx, 2, placed.Order.ID); !errors.Is(err, booking.ErrOrderNotFound) {
			t.Fatalf("got %v, want ErrOrderNotFound", err)
		}
	})
}

func TestCancelOrderBlockedByCheckIn(t *testing.T) {
	st := testutil.NewMemStore()
	seedEvent(st, 1, nil, 0)
	seedType(st, 1, 1, 1000, 10, 0, model.TicketTypeActive)
	svc := newService(st)
	ctx := context.Background()

	items := []booking.LineItem{{TicketTypeID: 1, Quantity: 2}}
	placed, err := svc.PlaceOrder(ctx, 1, items, nil)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if _, err := svc.RedeemTicket(ctx, placed.Tickets[0].Code); err != nil {
		t.Fatalf("RedeemTicket: %v", err)
	}

	if err := svc.CancelOrder(ctx, 1, placed.Order.ID); !errors.Is(err, booking.ErrOrderNotCancellable) {
		t.Fatalf("got %v, want ErrOrderNotCancellable", err)
	}
	// The cancellation must not have touched the untouched ticket either.
	got, err := svc.GetOrder(ctx, 1, placed.Order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got.Order.Status != model.OrderPaid {
		t.Errorf("order status = %s, want PAID", got.Order.Status)
	}
	if got.Tickets[1].Status != model.TicketValid {
		t.Errorf("second ticket status = %s, want VALID", got.Tickets[1].Status)
	}
}

// staleTicketReads serves one order's tickets from a snapshot captured
// earlier, standing in for a cancellation whose read view predates a
// concurrent check-in commit.
type staleTicketReads struct {
	*testutil.MemStore
	orderID uint64
	stale   []model.Ticket
	served  bool
}

func (s *staleTicketReads) TicketsByOrder(ctx context.Context, orderID uint64) ([]model.Ticket, error) {
	if orderID == s.orderID && !s.served {
		s.served = true
		return s.stale, nil
	}
	return s.MemStore.TicketsByOrder(ctx, orderID)
}

func TestCancelOverlappingCheckIn(t *testing.T) {
	st := testutil.NewMemStore()
	seedEvent(st, 1, nil, 0)
	seedType(st, 1, 1, 1000, 1, 0, model.TicketTypeActive)
	svc := newService(st)
	ctx := context.Background()

	placed, err := svc.PlaceOrder(ctx, 1, []booking.LineItem{{TicketTypeID: 1, Quantity: 1}}, nil)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	stale, err := st.TicketsByOrder(ctx, placed.Order.ID)
	if err != nil {
		t.Fatalf("TicketsByOrder: %v", err)
	}
	if _, err := svc.RedeemTicket(ctx, placed.Tickets[0].Code); err != nil {
		t.Fatalf("RedeemTicket: %v", err)
	}

	// The cancellation still sees the ticket as VALID; the guarded write
	// must abort it and the retry must see the check-in.
	racy := &staleTicketReads{MemStore: st, orderID: placed.Order.ID, stale: stale}
	racySvc := booking.NewService(racy, clock.NewFixed(testTime))
	if err := racySvc.CancelOrder(ctx, 1, placed.Order.ID); !errors.Is(err, booking.ErrOrderNotCancellable) {
		t.Fatalf("got %v, want ErrOrderNotCancellable", err)
	}

	tk, err := st.TicketByCodeForUpdate(ctx, placed.Tickets[0].Code)
	if err != nil {
		t.Fatalf("TicketByCodeForUpdate: %v", err)
	}
	if tk.Status != model.TicketUsed || tk.UsedAt == nil {
		t.Errorf("ticket = %s used_at %v, want USED with a timestamp", tk.Status, tk.UsedAt)
	}
	if got := st.TicketTypes[1].QuantitySold; got != 1 {
		t.Errorf("sold = %d, want 1; cancellation must not release a used ticket", got)
	}
	if got := st.Orders[placed.Order.ID].Status; got != model.OrderPaid {
		t.Errorf("order status = %s, want PAID", got)
	}
}

func TestRedeemTicket(t *testing.T) {
	st := testutil.NewMemStore()
	seedEvent(st, 1, nil, 0)
	seedType(st, 1, 1, 1000, 10, 0, model.TicketTypeActive)
	svc := newService(st)
	ctx := context.Background()

	items := []booking.LineItem{{TicketTypeID: 1, Quantity: 1}}
	placed, err := svc.PlaceOrder(ctx, 1, items, nil)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	code := placed.Tickets[0].Code

	tk, err := svc.RedeemTicket(ctx, code)
	if err != nil {
		t.Fatalf("RedeemTicket: %v", err)
	}
	if tk.Status != model.TicketUsed {
		t.Errorf("status = %s, want USED", tk.Status)
	}
	if tk.UsedAt == nil || !tk.UsedAt.Equal(testTime) {
		t.Errorf("used_at = %v, want %v", tk.UsedAt, testTime)
	}

	t.Run("second scan rejected", func(t *testing.T) {
		if _, err := svc.RedeemTicket(ctx, code); !errors.Is(err, booking.ErrTicketUsed) {
			t.Fatalf("got %v, want ErrTicketUsed", err)
		}
	})
	t.Run("unknown code", func(t *testing.T) {
		if _, err := svc.RedeemTicket(ctx, "NOSUCHCODE"); !errors.Is(err, booking.ErrTicketNotFound) {
			t.Fatalf("got %v, want ErrTicketNotFound", err)
		}
	})
	t.Run("cancelled ticket", func(t *testing.T) {
		placed, err := svc.PlaceOrder(ctx, 2, items, nil)
		if err != nil {
			t.Fatalf("PlaceOrder: %v", err)
		}
		if err := svc.CancelOrder(ctx, 2, placed.Order.ID); err != nil {
			t.Fatalf("CancelOrder: %v", err)
		}
		if _, err := svc.RedeemTicket(ctx, placed.Tickets[0].Code); !errors.Is(err, booking.ErrTicketCancelled) {
			t.Fatalf("got %v, want ErrTicketCancelled", err)
		}
	})
}
