package booking

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/kirinyoku/tix-cinema/internal/domain"
	"github.com/kirinyoku/tix-cinema/internal/notify"
	"github.com/kirinyoku/tix-cinema/internal/service/catalog"
	"github.com/kirinyoku/tix-cinema/internal/service/holds"
	"github.com/kirinyoku/tix-cinema/internal/testutil"
	"github.com/kirinyoku/tix-cinema/internal/uow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeDispatcher struct {
	mu     sync.Mutex
	events []domain.BookingEvent
}

func (f *fakeDispatcher) Dispatch(_ context.Context, ev domain.BookingEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeDispatcher) Events() []domain.BookingEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.BookingEvent(nil), f.events...)
}

type env struct {
	cinema   *testutil.Cinema
	clock    *testutil.Clock
	holds    *holds.Service
	svc      *Service
	dispatch *fakeDispatcher
}

func newEnv(t *testing.T) *env {
	t.Helper()

	c := testutil.NewCinema(t, start.Add(3*time.Hour), []string{"A", "B", "C"}, 4)
	clock := testutil.NewClock(start)
	u := uow.NewUoW(c.Store, uow.Options{BaseDelay: time.Millisecond})
	changes := catalog.NewChanges(nil, nil, nil)
	dispatch := &fakeDispatcher{}

	return &env{
		cinema:   c,
		clock:    clock,
		holds:    holds.New(u, changes, nil, holds.Config{Now: clock.Now}),
		svc:      New(c.Store, u, changes, dispatch, nil, Config{Now: clock.Now}),
		dispatch: dispatch,
	}
}

func (e *env) hold(t *testing.T, minutes int, labels ...string) {
	t.Helper()
	_, err := e.holds.AcquireHold(context.Background(), e.cinema.ShowtimeID, testutil.Refs(labels...), minutes)
	require.NoError(t, err)
}

func TestFinalize_SplitsPriceEvenly(t *testing.T) {
	e := newEnv(t)
	e.hold(t, 10, "B1", "B2", "B3")

	b, err := e.svc.Finalize(context.Background(), FinalizeInput{
		ShowtimeID: e.cinema.ShowtimeID,
		UserID:     42,
		Seats:      testutil.Refs("B3", "B1", "B2"),
		TotalPrice: 270000,
	})
	require.NoError(t, err)

	assert.Regexp(t, `^BK[A-Z0-9]{8}$`, b.Ref)
	assert.Equal(t, domain.BookingConfirmed, b.Status)
	assert.Equal(t, int64(270000), b.TotalPrice)
	require.Len(t, b.Seats, 3)
	for i, label := range []string{"B1", "B2", "B3"} {
		assert.Equal(t, label, b.Seats[i].Label)
		assert.Equal(t, int64(90000), b.Seats[i].Price)
		assert.Equal(t, domain.DefaultSeatType, b.Seats[i].SeatType)
		assert.Equal(t, domain.SeatSold, e.cinema.Status(t, label).Status)
		assert.Nil(t, e.cinema.Status(t, label).HeldUntil)
	}

	stored, err := e.svc.Get(context.Background(), b.Ref)
	require.NoError(t, err)
	assert.Equal(t, b.ID, stored.ID)
	assert.Len(t, stored.Seats, 3)

	events := e.dispatch.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.BookingEventConfirmed, events[0].Type)
	assert.Equal(t, b.Ref, events[0].BookingRef)
	assert.Equal(t, []string{"B1", "B2", "B3"}, events[0].Seats)
}

func TestFinalize_RemainderGoesToLowestSeat(t *testing.T) {
	e := newEnv(t)
	e.hold(t, 10, "A1", "A2", "A3")

	b, err := e.svc.Finalize(context.Background(), FinalizeInput{
		ShowtimeID: e.cinema.ShowtimeID,
		UserID:     1,
		Seats:      testutil.Refs("A1", "A2", "A3"),
		TotalPrice: 100,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(34), b.Seats[0].Price)
	assert.Equal(t, int64(33), b.Seats[1].Price)
	assert.Equal(t, int64(33), b.Seats[2].Price)
}

func TestFinalize_ExpiredHold(t *testing.T) {
	e := newEnv(t)
	e.hold(t, 5, "A1")

	e.clock.Advance(6 * time.Minute)

	_, err := e.svc.Finalize(context.Background(), FinalizeInput{
		ShowtimeID: e.cinema.ShowtimeID,
		UserID:     1,
		Seats:      testutil.Refs("A1"),
		TotalPrice: 100,
	})
	var expired domain.HoldExpiredOrMissingError
	require.ErrorAs(t, err, &expired)
	assert.Equal(t, "A1", expired.Seat.Label())

	assert.Equal(t, domain.SeatHeld, e.cinema.Status(t, "A1").Status)
	assert.Empty(t, e.dispatch.Events())
}

func TestFinalize_IsAtomic(t *testing.T) {
	e := newEnv(t)
	e.hold(t, 10, "C1")

	_, err := e.svc.Finalize(context.Background(), FinalizeInput{
		ShowtimeID: e.cinema.ShowtimeID,
		UserID:     1,
		Seats:      testutil.Refs("C1", "C2"),
		TotalPrice: 200,
	})
	var missing domain.HoldExpiredOrMissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "C2", missing.Seat.Label())

	assert.Equal(t, domain.SeatHeld, e.cinema.Status(t, "C1").Status)

	list, err := e.svc.ListByUser(context.Background(), 1, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestFinalize_SoldSeatCannotBeSoldAgain(t *testing.T) {
	e := newEnv(t)
	e.hold(t, 10, "A4")

	in := FinalizeInput{ShowtimeID: e.cinema.ShowtimeID, UserID: 1, Seats: testutil.Refs("A4"), TotalPrice: 10}
	_, err := e.svc.Finalize(context.Background(), in)
	require.NoError(t, err)

	_, err = e.svc.Finalize(context.Background(), in)
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestFinalize_ConcurrentFinalizeSellsOnce(t *testing.T) {
	e := newEnv(t)
	e.hold(t, 10, "B4")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		refs []string
	)
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := e.svc.Finalize(context.Background(), FinalizeInput{
				ShowtimeID: e.cinema.ShowtimeID,
				UserID:     1,
				Seats:      testutil.Refs("B4"),
				TotalPrice: 10,
			})
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrConflict)
				return
			}
			mu.Lock()
			refs = append(refs, b.Ref)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, refs, 1)
}

func TestFinalize_ExplicitLinesAndSnacks(t *testing.T) {
	e := newEnv(t)
	popcorn := e.cinema.AddSnack(t, "Popcorn", 25000, true)
	e.hold(t, 10, "A1", "A2")

	b, err := e.svc.Finalize(context.Background(), FinalizeInput{
		ShowtimeID: e.cinema.ShowtimeID,
		UserID:     7,
		Seats:      testutil.Refs("A1", "A2"),
		TotalPrice: 150000,
		Lines: []domain.PriceLine{
			{Seat: domain.SeatRefLabel("A", 1), Price: 40000},
			{Seat: domain.SeatRefLabel("A", 2), Price: 60000},
		},
		Snacks: []domain.SnackOrder{{SnackID: popcorn, Quantity: 1}, {SnackID: popcorn, Quantity: 1}},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(40000), b.Seats[0].Price)
	assert.Equal(t, int64(60000), b.Seats[1].Price)
	require.Len(t, b.Snacks, 1)
	assert.Equal(t, domain.BookingSnackLine{SnackID: popcorn, Quantity: 2, UnitPrice: 25000, TotalPrice: 50000}, b.Snacks[0])
}

func TestFinalize_InvalidPricesLeaveHolds(t *testing.T) {
	e := newEnv(t)
	cola := e.cinema.AddSnack(t, "Cola", 15000, false)
	nachos := e.cinema.AddSnack(t, "Nachos", 100, true)
	e.hold(t, 10, "A1", "A2")

	tests := []struct {
		name string
		in   FinalizeInput
	}{
		{name: "lines do not sum", in: FinalizeInput{
			TotalPrice: 100,
			Lines: []domain.PriceLine{
				{Seat: domain.SeatRefLabel("A", 1), Price: 10},
				{Seat: domain.SeatRefLabel("A", 2), Price: 10},
			},
		}},
		{name: "line for other seat", in: FinalizeInput{
			TotalPrice: 100,
			Lines:      []domain.PriceLine{{Seat: domain.SeatRefLabel("B", 1), Price: 100}},
		}},
		{name: "unknown snack", in: FinalizeInput{
			TotalPrice: 10,
			Snacks:     []domain.SnackOrder{{SnackID: 999, Quantity: 1}},
		}},
		{name: "unavailable snack", in: FinalizeInput{
			TotalPrice: 100000,
			Snacks:     []domain.SnackOrder{{SnackID: cola, Quantity: 1}},
		}},
		{name: "snack total overflows", in: FinalizeInput{
			TotalPrice: 0,
			Snacks:     []domain.SnackOrder{{SnackID: nachos, Quantity: 92233720368547759}},
		}},
		{name: "merged quantity overflows", in: FinalizeInput{
			TotalPrice: 0,
			Snacks:     []domain.SnackOrder{{SnackID: nachos, Quantity: math.MaxInt}, {SnackID: nachos, Quantity: 1}},
		}},
		{name: "line prices overflow", in: FinalizeInput{
			TotalPrice: 0,
			Lines: []domain.PriceLine{
				{Seat: domain.SeatRefLabel("A", 1), Price: math.MaxInt64},
				{Seat: domain.SeatRefLabel("A", 2), Price: 2},
			},
		}},
		{name: "negative total", in: FinalizeInput{TotalPrice: -1}},
		{name: "no user", in: FinalizeInput{TotalPrice: 100, UserID: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			in.ShowtimeID = e.cinema.ShowtimeID
			in.Seats = testutil.Refs("A1", "A2")
			if in.UserID == 0 {
				in.UserID = 1
			}

			_, err := e.svc.Finalize(context.Background(), in)
			require.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	assert.Equal(t, domain.SeatHeld, e.cinema.Status(t, "A1").Status)
	assert.Equal(t, domain.SeatHeld, e.cinema.Status(t, "A2").Status)
}

func TestGet_NotFound(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.Get(context.Background(), "BKNOPE0000")
	var nf domain.BookingNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "BKNOPE0000", nf.Ref)
}

func TestListByUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	var made []string
	for _, label := range []string{"A1", "A2", "A3"} {
		e.hold(t, 10, label)
		b, err := e.svc.Finalize(ctx, FinalizeInput{
			ShowtimeID: e.cinema.ShowtimeID,
			UserID:     5,
			Seats:      testutil.Refs(label),
			TotalPrice: 10,
		})
		require.NoError(t, err)
		made = append(made, b.Ref)
		e.clock.Advance(time.Minute)
	}

	list, err := e.svc.ListByUser(ctx, 5, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, made[2], list[0].Ref)
	assert.Equal(t, made[0], list[2].Ref)

	page, err := e.svc.ListByUser(ctx, 5, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, made[1], page[0].Ref)

	none, err := e.svc.ListByUser(ctx, 6, 0, 0)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = e.svc.ListByUser(ctx, 0, 0, 0)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestCancel(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.hold(t, 10, "C3", "C4")

	b, err := e.svc.Finalize(ctx, FinalizeInput{
		ShowtimeID: e.cinema.ShowtimeID,
		UserID:     9,
		Seats:      testutil.Refs("C3", "C4"),
		TotalPrice: 20,
	})
	require.NoError(t, err)

	_, err = e.svc.Cancel(ctx, b.Ref, 10)
	var nf domain.BookingNotFoundError
	require.ErrorAs(t, err, &nf)

	cancelled, err := e.svc.Cancel(ctx, b.Ref, 9)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCancelled, cancelled.Status)
	assert.Len(t, cancelled.Seats, 2)
	assert.Equal(t, domain.SeatAvailable, e.cinema.Status(t, "C3").Status)
	assert.Equal(t, domain.SeatAvailable, e.cinema.Status(t, "C4").Status)

	stored, err := e.svc.Get(ctx, b.Ref)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCancelled, stored.Status)

	_, err = e.svc.Cancel(ctx, b.Ref, 9)
	var notCancellable domain.BookingNotCancellableError
	require.ErrorAs(t, err, &notCancellable)

	events := e.dispatch.Events()
	require.Len(t, events, 2)
	assert.Equal(t, domain.BookingEventCancelled, events[1].Type)

	e.hold(t, 10, "C3")
}

func TestCancel_AfterShowtimeStarted(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.hold(t, 10, "B2")

	b, err := e.svc.Finalize(ctx, FinalizeInput{
		ShowtimeID: e.cinema.ShowtimeID,
		UserID:     9,
		Seats:      testutil.Refs("B2"),
		TotalPrice: 20,
	})
	require.NoError(t, err)

	e.clock.Advance(3 * time.Hour)

	_, err = e.svc.Cancel(ctx, b.Ref, 0)
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, domain.SeatSold, e.cinema.Status(t, "B2").Status)
}

// stalledNotifier blocks every delivery until the test ends.
type stalledNotifier struct {
	release chan struct{}
}

func (n stalledNotifier) Notify(ctx context.Context, _ domain.BookingEvent) error {
	select {
	case <-n.release:
	case <-ctx.Done():
	}
	return nil
}

func (n stalledNotifier) Close() error { return nil }

func TestFinalize_DoesNotWaitForNotifier(t *testing.T) {
	c := testutil.NewCinema(t, start.Add(3*time.Hour), []string{"A"}, 2)
	clock := testutil.NewClock(start)
	u := uow.NewUoW(c.Store, uow.Options{BaseDelay: time.Millisecond})
	changes := catalog.NewChanges(nil, nil, nil)

	n := stalledNotifier{release: make(chan struct{})}
	d := notify.NewDispatcher(n, slog.New(slog.DiscardHandler), time.Minute, 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	t.Cleanup(func() {
		close(n.release)
		cancel()
		<-done
	})

	hs := holds.New(u, changes, nil, holds.Config{Now: clock.Now})
	svc := New(c.Store, u, changes, d, nil, Config{Now: clock.Now})

	_, err := hs.AcquireHold(context.Background(), c.ShowtimeID, testutil.Refs("A1", "A2"), 10)
	require.NoError(t, err)

	began := time.Now()
	b, err := svc.Finalize(context.Background(), FinalizeInput{
		ShowtimeID: c.ShowtimeID,
		UserID:     5,
		Seats:      testutil.Refs("A1"),
		TotalPrice: 100,
	})
	require.NoError(t, err)
	require.NotNil(t, b)

	_, err = svc.Cancel(context.Background(), b.Ref, 5)
	require.NoError(t, err)

	assert.Less(t, time.Since(began), time.Second)
}
