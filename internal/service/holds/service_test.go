package holds

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kirinyoku/tix-cinema/internal/domain"
	"github.com/kirinyoku/tix-cinema/internal/service/catalog"
	"github.com/kirinyoku/tix-cinema/internal/service/seatmap"
	"github.com/kirinyoku/tix-cinema/internal/testutil"
	"github.com/kirinyoku/tix-cinema/internal/uow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type env struct {
	cinema *testutil.Cinema
	clock  *testutil.Clock
	broker *seatmap.Broker
	svc    *Service
}

func newEnv(t *testing.T) *env {
	t.Helper()

	c := testutil.NewCinema(t, start.Add(6*time.Hour), []string{"A", "B", "C", "D"}, 4)
	clock := testutil.NewClock(start)
	broker := seatmap.NewBroker()

	svc := New(
		uow.NewUoW(c.Store, uow.Options{BaseDelay: time.Millisecond}),
		catalog.NewChanges(nil, broker, nil),
		nil,
		Config{Now: clock.Now},
	)

	return &env{cinema: c, clock: clock, broker: broker, svc: svc}
}

func TestAcquireHold_HoldsAllSeats(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	hold, err := e.svc.AcquireHold(ctx, e.cinema.ShowtimeID, testutil.Refs("A2", "A1"), 10)
	require.NoError(t, err)

	assert.Equal(t, start.Add(10*time.Minute), hold.HeldUntil)
	assert.Equal(t, []string{"A1", "A2"}, hold.Seats)
	assert.Equal(t, []int64{e.cinema.Seat(t, "A1").ID, e.cinema.Seat(t, "A2").ID}, hold.SeatIDs)

	for _, label := range []string{"A1", "A2"} {
		st := e.cinema.Status(t, label)
		assert.Equal(t, domain.SeatHeld, st.Status)
		require.NotNil(t, st.HeldUntil)
		assert.Equal(t, hold.HeldUntil, *st.HeldUntil)
	}
}

func TestAcquireHold_RejectsHeldSeat(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first, err := e.svc.AcquireHold(ctx, e.cinema.ShowtimeID, testutil.Refs("A1", "A2"), 10)
	require.NoError(t, err)

	_, err = e.svc.AcquireHold(ctx, e.cinema.ShowtimeID, testutil.Refs("A1"), 10)
	var heldErr domain.SeatAlreadyHeldError
	require.ErrorAs(t, err, &heldErr)
	assert.Equal(t, "A1", heldErr.Seat.Label())
	assert.Equal(t, first.HeldUntil, heldErr.HeldUntil)
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestAcquireHold_AllOrNothing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.AcquireHold(ctx, e.cinema.ShowtimeID, testutil.Refs("B2"), 10)
	require.NoError(t, err)

	_, err = e.svc.AcquireHold(ctx, e.cinema.ShowtimeID, testutil.Refs("B1", "B2", "B3"), 10)
	require.ErrorIs(t, err, domain.ErrConflict)

	assert.Equal(t, domain.SeatAvailable, e.cinema.Status(t, "B1").Status)
	assert.Equal(t, domain.SeatAvailable, e.cinema.Status(t, "B3").Status)
	assert.Equal(t, domain.SeatHeld, e.cinema.Status(t, "B2").Status)
}

func TestAcquireHold_RejectsSoldSeat(t *testing.T) {
	e := newEnv(t)
	seat := e.cinema.Seat(t, "C1")
	e.cinema.Store.PutSeatState(domain.SeatState{ShowtimeID: e.cinema.ShowtimeID, SeatID: seat.ID, Status: domain.SeatSold})

	_, err := e.svc.AcquireHold(context.Background(), e.cinema.ShowtimeID, testutil.Refs("C1"), 10)
	var soldErr domain.SeatAlreadySoldError
	require.ErrorAs(t, err, &soldErr)
	assert.Equal(t, seat.ID, soldErr.Seat.ID)
}

func TestAcquireHold_LapsedHoldCanBeRetaken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.AcquireHold(ctx, e.cinema.ShowtimeID, testutil.Refs("A1"), 5)
	require.NoError(t, err)

	e.clock.Advance(5*time.Minute - time.Second)
	_, err = e.svc.AcquireHold(ctx, e.cinema.ShowtimeID, testutil.Refs("A1"), 5)
	require.ErrorIs(t, err, domain.ErrConflict)

	// The hold ends at exactly held_until.
	e.clock.Advance(time.Second)
	hold, err := e.svc.AcquireHold(ctx, e.cinema.ShowtimeID, testutil.Refs("A1"), 5)
	require.NoError(t, err)
	assert.Equal(t, start.Add(10*time.Minute), hold.HeldUntil)
}

func TestAcquireHold_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		show    int64
		refs    []domain.SeatRef
		minutes int
		target  error
	}{
		{name: "too short", show: e.cinema.ShowtimeID, refs: testutil.Refs("A1"), minutes: 4, target: domain.InvalidHoldDurationError{}},
		{name: "too long", show: e.cinema.ShowtimeID, refs: testutil.Refs("A1"), minutes: 16, target: domain.InvalidHoldDurationError{}},
		{name: "negative", show: e.cinema.ShowtimeID, refs: testutil.Refs("A1"), minutes: -1, target: domain.InvalidHoldDurationError{}},
		{name: "no seats", show: e.cinema.ShowtimeID, refs: nil, minutes: 10, target: domain.ValidationError{}},
		{name: "unknown showtime", show: 404, refs: testutil.Refs("A1"), minutes: 10, target: domain.ShowtimeNotFoundError{}},
		{name: "unknown seat", show: e.cinema.ShowtimeID, refs: testutil.Refs("A1", "Z9"), minutes: 10, target: domain.SeatNotFoundError{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.AcquireHold(ctx, tt.show, tt.refs, tt.minutes)
			require.Error(t, err)
			require.ErrorIs(t, err, domain.ErrValidation)
			assert.IsType(t, tt.target, err)
		})
	}

	assert.Equal(t, domain.SeatAvailable, e.cinema.Status(t, "A1").Status)
}

func TestAcquireHold_DefaultDuration(t *testing.T) {
	e := newEnv(t)

	hold, err := e.svc.AcquireHold(context.Background(), e.cinema.ShowtimeID, testutil.Refs("D4"), 0)
	require.NoError(t, err)
	assert.Equal(t, start.Add(10*time.Minute), hold.HeldUntil)
}

func TestAcquireHold_CorruptStateIsNotRetried(t *testing.T) {
	e := newEnv(t)
	seat := e.cinema.Seat(t, "A3")
	e.cinema.Store.PutSeatState(domain.SeatState{ShowtimeID: e.cinema.ShowtimeID, SeatID: seat.ID, Status: domain.SeatHeld})

	_, err := e.svc.AcquireHold(context.Background(), e.cinema.ShowtimeID, testutil.Refs("A3"), 10)
	var corrupt domain.CorruptSeatStateError
	require.ErrorAs(t, err, &corrupt)
	assert.Equal(t, seat.ID, corrupt.SeatID)
	require.ErrorIs(t, err, domain.ErrInternal)
	require.NotErrorIs(t, err, domain.ErrRetryable)
}

func TestAcquireHold_ConcurrentRequestsSellOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	const callers = 8

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)

	startGate := make(chan struct{})
	for i := range callers {
		refs := testutil.Refs("D1", "D2")
		if i%2 == 1 {
			refs = testutil.Refs("D2", "D1")
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			<-startGate

			_, err := e.svc.AcquireHold(ctx, e.cinema.ShowtimeID, refs, 10)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case assert.ErrorIs(t, err, domain.ErrConflict):
				conflicts++
			}
		}()
	}

	close(startGate)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, conflicts)
	assert.Equal(t, domain.SeatHeld, e.cinema.Status(t, "D1").Status)
	assert.Equal(t, domain.SeatHeld, e.cinema.Status(t, "D2").Status)
}

func TestRelease(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.AcquireHold(ctx, e.cinema.ShowtimeID, testutil.Refs("C1", "C2"), 10)
	require.NoError(t, err)

	n, err := e.svc.Release(ctx, e.cinema.ShowtimeID, testutil.Refs("C1", "C2"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, domain.SeatAvailable, e.cinema.Status(t, "C1").Status)
	assert.Nil(t, e.cinema.Status(t, "C1").HeldUntil)

	again, err := e.svc.Release(ctx, e.cinema.ShowtimeID, testutil.Refs("C1", "C2"))
	require.NoError(t, err)
	assert.Zero(t, again)

	_, err = e.svc.AcquireHold(ctx, e.cinema.ShowtimeID, testutil.Refs("C1"), 10)
	require.NoError(t, err)
}

func TestRelease_LeavesSoldSeats(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	sold := e.cinema.Seat(t, "C3")
	e.cinema.Store.PutSeatState(domain.SeatState{ShowtimeID: e.cinema.ShowtimeID, SeatID: sold.ID, Status: domain.SeatSold})

	_, err := e.svc.AcquireHold(ctx, e.cinema.ShowtimeID, testutil.Refs("C4"), 10)
	require.NoError(t, err)

	n, err := e.svc.Release(ctx, e.cinema.ShowtimeID, testutil.Refs("C3", "C4", "C2"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, domain.SeatSold, e.cinema.Status(t, "C3").Status)
}

func TestHoldsAnnounceChanges(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	ch, cancel := e.broker.Subscribe(e.cinema.ShowtimeID)
	defer cancel()

	_, err := e.svc.AcquireHold(ctx, e.cinema.ShowtimeID, testutil.Refs("B4"), 10)
	require.NoError(t, err)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no change signal after hold")
	}

	// A release that changes nothing stays silent.
	_, err = e.svc.Release(ctx, e.cinema.ShowtimeID, testutil.Refs("B3"))
	require.NoError(t, err)

	select {
	case <-ch:
		t.Fatal("unexpected change signal")
	default:
	}
}
