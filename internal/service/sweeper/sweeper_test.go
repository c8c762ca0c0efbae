package sweeper

import (
	"context"
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

func hold(c *testutil.Cinema, t *testing.T, label string, until time.Time) {
	t.Helper()
	c.Store.PutSeatState(domain.SeatState{
		ShowtimeID: c.ShowtimeID,
		SeatID:     c.Seat(t, label).ID,
		Status:     domain.SeatHeld,
		HeldUntil:  &until,
	})
}

func TestSweep_ReleasesLapsedHolds(t *testing.T) {
	c := testutil.NewCinema(t, start.Add(time.Hour), []string{"A"}, 4)
	clock := testutil.NewClock(start)
	broker := seatmap.NewBroker()

	hold(c, t, "A1", start.Add(-time.Minute))
	hold(c, t, "A2", start)
	hold(c, t, "A3", start.Add(time.Second))
	c.Store.PutSeatState(domain.SeatState{ShowtimeID: c.ShowtimeID, SeatID: c.Seat(t, "A4").ID, Status: domain.SeatSold})

	ch, cancel := broker.Subscribe(c.ShowtimeID)
	defer cancel()

	s := New(uow.NewUoW(c.Store, uow.Options{}), catalog.NewChanges(nil, broker, nil), nil, Config{Now: clock.Now})

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, domain.SeatAvailable, c.Status(t, "A1").Status)
	assert.Nil(t, c.Status(t, "A1").HeldUntil)
	assert.Equal(t, domain.SeatAvailable, c.Status(t, "A2").Status)
	assert.Equal(t, domain.SeatHeld, c.Status(t, "A3").Status)
	assert.Equal(t, domain.SeatSold, c.Status(t, "A4").Status)

	select {
	case <-ch:
	default:
		t.Fatal("no change signal")
	}

	n, err = s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweep_Batches(t *testing.T) {
	c := testutil.NewCinema(t, start.Add(time.Hour), []string{"A", "B"}, 5)
	clock := testutil.NewClock(start)

	for _, row := range []string{"A", "B"} {
		for n := 1; n <= 5; n++ {
			hold(c, t, row+string(rune('0'+n)), start.Add(-time.Second))
		}
	}

	s := New(uow.NewUoW(c.Store, uow.Options{}), nil, nil, Config{Now: clock.Now, BatchSize: 3})

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, domain.SeatAvailable, c.Status(t, "B5").Status)
}

func TestRun_StopsOnCancel(t *testing.T) {
	c := testutil.NewCinema(t, start.Add(time.Hour), []string{"A"}, 1)
	hold(c, t, "A1", start.Add(-time.Second))

	s := New(uow.NewUoW(c.Store, uow.Options{}), nil, nil, Config{
		Now:      func() time.Time { return start },
		Interval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return c.Status(t, "A1").Status == domain.SeatAvailable
	}, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
