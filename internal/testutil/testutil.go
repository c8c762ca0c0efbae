// Package testutil builds in-memory cinemas and a controllable clock for
// service and transport tests.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kirinyoku/tix-cinema/internal/domain"
	"github.com/kirinyoku/tix-cinema/internal/repository/memory"
	"github.com/stretchr/testify/require"
)

// Clock is a manually advanced clock safe for concurrent use.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Cinema is one theater with one showtime in a memory store.
type Cinema struct {
	Store      *memory.Store
	TheaterID  int64
	ShowtimeID int64
	seats      map[string]domain.Seat
}

// NewCinema creates a theater with perRow seats in each of rows and a
// two-hour showtime starting at startsAt.
func NewCinema(t testing.TB, startsAt time.Time, rows []string, perRow int) *Cinema {
	t.Helper()

	ctx := context.Background()
	store := memory.NewStore()
	inv := store.Repos().Inventory()

	theaterID, err := inv.CreateTheater(ctx, "Hall 1")
	require.NoError(t, err)

	var layout []domain.Seat
	var refs []domain.SeatRef
	for _, row := range rows {
		for n := 1; n <= perRow; n++ {
			layout = append(layout, domain.Seat{Row: row, Number: n})
			refs = append(refs, domain.SeatRefLabel(row, n))
		}
	}

	_, err = inv.BatchCreateSeats(ctx, theaterID, layout)
	require.NoError(t, err)

	showtimeID, err := inv.CreateShowtime(ctx, theaterID, startsAt, startsAt.Add(2*time.Hour))
	require.NoError(t, err)

	seats, err := store.Repos().Catalog().SeatsByRefs(ctx, theaterID, refs)
	require.NoError(t, err)

	byLabel := make(map[string]domain.Seat, len(seats))
	for _, s := range seats {
		byLabel[s.Label()] = s
	}

	return &Cinema{
		Store:      store,
		TheaterID:  theaterID,
		ShowtimeID: showtimeID,
		seats:      byLabel,
	}
}

// Seat returns the seat with the given label, e.g. "A1".
func (c *Cinema) Seat(t testing.TB, label string) domain.Seat {
	t.Helper()

	s, ok := c.seats[label]
	require.Truef(t, ok, "no seat %s", label)
	return s
}

// Refs turns labels into seat refs.
func Refs(labels ...string) []domain.SeatRef {
	out := make([]domain.SeatRef, len(labels))
	for i, l := range labels {
		ref, err := domain.ParseSeatRef(l)
		if err != nil {
			panic(err)
		}
		out[i] = ref
	}
	return out
}

// Status reads the stored state of a seat; seats without a row are available.
func (c *Cinema) Status(t testing.TB, label string) domain.SeatState {
	t.Helper()

	seat := c.Seat(t, label)
	states, err := c.Store.Repos().SeatStates().LockRows(context.Background(), c.ShowtimeID, []int64{seat.ID})
	require.NoError(t, err)

	if len(states) == 0 {
		return domain.SeatState{ShowtimeID: c.ShowtimeID, SeatID: seat.ID, Status: domain.SeatAvailable}
	}
	return states[0]
}

// AddSnack puts a snack into the catalog and returns its id.
func (c *Cinema) AddSnack(t testing.TB, name string, price int64, available bool) int64 {
	t.Helper()

	id, err := c.Store.Repos().Inventory().UpsertSnack(context.Background(), domain.Snack{
		Name:      name,
		Price:     price,
		Available: available,
	})
	require.NoError(t, err)
	return id
}
