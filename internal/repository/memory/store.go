// Package memory is an in-process implementation of the repositories.
// Transactions are serialised behind one mutex and applied to a copy of the
// data, which replaces the live data only when the transaction succeeds.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-cinema/internal/domain"
	"github.com/kirinyoku/tix-cinema/internal/repository"
)

type stateKey struct {
	showtimeID int64
	seatID     int64
}

type data struct {
	lastID    int64
	theaters  map[int64]domain.Theater
	seats     map[int64]domain.Seat
	showtimes map[int64]domain.Showtime
	snacks    map[int64]domain.Snack
	states    map[stateKey]domain.SeatState
	bookings  map[uuid.UUID]domain.Booking
	refs      map[string]uuid.UUID
}

func newData() *data {
	return &data{
		theaters:  make(map[int64]domain.Theater),
		seats:     make(map[int64]domain.Seat),
		showtimes: make(map[int64]domain.Showtime),
		snacks:    make(map[int64]domain.Snack),
		states:    make(map[stateKey]domain.SeatState),
		bookings:  make(map[uuid.UUID]domain.Booking),
		refs:      make(map[string]uuid.UUID),
	}
}

func (d *data) nextID() int64 {
	d.lastID++
	return d.lastID
}

func (d *data) clone() *data {
	cp := newData()
	cp.lastID = d.lastID
	for k, v := range d.theaters {
		cp.theaters[k] = v
	}
	for k, v := range d.seats {
		cp.seats[k] = v
	}
	for k, v := range d.showtimes {
		cp.showtimes[k] = v
	}
	for k, v := range d.snacks {
		cp.snacks[k] = v
	}
	for k, v := range d.states {
		if v.HeldUntil != nil {
			t := *v.HeldUntil
			v.HeldUntil = &t
		}
		cp.states[k] = v
	}
	for k, v := range d.bookings {
		cp.bookings[k] = copyBooking(v)
	}
	for k, v := range d.refs {
		cp.refs[k] = v
	}
	return cp
}

func copyBooking(b domain.Booking) domain.Booking {
	b.Seats = append([]domain.BookingSeatLine(nil), b.Seats...)
	b.Snacks = append([]domain.BookingSnackLine(nil), b.Snacks...)
	return b
}

type Store struct {
	mu   sync.Mutex
	data *data
}

func NewStore() *Store {
	return &Store{data: newData()}
}

// InTx implements repository.Store. fn sees a private copy of the data; the
// copy is published only if fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, r repository.Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := s.data.clone()
	if err := fn(ctx, repos{tx: tx}); err != nil {
		return err
	}

	s.data = tx
	return nil
}

// Repos implements repository.Store. Each call runs on its own under the store lock.
func (s *Store) Repos() repository.Repos {
	return repos{store: s}
}

type repos struct {
	store *Store
	tx    *data
}

// do runs fn against the transaction's data, or against the live data under
// the store lock when there is no transaction.
func (r repos) do(fn func(d *data) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return fn(r.store.data)
}

func (r repos) Catalog() repository.CatalogRepository      { return catalogRepo{r} }
func (r repos) SeatStates() repository.SeatStateRepository { return seatStateRepo{r} }
func (r repos) Bookings() repository.BookingRepository     { return bookingRepo{r} }
func (r repos) Inventory() repository.InventoryRepository  { return inventoryRepo{r} }

// PutSeatState writes a seat-state row as is, bypassing every transition
// guard. It exists for fixtures.
func (s *Store) PutSeatState(st domain.SeatState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.states[stateKey{st.ShowtimeID, st.SeatID}] = st
}
