package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-cinema/internal/domain"
	"github.com/kirinyoku/tix-cinema/internal/repository"
)

type catalogRepo struct{ repos }

func (r catalogRepo) GetShowtime(_ context.Context, showtimeID int64) (*domain.Showtime, error) {
	const op = "memory.CatalogRepo.GetShowtime"

	var out *domain.Showtime
	err := r.do(func(d *data) error {
		st, ok := d.showtimes[showtimeID]
		if !ok {
			return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
		}
		out = &st
		return nil
	})

	return out, err
}

func (r catalogRepo) SeatsByRefs(_ context.Context, theaterID int64, refs []domain.SeatRef) ([]domain.Seat, error) {
	var out []domain.Seat
	_ = r.do(func(d *data) error {
		for _, s := range d.seats {
			if s.TheaterID != theaterID {
				continue
			}
			for _, ref := range refs {
				if ref.Matches(s) {
					out = append(out, s)
					break
				}
			}
		}
		return nil
	})

	domain.SortSeats(out)
	return out, nil
}

func (r catalogRepo) Snacks(_ context.Context, ids []int64) (map[int64]domain.Snack, error) {
	out := make(map[int64]domain.Snack, len(ids))
	_ = r.do(func(d *data) error {
		for _, id := range ids {
			if s, ok := d.snacks[id]; ok {
				out[id] = s
			}
		}
		return nil
	})

	return out, nil
}

type seatStateRepo struct{ repos }

func (r seatStateRepo) EnsureRows(_ context.Context, showtimeID int64, seatIDs []int64) error {
	const op = "memory.SeatStateRepo.EnsureRows"

	return r.do(func(d *data) error {
		for _, id := range seatIDs {
			if _, ok := d.seats[id]; !ok {
				return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
			}
			k := stateKey{showtimeID, id}
			if _, ok := d.states[k]; !ok {
				d.states[k] = domain.SeatState{ShowtimeID: showtimeID, SeatID: id, Status: domain.SeatAvailable}
			}
		}
		return nil
	})
}

// LockRows returns the rows in seat order. Transactions are already serialised,
// so there is nothing else to lock.
func (r seatStateRepo) LockRows(_ context.Context, showtimeID int64, seatIDs []int64) ([]domain.SeatState, error) {
	var out []domain.SeatState
	_ = r.do(func(d *data) error {
		for _, id := range seatIDs {
			if st, ok := d.states[stateKey{showtimeID, id}]; ok {
				out = append(out, st)
			}
		}
		return nil
	})

	sort.Slice(out, func(i, j int) bool { return out[i].SeatID < out[j].SeatID })
	return out, nil
}

// update applies fn to every existing row among seatIDs for which match holds
// and returns how many rows changed.
func (r seatStateRepo) update(
	showtimeID int64,
	seatIDs []int64,
	match func(domain.SeatState) bool,
	apply func(*domain.SeatState),
) int64 {
	var n int64
	_ = r.do(func(d *data) error {
		for _, id := range seatIDs {
			k := stateKey{showtimeID, id}
			st, ok := d.states[k]
			if !ok || !match(st) {
				continue
			}
			apply(&st)
			d.states[k] = st
			n++
		}
		return nil
	})
	return n
}

func (r seatStateRepo) MarkHeld(
	_ context.Context,
	showtimeID int64,
	seatIDs []int64,
	heldUntil, now time.Time,
) (int64, error) {
	return r.update(showtimeID, seatIDs,
		func(st domain.SeatState) bool {
			return st.Status == domain.SeatAvailable ||
				(st.Status == domain.SeatHeld && !st.ActiveHold(now))
		},
		func(st *domain.SeatState) {
			hu := heldUntil
			st.Status = domain.SeatHeld
			st.HeldUntil = &hu
		},
	), nil
}

func (r seatStateRepo) MarkSold(_ context.Context, showtimeID int64, seatIDs []int64, now time.Time) (int64, error) {
	return r.update(showtimeID, seatIDs,
		func(st domain.SeatState) bool { return st.ActiveHold(now) },
		func(st *domain.SeatState) {
			st.Status = domain.SeatSold
			st.HeldUntil = nil
		},
	), nil
}

func (r seatStateRepo) ReleaseHeld(_ context.Context, showtimeID int64, seatIDs []int64) (int64, error) {
	return r.update(showtimeID, seatIDs,
		func(st domain.SeatState) bool { return st.Status == domain.SeatHeld },
		release,
	), nil
}

func (r seatStateRepo) ReleaseSold(_ context.Context, showtimeID int64, seatIDs []int64) (int64, error) {
	return r.update(showtimeID, seatIDs,
		func(st domain.SeatState) bool { return st.Status == domain.SeatSold },
		release,
	), nil
}

func release(st *domain.SeatState) {
	st.Status = domain.SeatAvailable
	st.HeldUntil = nil
}

func (r seatStateRepo) SweepExpired(_ context.Context, now time.Time, limit int) ([]domain.SeatState, error) {
	var out []domain.SeatState
	_ = r.do(func(d *data) error {
		var keys []stateKey
		for k, st := range d.states {
			if st.Status == domain.SeatHeld && !st.ActiveHold(now) {
				keys = append(keys, k)
			}
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].showtimeID != keys[j].showtimeID {
				return keys[i].showtimeID < keys[j].showtimeID
			}
			return keys[i].seatID < keys[j].seatID
		})
		if limit > 0 && len(keys) > limit {
			keys = keys[:limit]
		}

		for _, k := range keys {
			st := d.states[k]
			release(&st)
			d.states[k] = st
			out = append(out, st)
		}
		return nil
	})

	return out, nil
}

func (r seatStateRepo) SeatMap(_ context.Context, showtimeID, theaterID int64) ([]domain.SeatWithStatus, error) {
	var out []domain.SeatWithStatus
	_ = r.do(func(d *data) error {
		for _, s := range d.seats {
			if s.TheaterID != theaterID {
				continue
			}
			sw := domain.SeatWithStatus{Seat: s, Label: s.Label(), Status: domain.SeatAvailable}
			if st, ok := d.states[stateKey{showtimeID, s.ID}]; ok {
				sw.Status = st.Status
				if st.HeldUntil != nil {
					hu := *st.HeldUntil
					sw.HeldUntil = &hu
				}
			}
			out = append(out, sw)
		}
		return nil
	})

	sort.Slice(out, func(i, j int) bool {
		if out[i].Row != out[j].Row {
			return out[i].Row < out[j].Row
		}
		return out[i].Number < out[j].Number
	})
	return out, nil
}

type bookingRepo struct{ repos }

func (r bookingRepo) Create(_ context.Context, b *domain.Booking) error {
	const op = "memory.BookingRepo.Create"

	return r.do(func(d *data) error {
		if _, ok := d.refs[b.Ref]; ok {
			return fmt.Errorf("%s:%w", op, repository.ErrConflict)
		}
		if _, ok := d.showtimes[b.ShowtimeID]; !ok {
			return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
		}
		if b.ID == uuid.Nil {
			b.ID = uuid.New()
		}
		d.bookings[b.ID] = copyBooking(*b)
		d.refs[b.Ref] = b.ID
		return nil
	})
}

func (r bookingRepo) GetByRef(_ context.Context, ref string) (*domain.Booking, error) {
	const op = "memory.BookingRepo.GetByRef"

	var out *domain.Booking
	err := r.do(func(d *data) error {
		id, ok := d.refs[ref]
		if !ok {
			return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
		}
		b := copyBooking(d.bookings[id])
		out = &b
		return nil
	})

	return out, err
}

func (r bookingRepo) GetByRefForUpdate(ctx context.Context, ref string) (*domain.Booking, error) {
	return r.GetByRef(ctx, ref)
}

func (r bookingRepo) ListByUser(_ context.Context, userID int64, limit, offset int) ([]domain.Booking, error) {
	var out []domain.Booking
	_ = r.do(func(d *data) error {
		for _, b := range d.bookings {
			if b.UserID == userID {
				out = append(out, copyBooking(b))
			}
		}
		return nil
	})

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Ref < out[j].Ref
	})

	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (r bookingRepo) SetStatus(_ context.Context, id uuid.UUID, status domain.BookingStatus) error {
	const op = "memory.BookingRepo.SetStatus"

	return r.do(func(d *data) error {
		b, ok := d.bookings[id]
		if !ok {
			return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
		}
		b.Status = status
		d.bookings[id] = b
		return nil
	})
}

type inventoryRepo struct{ repos }

func (r inventoryRepo) CreateTheater(_ context.Context, name string) (int64, error) {
	const op = "memory.InventoryRepo.CreateTheater"

	var id int64
	err := r.do(func(d *data) error {
		for _, t := range d.theaters {
			if t.Name == name {
				return fmt.Errorf("%s:%w", op, repository.ErrConflict)
			}
		}
		id = d.nextID()
		d.theaters[id] = domain.Theater{ID: id, Name: name}
		return nil
	})

	return id, err
}

func (r inventoryRepo) BatchCreateSeats(_ context.Context, theaterID int64, seats []domain.Seat) (int64, error) {
	const op = "memory.InventoryRepo.BatchCreateSeats"

	var n int64
	err := r.do(func(d *data) error {
		if _, ok := d.theaters[theaterID]; !ok {
			return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
		}

		existing := make(map[string]struct{})
		for _, s := range d.seats {
			if s.TheaterID == theaterID {
				existing[s.Label()] = struct{}{}
			}
		}

		for _, s := range seats {
			s.TheaterID = theaterID
			if _, ok := existing[s.Label()]; ok {
				continue
			}
			s.ID = d.nextID()
			d.seats[s.ID] = s
			existing[s.Label()] = struct{}{}
			n++
		}
		return nil
	})

	return n, err
}

func (r inventoryRepo) CreateShowtime(_ context.Context, theaterID int64, startsAt, endsAt time.Time) (int64, error) {
	const op = "memory.InventoryRepo.CreateShowtime"

	var id int64
	err := r.do(func(d *data) error {
		if _, ok := d.theaters[theaterID]; !ok {
			return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
		}
		id = d.nextID()
		d.showtimes[id] = domain.Showtime{ID: id, TheaterID: theaterID, StartsAt: startsAt, EndsAt: endsAt}
		return nil
	})

	return id, err
}

func (r inventoryRepo) UpsertSnack(_ context.Context, s domain.Snack) (int64, error) {
	_ = r.do(func(d *data) error {
		if s.ID <= 0 {
			s.ID = d.nextID()
		} else if s.ID > d.lastID {
			d.lastID = s.ID
		}
		d.snacks[s.ID] = s
		return nil
	})

	return s.ID, nil
}

func (r inventoryRepo) InitShowtimeSeats(_ context.Context, showtimeID int64) (int64, error) {
	const op = "memory.InventoryRepo.InitShowtimeSeats"

	var n int64
	err := r.do(func(d *data) error {
		st, ok := d.showtimes[showtimeID]
		if !ok {
			return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
		}
		for _, s := range d.seats {
			if s.TheaterID != st.TheaterID {
				continue
			}
			k := stateKey{showtimeID, s.ID}
			if _, ok := d.states[k]; ok {
				continue
			}
			d.states[k] = domain.SeatState{ShowtimeID: showtimeID, SeatID: s.ID, Status: domain.SeatAvailable}
			n++
		}
		return nil
	})

	return n, err
}
