package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-cinema/internal/domain"
)

// Store runs units of work against the seat-state authority.
type Store interface {
	// InTx runs fn inside one transaction and commits when fn returns nil.
	InTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
	// Repos returns repositories that run outside of any transaction.
	Repos() Repos
}

// Repos is the set of repositories bound to one handle.
type Repos interface {
	Catalog() CatalogRepository
	SeatStates() SeatStateRepository
	Bookings() BookingRepository
	Inventory() InventoryRepository
}

// CatalogRepository reads the reference data owned by the CRUD layer.
type CatalogRepository interface {
	GetShowtime(ctx context.Context, showtimeID int64) (*domain.Showtime, error)
	// SeatsByRefs returns the seats of the theater matching any of refs, ordered by id.
	SeatsByRefs(ctx context.Context, theaterID int64, refs []domain.SeatRef) ([]domain.Seat, error)
	Snacks(ctx context.Context, ids []int64) (map[int64]domain.Snack, error)
}

// SeatStateRepository owns showtime_seats. Mutating methods take seat ids in
// ascending order and are called only from the hold, booking and sweeper services.
type SeatStateRepository interface {
	// EnsureRows lazily creates available rows for seats that have none yet.
	EnsureRows(ctx context.Context, showtimeID int64, seatIDs []int64) error
	// LockRows row-locks the seats in ascending id order and returns their states.
	LockRows(ctx context.Context, showtimeID int64, seatIDs []int64) ([]domain.SeatState, error)
	// MarkHeld moves available or lapsed seats to held.
	MarkHeld(ctx context.Context, showtimeID int64, seatIDs []int64, heldUntil, now time.Time) (int64, error)
	// MarkSold moves actively held seats to sold.
	MarkSold(ctx context.Context, showtimeID int64, seatIDs []int64, now time.Time) (int64, error)
	// ReleaseHeld moves held seats back to available; other seats are untouched.
	ReleaseHeld(ctx context.Context, showtimeID int64, seatIDs []int64) (int64, error)
	// ReleaseSold moves sold seats back to available (booking cancellation only).
	ReleaseSold(ctx context.Context, showtimeID int64, seatIDs []int64) (int64, error)
	// SweepExpired releases up to limit lapsed holds, skipping rows locked by other transactions.
	SweepExpired(ctx context.Context, now time.Time, limit int) ([]domain.SeatState, error)
	// SeatMap lists every seat of the theater with its stored state for the showtime.
	SeatMap(ctx context.Context, showtimeID, theaterID int64) ([]domain.SeatWithStatus, error)
}

type BookingRepository interface {
	// Create inserts the booking with its seat and snack lines.
	Create(ctx context.Context, b *domain.Booking) error
	GetByRef(ctx context.Context, ref string) (*domain.Booking, error)
	// GetByRefForUpdate is GetByRef with the booking row locked.
	GetByRefForUpdate(ctx context.Context, ref string) (*domain.Booking, error)
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.Booking, error)
	SetStatus(ctx context.Context, id uuid.UUID, status domain.BookingStatus) error
}

// InventoryRepository provisions theaters, seats, showtimes, snacks and eager seat-state rows.
type InventoryRepository interface {
	CreateTheater(ctx context.Context, name string) (int64, error)
	// BatchCreateSeats skips seats that already exist and returns how many were inserted.
	BatchCreateSeats(ctx context.Context, theaterID int64, seats []domain.Seat) (int64, error)
	CreateShowtime(ctx context.Context, theaterID int64, startsAt, endsAt time.Time) (int64, error)
	UpsertSnack(ctx context.Context, s domain.Snack) (int64, error)
	// InitShowtimeSeats creates an available row for every seat of the showtime's theater that has none.
	InitShowtimeSeats(ctx context.Context, showtimeID int64) (int64, error)
}
