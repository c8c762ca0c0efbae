package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirinyoku/tix-cinema/internal/domain"
	"github.com/kirinyoku/tix-cinema/internal/repository"
	"github.com/kirinyoku/tix-cinema/internal/service/catalog"
	"github.com/kirinyoku/tix-cinema/internal/uow"
)

var (
	ErrTheaterConflict  = errors.New("theater already exists")
	ErrTheaterNotFound  = errors.New("theater not found")
	ErrInvalidShowtime  = errors.New("showtime must end after it starts")
	ErrInvalidSeatLabel = errors.New("seat row must be letters or digits and number must be positive")
)

type Service struct {
	store   repository.Store
	uow     *uow.UoW
	changes *catalog.Changes
}

func New(store repository.Store, u *uow.UoW, changes *catalog.Changes) *Service {
	return &Service{
		store:   store,
		uow:     u,
		changes: changes,
	}
}

// CreateTheater creates a theater and returns its ID.
//
// Returns:
//   - error: inventory.ErrTheaterConflict if the name is taken.
func (s *Service) CreateTheater(ctx context.Context, name string) (int64, error) {
	const op = "service.inventory.CreateTheater"

	name = strings.TrimSpace(name)
	if name == "" {
		return 0, domain.ValidationError{Field: "name", Reason: "must not be empty"}
	}

	id, err := s.store.Repos().Inventory().CreateTheater(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return 0, fmt.Errorf("%s: %w: %w", op, domain.ErrConflict, ErrTheaterConflict)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

// RegisterSeats adds seats to a theater's layout. Seats that already exist
// are skipped, so the call can be repeated with an extended layout.
//
// Parameters:
//   - ctx: request-scoped context.
//   - theaterID: theater the seats belong to.
//   - seats: row label and number of each seat; rows are upper-cased.
//
// Returns:
//   - int64: how many seats were created.
//   - error: inventory.ErrTheaterNotFound if the theater does not exist.
func (s *Service) RegisterSeats(ctx context.Context, theaterID int64, seats []domain.Seat) (int64, error) {
	const op = "service.inventory.RegisterSeats"

	if len(seats) == 0 {
		return 0, domain.ValidationError{Field: "seats", Reason: "at least one seat is required"}
	}

	norm := make([]domain.Seat, len(seats))
	for i, seat := range seats {
		ref, err := domain.ParseSeatRef(fmt.Sprintf("%s_%d", strings.TrimSpace(seat.Row), seat.Number))
		if err != nil || ref.IsID() || seat.Number <= 0 {
			return 0, fmt.Errorf("%s: %w: %w", op, domain.ValidationError{
				Field:  "seats",
				Reason: fmt.Sprintf("row %q number %d", seat.Row, seat.Number),
			}, ErrInvalidSeatLabel)
		}
		norm[i] = domain.Seat{TheaterID: theaterID, Row: ref.Row, Number: ref.Number}
	}

	var created int64
	err := s.uow.Do(ctx, func(ctx context.Context, r repository.Repos, after func(uow.AfterCommit)) error {
		n, err := r.Inventory().BatchCreateSeats(ctx, theaterID, norm)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s: %w: %w", op, domain.ErrNotFound, ErrTheaterNotFound)
			}
			return fmt.Errorf("%s: %w", op, err)
		}
		created = n
		return nil
	})

	return created, err
}

// CreateShowtime schedules a showtime. With initSeats every seat of the
// theater gets its seat-state row immediately instead of on first touch.
func (s *Service) CreateShowtime(
	ctx context.Context,
	theaterID int64,
	startsAt, endsAt time.Time,
	initSeats bool,
) (int64, error) {
	const op = "service.inventory.CreateShowtime"

	if !endsAt.After(startsAt) {
		return 0, fmt.Errorf("%s: %w: %w", op,
			domain.ValidationError{Field: "ends_at", Reason: "must be after starts_at"}, ErrInvalidShowtime)
	}

	var showtimeID int64
	err := s.uow.Do(ctx, func(ctx context.Context, r repository.Repos, after func(uow.AfterCommit)) error {
		id, err := r.Inventory().CreateShowtime(ctx, theaterID, startsAt.UTC(), endsAt.UTC())
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s: %w: %w", op, domain.ErrNotFound, ErrTheaterNotFound)
			}
			return fmt.Errorf("%s: %w", op, err)
		}
		showtimeID = id

		if initSeats {
			if _, err := r.Inventory().InitShowtimeSeats(ctx, id); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}

		return nil
	})

	return showtimeID, err
}

// InitShowtimeSeats eagerly creates the showtime's seat-state rows and
// returns how many were added.
func (s *Service) InitShowtimeSeats(ctx context.Context, showtimeID int64) (int64, error) {
	const op = "service.inventory.InitShowtimeSeats"

	var n int64
	err := s.uow.Do(ctx, func(ctx context.Context, r repository.Repos, after func(uow.AfterCommit)) error {
		if _, err := catalog.Showtime(ctx, r, showtimeID); err != nil {
			return err
		}

		added, err := r.Inventory().InitShowtimeSeats(ctx, showtimeID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		n = added

		if added > 0 {
			after(func(ctx context.Context) {
				s.changes.Announce(ctx, showtimeID)
			})
		}

		return nil
	})

	return n, err
}

// UpsertSnack creates or updates a snack in the catalog used to price booking snack lines.
func (s *Service) UpsertSnack(ctx context.Context, snack domain.Snack) (int64, error) {
	const op = "service.inventory.UpsertSnack"

	snack.Name = strings.TrimSpace(snack.Name)
	if snack.Name == "" {
		return 0, domain.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if snack.Price < 0 {
		return 0, domain.ValidationError{Field: "price", Reason: "must not be negative"}
	}

	id, err := s.store.Repos().Inventory().UpsertSnack(ctx, snack)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}
