// Package booking is the booking finalizer: it turns active holds into sales
// and owns the booking records it creates.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/tix-cinema/internal/domain"
	"github.com/kirinyoku/tix-cinema/internal/repository"
	"github.com/kirinyoku/tix-cinema/internal/service/catalog"
	"github.com/kirinyoku/tix-cinema/internal/uow"
)

// Dispatcher receives booking events after commit. It must not block for long
// and reports failures on its own.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev domain.BookingEvent)
}

type Config struct {
	DefaultPageSize int
	MaxPageSize     int
	// Now is the service clock; time.Now when nil.
	Now func() time.Time
}

type Service struct {
	store    repository.Store
	uow      *uow.UoW
	changes  *catalog.Changes
	dispatch Dispatcher
	log      *slog.Logger
	cfg      Config
}

func New(
	store repository.Store,
	u *uow.UoW,
	changes *catalog.Changes,
	dispatch Dispatcher,
	log *slog.Logger,
	cfg Config,
) *Service {
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 20
	}

	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Service{
		store:    store,
		uow:      u,
		changes:  changes,
		dispatch: dispatch,
		log:      log,
		cfg:      cfg,
	}
}

// FinalizeInput is a sale of held seats. TotalPrice covers seats and snacks;
// the seat share is TotalPrice minus the snack total. Without Lines the seat
// share is split evenly.
type FinalizeInput struct {
	ShowtimeID int64
	UserID     int64
	Seats      []domain.SeatRef
	TotalPrice int64
	Lines      []domain.PriceLine
	Snacks     []domain.SnackOrder
}

func (in FinalizeInput) validate() error {
	if in.UserID <= 0 {
		return domain.ValidationError{Field: "user_id", Reason: "must be positive"}
	}
	if in.TotalPrice < 0 {
		return domain.ValidationError{Field: "total_price", Reason: "must not be negative"}
	}
	return nil
}

// Finalize sells the requested seats if every one of them is still actively
// held, and records the booking with one line per seat.
//
// Parameters:
//   - ctx: request-scoped context.
//   - in: showtime, buyer, seats and price allocation.
//
// Returns:
//   - *domain.Booking: the confirmed booking with its seat and snack lines.
//   - error: domain.HoldExpiredOrMissingError naming the first seat without an
//     active hold; domain.ValidationError for inconsistent prices or snacks;
//     domain.SeatNotFoundError or domain.ShowtimeNotFoundError for unknown
//     identifiers; domain.ErrRetryable when the store kept failing transiently.
func (s *Service) Finalize(ctx context.Context, in FinalizeInput) (*domain.Booking, error) {
	const op = "service.booking.Finalize"

	if err := in.validate(); err != nil {
		return nil, err
	}

	snackOrders, err := domain.MergeSnackOrders(in.Snacks)
	if err != nil {
		return nil, err
	}
	now := s.cfg.Now().UTC()

	var booking *domain.Booking

	err = s.uow.Do(ctx, func(
		ctx context.Context,
		r repository.Repos,
		after func(uow.AfterCommit),
	) error {
		_, seats, err := catalog.Resolve(ctx, r, in.ShowtimeID, in.Seats)
		if err != nil {
			return err
		}

		explicit, err := domain.ExplicitSeatPrices(seats, in.Lines)
		if err != nil {
			return err
		}

		snackCatalog, err := r.Catalog().Snacks(ctx, domain.SnackIDs(snackOrders))
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		snackLines, snackTotal, err := domain.PriceSnacks(snackOrders, snackCatalog)
		if err != nil {
			return err
		}

		seatLines, err := domain.AllocateSeatPrices(seats, in.TotalPrice-snackTotal, explicit)
		if err != nil {
			return err
		}

		ids := domain.SeatIDs(seats)

		states, err := r.SeatStates().LockRows(ctx, in.ShowtimeID, ids)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		if err := domain.CheckFinalizable(seats, domain.StatesBySeat(states), now); err != nil {
			return err
		}

		n, err := r.SeatStates().MarkSold(ctx, in.ShowtimeID, ids, now)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		if n != int64(len(ids)) {
			return fmt.Errorf("%s: sold %d of %d seats: %w", op, n, len(ids), repository.ErrStateChanged)
		}

		ref, err := domain.NewBookingRef()
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		b := &domain.Booking{
			Ref:        ref,
			UserID:     in.UserID,
			ShowtimeID: in.ShowtimeID,
			TotalPrice: in.TotalPrice,
			Status:     domain.BookingConfirmed,
			CreatedAt:  now,
			Seats:      seatLines,
			Snacks:     snackLines,
		}

		if err := r.Bookings().Create(ctx, b); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				// Booking reference collision; the rerun draws a new one.
				return fmt.Errorf("%s: %w: %w", op, repository.ErrTransient, err)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		booking = b

		after(func(ctx context.Context) {
			s.changes.Announce(ctx, in.ShowtimeID)
			if s.dispatch != nil {
				s.dispatch.Dispatch(ctx, domain.NewBookingEvent(domain.BookingEventConfirmed, *b, now))
			}
		})

		return nil
	})
	if err != nil {
		s.logInternal(op, in.ShowtimeID, err)
		return nil, err
	}

	s.log.Info("booking confirmed",
		slog.String("booking_ref", booking.Ref),
		slog.Int64("showtime_id", booking.ShowtimeID),
		slog.Int("seats", len(booking.Seats)),
		slog.Int64("total_price", booking.TotalPrice),
	)

	return booking, nil
}

func (s *Service) Get(ctx context.Context, ref string) (*domain.Booking, error) {
	const op = "service.booking.Get"

	b, err := s.store.Repos().Bookings().GetByRef(ctx, ref)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.BookingNotFoundError{Ref: ref}
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return b, nil
}

// ListByUser returns the user's bookings, newest first.
func (s *Service) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.Booking, error) {
	const op = "service.booking.ListByUser"

	if userID <= 0 {
		return nil, domain.ValidationError{Field: "user_id", Reason: "must be positive"}
	}

	if limit <= 0 {
		limit = s.cfg.DefaultPageSize
	}
	if limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	out, err := s.store.Repos().Bookings().ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if out == nil {
		out = []domain.Booking{}
	}

	return out, nil
}

// Cancel cancels a confirmed booking before its showtime starts and returns
// the sold seats to available. A userID of zero skips the ownership check.
// The booking lines are kept as the record of what was sold.
func (s *Service) Cancel(ctx context.Context, ref string, userID int64) (*domain.Booking, error) {
	const op = "service.booking.Cancel"

	now := s.cfg.Now().UTC()

	var booking *domain.Booking

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		r repository.Repos,
		after func(uow.AfterCommit),
	) error {
		b, err := r.Bookings().GetByRefForUpdate(ctx, ref)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.BookingNotFoundError{Ref: ref}
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		if userID != 0 && b.UserID != userID {
			return domain.BookingNotFoundError{Ref: ref}
		}

		if b.Status != domain.BookingConfirmed {
			return domain.BookingNotCancellableError{Ref: ref, Reason: "booking is " + string(b.Status)}
		}

		st, err := catalog.Showtime(ctx, r, b.ShowtimeID)
		if err != nil {
			return err
		}
		if st.Started(now) {
			return domain.BookingNotCancellableError{Ref: ref, Reason: "showtime has started"}
		}

		ids := b.SeatIDs()

		if _, err := r.SeatStates().LockRows(ctx, b.ShowtimeID, ids); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		n, err := r.SeatStates().ReleaseSold(ctx, b.ShowtimeID, ids)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		if n != int64(len(ids)) {
			return fmt.Errorf("%s: booking %s owns %d seats but only %d were sold: %w",
				op, ref, len(ids), n, domain.ErrInternal)
		}

		if err := r.Bookings().SetStatus(ctx, b.ID, domain.BookingCancelled); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		b.Status = domain.BookingCancelled
		booking = b

		after(func(ctx context.Context) {
			s.changes.Announce(ctx, b.ShowtimeID)
			if s.dispatch != nil {
				s.dispatch.Dispatch(ctx, domain.NewBookingEvent(domain.BookingEventCancelled, *b, now))
			}
		})

		return nil
	})
	if err != nil {
		s.logInternal(op, 0, err)
		return nil, err
	}

	s.log.Info("booking cancelled",
		slog.String("booking_ref", booking.Ref),
		slog.Int64("showtime_id", booking.ShowtimeID),
	)

	return booking, nil
}

func (s *Service) logInternal(op string, showtimeID int64, err error) {
	var corrupt domain.CorruptSeatStateError
	switch {
	case errors.As(err, &corrupt):
		s.log.Error("corrupt seat state",
			slog.String("op", op),
			slog.Int64("showtime_id", corrupt.ShowtimeID),
			slog.Int64("seat_id", corrupt.SeatID),
			slog.String("status", string(corrupt.Status)),
		)
	case errors.Is(err, domain.ErrInternal):
		s.log.Error("booking invariant violated", slog.String("op", op), slog.Any("error", err))
	case errors.Is(err, domain.ErrRetryable):
		s.log.Warn("booking transaction retries exhausted",
			slog.String("op", op),
			slog.Int64("showtime_id", showtimeID),
			slog.Any("error", err),
		)
	}
}
