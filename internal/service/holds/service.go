// Package holds is the lock manager: it places and releases temporary holds
// on a showtime's seats.
package holds

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

type Config struct {
	MinMinutes     int
	MaxMinutes     int
	DefaultMinutes int
	// Now is the service clock; time.Now when nil.
	Now func() time.Time
}

type Service struct {
	uow     *uow.UoW
	changes *catalog.Changes
	log     *slog.Logger
	cfg     Config
}

func New(u *uow.UoW, changes *catalog.Changes, log *slog.Logger, cfg Config) *Service {
	if cfg.MinMinutes <= 0 {
		cfg.MinMinutes = 5
	}

	if cfg.MaxMinutes <= 0 || cfg.MaxMinutes < cfg.MinMinutes {
		cfg.MaxMinutes = 15
	}

	if cfg.DefaultMinutes < cfg.MinMinutes || cfg.DefaultMinutes > cfg.MaxMinutes {
		cfg.DefaultMinutes = min(max(10, cfg.MinMinutes), cfg.MaxMinutes)
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Service{
		uow:     u,
		changes: changes,
		log:     log,
		cfg:     cfg,
	}
}

// HoldDuration validates a requested hold length. Zero selects the default.
func (s *Service) HoldDuration(minutes int) (time.Duration, error) {
	if minutes == 0 {
		minutes = s.cfg.DefaultMinutes
	}

	if minutes < s.cfg.MinMinutes || minutes > s.cfg.MaxMinutes {
		return 0, domain.InvalidHoldDurationError{
			Minutes: minutes,
			Min:     s.cfg.MinMinutes,
			Max:     s.cfg.MaxMinutes,
		}
	}

	return time.Duration(minutes) * time.Minute, nil
}

// AcquireHold holds every requested seat until now+minutes, or none of them.
//
// Parameters:
//   - ctx: request-scoped context.
//   - showtimeID: showtime the seats are requested for.
//   - refs: seat ids or row/number labels within the showtime's theater.
//   - minutes: hold length; 0 selects the configured default.
//
// Returns:
//   - *domain.Hold: the held seats in ascending id order and their expiry.
//   - error: domain.SeatAlreadySoldError or domain.SeatAlreadyHeldError naming
//     the first blocking seat; domain.SeatNotFoundError, domain.ShowtimeNotFoundError
//     or domain.InvalidHoldDurationError for bad input; domain.ErrRetryable when
//     the store kept failing transiently.
func (s *Service) AcquireHold(
	ctx context.Context,
	showtimeID int64,
	refs []domain.SeatRef,
	minutes int,
) (*domain.Hold, error) {
	const op = "service.holds.AcquireHold"

	ttl, err := s.HoldDuration(minutes)
	if err != nil {
		return nil, err
	}

	now := s.cfg.Now().UTC()
	heldUntil := now.Add(ttl)

	var hold *domain.Hold

	err = s.uow.Do(ctx, func(
		ctx context.Context,
		r repository.Repos,
		after func(uow.AfterCommit),
	) error {
		_, seats, err := catalog.Resolve(ctx, r, showtimeID, refs)
		if err != nil {
			return err
		}

		ids := domain.SeatIDs(seats)

		if err := r.SeatStates().EnsureRows(ctx, showtimeID, ids); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		states, err := r.SeatStates().LockRows(ctx, showtimeID, ids)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		if err := domain.CheckHoldable(seats, domain.StatesBySeat(states), now); err != nil {
			return err
		}

		n, err := r.SeatStates().MarkHeld(ctx, showtimeID, ids, heldUntil, now)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		if n != int64(len(ids)) {
			return fmt.Errorf("%s: held %d of %d seats: %w", op, n, len(ids), repository.ErrStateChanged)
		}

		labels := make([]string, len(seats))
		for i, seat := range seats {
			labels[i] = seat.Label()
		}

		hold = &domain.Hold{
			ShowtimeID: showtimeID,
			SeatIDs:    ids,
			Seats:      labels,
			HeldUntil:  heldUntil,
		}

		after(func(ctx context.Context) {
			s.changes.Announce(ctx, showtimeID)
		})

		return nil
	})
	if err != nil {
		s.logInternal(op, showtimeID, err)
		return nil, err
	}

	return hold, nil
}

// Release returns the seats that are currently held to available and reports
// how many were released. Available and sold seats are left as they are, so
// repeating a release is harmless.
func (s *Service) Release(ctx context.Context, showtimeID int64, refs []domain.SeatRef) (int64, error) {
	const op = "service.holds.Release"

	var released int64

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		r repository.Repos,
		after func(uow.AfterCommit),
	) error {
		_, seats, err := catalog.Resolve(ctx, r, showtimeID, refs)
		if err != nil {
			return err
		}

		ids := domain.SeatIDs(seats)

		if _, err := r.SeatStates().LockRows(ctx, showtimeID, ids); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		n, err := r.SeatStates().ReleaseHeld(ctx, showtimeID, ids)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		released = n

		if n > 0 {
			after(func(ctx context.Context) {
				s.changes.Announce(ctx, showtimeID)
			})
		}

		return nil
	})
	if err != nil {
		s.logInternal(op, showtimeID, err)
		return 0, err
	}

	return released, nil
}

func (s *Service) logInternal(op string, showtimeID int64, err error) {
	var corrupt domain.CorruptSeatStateError
	if errors.As(err, &corrupt) {
		s.log.Error("corrupt seat state",
			slog.String("op", op),
			slog.Int64("showtime_id", corrupt.ShowtimeID),
			slog.Int64("seat_id", corrupt.SeatID),
			slog.String("status", string(corrupt.Status)),
		)
		return
	}

	if errors.Is(err, domain.ErrRetryable) {
		s.log.Warn("seat transaction retries exhausted",
			slog.String("op", op),
			slog.Int64("showtime_id", showtimeID),
			slog.Any("error", err),
		)
	}
}
