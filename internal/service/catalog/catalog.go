// Package catalog resolves showtimes and seat references for the seat-state
// services and announces committed seat-map changes.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirinyoku/tix-cinema/internal/domain"
	"github.com/kirinyoku/tix-cinema/internal/repository"
)

// Showtime loads a showtime, mapping a missing row to domain.ShowtimeNotFoundError.
func Showtime(ctx context.Context, r repository.Repos, showtimeID int64) (*domain.Showtime, error) {
	const op = "service.catalog.Showtime"

	if showtimeID <= 0 {
		return nil, domain.ShowtimeNotFoundError{ShowtimeID: showtimeID}
	}

	st, err := r.Catalog().GetShowtime(ctx, showtimeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ShowtimeNotFoundError{ShowtimeID: showtimeID}
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return st, nil
}

// Resolve loads the showtime and the seats refs name within its theater.
// Repeated refs collapse to one seat. Every ref must resolve, otherwise the
// error lists all that did not. Seats are returned in ascending id order.
func Resolve(
	ctx context.Context,
	r repository.Repos,
	showtimeID int64,
	refs []domain.SeatRef,
) (*domain.Showtime, []domain.Seat, error) {
	const op = "service.catalog.Resolve"

	refs = domain.UniqueRefs(refs)
	if len(refs) == 0 {
		return nil, nil, domain.ValidationError{Field: "seats", Reason: "at least one seat is required"}
	}

	st, err := Showtime(ctx, r, showtimeID)
	if err != nil {
		return nil, nil, err
	}

	seats, err := r.Catalog().SeatsByRefs(ctx, st.TheaterID, refs)
	if err != nil {
		return nil, nil, fmt.Errorf("%s:%w", op, err)
	}

	var missing []domain.SeatRef
	for _, ref := range refs {
		found := false
		for _, s := range seats {
			if ref.Matches(s) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, ref)
		}
	}
	if len(missing) > 0 {
		return nil, nil, domain.SeatNotFoundError{ShowtimeID: showtimeID, Refs: missing}
	}

	domain.SortSeats(seats)

	return st, seats, nil
}

type Invalidator interface {
	InvalidateShowtime(ctx context.Context, showtimeID int64) error
}

type Publisher interface {
	PublishSeatMapChanged(ctx context.Context, showtimeID int64) error
}

// Changes drops cached seat maps and publishes a change message once a seat
// mutation has committed. Either side may be nil. Failures are logged only:
// cached views carry a short TTL and readers re-evaluate hold expiry.
type Changes struct {
	cache Invalidator
	pub   Publisher
	log   *slog.Logger
}

func NewChanges(cache Invalidator, pub Publisher, log *slog.Logger) *Changes {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Changes{cache: cache, pub: pub, log: log}
}

func (c *Changes) Announce(ctx context.Context, showtimeID int64) {
	if c == nil {
		return
	}

	if c.cache != nil {
		if err := c.cache.InvalidateShowtime(ctx, showtimeID); err != nil {
			c.log.Warn("seat map cache invalidation failed",
				slog.Int64("showtime_id", showtimeID), slog.Any("error", err))
		}
	}

	if c.pub != nil {
		if err := c.pub.PublishSeatMapChanged(ctx, showtimeID); err != nil {
			c.log.Warn("seat map change publish failed",
				slog.Int64("showtime_id", showtimeID), slog.Any("error", err))
		}
	}
}
