// Package sweeper periodically releases holds whose expiry has passed.
// Correctness never depends on it: readers and the finalizer evaluate
// held_until themselves. It keeps stored states tidy for queries that do not.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/tix-cinema/internal/repository"
	"github.com/kirinyoku/tix-cinema/internal/service/catalog"
	"github.com/kirinyoku/tix-cinema/internal/uow"
)

type Config struct {
	Interval  time.Duration
	BatchSize int
	// Now is the sweeper clock; time.Now when nil.
	Now func() time.Time
}

type Sweeper struct {
	uow     *uow.UoW
	changes *catalog.Changes
	log     *slog.Logger
	cfg     Config
}

func New(u *uow.UoW, changes *catalog.Changes, log *slog.Logger, cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Sweeper{
		uow:     u,
		changes: changes,
		log:     log,
		cfg:     cfg,
	}
}

// Run sweeps once immediately and then every Interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.log.Info("expiry sweeper started",
		slog.Duration("interval", s.cfg.Interval),
		slog.Int("batch_size", s.cfg.BatchSize),
	)

	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("expiry sweep failed", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			s.log.Info("expiry sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep releases every hold that lapsed at or before now, one batch per
// transaction, until a batch comes back short. It returns how many seats
// were released.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	const op = "service.sweeper.Sweep"

	now := s.cfg.Now().UTC()
	total := 0

	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		var released int

		err := s.uow.Do(ctx, func(ctx context.Context, r repository.Repos, after func(uow.AfterCommit)) error {
			states, err := r.SeatStates().SweepExpired(ctx, now, s.cfg.BatchSize)
			if err != nil {
				return err
			}
			released = len(states)

			showtimes := make(map[int64]int)
			for _, st := range states {
				showtimes[st.ShowtimeID]++
			}

			after(func(ctx context.Context) {
				for id, n := range showtimes {
					s.log.Debug("expired holds released",
						slog.Int64("showtime_id", id), slog.Int("seats", n))
					s.changes.Announce(ctx, id)
				}
			})

			return nil
		})
		if err != nil {
			return total, fmt.Errorf("%s:%w", op, err)
		}

		total += released

		if released < s.cfg.BatchSize {
			break
		}
	}

	if total > 0 {
		s.log.Info("expired holds released", slog.Int("seats", total))
	}

	return total, nil
}
