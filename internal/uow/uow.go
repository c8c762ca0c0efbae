package uow

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/kirinyoku/tix-cinema/internal/domain"
	"github.com/kirinyoku/tix-cinema/internal/repository"
)

// AfterCommit is a function that runs after a successful transaction commit.
type AfterCommit func(ctx context.Context)

// Work is the body of a unit of work. It receives repositories bound to the
// transaction and registers after-commit hooks through after.
type Work func(ctx context.Context, r repository.Repos, after func(AfterCommit)) error

type Options struct {
	// MaxAttempts bounds how often a transiently failing transaction is run.
	MaxAttempts int
	// BaseDelay is the backoff before the second attempt; it doubles per attempt.
	BaseDelay time.Duration
	// MaxDelay caps a single backoff.
	MaxDelay time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxAttempts: 3,
		BaseDelay:   25 * time.Millisecond,
		MaxDelay:    400 * time.Millisecond,
	}
}

// UoW represents a unit of work.
type UoW struct {
	store repository.Store
	opts  Options
	sleep func(ctx context.Context, d time.Duration) error
}

func NewUoW(store repository.Store, opts Options) *UoW {
	def := DefaultOptions()
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = def.BaseDelay
	}
	if opts.MaxDelay < opts.BaseDelay {
		opts.MaxDelay = opts.BaseDelay * 16
	}

	return &UoW{store: store, opts: opts, sleep: sleepCtx}
}

// Do runs fn inside a transaction. A failure matching repository.ErrTransient
// or repository.ErrStateChanged rolls back and reruns fn after a backoff; once
// the attempts are used up the error also matches domain.ErrRetryable.
// After a successful commit it executes the hooks registered by the
// successful attempt, in order.
func (u *UoW) Do(ctx context.Context, fn Work) error {
	const op = "uow.Do"

	var err error
	for attempt := 1; ; attempt++ {
		var hooks []AfterCommit

		err = u.store.InTx(ctx, func(ctx context.Context, r repository.Repos) error {
			return fn(ctx, r, func(h AfterCommit) {
				hooks = append(hooks, h)
			})
		})
		if err == nil {
			for _, h := range hooks {
				h(ctx)
			}
			return nil
		}

		if !Retryable(err) {
			return err
		}

		if attempt >= u.opts.MaxAttempts {
			break
		}

		if serr := u.sleep(ctx, u.backoff(attempt)); serr != nil {
			return fmt.Errorf("%s: %w", op, serr)
		}
	}

	return fmt.Errorf("%s: %d attempts: %w: %w", op, u.opts.MaxAttempts, domain.ErrRetryable, err)
}

// Retryable reports whether a failed transaction may succeed when rerun.
func Retryable(err error) bool {
	return errors.Is(err, repository.ErrTransient) || errors.Is(err, repository.ErrStateChanged)
}

// backoff returns base * 2^(attempt-1) with ±25% jitter, capped at MaxDelay.
func (u *UoW) backoff(attempt int) time.Duration {
	d := u.opts.BaseDelay << (attempt - 1)
	if d <= 0 || d > u.opts.MaxDelay {
		d = u.opts.MaxDelay
	}

	if quarter := int64(d / 4); quarter > 0 {
		d += time.Duration(rand.Int64N(2*quarter+1) - quarter)
	}

	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
