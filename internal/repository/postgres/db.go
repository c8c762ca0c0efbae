package postgresrepo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/tix-cinema/internal/repository"
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
	}
}

// RunTx runs fn in a transaction. Seat-state work relies on explicit row locks,
// so READ COMMITTED is the default isolation level.
func (s *Store) RunTx(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context, tx DB) error,
) error {
	txOpts := pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	}

	if opts != nil {
		txOpts.IsoLevel = opts.IsoLevel
		txOpts.AccessMode = opts.AccessMode
		txOpts.DeferrableMode = opts.DeferrableMode
	}

	tx, err := s.pool.BeginTx(ctx, txOpts)
	if err != nil {
		return translateDBErr(err)
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", translateDBErr(err))
	}

	return nil
}

// InTx implements repository.Store.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, r repository.Repos) error) error {
	return s.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
		return fn(ctx, s.with(tx))
	})
}

// Repos implements repository.Store with pool-backed repositories.
func (s *Store) Repos() repository.Repos { return s.with(nil) }

func (s *Store) with(db DB) repos {
	return repos{pool: s.pool, db: db}
}

type repos struct {
	pool *pgxpool.Pool
	db   DB
}

func (r repos) Catalog() repository.CatalogRepository {
	return (&CatalogRepo{pool: r.pool}).With(r.db)
}

func (r repos) SeatStates() repository.SeatStateRepository {
	return (&SeatStateRepo{pool: r.pool}).With(r.db)
}

func (r repos) Bookings() repository.BookingRepository {
	return (&BookingRepo{pool: r.pool}).With(r.db)
}

func (r repos) Inventory() repository.InventoryRepository {
	return (&InventoryRepo{pool: r.pool}).With(r.db)
}
