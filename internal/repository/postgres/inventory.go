package postgresrepo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/tix-cinema/internal/domain"
)

type InventoryRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *InventoryRepo) With(db DB) *InventoryRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *InventoryRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *InventoryRepo) CreateTheater(ctx context.Context, name string) (int64, error) {
	const op = "postgresrepo.InventoryRepo.CreateTheater"

	db := r.handle()

	var id int64
	if err := db.QueryRow(ctx,
		`INSERT INTO theaters(name)
		 VALUES ($1)
		 RETURNING id`,
		name,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *InventoryRepo) BatchCreateSeats(
	ctx context.Context,
	theaterID int64,
	seats []domain.Seat,
) (int64, error) {
	const op = "postgresrepo.InventoryRepo.BatchCreateSeats"

	if len(seats) == 0 {
		return 0, nil
	}

	db := r.handle()

	batch := &pgx.Batch{}
	for _, s := range seats {
		batch.Queue(
			`INSERT INTO seats(theater_id, row_label, number)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (theater_id, row_label, number) DO NOTHING`,
			theaterID, s.Row, s.Number,
		)
	}

	br := db.SendBatch(ctx, batch)

	var inserted int64
	for range seats {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return 0, wrapDBErr(op, err)
		}
		inserted += tag.RowsAffected()
	}

	if err := br.Close(); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return inserted, nil
}

func (r *InventoryRepo) CreateShowtime(
	ctx context.Context,
	theaterID int64,
	startsAt, endsAt time.Time,
) (int64, error) {
	const op = "postgresrepo.InventoryRepo.CreateShowtime"

	db := r.handle()

	var id int64
	if err := db.QueryRow(ctx,
		`INSERT INTO showtimes(theater_id, starts_at, ends_at)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		theaterID, startsAt, endsAt,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

// UpsertSnack creates a snack, or updates it when s.ID names an existing one.
func (r *InventoryRepo) UpsertSnack(ctx context.Context, s domain.Snack) (int64, error) {
	const op = "postgresrepo.InventoryRepo.UpsertSnack"

	db := r.handle()

	var id int64
	var err error
	if s.ID > 0 {
		err = db.QueryRow(ctx,
			`INSERT INTO snacks(id, name, price, available)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO UPDATE
			   SET name = EXCLUDED.name, price = EXCLUDED.price, available = EXCLUDED.available
			 RETURNING id`,
			s.ID, s.Name, s.Price, s.Available,
		).Scan(&id)
	} else {
		err = db.QueryRow(ctx,
			`INSERT INTO snacks(name, price, available)
			 VALUES ($1, $2, $3)
			 RETURNING id`,
			s.Name, s.Price, s.Available,
		).Scan(&id)
	}
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

// InitShowtimeSeats eagerly creates available seat-state rows for every seat
// of the showtime's theater. Existing rows are left untouched.
func (r *InventoryRepo) InitShowtimeSeats(ctx context.Context, showtimeID int64) (int64, error) {
	const op = "postgresrepo.InventoryRepo.InitShowtimeSeats"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`INSERT INTO showtime_seats(showtime_id, seat_id, status)
		 SELECT st.id, s.id, 'available'
		 FROM showtimes st
		 JOIN seats s ON s.theater_id = st.theater_id
		 WHERE st.id = $1
		 ORDER BY s.id
		 ON CONFLICT (showtime_id, seat_id) DO NOTHING`,
		showtimeID,
	)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return tag.RowsAffected(), nil
}
