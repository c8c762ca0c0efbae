package postgresrepo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/tix-cinema/internal/domain"
)

type SeatStateRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *SeatStateRepo) With(db DB) *SeatStateRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *SeatStateRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// EnsureRows inserts an available row for every seat that has none yet.
// Rows are inserted in ascending seat order so concurrent first touches of the
// same seats queue on the primary key in the same order.
func (r *SeatStateRepo) EnsureRows(ctx context.Context, showtimeID int64, seatIDs []int64) error {
	const op = "postgresrepo.SeatStateRepo.EnsureRows"

	if len(seatIDs) == 0 {
		return nil
	}

	db := r.handle()

	if _, err := db.Exec(ctx,
		`INSERT INTO showtime_seats(showtime_id, seat_id, status)
		 SELECT $1, id, 'available'
		 FROM unnest($2::bigint[]) AS id
		 ORDER BY id
		 ON CONFLICT (showtime_id, seat_id) DO NOTHING`,
		showtimeID, seatIDs,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// LockRows takes row locks on the seats in ascending seat order and returns
// the locked states. Must run inside a transaction.
func (r *SeatStateRepo) LockRows(ctx context.Context, showtimeID int64, seatIDs []int64) ([]domain.SeatState, error) {
	const op = "postgresrepo.SeatStateRepo.LockRows"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT showtime_id, seat_id, status, held_until
		 FROM showtime_seats
		 WHERE showtime_id = $1 AND seat_id = ANY($2::bigint[])
		 ORDER BY seat_id
		 FOR UPDATE`,
		showtimeID, seatIDs,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	states, err := scanSeatStates(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return states, nil
}

// MarkHeld moves seats that are available, or whose hold has lapsed at now, to
// held until heldUntil. It returns the number of rows changed; callers compare
// it to len(seatIDs).
func (r *SeatStateRepo) MarkHeld(
	ctx context.Context,
	showtimeID int64,
	seatIDs []int64,
	heldUntil, now time.Time,
) (int64, error) {
	const op = "postgresrepo.SeatStateRepo.MarkHeld"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE showtime_seats
		 SET status = 'held', held_until = $3, updated_at = $4
		 WHERE showtime_id = $1
		   AND seat_id = ANY($2::bigint[])
		   AND (status = 'available' OR (status = 'held' AND held_until <= $4))`,
		showtimeID, seatIDs, heldUntil, now,
	)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return tag.RowsAffected(), nil
}

// MarkSold moves seats whose hold is still active at now to sold.
func (r *SeatStateRepo) MarkSold(ctx context.Context, showtimeID int64, seatIDs []int64, now time.Time) (int64, error) {
	const op = "postgresrepo.SeatStateRepo.MarkSold"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE showtime_seats
		 SET status = 'sold', held_until = NULL, updated_at = $3
		 WHERE showtime_id = $1
		   AND seat_id = ANY($2::bigint[])
		   AND status = 'held' AND held_until > $3`,
		showtimeID, seatIDs, now,
	)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return tag.RowsAffected(), nil
}

// ReleaseHeld returns held seats to available. Sold and available seats are
// left alone, so releasing is idempotent.
func (r *SeatStateRepo) ReleaseHeld(ctx context.Context, showtimeID int64, seatIDs []int64) (int64, error) {
	const op = "postgresrepo.SeatStateRepo.ReleaseHeld"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE showtime_seats
		 SET status = 'available', held_until = NULL, updated_at = now()
		 WHERE showtime_id = $1
		   AND seat_id = ANY($2::bigint[])
		   AND status = 'held'`,
		showtimeID, seatIDs,
	)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return tag.RowsAffected(), nil
}

func (r *SeatStateRepo) ReleaseSold(ctx context.Context, showtimeID int64, seatIDs []int64) (int64, error) {
	const op = "postgresrepo.SeatStateRepo.ReleaseSold"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE showtime_seats
		 SET status = 'available', held_until = NULL, updated_at = now()
		 WHERE showtime_id = $1
		   AND seat_id = ANY($2::bigint[])
		   AND status = 'sold'`,
		showtimeID, seatIDs,
	)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return tag.RowsAffected(), nil
}

// SweepExpired releases at most limit lapsed holds. Rows locked by an
// in-flight hold or booking are skipped and picked up by a later pass.
func (r *SeatStateRepo) SweepExpired(ctx context.Context, now time.Time, limit int) ([]domain.SeatState, error) {
	const op = "postgresrepo.SeatStateRepo.SweepExpired"

	db := r.handle()

	rows, err := db.Query(ctx,
		`WITH expired AS (
		   SELECT showtime_id, seat_id
		   FROM showtime_seats
		   WHERE status = 'held' AND held_until <= $1
		   ORDER BY showtime_id, seat_id
		   LIMIT $2
		   FOR UPDATE SKIP LOCKED
		 )
		 UPDATE showtime_seats s
		 SET status = 'available', held_until = NULL, updated_at = $1
		 FROM expired e
		 WHERE s.showtime_id = e.showtime_id AND s.seat_id = e.seat_id
		 RETURNING s.showtime_id, s.seat_id, s.status, s.held_until`,
		now, limit,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	states, err := scanSeatStates(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return states, nil
}

// SeatMap lists every seat of the theater. Seats without a state row for the
// showtime are reported as available.
func (r *SeatStateRepo) SeatMap(ctx context.Context, showtimeID, theaterID int64) ([]domain.SeatWithStatus, error) {
	const op = "postgresrepo.SeatStateRepo.SeatMap"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT s.id, s.theater_id, s.row_label, s.number,
		        COALESCE(ss.status, 'available'), ss.held_until
		 FROM seats s
		 LEFT JOIN showtime_seats ss
		   ON ss.seat_id = s.id AND ss.showtime_id = $1
		 WHERE s.theater_id = $2
		 ORDER BY s.row_label, s.number`,
		showtimeID, theaterID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var out []domain.SeatWithStatus
	for rows.Next() {
		var (
			sw     domain.SeatWithStatus
			status string
		)
		if err := rows.Scan(&sw.ID, &sw.TheaterID, &sw.Row, &sw.Number, &status, &sw.HeldUntil); err != nil {
			return nil, wrapDBErr(op, err)
		}
		sw.Status = domain.SeatStatus(status)
		sw.Label = sw.Seat.Label()
		out = append(out, sw)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func scanSeatStates(rows pgx.Rows) ([]domain.SeatState, error) {
	defer rows.Close()

	var states []domain.SeatState
	for rows.Next() {
		var (
			st     domain.SeatState
			status string
		)
		if err := rows.Scan(&st.ShowtimeID, &st.SeatID, &status, &st.HeldUntil); err != nil {
			return nil, err
		}
		st.Status = domain.SeatStatus(status)
		states = append(states, st)
	}

	return states, rows.Err()
}
