package postgresrepo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/tix-cinema/internal/domain"
)

type CatalogRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *CatalogRepo) With(db DB) *CatalogRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *CatalogRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// GetShowtime retrieves a showtime by its ID.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - showtimeID: unique identifier of the showtime.
//
// Returns:
//   - *domain.Showtime: the showtime when found.
//   - error: repository.ErrNotFound if the showtime does not exist.
func (r *CatalogRepo) GetShowtime(ctx context.Context, showtimeID int64) (*domain.Showtime, error) {
	const op = "postgresrepo.CatalogRepo.GetShowtime"

	db := r.handle()

	var st domain.Showtime
	err := db.QueryRow(ctx,
		`SELECT id, theater_id, starts_at, ends_at
		 FROM showtimes WHERE id = $1`,
		showtimeID,
	).Scan(&st.ID, &st.TheaterID, &st.StartsAt, &st.EndsAt)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &st, nil
}

// SeatsByRefs resolves seat references within one theater. Id refs and
// row/number refs are matched in a single query; the result is ordered by id
// and contains each seat once.
func (r *CatalogRepo) SeatsByRefs(
	ctx context.Context,
	theaterID int64,
	refs []domain.SeatRef,
) ([]domain.Seat, error) {
	const op = "postgresrepo.CatalogRepo.SeatsByRefs"

	if len(refs) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(refs))
	rowLabels := make([]string, 0, len(refs))
	numbers := make([]int32, 0, len(refs))
	for _, ref := range refs {
		if ref.IsID() {
			ids = append(ids, ref.ID)
			continue
		}
		rowLabels = append(rowLabels, ref.Row)
		numbers = append(numbers, int32(ref.Number))
	}

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT s.id, s.theater_id, s.row_label, s.number
		 FROM seats s
		 WHERE s.theater_id = $1
		   AND (
		     s.id = ANY($2::bigint[])
		     OR (s.row_label, s.number) IN (
		       SELECT l, n FROM unnest($3::text[], $4::int[]) AS u(l, n)
		     )
		   )
		 ORDER BY s.id`,
		theaterID, ids, rowLabels, numbers,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	var seats []domain.Seat
	for rows.Next() {
		var s domain.Seat
		if err := rows.Scan(&s.ID, &s.TheaterID, &s.Row, &s.Number); err != nil {
			return nil, wrapDBErr(op, err)
		}
		seats = append(seats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return seats, nil
}

func (r *CatalogRepo) Snacks(ctx context.Context, ids []int64) (map[int64]domain.Snack, error) {
	const op = "postgresrepo.CatalogRepo.Snacks"

	out := make(map[int64]domain.Snack, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, name, price, available
		 FROM snacks WHERE id = ANY($1::bigint[])`,
		ids,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	for rows.Next() {
		var s domain.Snack
		if err := rows.Scan(&s.ID, &s.Name, &s.Price, &s.Available); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out[s.ID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}
