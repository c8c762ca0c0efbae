package postgresrepo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/tix-cinema/internal/domain"
	"github.com/kirinyoku/tix-cinema/internal/repository"
)

type BookingRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *BookingRepo) With(db DB) *BookingRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *BookingRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Create inserts a booking with its seat and snack lines. The lines are sent
// as one batch; a duplicate booking reference surfaces as repository.ErrConflict.
func (r *BookingRepo) Create(ctx context.Context, b *domain.Booking) error {
	const op = "postgresrepo.BookingRepo.Create"

	db := r.handle()

	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}

	if err := db.QueryRow(ctx,
		`INSERT INTO bookings(id, booking_ref, user_id, showtime_id, total_price, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		b.ID, b.Ref, b.UserID, b.ShowtimeID, b.TotalPrice, string(b.Status), b.CreatedAt,
	).Scan(&b.CreatedAt); err != nil {
		return wrapDBErr(op, err)
	}

	batch := &pgx.Batch{}
	for _, l := range b.Seats {
		batch.Queue(
			`INSERT INTO booking_seats(booking_id, seat_id, seat_number, seat_type, price)
			 VALUES ($1, $2, $3, $4, $5)`,
			b.ID, l.SeatID, l.Label, l.SeatType, l.Price,
		)
	}
	for _, l := range b.Snacks {
		batch.Queue(
			`INSERT INTO booking_snacks(booking_id, snack_id, quantity, unit_price, total_price)
			 VALUES ($1, $2, $3, $4, $5)`,
			b.ID, l.SnackID, l.Quantity, l.UnitPrice, l.TotalPrice,
		)
	}

	if err := db.SendBatch(ctx, batch).Close(); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// GetByRef retrieves a booking with its lines.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - ref: booking reference, e.g. "BK7Q2M9XAC".
//
// Returns:
//   - *domain.Booking: the booking when found.
//   - error: repository.ErrNotFound if no booking has this reference.
func (r *BookingRepo) GetByRef(ctx context.Context, ref string) (*domain.Booking, error) {
	const op = "postgresrepo.BookingRepo.GetByRef"

	b, err := r.getByRef(ctx, ref, false)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return b, nil
}

// GetByRefForUpdate is GetByRef with the booking row locked until the
// surrounding transaction ends.
func (r *BookingRepo) GetByRefForUpdate(ctx context.Context, ref string) (*domain.Booking, error) {
	const op = "postgresrepo.BookingRepo.GetByRefForUpdate"

	b, err := r.getByRef(ctx, ref, true)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return b, nil
}

func (r *BookingRepo) getByRef(ctx context.Context, ref string, forUpdate bool) (*domain.Booking, error) {
	db := r.handle()

	q := `SELECT id, booking_ref, user_id, showtime_id, total_price, status, created_at
		  FROM bookings WHERE booking_ref = $1`
	if forUpdate {
		q += ` FOR UPDATE`
	}

	b, err := scanBooking(db.QueryRow(ctx, q, ref))
	if err != nil {
		return nil, translateDBErr(err)
	}

	byID := map[uuid.UUID]*domain.Booking{b.ID: &b}
	if err := r.loadLines(ctx, db, byID); err != nil {
		return nil, err
	}

	return &b, nil
}

// ListByUser returns the user's bookings, newest first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.Booking, error) {
	const op = "postgresrepo.BookingRepo.ListByUser"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, booking_ref, user_id, showtime_id, total_price, status, created_at
		 FROM bookings
		 WHERE user_id = $1
		 ORDER BY created_at DESC, booking_ref
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			rows.Close()
			return nil, wrapDBErr(op, err)
		}
		out = append(out, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	byID := make(map[uuid.UUID]*domain.Booking, len(out))
	for i := range out {
		byID[out[i].ID] = &out[i]
	}
	if err := r.loadLines(ctx, db, byID); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

func (r *BookingRepo) SetStatus(ctx context.Context, id uuid.UUID, status domain.BookingStatus) error {
	const op = "postgresrepo.BookingRepo.SetStatus"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE bookings SET status = $2 WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return wrapDBErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *BookingRepo) loadLines(ctx context.Context, db DB, byID map[uuid.UUID]*domain.Booking) error {
	if len(byID) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}

	rows, err := db.Query(ctx,
		`SELECT booking_id, seat_id, seat_number, seat_type, price
		 FROM booking_seats
		 WHERE booking_id = ANY($1::uuid[])
		 ORDER BY booking_id, seat_id`,
		ids,
	)
	if err != nil {
		return translateDBErr(err)
	}
	for rows.Next() {
		var (
			bid uuid.UUID
			l   domain.BookingSeatLine
		)
		if err := rows.Scan(&bid, &l.SeatID, &l.Label, &l.SeatType, &l.Price); err != nil {
			rows.Close()
			return translateDBErr(err)
		}
		if b, ok := byID[bid]; ok {
			b.Seats = append(b.Seats, l)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return translateDBErr(err)
	}

	rows, err = db.Query(ctx,
		`SELECT booking_id, snack_id, quantity, unit_price, total_price
		 FROM booking_snacks
		 WHERE booking_id = ANY($1::uuid[])
		 ORDER BY booking_id, snack_id`,
		ids,
	)
	if err != nil {
		return translateDBErr(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			bid uuid.UUID
			l   domain.BookingSnackLine
		)
		if err := rows.Scan(&bid, &l.SnackID, &l.Quantity, &l.UnitPrice, &l.TotalPrice); err != nil {
			return translateDBErr(err)
		}
		if b, ok := byID[bid]; ok {
			b.Snacks = append(b.Snacks, l)
		}
	}

	return translateDBErr(rows.Err())
}

func scanBooking(row pgx.Row) (domain.Booking, error) {
	var (
		b      domain.Booking
		status string
	)
	if err := row.Scan(&b.ID, &b.Ref, &b.UserID, &b.ShowtimeID, &b.TotalPrice, &status, &b.CreatedAt); err != nil {
		return b, err
	}
	b.Status = domain.BookingStatus(status)
	return b, nil
}
