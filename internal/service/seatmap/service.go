package seatmap

import (
	"context"
	"fmt"
	"time"

	"github.com/kirinyoku/tix-cinema/internal/domain"
	redisx "github.com/kirinyoku/tix-cinema/internal/redis"
	"github.com/kirinyoku/tix-cinema/internal/repository"
	redisrepo "github.com/kirinyoku/tix-cinema/internal/repository/redis"
	"github.com/kirinyoku/tix-cinema/internal/service/catalog"
)

type Config struct {
	SeatMapTTL time.Duration
	// Now is the service clock; time.Now when nil.
	Now func() time.Time
}

type Service struct {
	store repository.Store
	cache *redisrepo.Cache
	cfg   Config
}

// SeatMap is the full seat list of a showtime as stored, before hold expiry
// is applied for the reader's clock.
type SeatMap struct {
	ShowtimeID int64                   `json:"showtime_id"`
	TheaterID  int64                   `json:"theater_id"`
	Seats      []domain.SeatWithStatus `json:"seats"`
}

// New builds the read side. cache may be nil, in which case every read goes
// to the store.
func New(store repository.Store, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.SeatMapTTL <= 0 {
		cfg.SeatMapTTL = 5 * time.Second
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		store: store,
		cache: cache,
		cfg:   cfg,
	}
}

// GetSeatMap lists every seat of the showtime's theater with its status at
// the time of the call. A hold that has lapsed reads as available whether or
// not the sweeper has released it yet.
//
// Parameters:
//   - ctx: request-scoped context.
//   - showtimeID: showtime to describe.
//
// Returns:
//   - SeatMap: seats ordered by row and number.
//   - error: domain.ShowtimeNotFoundError if the showtime does not exist.
func (s *Service) GetSeatMap(ctx context.Context, showtimeID int64) (SeatMap, error) {
	const op = "service.seatmap.GetSeatMap"

	var (
		sm  SeatMap
		err error
	)
	if s.cache != nil {
		sm, err = redisrepo.GetOrSetJSON(ctx, s.cache, redisx.KeyShowtimeSeatMap(showtimeID), s.cfg.SeatMapTTL,
			func(ctx context.Context) (SeatMap, error) {
				return s.load(ctx, showtimeID)
			},
		)
	} else {
		sm, err = s.load(ctx, showtimeID)
	}
	if err != nil {
		return SeatMap{}, fmt.Errorf("%s:%w", op, err)
	}

	now := s.cfg.Now()
	seats := make([]domain.SeatWithStatus, len(sm.Seats))
	for i, seat := range sm.Seats {
		seats[i] = seat.AsOf(now)
	}
	sm.Seats = seats

	return sm, nil
}

// Availability counts seats per status with the same expiry rule as GetSeatMap.
// Counts are derived from the seat map rather than cached on their own, since
// lapsing holds change them without any write.
func (s *Service) Availability(ctx context.Context, showtimeID int64) (domain.SeatCounts, error) {
	sm, err := s.GetSeatMap(ctx, showtimeID)
	if err != nil {
		return domain.SeatCounts{}, err
	}

	return domain.CountSeats(sm.Seats), nil
}

func (s *Service) load(ctx context.Context, showtimeID int64) (SeatMap, error) {
	r := s.store.Repos()

	st, err := catalog.Showtime(ctx, r, showtimeID)
	if err != nil {
		return SeatMap{}, err
	}

	seats, err := r.SeatStates().SeatMap(ctx, st.ID, st.TheaterID)
	if err != nil {
		return SeatMap{}, err
	}

	if seats == nil {
		seats = []domain.SeatWithStatus{}
	}

	return SeatMap{ShowtimeID: st.ID, TheaterID: st.TheaterID, Seats: seats}, nil
}
