package service

import (
	"log/slog"

	"github.com/kirinyoku/tix-cinema/internal/repository"
	redisrepo "github.com/kirinyoku/tix-cinema/internal/repository/redis"
	"github.com/kirinyoku/tix-cinema/internal/service/booking"
	"github.com/kirinyoku/tix-cinema/internal/service/catalog"
	"github.com/kirinyoku/tix-cinema/internal/service/holds"
	"github.com/kirinyoku/tix-cinema/internal/service/inventory"
	"github.com/kirinyoku/tix-cinema/internal/service/seatmap"
	"github.com/kirinyoku/tix-cinema/internal/service/sweeper"
	"github.com/kirinyoku/tix-cinema/internal/uow"
)

type Services struct {
	Holds     *holds.Service
	Booking   *booking.Service
	SeatMap   *seatmap.Service
	Inventory *inventory.Service
	Sweeper   *sweeper.Sweeper
}

type Config struct {
	Retry   uow.Options
	Holds   holds.Config
	Booking booking.Config
	SeatMap seatmap.Config
	Sweeper sweeper.Config
}

// Deps are the collaborators shared by the services. Cache, Publisher and
// Dispatcher are optional.
type Deps struct {
	Store      repository.Store
	Cache      *redisrepo.Cache
	Publisher  catalog.Publisher
	Dispatcher booking.Dispatcher
	Logger     *slog.Logger
}

func NewServices(deps Deps, cfg Config) *Services {
	log := deps.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	var inv catalog.Invalidator
	if deps.Cache != nil {
		inv = deps.Cache
	}

	u := uow.NewUoW(deps.Store, cfg.Retry)
	changes := catalog.NewChanges(inv, deps.Publisher, log)

	return &Services{
		Holds:     holds.New(u, changes, log.With(slog.String("component", "holds")), cfg.Holds),
		Booking:   booking.New(deps.Store, u, changes, deps.Dispatcher, log.With(slog.String("component", "booking")), cfg.Booking),
		SeatMap:   seatmap.New(deps.Store, deps.Cache, cfg.SeatMap),
		Inventory: inventory.New(deps.Store, u, changes),
		Sweeper:   sweeper.New(u, changes, log.With(slog.String("component", "sweeper")), cfg.Sweeper),
	}
}
