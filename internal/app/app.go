package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/tix-cinema/internal/auth"
	"github.com/kirinyoku/tix-cinema/internal/config"
	"github.com/kirinyoku/tix-cinema/internal/notify"
	"github.com/kirinyoku/tix-cinema/internal/postgres"
	redisx "github.com/kirinyoku/tix-cinema/internal/redis"
	"github.com/kirinyoku/tix-cinema/internal/repository"
	"github.com/kirinyoku/tix-cinema/internal/repository/memory"
	postgresrepo "github.com/kirinyoku/tix-cinema/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/tix-cinema/internal/repository/redis"
	"github.com/kirinyoku/tix-cinema/internal/service"
	"github.com/kirinyoku/tix-cinema/internal/service/booking"
	"github.com/kirinyoku/tix-cinema/internal/service/catalog"
	"github.com/kirinyoku/tix-cinema/internal/service/holds"
	"github.com/kirinyoku/tix-cinema/internal/service/seatmap"
	"github.com/kirinyoku/tix-cinema/internal/service/sweeper"
	httpgin "github.com/kirinyoku/tix-cinema/internal/transport/http/gin"
	"github.com/kirinyoku/tix-cinema/internal/uow"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	services   *service.Services
	broker     *seatmap.Broker
	pubsub     *redisx.SeatMapPubSub
	dispatcher *notify.Dispatcher
	streams    chan struct{}
	pool       *pgxpool.Pool
	rdb        *goredis.Client
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.New"

	ctx := context.Background()
	a := &App{
		cfg:     cfg,
		logger:  logger,
		broker:  seatmap.NewBroker(),
		streams: make(chan struct{}),
	}

	// Initialize storage
	store, err := a.newStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	// Redis is optional. Without it the broker is the only change publisher
	// and idempotency and rate limiting are off.
	var (
		cache     *redisrepo.Cache
		idem      *redisrepo.IdempotencyStore
		limiter   *redisrepo.SlidingWindowLimiter
		publisher catalog.Publisher = a.broker
	)
	if cfg.Redis.Enabled {
		a.rdb, err = redisx.New(ctx, redisx.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("%s:%w", op, err)
		}

		cache = redisrepo.New(a.rdb)
		idem = redisrepo.NewIdempotencyStore(a.rdb, cfg.Redis.IdempotencyTTL)
		if cfg.RateLimit.HoldsPerMinute > 0 {
			limiter = redisrepo.NewSlidingWindowLimiter(a.rdb, "holds", cfg.RateLimit.HoldsPerMinute, time.Minute)
		}
		a.pubsub = redisx.NewSeatMapPubSub(a.rdb)
		publisher = a.pubsub
	} else {
		logger.Warn("redis disabled: seat map cache, idempotency and rate limiting are off")
	}

	// Initialize notifications
	a.dispatcher = notify.NewDispatcher(
		a.newNotifier(),
		logger.With(slog.String("component", "notify")),
		cfg.Notify.Timeout,
		cfg.Notify.QueueSize,
	)

	// Initialize services
	a.services = service.NewServices(service.Deps{
		Store:      store,
		Cache:      cache,
		Publisher:  publisher,
		Dispatcher: a.dispatcher,
		Logger:     logger,
	}, service.Config{
		Retry: uow.Options{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
		},
		Holds: holds.Config{
			MinMinutes:     cfg.Hold.MinMinutes,
			MaxMinutes:     cfg.Hold.MaxMinutes,
			DefaultMinutes: cfg.Hold.DefaultMinutes,
		},
		Booking: booking.Config{},
		SeatMap: seatmap.Config{SeatMapTTL: cfg.Redis.SeatMapTTL},
		Sweeper: sweeper.Config{
			Interval:  cfg.Sweeper.Interval,
			BatchSize: cfg.Sweeper.BatchSize,
		},
	})

	var verifier *auth.Verifier
	if cfg.Auth.JWTSecret != "" {
		verifier = auth.NewVerifier(cfg.Auth.JWTSecret)
	} else {
		logger.Warn("JWT_SECRET is empty: authentication is disabled")
	}

	// Initialize Gin router
	router := httpgin.NewRouter(httpgin.Deps{
		Services:        a.services,
		Broker:          a.broker,
		Idempotency:     idem,
		HoldLimiter:     limiter,
		Auth:            verifier,
		Logger:          logger,
		StreamKeepAlive: cfg.Server.StreamKeepAlive,
		StreamsDone:     a.streams,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	a.httpServer.RegisterOnShutdown(sync.OnceFunc(func() { close(a.streams) }))

	return a, nil
}

func (a *App) newStore(ctx context.Context) (repository.Store, error) {
	if a.cfg.Store.Driver == config.StoreDriverMemory {
		a.logger.Warn("using in-memory store: data is lost on restart")
		return memory.NewStore(), nil
	}

	pgCfg := postgres.Config{
		User:     a.cfg.Postgres.User,
		Password: a.cfg.Postgres.Password,
		Name:     a.cfg.Postgres.Name,
		Host:     a.cfg.Postgres.Host,
		Port:     a.cfg.Postgres.Port,
		SSLMode:  a.cfg.Postgres.SSLMode,
		MaxConns: a.cfg.Postgres.MaxConns,
	}

	pool, err := postgres.New(ctx, pgCfg.DSN(), pgCfg.MaxConns)
	if err != nil {
		return nil, err
	}
	a.pool = pool

	if a.cfg.Postgres.Migrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return postgresrepo.NewStore(pool), nil
}

func (a *App) newNotifier() notify.Notifier {
	switch a.cfg.Notify.Driver {
	case config.NotifyDriverAMQP:
		return notify.NewAMQPNotifier(a.cfg.Notify.AMQPURL, a.cfg.Notify.AMQPQueue, a.cfg.Notify.Timeout)
	case config.NotifyDriverKafka:
		return notify.NewKafkaNotifier(a.cfg.Notify.KafkaBrokers, a.cfg.Notify.KafkaTopic)
	default:
		return notify.NewLogNotifier(a.logger.With(slog.String("component", "notify")))
	}
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	defer a.close()

	g, gCtx := errgroup.WithContext(ctx)

	// Notifications outlive gCtx until the HTTP server has drained, so
	// bookings finished during shutdown are still delivered.
	notifyCtx, stopNotify := context.WithCancel(context.Background())
	defer stopNotify()

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Deliver booking notifications
	g.Go(func() error {
		return a.dispatcher.Run(notifyCtx)
	})

	// Release lapsed holds
	g.Go(func() error {
		return a.services.Sweeper.Run(gCtx)
	})

	// Fan out seat map changes from every instance to local streams
	if a.pubsub != nil {
		g.Go(func() error {
			err := a.pubsub.Subscribe(gCtx, a.broker.Notify)
			if err != nil && gCtx.Err() == nil {
				return fmt.Errorf("seat map subscription: %w", err)
			}
			return nil
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		defer stopNotify()
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

func (a *App) close() {
	if a.dispatcher != nil {
		if err := a.dispatcher.Close(); err != nil {
			a.logger.Error("failed to close notifier", "error", err)
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("failed to close redis", "error", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
