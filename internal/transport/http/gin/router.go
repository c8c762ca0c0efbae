package httpgin

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/tix-cinema/internal/auth"
	redisrepo "github.com/kirinyoku/tix-cinema/internal/repository/redis"
	"github.com/kirinyoku/tix-cinema/internal/service"
	"github.com/kirinyoku/tix-cinema/internal/service/seatmap"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Deps are the router's collaborators. Idempotency, HoldLimiter and Auth are
// optional; a nil value switches the feature off.
type Deps struct {
	Services    *service.Services
	Broker      *seatmap.Broker
	Idempotency *redisrepo.IdempotencyStore
	HoldLimiter *redisrepo.SlidingWindowLimiter
	Auth        *auth.Verifier
	Logger      *slog.Logger
	// StreamKeepAlive is the seat map stream ping interval; 15s when zero.
	StreamKeepAlive time.Duration
	// StreamsDone ends every open seat map stream when closed. The server's
	// Shutdown does not cancel request contexts, so streams need their own signal.
	StreamsDone <-chan struct{}
}

func NewRouter(deps Deps, middlewares ...gin.HandlerFunc) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	keepAlive := deps.StreamKeepAlive
	if keepAlive <= 0 {
		keepAlive = 15 * time.Second
	}

	svcs := deps.Services
	idem := deps.Idempotency
	v := deps.Auth

	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	showtimes := r.Group("/showtimes/:id")
	{
		showtimes.GET("/seats", handleGetSeatMap(svcs))
		showtimes.GET("/seats/stream", handleSeatMapStream(svcs, deps.Broker, keepAlive, deps.StreamsDone))
		showtimes.GET("/availability", handleGetAvailability(svcs))

		showtimes.POST("/holds", RateLimitMiddleware(deps.HoldLimiter, logger), handleCreateHold(svcs, idem))
		showtimes.POST("/holds/release", handleReleaseHold(svcs, idem))

		showtimes.POST("/bookings", auth.Middleware(v), handleCreateBooking(svcs, idem))
	}

	bookings := r.Group("", auth.Middleware(v))
	{
		bookings.GET("/bookings/:ref", handleGetBooking(svcs))
		bookings.POST("/bookings/:ref/cancel", handleCancelBooking(svcs))
		bookings.GET("/users/:id/bookings", handleListUserBookings(svcs))
	}

	admin := r.Group("/admin", auth.Middleware(v), auth.RequireRole(v, auth.RoleAdmin))
	{
		admin.POST("/theaters", handleCreateTheater(svcs))
		admin.POST("/theaters/:id/seats", handleRegisterSeats(svcs))
		admin.POST("/showtimes", handleCreateShowtime(svcs))
		admin.POST("/showtimes/:id/seats/init", handleInitShowtimeSeats(svcs))
		admin.POST("/snacks", handleUpsertSnack(svcs))
	}

	return r
}

// --- Helpers ---

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		badRequest(c, err.Error())
		return false
	}
	return true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: CodeBadRequest})
}
