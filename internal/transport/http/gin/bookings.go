package httpgin

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/tix-cinema/internal/auth"
	"github.com/kirinyoku/tix-cinema/internal/domain"
	redisrepo "github.com/kirinyoku/tix-cinema/internal/repository/redis"
	"github.com/kirinyoku/tix-cinema/internal/service"
	"github.com/kirinyoku/tix-cinema/internal/service/booking"
)

// @Summary      Finalize booking (idempotent)
// @Description  Sells seats the caller holds. Without lines the seat share of
// @Description  total_price (total minus snacks) is split evenly.
// @Param        id               path    int             true   "Showtime ID"
// @Param        req              body    BookingRequest  true   "payload"
// @Param        Idempotency-Key  header  string          false  "replays the stored response for a repeated key"
// @Success      201  {object}  domain.Booking
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse  "hold expired or missing"
// @Failure      503  {object}  ErrorResponse  "retry"
// @Security     BearerAuth
// @Router       /showtimes/{id}/bookings [post]
func handleCreateBooking(svcs *service.Services, idem *redisrepo.IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		showtimeID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req BookingRequest
		if !bindJSON(c, &req) {
			return
		}

		userID := req.UserID
		if id, ok := auth.UserID(c); ok {
			userID = id
		}

		respondIdempotent(c, idem,
			func(key string) string { return redisrepo.KeyIdemBooking(showtimeID, key) },
			http.StatusCreated,
			func() (any, error) {
				return svcs.Booking.Finalize(c.Request.Context(), booking.FinalizeInput{
					ShowtimeID: showtimeID,
					UserID:     userID,
					Seats:      req.Seats,
					TotalPrice: req.TotalPrice,
					Lines:      req.Lines,
					Snacks:     req.Snacks,
				})
			},
		)
	}
}

// @Summary  Get booking with seat and snack lines
// @Param    ref  path  string  true  "Booking reference"
// @Success  200  {object}  domain.Booking
// @Failure  404  {object}  ErrorResponse
// @Security BearerAuth
// @Router   /bookings/{ref} [get]
func handleGetBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		ref := c.Param("ref")
		b, err := svcs.Booking.Get(c.Request.Context(), ref)
		if err != nil {
			respondErr(c, err)
			return
		}
		if id, ok := auth.UserID(c); ok && id != b.UserID && !auth.IsAdmin(c) {
			respondErr(c, domain.BookingNotFoundError{Ref: ref})
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

// @Summary      Cancel booking
// @Description  Owner only; the showtime must not have started.
// @Param        ref  path  string         true   "Booking reference"
// @Param        req  body  CancelRequest  false  "payload (user_id when auth is disabled)"
// @Success      200  {object}  domain.Booking
// @Failure      404  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse  "not cancellable"
// @Security     BearerAuth
// @Router       /bookings/{ref}/cancel [post]
func handleCancelBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CancelRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			badRequest(c, err.Error())
			return
		}

		// Zero skips the ownership check.
		userID := req.UserID
		if id, ok := auth.UserID(c); ok {
			userID = id
			if auth.IsAdmin(c) {
				userID = 0
			}
		}

		b, err := svcs.Booking.Cancel(c.Request.Context(), c.Param("ref"), userID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

// @Summary  List bookings of a user, newest first
// @Param    id      path   int  true   "User ID"
// @Param    limit   query  int  false  "page size"
// @Param    offset  query  int  false  "offset"
// @Success  200  {array}   domain.Booking
// @Failure  403  {object}  ErrorResponse
// @Security BearerAuth
// @Router   /users/{id}/bookings [get]
func handleListUserBookings(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		if id, ok := auth.UserID(c); ok && id != userID && !auth.IsAdmin(c) {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden", Code: CodeForbidden})
			return
		}

		list, err := svcs.Booking.ListByUser(
			c.Request.Context(),
			userID,
			parseIntDefault(c.Query("limit"), 0),
			parseIntDefault(c.Query("offset"), 0),
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}
