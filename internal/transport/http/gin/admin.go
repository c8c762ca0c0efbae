package httpgin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/tix-cinema/internal/domain"
	"github.com/kirinyoku/tix-cinema/internal/service"
)

// @Summary  Create theater
// @Param    req  body  CreateTheaterRequest  true  "payload"
// @Success  201  {object}  CreateTheaterResponse
// @Failure  409  {object}  ErrorResponse
// @Security BearerAuth
// @Router   /admin/theaters [post]
func handleCreateTheater(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateTheaterRequest
		if !bindJSON(c, &req) {
			return
		}
		id, err := svcs.Inventory.CreateTheater(c.Request.Context(), req.Name)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreateTheaterResponse{TheaterID: id})
	}
}

// @Summary  Register theater seats
// @Param    id   path  int                   true  "Theater ID"
// @Param    req  body  RegisterSeatsRequest  true  "payload"
// @Success  201  {object}  CreatedResponse
// @Failure  404  {object}  ErrorResponse
// @Security BearerAuth
// @Router   /admin/theaters/{id}/seats [post]
func handleRegisterSeats(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		theaterID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req RegisterSeatsRequest
		if !bindJSON(c, &req) {
			return
		}
		seats := make([]domain.Seat, 0, len(req.Seats))
		for _, s := range req.Seats {
			seats = append(seats, domain.Seat{
				TheaterID: theaterID,
				Row:       s.Row,
				Number:    s.Number,
			})
		}
		n, err := svcs.Inventory.RegisterSeats(c.Request.Context(), theaterID, seats)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreatedResponse{Created: n})
	}
}

// @Summary  Create showtime
// @Param    req  body  CreateShowtimeRequest  true  "payload"
// @Success  201  {object}  CreateShowtimeResponse
// @Failure  404  {object}  ErrorResponse
// @Security BearerAuth
// @Router   /admin/showtimes [post]
func handleCreateShowtime(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateShowtimeRequest
		if !bindJSON(c, &req) {
			return
		}
		id, err := svcs.Inventory.CreateShowtime(
			c.Request.Context(),
			req.TheaterID,
			req.StartsAt,
			req.EndsAt,
			req.InitSeats,
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreateShowtimeResponse{ShowtimeID: id})
	}
}

// @Summary  Create seat-state rows for every seat of a showtime
// @Param    id  path  int  true  "Showtime ID"
// @Success  200  {object}  CreatedResponse
// @Failure  404  {object}  ErrorResponse
// @Security BearerAuth
// @Router   /admin/showtimes/{id}/seats/init [post]
func handleInitShowtimeSeats(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		showtimeID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		n, err := svcs.Inventory.InitShowtimeSeats(c.Request.Context(), showtimeID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, CreatedResponse{Created: n})
	}
}

// @Summary  Create or update a snack
// @Param    req  body  UpsertSnackRequest  true  "payload"
// @Success  200  {object}  UpsertSnackResponse
// @Security BearerAuth
// @Router   /admin/snacks [post]
func handleUpsertSnack(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpsertSnackRequest
		if !bindJSON(c, &req) {
			return
		}
		available := true
		if req.Available != nil {
			available = *req.Available
		}
		id, err := svcs.Inventory.UpsertSnack(c.Request.Context(), domain.Snack{
			ID:        req.ID,
			Name:      req.Name,
			Price:     req.Price,
			Available: available,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, UpsertSnackResponse{SnackID: id})
	}
}
