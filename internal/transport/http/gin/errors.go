package httpgin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/tix-cinema/internal/domain"
	"github.com/kirinyoku/tix-cinema/internal/service/inventory"
)

// respondErr maps service errors to status codes. Conflicts always name the
// seat that blocked the request.
func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var (
		held        domain.SeatAlreadyHeldError
		sold        domain.SeatAlreadySoldError
		expired     domain.HoldExpiredOrMissingError
		seatMissing domain.SeatNotFoundError
		showMissing domain.ShowtimeNotFoundError
		bookMissing domain.BookingNotFoundError
		notCancel   domain.BookingNotCancellableError
		duration    domain.InvalidHoldDurationError
		invalid     domain.ValidationError
	)

	switch {
	case errors.As(err, &held):
		until := held.HeldUntil
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: held.Error(),
			Code:  CodeSeatAlreadyHeld,
			Seats: []SeatProblem{{SeatID: held.Seat.ID, Label: held.Seat.Label(), HeldUntil: &until}},
		})
	case errors.As(err, &sold):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: sold.Error(),
			Code:  CodeSeatAlreadySold,
			Seats: []SeatProblem{{SeatID: sold.Seat.ID, Label: sold.Seat.Label()}},
		})
	case errors.As(err, &expired):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: expired.Error(),
			Code:  CodeHoldExpiredOrMissing,
			Seats: []SeatProblem{{SeatID: expired.Seat.ID, Label: expired.Seat.Label()}},
		})
	case errors.As(err, &notCancel):
		c.JSON(http.StatusConflict, ErrorResponse{Error: notCancel.Error(), Code: CodeBookingNotCancellable})
	case errors.As(err, &seatMissing):
		seats := make([]SeatProblem, len(seatMissing.Refs))
		for i, ref := range seatMissing.Refs {
			seats[i] = SeatProblem{SeatID: ref.ID, Label: ref.String()}
		}
		c.JSON(http.StatusNotFound, ErrorResponse{Error: seatMissing.Error(), Code: CodeSeatNotFound, Seats: seats})
	case errors.As(err, &showMissing):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: showMissing.Error(), Code: CodeShowtimeNotFound})
	case errors.As(err, &bookMissing):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: bookMissing.Error(), Code: CodeBookingNotFound})
	case errors.As(err, &duration):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: duration.Error(), Code: CodeInvalidHoldDuration})

	// inventory service
	case errors.Is(err, inventory.ErrTheaterConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "theater already exists", Code: CodeConflict})
	case errors.Is(err, inventory.ErrTheaterNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "theater not found", Code: CodeNotFound})

	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: invalid.Error(), Code: CodeValidation})
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: domain.ErrValidation.Error(), Code: CodeValidation})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: domain.ErrNotFound.Error(), Code: CodeNotFound})
	case errors.Is(err, domain.ErrConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: domain.ErrConflict.Error(), Code: CodeConflict})
	case errors.Is(err, domain.ErrRetryable):
		_ = c.Error(err)
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: domain.ErrRetryable.Error(), Code: CodeRetryable})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: CodeInternal})
	}
}
