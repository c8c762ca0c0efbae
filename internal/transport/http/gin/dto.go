package httpgin

import (
	"time"

	"github.com/kirinyoku/tix-cinema/internal/domain"
)

// Seats accept seat ids (42) or labels ("A1", "3_3").
type HoldRequest struct {
	Seats       []domain.SeatRef `json:"seats" binding:"required,min=1" swaggertype:"array,string"`
	HoldMinutes int              `json:"hold_minutes"`
}

type ReleaseRequest struct {
	Seats []domain.SeatRef `json:"seats" binding:"required,min=1" swaggertype:"array,string"`
}

type ReleaseResponse struct {
	Released int64 `json:"released"`
}

// BookingRequest sells held seats. UserID is read only when authentication
// is disabled; otherwise the token subject is the buyer.
type BookingRequest struct {
	Seats      []domain.SeatRef    `json:"seats" binding:"required,min=1" swaggertype:"array,string"`
	UserID     int64               `json:"user_id"`
	TotalPrice int64               `json:"total_price" binding:"gte=0"`
	Lines      []domain.PriceLine  `json:"lines"`
	Snacks     []domain.SnackOrder `json:"snacks"`
}

type CancelRequest struct {
	UserID int64 `json:"user_id"`
}

type CreateTheaterRequest struct {
	Name string `json:"name" binding:"required"`
}

type CreateTheaterResponse struct {
	TheaterID int64 `json:"theater_id"`
}

type RegisterSeatsRequest struct {
	Seats []SeatInput `json:"seats" binding:"required,min=1,dive"`
}

type SeatInput struct {
	Row    string `json:"row" binding:"required"`
	Number int    `json:"number" binding:"required,gt=0"`
}

type CreatedResponse struct {
	Created int64 `json:"created"`
}

type CreateShowtimeRequest struct {
	TheaterID int64     `json:"theater_id" binding:"required"`
	StartsAt  time.Time `json:"starts_at" binding:"required"`
	EndsAt    time.Time `json:"ends_at" binding:"required"`
	InitSeats bool      `json:"init_seats"`
}

type CreateShowtimeResponse struct {
	ShowtimeID int64 `json:"showtime_id"`
}

type UpsertSnackRequest struct {
	ID        int64  `json:"id"`
	Name      string `json:"name" binding:"required"`
	Price     int64  `json:"price" binding:"gte=0"`
	Available *bool  `json:"available"`
}

type UpsertSnackResponse struct {
	SnackID int64 `json:"snack_id"`
}

// Error codes carried by ErrorResponse.
const (
	CodeBadRequest            = "BAD_REQUEST"
	CodeValidation            = "VALIDATION_FAILED"
	CodeInvalidHoldDuration   = "INVALID_HOLD_DURATION"
	CodeShowtimeNotFound      = "SHOWTIME_NOT_FOUND"
	CodeSeatNotFound          = "SEAT_NOT_FOUND"
	CodeBookingNotFound       = "BOOKING_NOT_FOUND"
	CodeNotFound              = "NOT_FOUND"
	CodeSeatAlreadyHeld       = "SEAT_ALREADY_HELD"
	CodeSeatAlreadySold       = "SEAT_ALREADY_SOLD"
	CodeHoldExpiredOrMissing  = "HOLD_EXPIRED_OR_MISSING"
	CodeBookingNotCancellable = "BOOKING_NOT_CANCELLABLE"
	CodeConflict              = "CONFLICT"
	CodeIdempotencyInProgress = "IDEMPOTENCY_KEY_IN_PROGRESS"
	CodeRateLimited           = "RATE_LIMITED"
	CodeForbidden             = "FORBIDDEN"
	CodeRetryable             = "RETRYABLE"
	CodeInternal              = "INTERNAL"
)

type ErrorResponse struct {
	Error string        `json:"error"`
	Code  string        `json:"code,omitempty"`
	Seats []SeatProblem `json:"seats,omitempty"`
}

// SeatProblem names a seat that caused a request to fail.
type SeatProblem struct {
	SeatID    int64      `json:"seat_id,omitempty"`
	Label     string     `json:"label"`
	HeldUntil *time.Time `json:"held_until,omitempty"`
}
