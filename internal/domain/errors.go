package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error kinds. Every typed error below matches exactly one or two of these via errors.Is,
// which is what callers branch on; the concrete types carry the detail.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrRetryable  = errors.New("temporarily unavailable, retry")
	ErrInternal   = errors.New("internal error")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e ValidationError) Is(target error) bool { return target == ErrValidation }

type InvalidHoldDurationError struct {
	Minutes  int
	Min, Max int
}

func (e InvalidHoldDurationError) Error() string {
	return fmt.Sprintf("hold duration %d minutes is outside [%d, %d]", e.Minutes, e.Min, e.Max)
}

func (e InvalidHoldDurationError) Is(target error) bool { return target == ErrValidation }

type ShowtimeNotFoundError struct {
	ShowtimeID int64
}

func (e ShowtimeNotFoundError) Error() string {
	return fmt.Sprintf("showtime not found: %d", e.ShowtimeID)
}

func (e ShowtimeNotFoundError) Is(target error) bool {
	return target == ErrNotFound || target == ErrValidation
}

type SeatNotFoundError struct {
	ShowtimeID int64
	Refs       []SeatRef
}

func (e SeatNotFoundError) Error() string {
	refs := make([]string, len(e.Refs))
	for i, r := range e.Refs {
		refs[i] = r.String()
	}
	return fmt.Sprintf("seats not found for showtime %d: %s", e.ShowtimeID, strings.Join(refs, ", "))
}

func (e SeatNotFoundError) Is(target error) bool {
	return target == ErrNotFound || target == ErrValidation
}

type SeatAlreadySoldError struct {
	Seat Seat
}

func (e SeatAlreadySoldError) Error() string {
	return fmt.Sprintf("seat %s is already sold", e.Seat.Label())
}

func (e SeatAlreadySoldError) Is(target error) bool { return target == ErrConflict }

// SeatAlreadyHeldError names the seat and when the blocking hold lapses.
type SeatAlreadyHeldError struct {
	Seat      Seat
	HeldUntil time.Time
}

func (e SeatAlreadyHeldError) Error() string {
	return fmt.Sprintf("seat %s is held until %s", e.Seat.Label(), e.HeldUntil.UTC().Format(time.RFC3339))
}

func (e SeatAlreadyHeldError) Is(target error) bool { return target == ErrConflict }

type HoldExpiredOrMissingError struct {
	Seat Seat
}

func (e HoldExpiredOrMissingError) Error() string {
	return fmt.Sprintf("seat %s has no active hold", e.Seat.Label())
}

func (e HoldExpiredOrMissingError) Is(target error) bool { return target == ErrConflict }

type BookingNotFoundError struct {
	Ref string
}

func (e BookingNotFoundError) Error() string {
	return fmt.Sprintf("booking not found: %s", e.Ref)
}

func (e BookingNotFoundError) Is(target error) bool { return target == ErrNotFound }

type BookingNotCancellableError struct {
	Ref    string
	Reason string
}

func (e BookingNotCancellableError) Error() string {
	return fmt.Sprintf("booking %s cannot be cancelled: %s", e.Ref, e.Reason)
}

func (e BookingNotCancellableError) Is(target error) bool { return target == ErrConflict }

// CorruptSeatStateError reports a seat-state row that violates the status/held_until invariant.
// It is never retried.
type CorruptSeatStateError struct {
	ShowtimeID int64
	SeatID     int64
	Status     SeatStatus
	HeldUntil  *time.Time
}

func (e CorruptSeatStateError) Error() string {
	return fmt.Sprintf(
		"corrupt seat state: showtime=%d seat=%d status=%q held_until_set=%t",
		e.ShowtimeID, e.SeatID, e.Status, e.HeldUntil != nil,
	)
}

func (e CorruptSeatStateError) Is(target error) bool { return target == ErrInternal }

// Validate checks the status/held_until invariant of a stored row.
func (s SeatState) Validate() error {
	switch {
	case s.Status == SeatAvailable && s.HeldUntil == nil,
		s.Status == SeatHeld && s.HeldUntil != nil,
		s.Status == SeatSold && s.HeldUntil == nil:
		return nil
	}

	return CorruptSeatStateError{
		ShowtimeID: s.ShowtimeID,
		SeatID:     s.SeatID,
		Status:     s.Status,
		HeldUntil:  s.HeldUntil,
	}
}
