package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

type SeatStatus string

const (
	SeatAvailable SeatStatus = "available"
	SeatHeld      SeatStatus = "held"
	SeatSold      SeatStatus = "sold"
)

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

// DefaultSeatType is recorded on every booking seat line.
const DefaultSeatType = "standard"

type Theater struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Seat is static reference data: one physical seat of a theater.
type Seat struct {
	ID        int64  `json:"id"`
	TheaterID int64  `json:"theater_id"`
	Row       string `json:"row"`
	Number    int    `json:"number"`
}

// Label renders the seat the way it is printed on a ticket, e.g. "A1".
func (s Seat) Label() string {
	return seatLabel(s.Row, s.Number)
}

type Showtime struct {
	ID        int64     `json:"id"`
	TheaterID int64     `json:"theater_id"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
}

// Started reports whether the screening has begun at now.
func (s Showtime) Started(now time.Time) bool {
	return !s.StartsAt.IsZero() && !now.Before(s.StartsAt)
}

// SeatState is the per-(showtime, seat) mutable status record.
type SeatState struct {
	ShowtimeID int64
	SeatID     int64
	Status     SeatStatus
	HeldUntil  *time.Time
}

// ActiveHold reports whether the seat is held and the hold has not lapsed at now.
// A hold is over at exactly HeldUntil.
func (s SeatState) ActiveHold(now time.Time) bool {
	return s.Status == SeatHeld && s.HeldUntil != nil && s.HeldUntil.After(now)
}

// Effective returns the status a reader should observe at now: a lapsed hold reads as available
// even before the sweeper has released it.
func (s SeatState) Effective(now time.Time) SeatStatus {
	if s.Status == SeatHeld && !s.ActiveHold(now) {
		return SeatAvailable
	}
	if s.Status == "" {
		return SeatAvailable
	}
	return s.Status
}

// SeatWithStatus is one entry of a showtime seat map.
type SeatWithStatus struct {
	Seat
	Label     string     `json:"label"`
	Status    SeatStatus `json:"status"`
	HeldUntil *time.Time `json:"held_until,omitempty"`
}

// AsOf re-evaluates hold expiry at now. Seat maps may be served from cache,
// so the stored status is not trusted for held seats.
func (s SeatWithStatus) AsOf(now time.Time) SeatWithStatus {
	st := SeatState{Status: s.Status, HeldUntil: s.HeldUntil}
	s.Status = st.Effective(now)
	if s.Status != SeatHeld {
		s.HeldUntil = nil
	}
	return s
}

type SeatCounts struct {
	Available int64 `json:"available"`
	Held      int64 `json:"held"`
	Sold      int64 `json:"sold"`
	Total     int64 `json:"total"`
}

// CountSeats tallies a seat map.
func CountSeats(seats []SeatWithStatus) SeatCounts {
	var c SeatCounts
	for _, s := range seats {
		switch s.Status {
		case SeatHeld:
			c.Held++
		case SeatSold:
			c.Sold++
		default:
			c.Available++
		}
	}
	c.Total = c.Available + c.Held + c.Sold
	return c
}

// Hold is the outcome of a successful hold acquisition.
type Hold struct {
	ShowtimeID int64     `json:"showtime_id"`
	SeatIDs    []int64   `json:"seat_ids"`
	Seats      []string  `json:"seats"`
	HeldUntil  time.Time `json:"held_until"`
}

type Snack struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Available bool   `json:"available"`
}

// SnackOrder is a requested snack line before pricing.
type SnackOrder struct {
	SnackID  int64 `json:"snack_id"`
	Quantity int   `json:"quantity"`
}

// PriceLine assigns an explicit price to one requested seat.
type PriceLine struct {
	Seat  SeatRef `json:"seat" swaggertype:"string"`
	Price int64   `json:"price"`
}

// Booking is the durable record of a sale. Prices are in minor currency units.
type Booking struct {
	ID         uuid.UUID          `json:"id" swaggertype:"string" format:"uuid"`
	Ref        string             `json:"booking_ref"`
	UserID     int64              `json:"user_id"`
	ShowtimeID int64              `json:"showtime_id"`
	TotalPrice int64              `json:"total_price"`
	Status     BookingStatus      `json:"status"`
	CreatedAt  time.Time          `json:"created_at"`
	Seats      []BookingSeatLine  `json:"seats"`
	Snacks     []BookingSnackLine `json:"snacks,omitempty"`
}

// SeatIDs returns the seats of the booking in ascending id order.
func (b Booking) SeatIDs() []int64 {
	ids := make([]int64, 0, len(b.Seats))
	for _, l := range b.Seats {
		ids = append(ids, l.SeatID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

type BookingSeatLine struct {
	SeatID   int64  `json:"seat_id"`
	Label    string `json:"seat_number"`
	SeatType string `json:"seat_type"`
	Price    int64  `json:"price"`
}

type BookingSnackLine struct {
	SnackID    int64 `json:"snack_id"`
	Quantity   int   `json:"quantity"`
	UnitPrice  int64 `json:"unit_price"`
	TotalPrice int64 `json:"total_price"`
}

type BookingEventType string

const (
	BookingEventConfirmed BookingEventType = "booking.confirmed"
	BookingEventCancelled BookingEventType = "booking.cancelled"
)

// BookingEvent is handed to the notification dispatcher after commit.
type BookingEvent struct {
	Type       BookingEventType `json:"type"`
	BookingRef string           `json:"booking_ref"`
	UserID     int64            `json:"user_id"`
	ShowtimeID int64            `json:"showtime_id"`
	Seats      []string         `json:"seats"`
	TotalPrice int64            `json:"total_price"`
	At         time.Time        `json:"at"`
}

// NewBookingEvent builds the notification payload for b.
func NewBookingEvent(t BookingEventType, b Booking, at time.Time) BookingEvent {
	labels := make([]string, 0, len(b.Seats))
	for _, l := range b.Seats {
		labels = append(labels, l.Label)
	}
	return BookingEvent{
		Type:       t,
		BookingRef: b.Ref,
		UserID:     b.UserID,
		ShowtimeID: b.ShowtimeID,
		Seats:      labels,
		TotalPrice: b.TotalPrice,
		At:         at.UTC(),
	}
}

// SortSeats orders seats by id, the lock order used by every seat-state transaction.
func SortSeats(seats []Seat) {
	sort.Slice(seats, func(i, j int) bool { return seats[i].ID < seats[j].ID })
}

// SeatIDs extracts ids preserving order.
func SeatIDs(seats []Seat) []int64 {
	ids := make([]int64, len(seats))
	for i, s := range seats {
		ids[i] = s.ID
	}
	return ids
}
