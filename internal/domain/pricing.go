package domain

import (
	"crypto/rand"
	"fmt"
	"math"
)

// SplitEvenly divides pool across n seats. The remainder is handed out one
// minor unit at a time starting with the first seat, so the result is
// deterministic for a given (pool, n) and always sums to pool.
func SplitEvenly(pool int64, n int) ([]int64, error) {
	if n <= 0 {
		return nil, ValidationError{Field: "seats", Reason: "at least one seat is required"}
	}
	if pool < 0 {
		return nil, ValidationError{Field: "total_price", Reason: "must not be negative"}
	}

	share := pool / int64(n)
	rem := pool % int64(n)

	out := make([]int64, n)
	for i := range out {
		out[i] = share
		if int64(i) < rem {
			out[i]++
		}
	}

	return out, nil
}

// AllocateSeatPrices builds one line per seat (seats must already be in lock order).
// With explicit prices every seat needs exactly one entry and the entries must sum
// to pool; without them pool is split evenly.
func AllocateSeatPrices(seats []Seat, pool int64, explicit map[int64]int64) ([]BookingSeatLine, error) {
	if pool < 0 {
		return nil, ValidationError{Field: "total_price", Reason: "smaller than the snack total"}
	}

	lines := make([]BookingSeatLine, len(seats))

	if len(explicit) == 0 {
		shares, err := SplitEvenly(pool, len(seats))
		if err != nil {
			return nil, err
		}
		for i, s := range seats {
			lines[i] = BookingSeatLine{SeatID: s.ID, Label: s.Label(), SeatType: DefaultSeatType, Price: shares[i]}
		}
		return lines, nil
	}

	if len(explicit) != len(seats) {
		return nil, ValidationError{Field: "lines", Reason: "one price line per seat is required"}
	}

	var sum int64
	for i, s := range seats {
		p, ok := explicit[s.ID]
		if !ok {
			return nil, ValidationError{Field: "lines", Reason: fmt.Sprintf("missing price for seat %s", s.Label())}
		}
		if p < 0 {
			return nil, ValidationError{Field: "lines", Reason: fmt.Sprintf("negative price for seat %s", s.Label())}
		}
		if p > pool-sum {
			return nil, ValidationError{
				Field:  "lines",
				Reason: fmt.Sprintf("seat prices exceed %d at seat %s", pool, s.Label()),
			}
		}
		sum += p
		lines[i] = BookingSeatLine{SeatID: s.ID, Label: s.Label(), SeatType: DefaultSeatType, Price: p}
	}

	if sum != pool {
		return nil, ValidationError{
			Field:  "lines",
			Reason: fmt.Sprintf("seat prices sum to %d, expected %d", sum, pool),
		}
	}

	return lines, nil
}

// PriceSnacks prices requested snack lines from the catalog.
func PriceSnacks(orders []SnackOrder, catalog map[int64]Snack) ([]BookingSnackLine, int64, error) {
	var total int64
	lines := make([]BookingSnackLine, 0, len(orders))

	for _, o := range orders {
		if o.Quantity <= 0 {
			return nil, 0, ValidationError{Field: "snacks", Reason: fmt.Sprintf("quantity for snack %d must be positive", o.SnackID)}
		}

		snack, ok := catalog[o.SnackID]
		if !ok || !snack.Available {
			return nil, 0, ValidationError{Field: "snacks", Reason: fmt.Sprintf("snack %d is not available", o.SnackID)}
		}

		if snack.Price > 0 && int64(o.Quantity) > math.MaxInt64/snack.Price {
			return nil, 0, ValidationError{Field: "snacks", Reason: fmt.Sprintf("quantity for snack %d is too large", o.SnackID)}
		}
		lt := snack.Price * int64(o.Quantity)
		if lt > math.MaxInt64-total {
			return nil, 0, ValidationError{Field: "snacks", Reason: "snack total is too large"}
		}
		total += lt
		lines = append(lines, BookingSnackLine{
			SnackID:    o.SnackID,
			Quantity:   o.Quantity,
			UnitPrice:  snack.Price,
			TotalPrice: lt,
		})
	}

	return lines, total, nil
}

const (
	bookingRefPrefix   = "BK"
	bookingRefLen      = 8
	bookingRefAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NewBookingRef returns "BK" followed by 8 random characters from [A-Z0-9].
func NewBookingRef() (string, error) {
	out := make([]byte, 0, len(bookingRefPrefix)+bookingRefLen)
	out = append(out, bookingRefPrefix...)

	// 252 is the largest multiple of 36 below 256; rejecting above it keeps the draw uniform.
	buf := make([]byte, 16)
	for len(out) < cap(out) {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("domain.NewBookingRef:%w", err)
		}
		for _, b := range buf {
			if b >= 252 || len(out) == cap(out) {
				continue
			}
			out = append(out, bookingRefAlphabet[int(b)%len(bookingRefAlphabet)])
		}
	}

	return string(out), nil
}

// MergeSnackOrders folds repeated snack ids into one line, keeping the order
// in which each snack first appears. Quantities must be positive.
func MergeSnackOrders(orders []SnackOrder) ([]SnackOrder, error) {
	idx := make(map[int64]int, len(orders))
	out := make([]SnackOrder, 0, len(orders))
	for _, o := range orders {
		if o.Quantity <= 0 {
			return nil, ValidationError{Field: "snacks", Reason: fmt.Sprintf("quantity for snack %d must be positive", o.SnackID)}
		}
		if i, ok := idx[o.SnackID]; ok {
			if o.Quantity > math.MaxInt-out[i].Quantity {
				return nil, ValidationError{Field: "snacks", Reason: fmt.Sprintf("quantity for snack %d is too large", o.SnackID)}
			}
			out[i].Quantity += o.Quantity
			continue
		}
		idx[o.SnackID] = len(out)
		out = append(out, o)
	}
	return out, nil
}

// SnackIDs lists the distinct snack ids of orders.
func SnackIDs(orders []SnackOrder) []int64 {
	ids := make([]int64, 0, len(orders))
	seen := make(map[int64]struct{}, len(orders))
	for _, o := range orders {
		if _, ok := seen[o.SnackID]; ok {
			continue
		}
		seen[o.SnackID] = struct{}{}
		ids = append(ids, o.SnackID)
	}
	return ids
}

// ExplicitSeatPrices maps price lines onto resolved seats. Each line must name
// one of seats and no seat may be priced twice.
func ExplicitSeatPrices(seats []Seat, lines []PriceLine) (map[int64]int64, error) {
	if len(lines) == 0 {
		return nil, nil
	}

	out := make(map[int64]int64, len(lines))
	for _, l := range lines {
		var seat *Seat
		for i := range seats {
			if l.Seat.Matches(seats[i]) {
				seat = &seats[i]
				break
			}
		}
		if seat == nil {
			return nil, ValidationError{Field: "lines", Reason: fmt.Sprintf("seat %s is not part of the booking", l.Seat)}
		}
		if _, dup := out[seat.ID]; dup {
			return nil, ValidationError{Field: "lines", Reason: fmt.Sprintf("seat %s is priced twice", seat.Label())}
		}
		out[seat.ID] = l.Price
	}

	return out, nil
}
