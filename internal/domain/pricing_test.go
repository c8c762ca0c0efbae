package domain

import (
	"math"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitEvenly(t *testing.T) {
	tests := []struct {
		name string
		pool int64
		n    int
		want []int64
	}{
		{name: "even", pool: 270000, n: 3, want: []int64{90000, 90000, 90000}},
		{name: "remainder goes to first seats", pool: 100, n: 3, want: []int64{34, 33, 33}},
		{name: "two left over", pool: 11, n: 3, want: []int64{4, 4, 3}},
		{name: "free", pool: 0, n: 2, want: []int64{0, 0}},
		{name: "single seat", pool: 7, n: 1, want: []int64{7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SplitEvenly(tt.pool, tt.n)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			var sum int64
			for _, v := range got {
				sum += v
			}
			assert.Equal(t, tt.pool, sum)
		})
	}
}

func TestSplitEvenly_Invalid(t *testing.T) {
	_, err := SplitEvenly(100, 0)
	require.ErrorIs(t, err, ErrValidation)

	_, err = SplitEvenly(-1, 2)
	require.ErrorIs(t, err, ErrValidation)
}

func seats(labels ...string) []Seat {
	out := make([]Seat, len(labels))
	for i, l := range labels {
		ref, err := ParseSeatRef(l)
		if err != nil {
			panic(err)
		}
		out[i] = Seat{ID: int64(i + 1), TheaterID: 1, Row: ref.Row, Number: ref.Number}
	}
	return out
}

func TestAllocateSeatPrices_Even(t *testing.T) {
	lines, err := AllocateSeatPrices(seats("B1", "B2", "B3"), 270000, nil)
	require.NoError(t, err)
	require.Len(t, lines, 3)

	for i, l := range lines {
		assert.Equal(t, int64(i+1), l.SeatID)
		assert.Equal(t, int64(90000), l.Price)
		assert.Equal(t, DefaultSeatType, l.SeatType)
	}
	assert.Equal(t, "B1", lines[0].Label)
}

func TestAllocateSeatPrices_Explicit(t *testing.T) {
	ss := seats("A1", "A2")

	lines, err := AllocateSeatPrices(ss, 300, map[int64]int64{1: 100, 2: 200})
	require.NoError(t, err)
	assert.Equal(t, int64(100), lines[0].Price)
	assert.Equal(t, int64(200), lines[1].Price)

	tests := []struct {
		name     string
		pool     int64
		explicit map[int64]int64
	}{
		{name: "wrong sum", pool: 301, explicit: map[int64]int64{1: 100, 2: 200}},
		{name: "missing seat", pool: 100, explicit: map[int64]int64{1: 100}},
		{name: "foreign seat", pool: 300, explicit: map[int64]int64{1: 100, 9: 200}},
		{name: "negative", pool: 100, explicit: map[int64]int64{1: 200, 2: -100}},
		{name: "negative pool", pool: -1, explicit: nil},
		{name: "sum overflows", pool: 0, explicit: map[int64]int64{1: math.MaxInt64, 2: 2}},
		{name: "sum exceeds pool", pool: 300, explicit: map[int64]int64{1: 301, 2: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := AllocateSeatPrices(ss, tt.pool, tt.explicit)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestPriceSnacks(t *testing.T) {
	catalog := map[int64]Snack{
		1: {ID: 1, Name: "Popcorn", Price: 25000, Available: true},
		2: {ID: 2, Name: "Cola", Price: 15000, Available: false},
	}

	lines, total, err := PriceSnacks([]SnackOrder{{SnackID: 1, Quantity: 2}}, catalog)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), total)
	assert.Equal(t, []BookingSnackLine{{SnackID: 1, Quantity: 2, UnitPrice: 25000, TotalPrice: 50000}}, lines)

	_, _, err = PriceSnacks([]SnackOrder{{SnackID: 2, Quantity: 1}}, catalog)
	require.ErrorIs(t, err, ErrValidation)

	_, _, err = PriceSnacks([]SnackOrder{{SnackID: 3, Quantity: 1}}, catalog)
	require.ErrorIs(t, err, ErrValidation)

	_, _, err = PriceSnacks([]SnackOrder{{SnackID: 1, Quantity: 0}}, catalog)
	require.ErrorIs(t, err, ErrValidation)
}

func TestPriceSnacks_Overflow(t *testing.T) {
	catalog := map[int64]Snack{
		1: {ID: 1, Name: "Popcorn", Price: 100, Available: true},
		2: {ID: 2, Name: "Cola", Price: math.MaxInt64 / 2, Available: true},
	}

	tests := []struct {
		name   string
		orders []SnackOrder
	}{
		{name: "line total", orders: []SnackOrder{{SnackID: 1, Quantity: 92233720368547759}}},
		{name: "running total", orders: []SnackOrder{{SnackID: 2, Quantity: 2}, {SnackID: 1, Quantity: 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := PriceSnacks(tt.orders, catalog)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestMergeSnackOrders(t *testing.T) {
	got, err := MergeSnackOrders([]SnackOrder{
		{SnackID: 2, Quantity: 1},
		{SnackID: 1, Quantity: 1},
		{SnackID: 2, Quantity: 3},
	})
	require.NoError(t, err)

	assert.Equal(t, []SnackOrder{{SnackID: 2, Quantity: 4}, {SnackID: 1, Quantity: 1}}, got)
	assert.Equal(t, []int64{2, 1}, SnackIDs(got))
}

func TestMergeSnackOrders_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		orders []SnackOrder
	}{
		{name: "zero quantity", orders: []SnackOrder{{SnackID: 1, Quantity: 0}}},
		{name: "negative quantity", orders: []SnackOrder{{SnackID: 1, Quantity: 3}, {SnackID: 1, Quantity: -2}}},
		{name: "quantity overflows", orders: []SnackOrder{{SnackID: 1, Quantity: math.MaxInt}, {SnackID: 1, Quantity: 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MergeSnackOrders(tt.orders)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestExplicitSeatPrices(t *testing.T) {
	ss := seats("A1", "A2")

	got, err := ExplicitSeatPrices(ss, []PriceLine{
		{Seat: SeatRefLabel("a", 2), Price: 70},
		{Seat: SeatRefID(1), Price: 30},
	})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{1: 30, 2: 70}, got)

	none, err := ExplicitSeatPrices(ss, nil)
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = ExplicitSeatPrices(ss, []PriceLine{{Seat: SeatRefLabel("B", 1), Price: 1}})
	require.ErrorIs(t, err, ErrValidation)

	_, err = ExplicitSeatPrices(ss, []PriceLine{
		{Seat: SeatRefID(1), Price: 1},
		{Seat: SeatRefLabel("A", 1), Price: 1},
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestNewBookingRef(t *testing.T) {
	re := regexp.MustCompile(`^BK[A-Z0-9]{8}$`)

	seen := make(map[string]struct{})
	for range 200 {
		ref, err := NewBookingRef()
		require.NoError(t, err)
		require.Regexp(t, re, ref)
		seen[ref] = struct{}{}
	}

	assert.Greater(t, len(seen), 190)
}
