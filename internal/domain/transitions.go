package domain

import "time"

// CheckHoldable walks seats in lock order and returns the first reason the batch
// cannot be held at now. Seats without a state row are available.
func CheckHoldable(seats []Seat, states map[int64]SeatState, now time.Time) error {
	for _, seat := range seats {
		st, ok := states[seat.ID]
		if !ok {
			continue
		}

		if err := st.Validate(); err != nil {
			return err
		}

		switch {
		case st.Status == SeatSold:
			return SeatAlreadySoldError{Seat: seat}
		case st.ActiveHold(now):
			return SeatAlreadyHeldError{Seat: seat, HeldUntil: *st.HeldUntil}
		}
	}

	return nil
}

// CheckFinalizable requires every seat to carry a hold that is still active at now.
func CheckFinalizable(seats []Seat, states map[int64]SeatState, now time.Time) error {
	for _, seat := range seats {
		st, ok := states[seat.ID]
		if !ok {
			return HoldExpiredOrMissingError{Seat: seat}
		}

		if err := st.Validate(); err != nil {
			return err
		}

		if !st.ActiveHold(now) {
			return HoldExpiredOrMissingError{Seat: seat}
		}
	}

	return nil
}

// StatesBySeat indexes rows by seat id.
func StatesBySeat(states []SeatState) map[int64]SeatState {
	m := make(map[int64]SeatState, len(states))
	for _, s := range states {
		m[s.SeatID] = s
	}
	return m
}
