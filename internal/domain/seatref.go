package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	reSeatID         = regexp.MustCompile(`^\d+$`)
	reSeatLabel      = regexp.MustCompile(`^([A-Z]+)(\d+)$`)
	reSeatUnderscore = regexp.MustCompile(`^([A-Z0-9]+)_(\d+)$`)
	reSeatRow        = regexp.MustCompile(`^[A-Z]+$`)
)

// SeatRef identifies a seat either by id or by row label and number within
// the showtime's theater. Refs are normalised once when they are decoded and
// are resolved against the seat catalog before any seat state is touched.
type SeatRef struct {
	ID     int64
	Row    string
	Number int
}

func SeatRefID(id int64) SeatRef { return SeatRef{ID: id} }

func SeatRefLabel(row string, number int) SeatRef {
	return SeatRef{Row: strings.ToUpper(row), Number: number}
}

func (r SeatRef) IsID() bool { return r.ID > 0 }

func (r SeatRef) String() string {
	if r.IsID() {
		return strconv.FormatInt(r.ID, 10)
	}
	return seatLabel(r.Row, r.Number)
}

// seatLabel renders a row and number so that ParseSeatRef reads it back as
// the same seat. Rows that are not purely letters keep the underscore, since
// "A3"+"5" and "A"+"35" or "3"+"3" and seat id 33 would otherwise collide.
func seatLabel(row string, number int) string {
	if reSeatRow.MatchString(row) {
		return row + strconv.Itoa(number)
	}
	return row + "_" + strconv.Itoa(number)
}

// Matches reports whether seat is the seat r refers to.
func (r SeatRef) Matches(seat Seat) bool {
	if r.IsID() {
		return seat.ID == r.ID
	}
	return seat.Row == r.Row && seat.Number == r.Number
}

// ParseSeatRef accepts "42" (seat id), "A1" or "AA12" (row letters then
// number) and "3_3" (row and number separated by an underscore).
func ParseSeatRef(s string) (SeatRef, error) {
	v := strings.ToUpper(strings.TrimSpace(s))

	if reSeatID.MatchString(v) {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return SeatRef{}, ValidationError{Field: "seat", Reason: fmt.Sprintf("invalid seat id %q", s)}
		}
		return SeatRefID(id), nil
	}

	for _, re := range []*regexp.Regexp{reSeatLabel, reSeatUnderscore} {
		m := re.FindStringSubmatch(v)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[2])
		if err != nil || n <= 0 {
			return SeatRef{}, ValidationError{Field: "seat", Reason: fmt.Sprintf("invalid seat number in %q", s)}
		}
		return SeatRefLabel(m[1], n), nil
	}

	return SeatRef{}, ValidationError{Field: "seat", Reason: fmt.Sprintf("unrecognised seat identifier %q", s)}
}

func (r *SeatRef) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		id, err := n.Int64()
		if err != nil || id <= 0 {
			return ValidationError{Field: "seat", Reason: fmt.Sprintf("invalid seat id %s", string(b))}
		}
		*r = SeatRefID(id)
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return ValidationError{Field: "seat", Reason: "seat must be a number or a string"}
	}

	ref, err := ParseSeatRef(s)
	if err != nil {
		return err
	}
	*r = ref

	return nil
}

func (r SeatRef) MarshalJSON() ([]byte, error) {
	if r.IsID() {
		return []byte(strconv.FormatInt(r.ID, 10)), nil
	}
	return json.Marshal(r.String())
}

// UniqueRefs drops repeated refs, keeping the first occurrence.
func UniqueRefs(refs []SeatRef) []SeatRef {
	seen := make(map[SeatRef]struct{}, len(refs))
	out := make([]SeatRef, 0, len(refs))
	for _, r := range refs {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
