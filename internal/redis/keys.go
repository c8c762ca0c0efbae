package redisx

import "fmt"

const ns = "tixcinema:v1"

func KeyShowtimeSeatMap(showtimeID int64) string {
	return fmt.Sprintf("%s:showtime:%d:seatmap", ns, showtimeID)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func KeyIdempotency(scope string, showtimeID int64, idemKey string) string {
	return fmt.Sprintf("%s:idem:%s:%d:%s", ns, scope, showtimeID, idemKey)
}

func ChannelSeatMapChanged() string {
	return ns + ":seatmap:changed"
}
