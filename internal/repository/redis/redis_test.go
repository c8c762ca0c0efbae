package redis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisx "github.com/kirinyoku/tix-cinema/internal/redis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return mr, rdb
}

type seatMap struct {
	ShowtimeID int64    `json:"showtime_id"`
	Seats      []string `json:"seats"`
}

func TestGetOrSetJSON(t *testing.T) {
	mr, rdb := newTestClient(t)
	c := New(rdb)
	ctx := context.Background()
	key := redisx.KeyShowtimeSeatMap(1)

	var calls int32
	loader := func(context.Context) (seatMap, error) {
		atomic.AddInt32(&calls, 1)
		return seatMap{ShowtimeID: 1, Seats: []string{"A1", "A2"}}, nil
	}

	v, err := GetOrSetJSON(ctx, c, key, time.Minute, loader)
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A2"}, v.Seats)
	assert.True(t, mr.Exists(key))

	v, err = GetOrSetJSON(ctx, c, key, time.Minute, loader)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.ShowtimeID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "second read is served from cache")

	mr.FastForward(2 * time.Minute)
	_, err = GetOrSetJSON(ctx, c, key, time.Minute, loader)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetOrSetJSON_SharesConcurrentMisses(t *testing.T) {
	_, rdb := newTestClient(t)
	c := New(rdb)
	ctx := context.Background()

	var calls int32
	release := make(chan struct{})
	loader := func(context.Context) (seatMap, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return seatMap{ShowtimeID: 9}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := GetOrSetJSON(ctx, c, redisx.KeyShowtimeSeatMap(9), time.Minute, loader)
			assert.NoError(t, err)
			assert.Equal(t, int64(9), v.ShowtimeID)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(2))
}

func TestGetOrSetJSON_LoaderError(t *testing.T) {
	mr, rdb := newTestClient(t)
	c := New(rdb)
	boom := errors.New("boom")

	_, err := GetOrSetJSON(context.Background(), c, "k", time.Minute, func(context.Context) (seatMap, error) {
		return seatMap{}, boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("k"))
}

func TestGetOrSetJSON_RedisDown(t *testing.T) {
	mr, rdb := newTestClient(t)
	c := New(rdb)
	mr.Close()

	v, err := GetOrSetJSON(context.Background(), c, "k", time.Minute, func(context.Context) (seatMap, error) {
		return seatMap{ShowtimeID: 3}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), v.ShowtimeID)
}

func TestInvalidateShowtime(t *testing.T) {
	mr, rdb := newTestClient(t)
	c := New(rdb)
	ctx := context.Background()

	require.NoError(t, mr.Set(redisx.KeyShowtimeSeatMap(5), "{}"))
	require.NoError(t, mr.Set(redisx.KeyShowtimeSeatMap(6), "{}"))

	require.NoError(t, c.InvalidateShowtime(ctx, 5))

	assert.False(t, mr.Exists(redisx.KeyShowtimeSeatMap(5)))
	assert.True(t, mr.Exists(redisx.KeyShowtimeSeatMap(6)))
}

func TestIdempotencyStore(t *testing.T) {
	mr, rdb := newTestClient(t)
	s := NewIdempotencyStore(rdb, time.Hour)
	ctx := context.Background()
	key := KeyIdemHold(3, "abc")

	ok, err := s.AcquireLock(ctx, key, 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AcquireLock(ctx, key, 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "second claim of the same key must fail")

	locked, err := s.IsLocked(ctx, key)
	require.NoError(t, err)
	assert.True(t, locked)

	_, found, err := s.GetResult(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SaveResult(ctx, key, `{"seat_ids":[1]}`))

	res, found, err := s.GetResult(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"seat_ids":[1]}`, res)

	locked, err = s.IsLocked(ctx, key)
	require.NoError(t, err)
	assert.False(t, locked)
	assert.Equal(t, time.Hour, mr.TTL(key))

	require.NoError(t, s.Release(ctx, key))
	assert.False(t, mr.Exists(key))
}

func TestIdempotencyKeysAreScoped(t *testing.T) {
	assert.NotEqual(t, KeyIdemHold(1, "k"), KeyIdemBooking(1, "k"))
	assert.NotEqual(t, KeyIdemHold(1, "k"), KeyIdemHold(2, "k"))
	assert.NotEqual(t, KeyIdemRelease(1, "k"), KeyIdemBooking(1, "k"))
}

func TestSlidingWindowLimiter(t *testing.T) {
	_, rdb := newTestClient(t)
	l := NewSlidingWindowLimiter(rdb, "holds", 3, time.Minute)

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		ok, cur, _, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(i), cur)
		now = now.Add(time.Second)
	}

	ok, _, retry, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 57*time.Second, retry)

	ok, _, _, err = l.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, ok, "subjects are limited independently")

	now = now.Add(time.Minute)
	ok, _, _, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)
}
