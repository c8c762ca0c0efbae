package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	redisx "github.com/kirinyoku/tix-cinema/internal/redis"
	"github.com/redis/go-redis/v9"
)

const (
	idemLock   = "LOCK"
	idemResult = "RES:"
)

func KeyIdemHold(showtimeID int64, idemKey string) string {
	return redisx.KeyIdempotency("holds", showtimeID, idemKey)
}

func KeyIdemBooking(showtimeID int64, idemKey string) string {
	return redisx.KeyIdempotency("bookings", showtimeID, idemKey)
}

func KeyIdemRelease(showtimeID int64, idemKey string) string {
	return redisx.KeyIdempotency("release", showtimeID, idemKey)
}

// IdempotencyStore remembers the response of a request carrying an
// Idempotency-Key. A key is first claimed with a short-lived lock and then
// replaced by the stored response.
type IdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

func (s *IdempotencyStore) AcquireLock(ctx context.Context, key string, lockTTL time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, idemLock, lockTTL).Result()
}

func (s *IdempotencyStore) SaveResult(ctx context.Context, key string, jsonPayload string) error {
	val := idemResult + jsonPayload
	return s.rdb.Set(ctx, key, val, s.ttl).Err()
}

func (s *IdempotencyStore) GetResult(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if payload, ok := strings.CutPrefix(v, idemResult); ok {
		return payload, true, nil
	}

	return "", false, nil
}

func (s *IdempotencyStore) IsLocked(ctx context.Context, key string) (bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == idemLock, nil
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
