package httpgin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/tix-cinema/internal/domain"
	redisrepo "github.com/kirinyoku/tix-cinema/internal/repository/redis"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	idemLockTTL          = 60 * time.Second
)

// respondIdempotent runs op and writes its result with status. With an
// Idempotency-Key header and a store, a stored response for the key is
// replayed instead, and a successful response is stored for later replays.
// A failed op releases the key so the client may retry.
//
// Parameters:
//   - c: gin context of the request.
//   - idem: response store; nil disables idempotency.
//   - storageKey: maps the client key to the Redis key of this operation.
//   - status: status of a successful response.
//   - op: the operation; its result is rendered as JSON.
func respondIdempotent(
	c *gin.Context,
	idem *redisrepo.IdempotencyStore,
	storageKey func(idemKey string) string,
	status int,
	op func() (any, error),
) {
	idemKey := strings.TrimSpace(c.GetHeader(headerIdempotencyKey))
	if idem == nil || idemKey == "" {
		resp, err := op()
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(status, resp)
		return
	}

	ctx := c.Request.Context()
	key := storageKey(idemKey)

	if payload, ok, _ := idem.GetResult(ctx, key); ok {
		replay(c, idemKey, status, payload)
		return
	}

	locked, err := idem.AcquireLock(ctx, key, idemLockTTL)
	if err != nil {
		respondErr(c, fmt.Errorf("idempotency lock: %w: %w", domain.ErrRetryable, err))
		return
	}
	if !locked {
		if payload, ok, _ := idem.GetResult(ctx, key); ok {
			replay(c, idemKey, status, payload)
			return
		}
		c.Header("Retry-After", "1")
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: "idempotency key in progress",
			Code:  CodeIdempotencyInProgress,
		})
		return
	}

	resp, err := op()
	if err != nil {
		_ = idem.Release(ctx, key)
		respondErr(c, err)
		return
	}

	b, err := json.Marshal(resp)
	if err != nil {
		_ = idem.Release(ctx, key)
		respondErr(c, err)
		return
	}

	_ = idem.SaveResult(ctx, key, string(b))

	c.Header(headerIdempotencyKey, idemKey)
	c.Data(status, "application/json; charset=utf-8", b)
}

func replay(c *gin.Context, idemKey string, status int, payload string) {
	c.Header(headerIdempotencyKey, idemKey)
	c.Header("Idempotent-Replayed", "true")
	c.Data(status, "application/json; charset=utf-8", []byte(payload))
}
