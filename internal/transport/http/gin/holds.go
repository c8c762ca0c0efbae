package httpgin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	redisrepo "github.com/kirinyoku/tix-cinema/internal/repository/redis"
	"github.com/kirinyoku/tix-cinema/internal/service"
)

// @Summary  Hold seats (idempotent)
// @Param    id               path    int          true   "Showtime ID"
// @Param    req              body    HoldRequest  true   "payload"
// @Param    Idempotency-Key  header  string       false  "replays the stored response for a repeated key"
// @Header   201  {string}  Idempotency-Key  "echo"
// @Success  201  {object}  domain.Hold
// @Failure  400  {object}  ErrorResponse  "invalid hold duration"
// @Failure  404  {object}  ErrorResponse  "unknown showtime or seat"
// @Failure  409  {object}  ErrorResponse  "seat already held or sold"
// @Failure  429  {object}  ErrorResponse  "rate limited"
// @Failure  503  {object}  ErrorResponse  "retry"
// @Router   /showtimes/{id}/holds [post]
func handleCreateHold(svcs *service.Services, idem *redisrepo.IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		showtimeID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req HoldRequest
		if !bindJSON(c, &req) {
			return
		}

		respondIdempotent(c, idem,
			func(key string) string { return redisrepo.KeyIdemHold(showtimeID, key) },
			http.StatusCreated,
			func() (any, error) {
				return svcs.Holds.AcquireHold(c.Request.Context(), showtimeID, req.Seats, req.HoldMinutes)
			},
		)
	}
}

// @Summary  Release held seats (idempotent)
// @Param    id               path    int             true   "Showtime ID"
// @Param    req              body    ReleaseRequest  true   "payload"
// @Param    Idempotency-Key  header  string          false  "replays the stored response for a repeated key"
// @Success  200  {object}  ReleaseResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /showtimes/{id}/holds/release [post]
func handleReleaseHold(svcs *service.Services, idem *redisrepo.IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		showtimeID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req ReleaseRequest
		if !bindJSON(c, &req) {
			return
		}

		respondIdempotent(c, idem,
			func(key string) string { return redisrepo.KeyIdemRelease(showtimeID, key) },
			http.StatusOK,
			func() (any, error) {
				n, err := svcs.Holds.Release(c.Request.Context(), showtimeID, req.Seats)
				if err != nil {
					return nil, err
				}
				return ReleaseResponse{Released: n}, nil
			},
		)
	}
}
