package httpgin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/tix-cinema/internal/service"
	"github.com/kirinyoku/tix-cinema/internal/service/seatmap"
)

// @Summary  Get seat map
// @Param    id  path  int  true  "Showtime ID"
// @Success  200  {object}  seatmap.SeatMap
// @Success  304  "not modified"
// @Failure  404  {object}  ErrorResponse
// @Router   /showtimes/{id}/seats [get]
func handleGetSeatMap(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		showtimeID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		sm, err := svcs.SeatMap.GetSeatMap(c.Request.Context(), showtimeID)
		if err != nil {
			respondErr(c, err)
			return
		}
		// Holds lapse without writes, so clients revalidate every time.
		writeJSONWithETag(c, http.StatusOK, sm, "no-cache")
	}
}

// @Summary  Get availability counters
// @Param    id  path  int  true  "Showtime ID"
// @Success  200  {object}  domain.SeatCounts
// @Failure  404  {object}  ErrorResponse
// @Router   /showtimes/{id}/availability [get]
func handleGetAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		showtimeID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		cnt, err := svcs.SeatMap.Availability(c.Request.Context(), showtimeID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithETag(c, http.StatusOK, cnt, "no-cache")
	}
}

// @Summary      Stream seat map changes
// @Description  Server-sent events: a "seatmap" event with the current map on
// @Description  connect and after every committed change of the showtime.
// @Param        id  path  int  true  "Showtime ID"
// @Produce      text/event-stream
// @Success      200
// @Failure      404  {object}  ErrorResponse
// @Router       /showtimes/{id}/seats/stream [get]
func handleSeatMapStream(
	svcs *service.Services,
	broker *seatmap.Broker,
	keepAlive time.Duration,
	done <-chan struct{},
) gin.HandlerFunc {
	return func(c *gin.Context) {
		showtimeID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		if broker == nil {
			c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "seat map stream is disabled"})
			return
		}

		ctx := c.Request.Context()

		// Subscribe before the first read so no change between the two is lost.
		changes, cancel := broker.Subscribe(showtimeID)
		defer cancel()

		sm, err := svcs.SeatMap.GetSeatMap(ctx, showtimeID)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)

		c.SSEvent("seatmap", sm)
		c.Writer.Flush()

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			case <-changes:
				sm, err := svcs.SeatMap.GetSeatMap(ctx, showtimeID)
				if err != nil {
					if ctx.Err() == nil {
						_ = c.Error(err)
						c.SSEvent("error", ErrorResponse{Error: "seat map unavailable", Code: CodeInternal})
						c.Writer.Flush()
					}
					return
				}
				c.SSEvent("seatmap", sm)
			}
			c.Writer.Flush()
		}
	}
}
