package redisx

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SeatMapPubSub announces that a showtime's seat map changed. Messages carry
// no seat data; subscribers re-read the seat map.
type SeatMapPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewSeatMapPubSub(rdb *redis.Client) *SeatMapPubSub {
	return &SeatMapPubSub{
		rdb:     rdb,
		channel: ChannelSeatMapChanged(),
	}
}

type seatMapChangedMsg struct {
	Type       string `json:"type"`
	ShowtimeID int64  `json:"showtime_id"`
	TsUnix     int64  `json:"ts_unix"`
}

func (p *SeatMapPubSub) PublishSeatMapChanged(ctx context.Context, showtimeID int64) error {
	const op = "redisx.SeatMapPubSub.PublishSeatMapChanged"

	b, err := json.Marshal(seatMapChangedMsg{
		Type:       "seatmap_changed",
		ShowtimeID: showtimeID,
		TsUnix:     time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if err := p.rdb.Publish(ctx, p.channel, b).Err(); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// Subscribe calls handler for every change message until ctx is done.
func (p *SeatMapPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, showtimeID int64)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	// Wait for the subscription confirmation so no message published after
	// Subscribe returns control is missed.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redisx.SeatMapPubSub.Subscribe:%w", err)
	}

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg seatMapChangedMsg
			if err := json.Unmarshal([]byte(m.Payload), &msg); err == nil &&
				msg.ShowtimeID != 0 {
				handler(ctx, msg.ShowtimeID)
			}
		}
	}
}
