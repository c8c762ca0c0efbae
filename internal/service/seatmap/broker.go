package seatmap

import (
	"context"
	"sync"
)

// Broker fans seat-map change signals out to in-process listeners such as
// open SSE streams. Signals coalesce: a slow listener sees at most one
// pending change per subscription.
type Broker struct {
	mu   sync.Mutex
	subs map[int64]map[chan struct{}]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[int64]map[chan struct{}]struct{})}
}

// Subscribe registers interest in showtimeID. The returned cancel func must
// be called to unregister.
func (b *Broker) Subscribe(showtimeID int64) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	b.mu.Lock()
	if b.subs[showtimeID] == nil {
		b.subs[showtimeID] = make(map[chan struct{}]struct{})
	}
	b.subs[showtimeID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			delete(b.subs[showtimeID], ch)
			if len(b.subs[showtimeID]) == 0 {
				delete(b.subs, showtimeID)
			}
		})
	}
}

// Notify signals every listener of showtimeID without blocking.
func (b *Broker) Notify(_ context.Context, showtimeID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[showtimeID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// PublishSeatMapChanged lets the broker stand in for the Redis channel when
// the service runs as a single process.
func (b *Broker) PublishSeatMapChanged(ctx context.Context, showtimeID int64) error {
	b.Notify(ctx, showtimeID)
	return nil
}

// Listeners reports how many subscriptions showtimeID has.
func (b *Broker) Listeners(showtimeID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subs[showtimeID])
}
