// Package notify delivers booking events to downstream consumers after the
// booking transaction has committed. Delivery is best effort: a failure is
// logged and never undoes the booking.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kirinyoku/tix-cinema/internal/domain"
)

// Notifier sends one event to a transport.
type Notifier interface {
	Notify(ctx context.Context, ev domain.BookingEvent) error
	Close() error
}

// Dispatcher queues events for a single delivery worker so the caller never
// waits on the transport. Events that do not fit the queue are dropped and
// logged.
type Dispatcher struct {
	n       Notifier
	log     *slog.Logger
	timeout time.Duration
	events  chan domain.BookingEvent
	stopped atomic.Bool
}

// NewDispatcher builds a dispatcher over n.
//
// Parameters:
//   - timeout: bound of a single delivery; 5s when zero.
//   - queue: number of events buffered for the worker; 256 when zero.
func NewDispatcher(n Notifier, log *slog.Logger, timeout time.Duration, queue int) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if queue <= 0 {
		queue = 256
	}
	return &Dispatcher{
		n:       n,
		log:     log,
		timeout: timeout,
		events:  make(chan domain.BookingEvent, queue),
	}
}

// Dispatch queues ev for delivery and returns immediately.
func (d *Dispatcher) Dispatch(_ context.Context, ev domain.BookingEvent) {
	if d.stopped.Load() {
		d.dropped(ev, "dispatcher stopped")
		return
	}

	select {
	case d.events <- ev:
	default:
		d.dropped(ev, "queue full")
	}
}

// Run delivers queued events until ctx is done, then delivers what is still
// queued and returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-d.events:
			d.deliver(ev)
		case <-ctx.Done():
			d.stopped.Store(true)
			for {
				select {
				case ev := <-d.events:
					d.deliver(ev)
				default:
					return nil
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(ev domain.BookingEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.n.Notify(ctx, ev); err != nil {
		d.log.Warn("booking notification failed",
			slog.String("type", string(ev.Type)),
			slog.String("booking_ref", ev.BookingRef),
			slog.Int64("showtime_id", ev.ShowtimeID),
			slog.Any("error", err),
		)
	}
}

func (d *Dispatcher) dropped(ev domain.BookingEvent, reason string) {
	d.log.Warn("booking notification dropped",
		slog.String("reason", reason),
		slog.String("type", string(ev.Type)),
		slog.String("booking_ref", ev.BookingRef),
		slog.Int64("showtime_id", ev.ShowtimeID),
	)
}

// Close closes the notifier. Call it after Run has returned.
func (d *Dispatcher) Close() error {
	d.stopped.Store(true)
	return d.n.Close()
}

func encode(ev domain.BookingEvent) ([]byte, error) {
	return json.Marshal(ev)
}

// LogNotifier writes events to the log instead of a broker.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, ev domain.BookingEvent) error {
	n.log.InfoContext(ctx, "booking event",
		slog.String("type", string(ev.Type)),
		slog.String("booking_ref", ev.BookingRef),
		slog.Int64("user_id", ev.UserID),
		slog.Int64("showtime_id", ev.ShowtimeID),
		slog.Any("seats", ev.Seats),
		slog.Int64("total_price", ev.TotalPrice),
	)
	return nil
}

func (n *LogNotifier) Close() error { return nil }
