package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kirinyoku/tix-cinema/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPNotifier publishes persistent JSON messages to a durable queue through
// the default exchange. The connection is opened on first use and reopened
// after the broker drops it.
type AMQPNotifier struct {
	url         string
	queue       string
	dialTimeout time.Duration

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPNotifier returns a notifier for queue. dialTimeout bounds opening
// the connection; 5s when zero.
func NewAMQPNotifier(url, queue string, dialTimeout time.Duration) *AMQPNotifier {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	return &AMQPNotifier{url: url, queue: queue, dialTimeout: dialTimeout}
}

func (n *AMQPNotifier) Notify(ctx context.Context, ev domain.BookingEvent) error {
	const op = "notify.AMQPNotifier.Notify"

	pub, err := amqpPublishing(ev)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	ch, err := n.channel()
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if err := ch.PublishWithContext(ctx,
		"",      // default exchange
		n.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		pub,
	); err != nil {
		n.reset()
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// channel returns an open channel, dialing and declaring the queue if needed.
// Callers hold n.mu.
func (n *AMQPNotifier) channel() (*amqp.Channel, error) {
	if n.ch != nil && !n.ch.IsClosed() {
		return n.ch, nil
	}
	n.reset()

	conn, err := amqp.DialConfig(n.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(n.dialTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}

	if _, err := ch.QueueDeclare(
		n.queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}

	n.conn, n.ch = conn, ch
	return ch, nil
}

func (n *AMQPNotifier) reset() {
	if n.ch != nil {
		_ = n.ch.Close()
	}
	if n.conn != nil {
		_ = n.conn.Close()
	}
	n.conn, n.ch = nil, nil
}

func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.reset()
	return nil
}

func amqpPublishing(ev domain.BookingEvent) (amqp.Publishing, error) {
	body, err := encode(ev)
	if err != nil {
		return amqp.Publishing{}, err
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         string(ev.Type),
		MessageId:    string(ev.Type) + ":" + ev.BookingRef,
		Timestamp:    ev.At,
		Body:         body,
	}, nil
}
