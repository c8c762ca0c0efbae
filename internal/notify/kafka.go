package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kirinyoku/tix-cinema/internal/domain"
	"github.com/segmentio/kafka-go"
)

// KafkaNotifier writes events to a topic keyed by booking reference, so all
// events of one booking land on the same partition in order.
type KafkaNotifier struct {
	writer *kafka.Writer
}

// NewKafkaNotifier accepts a comma-separated broker list.
func NewKafkaNotifier(brokers, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(splitBrokers(brokers)...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			BatchTimeout:           10 * time.Millisecond,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}
}

func (n *KafkaNotifier) Notify(ctx context.Context, ev domain.BookingEvent) error {
	const op = "notify.KafkaNotifier.Notify"

	msg, err := kafkaMessage(ev)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

func kafkaMessage(ev domain.BookingEvent) (kafka.Message, error) {
	body, err := encode(ev)
	if err != nil {
		return kafka.Message{}, err
	}

	return kafka.Message{
		Key:   []byte(ev.BookingRef),
		Value: body,
		Time:  ev.At,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	}, nil
}

func splitBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
