package kafkanotify

import (
	"context"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/segmentio/kafka-go"

	"github.com/luno/snaprestore"
)

// Notifier publishes workflow notifications to Kafka. The topic is chosen per
// message so one writer serves both failure and completion channels.
type Notifier struct {
	writer *kafka.Writer
}

func New(brokers []string) *Notifier {
	return &Notifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

var _ snaprestore.Notifier = (*Notifier)(nil)

func (n *Notifier) Publish(ctx context.Context, topic, subject, message string) error {
	for ctx.Err() == nil {
		err := n.writer.WriteMessages(ctx, kafka.Message{
			Topic: topic,
			Key:   []byte(subject),
			Value: []byte(message),
			Headers: []kafka.Header{
				{Key: "subject", Value: []byte(subject)},
			},
		})
		if errors.Is(err, kafka.LeaderNotAvailable) || errors.Is(err, context.DeadlineExceeded) {
			time.Sleep(time.Millisecond * 100)
			continue
		} else if err != nil {
			return err
		}

		break
	}

	return ctx.Err()
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}
