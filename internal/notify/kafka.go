package notify

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"

	"github.com/xenking/atelier/internal/domain/order"
)

// MessageWriter is implemented by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Kafka publishes order.placed events keyed by user ID, so one customer's
// events stay ordered within a partition.
type Kafka struct {
	w MessageWriter
}

var _ order.Notifier = (*Kafka)(nil)

// NewKafka creates a Kafka notifier writing through w.
func NewKafka(w MessageWriter) *Kafka {
	return &Kafka{w: w}
}

// NewKafkaWriter returns a writer for topic that hashes message keys onto
// partitions.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// OrderPlaced implements order.Notifier.
func (k *Kafka) OrderPlaced(ctx context.Context, o *order.Order) error {
	msg := kafka.Message{
		Key:   []byte(o.UserID),
		Value: encodeOrderPlaced(o),
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(EventOrderPlaced)},
		},
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "publish %s for %s", EventOrderPlaced, o.Number)
	}
	return nil
}
