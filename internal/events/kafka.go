// Package events publishes order lifecycle events to Kafka.
package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"

	"github.com/xenking/artisan-checkout/internal/domain/order"
)

// DefaultTopic receives order events when no topic is configured.
const DefaultTopic = "artisan.orders"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ order.Publisher = (*KafkaPublisher)(nil)

// KafkaPublisher writes order events keyed by order ID, so events for one
// order land on one partition in order.
type KafkaPublisher struct {
	w messageWriter
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
	}}
}

// Publish writes e synchronously.
func (p *KafkaPublisher) Publish(ctx context.Context, e order.Event) error {
	if e.Order == nil {
		return errors.New("event has no order")
	}
	msg := kafka.Message{
		Key:   []byte(e.Order.ID),
		Value: Encode(e),
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "write %s event", e.Type)
	}
	return nil
}

// Close flushes pending writes and closes the connection.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// Encode renders e as the JSON event payload.
func Encode(e order.Event) []byte {
	var enc jx.Encoder
	enc.ObjStart()
	enc.FieldStart("type")
	enc.Str(string(e.Type))
	enc.FieldStart("order_id")
	enc.Str(e.Order.ID)
	enc.FieldStart("user_id")
	enc.Str(e.Order.UserID)
	enc.FieldStart("status")
	enc.Str(string(e.Order.Status))
	enc.FieldStart("total_amount")
	enc.Str(e.Order.TotalAmount.StringFixed(2))
	if id := e.Order.Gateway.PaymentID; id != "" {
		enc.FieldStart("razorpay_payment_id")
		enc.Str(id)
	}
	enc.FieldStart("occurred_at")
	enc.Str(e.OccurredAt.UTC().Format(time.RFC3339Nano))
	enc.ObjEnd()
	return enc.Bytes()
}
