// Package kafka publishes restaurant notifications to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"

	"github.com/xenking/foodmarket/internal/domain/notification"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "restaurant-notifications"

// MessageWriter is the subset of *kafka.Writer used by Publisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Event is the wire form of a published notification.
type Event struct {
	ID           string              `json:"id"`
	RestaurantID string              `json:"restaurantId"`
	OrderID      string              `json:"orderId"`
	Message      string              `json:"message"`
	Detail       notification.Detail `json:"detail"`
	CreatedAt    time.Time           `json:"createdAt"`
}

var _ notification.Publisher = (*Publisher)(nil)

// Publisher implements notification.Publisher. Messages are keyed by
// restaurant id so each restaurant's notifications stay ordered.
type Publisher struct {
	w MessageWriter
}

// NewWriter returns a kafka.Writer for brokers and topic.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
	}
}

// NewPublisher creates a Publisher on top of w.
func NewPublisher(w MessageWriter) *Publisher {
	return &Publisher{w: w}
}

// Publish writes n to the topic.
func (p *Publisher) Publish(ctx context.Context, n *notification.Notification) error {
	payload, err := json.Marshal(Event{
		ID:           n.ID,
		RestaurantID: n.RestaurantID,
		OrderID:      n.OrderID,
		Message:      n.Message,
		Detail:       n.Detail,
		CreatedAt:    n.CreatedAt,
	})
	if err != nil {
		return errors.Wrap(err, "marshal notification")
	}
	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(n.RestaurantID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "order_id", Value: []byte(n.OrderID)},
		},
	})
	if err != nil {
		return errors.Wrap(err, "write message")
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.w.Close()
}
