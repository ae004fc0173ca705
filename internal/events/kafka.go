package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes order events to a topic keyed by order id, so every
// event of one order lands on the same partition in order.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher creates an asynchronous writer; delivery failures are logged
// from the completion callback instead of failing the caller.
func NewKafkaPublisher(brokers []string, topic string, log *slog.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Error("failed to deliver order events", "topic", topic, "messages", len(messages), "error", err)
			}
		},
	}
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev OrderEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode order event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.OrderID),
		Value: data,
		Time:  ev.At,
		Headers: []kafka.Header{
			{Key: "status", Value: []byte(ev.Status)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish order event: %w", err)
	}
	return nil
}

// Close flushes pending messages
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
