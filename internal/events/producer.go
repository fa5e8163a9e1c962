package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	w messageWriter
}

// NewProducer returns an async kafka-go writer keyed by username, so events for one
// user stay ordered on a partition. Delivery failures are only logged.
func NewProducer(brokers []string, topic string, log *slog.Logger) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers")
	}
	if topic == "" {
		return nil, errors.New("kafka: empty topic")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		Async:                  true,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
		RequiredAcks:           kafka.RequireOne,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				log.Error("kafka_publish_failed", "topic", topic, "messages", len(msgs), "error", err)
			}
		},
	}
	return &Producer{w: w}, nil
}

func (p *Producer) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("kafka: json.Marshal failed: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.Username),
		Value: data,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write failed: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.w.Close()
}
