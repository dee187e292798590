package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/sawpanic/spotlift/internal/config"
	"github.com/sawpanic/spotlift/internal/persistence"
)

// messageWriter is the subset of *kafka.Writer the publisher uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher sends finished runs to a Kafka topic, one message per run keyed
// by run id.
type Publisher struct {
	w     messageWriter
	topic string
}

// NewKafkaPublisher creates a synchronous publisher for cfg.Topic
func NewKafkaPublisher(cfg config.KafkaConfig) *Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		RequiredAcks: kafka.RequireOne,
		Balancer:     &kafka.Hash{},
		Async:        false,
	}
	return &Publisher{w: w, topic: cfg.Topic}
}

// Publish writes run as JSON
func (p *Publisher) Publish(ctx context.Context, run persistence.Run) error {
	value, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(run.ID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "source", Value: []byte(run.Source)},
			{Key: "digest", Value: []byte(run.Digest)},
		},
		Time: run.CreatedAt,
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish run %s to %s: %w", run.ID, p.topic, err)
	}
	return nil
}

// Close flushes and closes the writer
func (p *Publisher) Close() error {
	return p.w.Close()
}
