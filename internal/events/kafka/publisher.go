package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// Publisher writes JSON-encoded domain events to Kafka. Downstream
// consumers (notification service, analytics) subscribe to the sync
// completion topic; this service only produces.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a publisher connected to the given brokers.
func NewPublisher(brokers []string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// Publish marshals the event and writes it under the topic.
func (p *Publisher) Publish(topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("Publish: marshaling event for %s: %w", topic, err)
	}

	return p.writer.WriteMessages(context.Background(), kafka.Message{
		Topic: topic,
		Value: data,
	})
}

// Close releases the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
