// Package kafka publishes committed ledger transactions to a Kafka topic for
// downstream consumers (reporting, notifications).
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/afyapay/payments_engine/internal/core/domain"
	portssvc "github.com/afyapay/payments_engine/internal/core/ports/services"
)

// transactionRecordedEvent is the wire shape of the published event.
type transactionRecordedEvent struct {
	EventType         string                   `json:"eventType"`
	Transaction       domain.LedgerTransaction `json:"transaction"`
	ExternalReference string                   `json:"externalReference"`
}

// Publisher writes transaction events to Kafka. Messages are keyed by
// external reference so all events for one payment land in the same
// partition, in order.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a Kafka publisher for the given brokers and topic.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

var _ portssvc.EventPublisher = (*Publisher)(nil)

func (p *Publisher) PublishTransactionRecorded(ctx context.Context, txn domain.LedgerTransaction) error {
	data, err := json.Marshal(transactionRecordedEvent{
		EventType:         "ledger.transaction.recorded",
		Transaction:       txn,
		ExternalReference: txn.ExternalReference,
	})
	if err != nil {
		return fmt.Errorf("failed to encode transaction event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(txn.ExternalReference),
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("failed to publish transaction event: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher discards events. Used when Kafka is not configured.
type NoopPublisher struct{}

var _ portssvc.EventPublisher = NoopPublisher{}

func (NoopPublisher) PublishTransactionRecorded(context.Context, domain.LedgerTransaction) error {
	return nil
}

func (NoopPublisher) Close() error { return nil }
