// Package events publishes frontbill domain events to Kafka so operator
// dashboards and downstream systems can react to ledger activity.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/eric2umeh/frontbill/internal/model"
)

// Topic names for frontbill domain events.
const (
	TopicEntryAppended          = "frontbill.ledger.entries"
	TopicReconciliationFlagged  = "frontbill.reconciliation.flagged"
	TopicReconciliationApproved = "frontbill.reconciliation.approved"
)

// EntryAppended is published for every accepted ledger entry.
type EntryAppended struct {
	EntryID    int64               `json:"entry_id"`
	Account    string              `json:"account"`
	Kind       model.EntryKind     `json:"kind"`
	Amount     int64               `json:"amount"`
	Method     model.PaymentMethod `json:"method,omitempty"`
	OccurredAt time.Time           `json:"occurred_at"`
	RecordedBy int64               `json:"recorded_by"`
}

// ReconciliationEvent is published when a shift record is created with
// anomaly flags or when it is approved/resolved.
type ReconciliationEvent struct {
	RecordID      string                     `json:"record_id"`
	ShiftType     model.ShiftType            `json:"shift_type"`
	Status        model.ReconciliationStatus `json:"status"`
	TotalVariance int64                      `json:"total_variance"`
	Flags         []model.AnomalyFlag        `json:"flags,omitempty"`
}

// Publisher writes domain events to Kafka.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a publisher writing to the given brokers.
func NewPublisher(brokers []string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// Publish serializes the event as JSON and writes it to the topic.
func (p *Publisher) Publish(topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.writer.WriteMessages(context.Background(), kafka.Message{
		Topic: topic,
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
