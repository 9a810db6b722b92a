// Package events publishes committed case transitions to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/liamcoop/casework/workflow"
)

// TransitionEvent is emitted once per committed transition
type TransitionEvent struct {
	ID         string         `json:"id"`
	CaseID     string         `json:"case_id"`
	CaseType   string         `json:"case_type"`
	FromState  string         `json:"from_state"`
	ToState    string         `json:"to_state"`
	Reason     string         `json:"reason"`
	Facts      map[string]any `json:"facts"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// NewTransitionEvent builds the event for a committed audit record
func NewTransitionEvent(caseType string, rec workflow.AuditRecord) TransitionEvent {
	return TransitionEvent{
		ID:         rec.ID,
		CaseID:     rec.CaseID,
		CaseType:   caseType,
		FromState:  string(rec.FromState),
		ToState:    string(rec.ToState),
		Reason:     rec.Reason,
		Facts:      rec.Facts,
		OccurredAt: rec.CreatedAt,
	}
}

// Publisher delivers transition events. Publishing happens after the
// transition committed, so a failure never undoes the transition.
type Publisher interface {
	Publish(ctx context.Context, evt TransitionEvent) error
	Close() error
}

// NopPublisher discards every event
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, TransitionEvent) error { return nil }
func (NopPublisher) Close() error                                   { return nil }

// messageWriter is the subset of *kafka.Writer used by KafkaPublisher
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a Kafka topic, keyed by case id so that
// the events of one case stay ordered within a partition
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher creates a publisher for topic on brokers
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Publish writes one event and waits for the broker acknowledgement
func (p *KafkaPublisher) Publish(ctx context.Context, evt TransitionEvent) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal transition event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.CaseID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("case.transitioned")},
			{Key: "case_type", Value: []byte(evt.CaseType)},
		},
		Time: evt.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("failed to publish transition event: %w", err)
	}
	return nil
}

// Close flushes pending writes and releases the connection
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
