package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// LifecycleEvent analytics export record for a message lifecycle change
type LifecycleEvent struct {
	Kind           string    `json:"kind"` // sent, edited, deleted, purged
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id,omitempty"`
	Count          int64     `json:"count,omitempty"`
	At             time.Time `json:"at"`
}

// EventExporter definition the analytics sink for lifecycle events
type EventExporter interface {
	Export(ctx context.Context, event LifecycleEvent) error
}

type kafkaEventExporter struct {
	writer *kafka.Writer
}

// NewKafkaEventExporter create an EventExporter over a kafka topic
func NewKafkaEventExporter(writer *kafka.Writer) EventExporter {
	return &kafkaEventExporter{writer: writer}
}

func (e *kafkaEventExporter) Export(ctx context.Context, event LifecycleEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return e.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.ConversationID),
		Value: data,
	})
}
