package kafka

import (
	"encoding/json"
	"fmt"
	"time"
)

// Topics для Kafka.
const (
	TopicOrderEvents     = "warehouse.order.events"
	TopicDeadLetterQueue = "warehouse.dlq"
)

// Заголовки сообщений, по которым потребители фильтруют события без разбора payload.
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOutboxID      = "x-outbox-id"
)

// Envelope — формат сообщения, которое outbox publisher кладёт в topic.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// DecodeEnvelope разбирает значение сообщения из topic.
func DecodeEnvelope(value []byte) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(value, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return envelope, nil
}
