package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"attestor/internal/platform/kafka/producer"
)

// DefaultTopic is the Kafka topic audit events land on.
const DefaultTopic = "attestor.audit"

// KafkaSink appends audit events to a Kafka topic, keyed by fingerprint so
// one credential's trail stays in partition order.
type KafkaSink struct {
	producer *producer.Producer
	topic    string
}

func NewKafkaSink(p *producer.Producer, topic string) *KafkaSink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaSink{producer: p, topic: topic}
}

func (s *KafkaSink) Append(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	key := []byte(event.Fingerprint)
	if len(key) == 0 {
		key = []byte(event.Actor)
	}

	return s.producer.Produce(ctx, &producer.Message{
		Topic: s.topic,
		Key:   key,
		Value: value,
		Headers: map[string]string{
			"action": event.Action,
		},
	})
}
