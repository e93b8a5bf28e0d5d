//go:build integration

package producer_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"attestor/internal/platform/kafka/producer"
	"attestor/pkg/platform/audit"
	"attestor/pkg/testutil/containers"
)

type ProducerIntegrationSuite struct {
	suite.Suite
	kafka    *containers.KafkaContainer
	producer *producer.Producer
}

func TestProducerIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ProducerIntegrationSuite))
}

func (s *ProducerIntegrationSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.kafka = mgr.GetKafka(s.T())

	cfg := producer.Config{
		Brokers:         s.kafka.Brokers,
		Acks:            "all",
		Retries:         3,
		DeliveryTimeout: 10 * time.Second,
	}
	prod, err := producer.New(cfg, nil)
	s.Require().NoError(err)
	s.producer = prod
}

func (s *ProducerIntegrationSuite) TearDownSuite() {
	if s.producer != nil {
		s.producer.Close()
	}
}

// TestAuditEventDeliversToTopic verifies the full audit path: an event
// appended through the Kafka sink is consumable, keyed by fingerprint,
// and round-trips its fields.
func (s *ProducerIntegrationSuite) TestAuditEventDeliversToTopic() {
	ctx := context.Background()
	topic := "test-audit-events"

	err := s.kafka.CreateTopic(ctx, topic, 1, 1)
	s.Require().NoError(err)

	sink := audit.NewKafkaSink(s.producer, topic)
	event := audit.Event{
		Timestamp:   time.Now().UTC(),
		Actor:       "did:web:university.example.edu",
		Fingerprint: "3a7bd3e2360a3d29eea436fcfb7e44c735d117c42d1c1835420b6b9942dd4f1b",
		Action:      audit.ActionCredentialIssued,
		Outcome:     "anchored",
		RequestID:   "req-42",
	}

	err = sink.Append(ctx, event)
	s.Require().NoError(err)

	consumer, err := s.kafka.NewConsumer(ctx, "test-audit-consumer-group", topic)
	s.Require().NoError(err)
	defer consumer.Close()

	record := s.kafka.WaitForMessage(ctx, consumer, 5*time.Second, func(r *kgo.Record) bool {
		return string(r.Key) == event.Fingerprint
	})
	s.Require().NotNil(record, "audit event should be consumable")

	var got audit.Event
	s.Require().NoError(json.Unmarshal(record.Value, &got))
	s.Equal(event.Actor, got.Actor)
	s.Equal(event.Action, got.Action)
	s.Equal(event.Outcome, got.Outcome)
	s.Equal(event.RequestID, got.RequestID)

	headers := make(map[string]string)
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	s.Equal(audit.ActionCredentialIssued, headers["action"])
}

// TestAuditEventWithoutFingerprintKeysByActor covers visibility changes and
// other events that precede a fingerprint.
func (s *ProducerIntegrationSuite) TestAuditEventWithoutFingerprintKeysByActor() {
	ctx := context.Background()
	topic := "test-audit-actor-keyed"

	err := s.kafka.CreateTopic(ctx, topic, 1, 1)
	s.Require().NoError(err)

	sink := audit.NewKafkaSink(s.producer, topic)
	event := audit.Event{
		Timestamp: time.Now().UTC(),
		Actor:     "did:web:holder.example.com",
		Action:    audit.ActionVisibilityChanged,
		Outcome:   "hidden",
	}

	err = sink.Append(ctx, event)
	s.Require().NoError(err)

	consumer, err := s.kafka.NewConsumer(ctx, "test-audit-actor-consumer", topic)
	s.Require().NoError(err)
	defer consumer.Close()

	record := s.kafka.WaitForMessage(ctx, consumer, 5*time.Second, func(r *kgo.Record) bool {
		return string(r.Key) == event.Actor
	})
	s.Require().NotNil(record, "event without fingerprint should be keyed by actor")
}

// TestProduceToNonExistentTopicAutoCreates verifies auto-topic creation, so
// deployments do not have to pre-provision the audit topic.
func (s *ProducerIntegrationSuite) TestProduceToNonExistentTopicAutoCreates() {
	ctx := context.Background()
	topic := "test-auto-create-" + time.Now().Format("20060102150405")

	msg := &producer.Message{
		Topic: topic,
		Key:   []byte("auto-create-key"),
		Value: []byte("auto-create-value"),
	}

	err := s.producer.Produce(ctx, msg)
	s.Require().NoError(err)

	consumer, err := s.kafka.NewConsumer(ctx, "test-auto-create-consumer", topic)
	s.Require().NoError(err)
	defer consumer.Close()

	record := s.kafka.WaitForMessage(ctx, consumer, 5*time.Second, func(r *kgo.Record) bool {
		return string(r.Key) == "auto-create-key"
	})

	s.Require().NotNil(record, "message should be consumable from auto-created topic")
}

// TestProducerHealthy verifies health check works with running broker.
func (s *ProducerIntegrationSuite) TestProducerHealthy() {
	ctx := context.Background()
	s.True(s.producer.Healthy(ctx))
}
