package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSink produces events to a Kafka topic. Records are keyed by violation
// id so every event for one record lands on the same partition, in order.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

// NewKafkaSink connects a producer to brokers for topic.
func NewKafkaSink(brokers []string, topic string, opts ...kgo.Opt) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka sink: at least one broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka sink: topic is required")
	}
	base := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5 * time.Millisecond),
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("kafka sink: create client: %w", err)
	}
	return &KafkaSink{client: client, topic: topic}, nil
}

// EnsureTopic creates the topic if it does not exist yet.
func (s *KafkaSink) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(s.client)
	resp, err := adm.CreateTopics(ctx, partitions, replicationFactor, nil, s.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", s.topic, err)
	}
	for _, r := range resp.Sorted() {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

func (s *KafkaSink) Send(ctx context.Context, batch []Event) error {
	records := make([]*kgo.Record, 0, len(batch))
	for _, ev := range batch {
		value, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", ev.ID, err)
		}
		records = append(records, &kgo.Record{
			Key:   []byte(strconv.FormatInt(ev.Violation.ID, 10)),
			Value: value,
			Headers: []kgo.RecordHeader{
				{Key: "event_type", Value: []byte(ev.Type)},
				{Key: "event_id", Value: []byte(ev.ID)},
			},
		})
	}
	if err := s.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce %d events: %w", len(records), err)
	}
	return nil
}

// Ping checks that at least one broker is reachable.
func (s *KafkaSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *KafkaSink) Close() error {
	s.client.Close()
	return nil
}
