package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kgo"
)

// UsageEventsTopic receives one event per completed model invocation.
const UsageEventsTopic = "ai_usage_events"

// UsageEvent mirrors a usage ledger record for downstream analytics.
type UsageEvent struct {
	EventID       string                 `json:"event_id"`
	EventType     string                 `json:"event_type"`
	Timestamp     time.Time              `json:"timestamp"`
	Source        string                 `json:"source"`
	UserID        string                 `json:"user_id,omitempty"`
	Operation     string                 `json:"operation"`
	Data          map[string]interface{} `json:"data,omitempty"`
	SchemaVersion string                 `json:"schema_version"`
}

// Producer publishes usage events to Kafka.
type Producer struct {
	client *kgo.Client
	logger *logrus.Logger
	source string
}

// NewProducer creates a new Kafka producer.
func NewProducer(brokers []string, source string, logger *logrus.Logger) (*Producer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(source),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProducerLinger(10 * time.Millisecond),
		kgo.ProducerBatchMaxBytes(1000000),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Producer{
		client: client,
		logger: logger,
		source: source,
	}, nil
}

func (p *Producer) Close() error {
	p.client.Close()
	return nil
}

// PublishUsageEvent publishes a single usage event. Delivery failures are
// returned to the caller; the ledger treats them as non-fatal.
func (p *Producer) PublishUsageEvent(event *UsageEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.Source == "" {
		event.Source = p.source
	}
	if event.SchemaVersion == "" {
		event.SchemaVersion = "1.0"
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	record := &kgo.Record{
		Topic: UsageEventsTopic,
		Key:   []byte(event.EventID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "source", Value: []byte(event.Source)},
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	if event.UserID != "" {
		record.Headers = append(record.Headers, kgo.RecordHeader{
			Key:   "user_id",
			Value: []byte(event.UserID),
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result := p.client.ProduceSync(ctx, record)
	if err := result.FirstErr(); err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}

	return nil
}

func (p *Producer) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.client.Ping(ctx); err != nil {
		return fmt.Errorf("kafka health check failed: %w", err)
	}
	return nil
}

// GetClient returns the underlying kgo.Client for health checks
func (p *Producer) GetClient() *kgo.Client {
	return p.client
}
