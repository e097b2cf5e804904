package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"directstock/internal/domain"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// KafkaConfig holds producer settings
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
	Acks     string
	Retries  int
}

// KafkaPublisher publishes movement events to one topic, keyed by product id so that
// each product's movements stay ordered within a partition
type KafkaPublisher struct {
	producer   sarama.SyncProducer
	topic      string
	maxRetries int
	baseDelay  time.Duration
	logger     *zap.Logger
}

// NewKafkaPublisher creates a new Kafka publisher
func NewKafkaPublisher(cfg KafkaConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.ClientID = cfg.ClientID
	config.Producer.Return.Successes = true
	config.Producer.Retry.Max = cfg.Retries
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1

	switch cfg.Acks {
	case "0":
		config.Producer.RequiredAcks = sarama.NoResponse
	case "1":
		config.Producer.RequiredAcks = sarama.WaitForLocal
	default:
		config.Producer.RequiredAcks = sarama.WaitForAll
	}
	// Idempotent producers require acks=all
	if config.Producer.RequiredAcks != sarama.WaitForAll {
		config.Producer.Idempotent = false
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return newKafkaPublisher(producer, cfg.Topic, logger), nil
}

func newKafkaPublisher(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		producer:   producer,
		topic:      topic,
		maxRetries: 3,
		baseDelay:  100 * time.Millisecond,
		logger:     logger,
	}
}

// Publish sends one movement with retries and exponential backoff
func (p *KafkaPublisher) Publish(ctx context.Context, entry domain.MovementEntry) error {
	message, err := p.buildMessage(ctx, entry)
	if err != nil {
		return err
	}

	for attempt := 0; attempt < p.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		partition, offset, err := p.producer.SendMessage(message)
		if err == nil {
			p.logger.Debug("Movement published to Kafka",
				zap.String("topic", p.topic),
				zap.Int32("partition", partition),
				zap.Int64("offset", offset),
				zap.String("entry_id", entry.ID),
				zap.Int("attempt", attempt+1),
			)
			return nil
		}
		p.logger.Warn("Failed to publish movement to Kafka, retrying",
			zap.String("topic", p.topic),
			zap.String("entry_id", entry.ID),
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", p.maxRetries),
		)

		if attempt < p.maxRetries-1 {
			delay := p.baseDelay * time.Duration(1<<uint(attempt))
			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during backoff: %w", ctx.Err())
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("failed to publish movement %s to Kafka after %d attempts", entry.ID, p.maxRetries)
}

func (p *KafkaPublisher) buildMessage(ctx context.Context, entry domain.MovementEntry) (*sarama.ProducerMessage, error) {
	payload, err := json.Marshal(NewMovementRecordedEvent(entry))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal movement event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(entry.ProductID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(eventTypeMovementRecorded)},
			{Key: []byte("event-id"), Value: []byte(uuid.New().String())},
			{Key: []byte("movement-type"), Value: []byte(entry.MovementType)},
			{Key: []byte("timestamp"), Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		},
	}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{msg: message})
	return message, nil
}

// Close closes the Kafka producer
func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// headerCarrier adapts sarama record headers to the OTel TextMapCarrier
type headerCarrier struct {
	msg *sarama.ProducerMessage
}

func (c headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if string(h.Key) == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		keys = append(keys, string(h.Key))
	}
	return keys
}
