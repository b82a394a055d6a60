package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher produces events as JSON messages keyed by session ID
type KafkaPublisher struct {
	writer         MessageWriter
	topic          string
	maxElapsedTime time.Duration
	logger         *zap.Logger
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a publisher writing to topic on brokers
func NewKafkaPublisher(brokers []string, topic, clientID string, maxElapsedTime time.Duration, logger *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		Transport: &kafka.Transport{
			ClientID: clientID,
		},
	}

	return newKafkaPublisher(writer, topic, maxElapsedTime, logger)
}

func newKafkaPublisher(writer MessageWriter, topic string, maxElapsedTime time.Duration, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer:         writer,
		topic:          topic,
		maxElapsedTime: maxElapsedTime,
		logger:         logger,
	}
}

// Publish sends event to the topic, retrying with exponential backoff
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal event",
			zap.String("topic", p.topic),
			zap.Error(err))
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.SessionID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
		Time: event.Timestamp,
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = p.maxElapsedTime

	attempt := 0
	operation := func() error {
		attempt++
		return p.writer.WriteMessages(ctx, msg)
	}
	notify := func(err error, wait time.Duration) {
		p.logger.Warn("Failed to publish event, retrying",
			zap.String("topic", p.topic),
			zap.String("id", event.ID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify); err != nil {
		p.logger.Error("Failed to publish event",
			zap.String("topic", p.topic),
			zap.String("key", event.SessionID),
			zap.Error(err))
		return err
	}

	p.logger.Debug("Event published",
		zap.String("topic", p.topic),
		zap.String("key", event.SessionID),
		zap.String("type", string(event.Type)))

	return nil
}

// Close closes the underlying writer
func (p *KafkaPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		p.logger.Error("Failed to close Kafka writer",
			zap.String("topic", p.topic),
			zap.Error(err))
		return err
	}
	return nil
}
