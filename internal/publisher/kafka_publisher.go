package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	kafka "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
}

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a single topic keyed by payment reference,
// so events for one payment stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	retry  RetryConfig
	log    logrus.FieldLogger
}

func NewKafkaPublisher(brokers []string, topic string, retry RetryConfig, log logrus.FieldLogger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return newKafkaPublisher(w, topic, retry, log)
}

func newKafkaPublisher(w messageWriter, topic string, retry RetryConfig, log logrus.FieldLogger) *KafkaPublisher {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 5
	}
	if retry.BaseDelay <= 0 {
		retry.BaseDelay = 100 * time.Millisecond
	}
	if retry.MaxDelay <= 0 {
		retry.MaxDelay = 10 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &KafkaPublisher{writer: w, topic: topic, retry: retry, log: log.WithField("topic", topic)}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.Reference),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
			{Key: "event_id", Value: []byte(ev.ID)},
		},
	}
	return p.publishWithRetry(ctx, msg)
}

func (p *KafkaPublisher) publishWithRetry(ctx context.Context, msg kafka.Message) error {
	var lastErr error
	for attempt := 0; attempt < p.retry.MaxAttempts; attempt++ {
		err := p.writer.WriteMessages(ctx, msg)
		if err == nil {
			if attempt > 0 {
				p.log.WithField("attempts", attempt+1).Info("event published after retry")
			}
			return nil
		}
		lastErr = err
		if attempt == p.retry.MaxAttempts-1 {
			break
		}
		delay := p.calculateBackoff(attempt)
		p.log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"delay":   delay.String(),
		}).Warn("retrying event publish")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}
	return fmt.Errorf("publishing to %s after %d attempts: %w", p.topic, p.retry.MaxAttempts, lastErr)
}

func (p *KafkaPublisher) calculateBackoff(attempt int) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt))) * p.retry.BaseDelay
	if delay > p.retry.MaxDelay {
		delay = p.retry.MaxDelay
	}
	if p.retry.Jitter {
		jitter := time.Duration(rand.Float64() * float64(delay) * 0.3)
		delay = delay + jitter - time.Duration(float64(delay)*0.15)
	}
	return delay
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
