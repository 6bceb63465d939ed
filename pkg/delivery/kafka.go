package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

const defaultKafkaWriteTimeout = 10 * time.Second

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures KafkaChannel.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// KafkaChannel writes each record to one topic keyed by aggregate id, so the
// broker keeps per-aggregate order within a partition.
type KafkaChannel struct {
	writer kafkaWriter
}

func NewKafkaChannel(cfg KafkaConfig) (*KafkaChannel, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = defaultKafkaWriteTimeout
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: timeout,
		BatchSize:    1,
	}
	return &KafkaChannel{writer: writer}, nil
}

func (c *KafkaChannel) Deliver(ctx context.Context, msg Message) error {
	headers := make([]kafka.Header, 0, 5)
	for k, v := range msg.Attributes() {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	err := c.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(msg.AggregateID.String()),
		Value:   msg.Payload,
		Headers: headers,
		Time:    msg.OccurredOn,
	})
	if err != nil {
		return classifyKafkaError(err)
	}
	return nil
}

// Close flushes and closes the writer.
func (c *KafkaChannel) Close() error {
	return c.writer.Close()
}

func classifyKafkaError(err error) error {
	var writeErrs kafka.WriteErrors
	if errors.As(err, &writeErrs) {
		for _, e := range writeErrs {
			if e != nil {
				return classifyKafkaError(e)
			}
		}
	}

	wrapped := fmt.Errorf("kafka write: %w", err)
	var tooLarge kafka.MessageTooLargeError
	if errors.As(err, &tooLarge) {
		return NewNonRetryableError(wrapped)
	}
	var kerr kafka.Error
	if errors.As(err, &kerr) {
		switch kerr {
		case kafka.MessageSizeTooLarge, kafka.InvalidTopic, kafka.TopicAuthorizationFailed:
			return NewNonRetryableError(wrapped)
		}
	}
	return wrapped
}
