package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Alias1177/Forecaster/models"
	"github.com/segmentio/kafka-go"
)

// messageWriter is satisfied by *kafka.Writer
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes signals as JSON keyed by symbol
type Kafka struct {
	writer messageWriter
}

// KafkaOptions holds producer settings
type KafkaOptions struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// NewKafka creates a synchronous producer for the topic
func NewKafka(opts KafkaOptions) (*Kafka, error) {
	if len(opts.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 10 * time.Second
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(opts.Brokers...),
		Topic:        opts.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: opts.WriteTimeout,
		BatchTimeout: 100 * time.Millisecond,
	}
	return &Kafka{writer: writer}, nil
}

// Send publishes the signal
func (k *Kafka) Send(ctx context.Context, s models.Signal) error {
	value, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(s.Symbol),
		Value: value,
		Time:  s.CreatedAt,
		Headers: []kafka.Header{
			{Key: "timeframe", Value: []byte(s.Timeframe)},
			{Key: "direction", Value: []byte(s.Direction)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%w: kafka publish: %v", models.ErrTransportFailure, err)
	}
	return nil
}

// Close flushes and closes the writer
func (k *Kafka) Close() error {
	return k.writer.Close()
}
