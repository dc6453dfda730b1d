package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig configures the Kafka sink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes events to a Kafka topic keyed by session key, so events
// of one chat user stay ordered within a partition.
type KafkaSink struct {
	writer messageWriter
	topic  string
}

// NewKafkaSink creates the sink.
func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka sink needs brokers and a topic")
	}
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}
	slog.Info("kafka event sink initialized", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return &KafkaSink{writer: w, topic: cfg.Topic}, nil
}

func (k *KafkaSink) Name() string { return "kafka" }

func (k *KafkaSink) Publish(ctx context.Context, ev Event) error {
	payload, err := ev.Encode()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.Key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(ev.Type)},
		},
		Time: ev.At,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", k.topic, err)
	}
	return nil
}

func (k *KafkaSink) Close() error { return k.writer.Close() }
