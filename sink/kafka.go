package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mjasion/balena-home/smarthouse/pkg/types"
)

// KafkaConfig selects the brokers and topic
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	Device       string
	RequiredAcks int
	WriteTimeout time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka produces one message per reading keyed by device name, so readings
// from one device stay ordered within a partition
type Kafka struct {
	cfg    KafkaConfig
	writer messageWriter
}

func NewKafka(cfg KafkaConfig) *Kafka {
	return &Kafka{
		cfg: cfg,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
			WriteTimeout:           cfg.WriteTimeout,
			AllowAutoTopicCreation: false,
		},
	}
}

func (s *Kafka) Store(ctx context.Context, r *types.SensorReading) error {
	value, err := encodeReading(s.cfg.Device, r)
	if err != nil {
		return fmt.Errorf("encode reading: %w", err)
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(s.cfg.Device),
		Value: value,
		Time:  r.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("kafka write to %s: %w", s.cfg.Topic, err)
	}
	return nil
}

func (s *Kafka) Close() error {
	return s.writer.Close()
}
