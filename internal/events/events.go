// Package events publishes domain events after a mutation has committed.
// Delivery is best effort.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	TypeVoteCast          = "vote_cast"
	TypeOpinionAdded      = "opinion_added"
	TypeResponseSubmitted = "response_submitted"
)

type Event struct {
	Type        string    `json:"type"`
	AggregateID string    `json:"aggregate_id"`
	// ActorID is the pseudonymous participant id, never a raw address.
	ActorID    string            `json:"actor_id"`
	OccurredAt time.Time         `json:"occurred_at"`
	Payload    map[string]string `json:"payload,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type Config struct {
	Brokers []string `yaml:"KAFKA_BROKERS" env:"KAFKA_BROKERS" env-separator:","`
	Topic   string   `yaml:"KAFKA_TOPIC" env:"KAFKA_TOPIC" env-default:"surbate.events"`
}

type KafkaPublisher struct {
	writer *kafka.Writer
	l      *zap.Logger
}

func NewKafkaPublisher(cfg Config, l *zap.Logger) *KafkaPublisher {
	// Events of one aggregate share a key, so they stay ordered per partition.
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
	}
	return &KafkaPublisher{writer: writer, l: l}
}

// Message encodes an event as JSON keyed by its aggregate id.
func Message(event Event) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("events: marshal %s: %w", event.Type, err)
	}
	return kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: data,
		Time:  event.OccurredAt,
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	msg, err := Message(event)
	if err != nil {
		return err
	}
	if err = p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: write %s: %w", event.Type, err)
	}
	p.l.Debug("event published",
		zap.String("type", event.Type),
		zap.String("aggregate_id", event.AggregateID))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

func (Noop) Close() error { return nil }
