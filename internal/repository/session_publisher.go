package repository

import (
	"context"

	"CandleGrid/internal/domain/models"
	pkgkafka "CandleGrid/pkg/kafka"
)

// KafkaSessionPublisher appends session summaries to the operation-log topic.
type KafkaSessionPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaSessionPublisher(producer *pkgkafka.Producer, topic string) *KafkaSessionPublisher {
	return &KafkaSessionPublisher{producer: producer, topic: topic}
}

// PublishSession keys events by session id so replays of one session land on
// the same partition.
func (p *KafkaSessionPublisher) PublishSession(ctx context.Context, ev models.SessionEvent) error {
	return p.producer.Publish(ctx, p.topic, []byte(ev.SessionID), ev)
}

func (p *KafkaSessionPublisher) Close() error {
	return p.producer.Close()
}

// NopSessionPublisher drops events when no broker is configured.
type NopSessionPublisher struct{}

func (NopSessionPublisher) PublishSession(context.Context, models.SessionEvent) error { return nil }
func (NopSessionPublisher) Close() error                                              { return nil }
