package repository

import (
	"context"

	"CryptoScanner/internal/domain/models"
	domrepo "CryptoScanner/internal/domain/repository"
	pkgkafka "CryptoScanner/pkg/kafka"
)

// KafkaSignalPublisher emits each run's signals to a Kafka topic so
// execution services can consume them without polling the API.
type KafkaSignalPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaSignalPublisher(producer *pkgkafka.Producer, topic string) domrepo.SignalPublisher {
	return &KafkaSignalPublisher{producer: producer, topic: topic}
}

func (p *KafkaSignalPublisher) PublishSignals(ctx context.Context, signals []models.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(signals))
	for i := range signals {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(signals[i].Symbol),
			Value: signals[i],
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaSignalPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
