package producer

import (
	"context"
	"encoding/json"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	log "github.com/sirupsen/logrus"
)

// EventProducer publishes purchase lifecycle events. Downstream consumers
// (the notification service) subscribe to the successful_payments and
// refunds topics.
type EventProducer interface {
	Publish(ctx context.Context, topic string, key string, event interface{}) error
	Close()
}

type KafkaProducer struct {
	producer *kafka.Producer
}

func NewKafkaProducer(bootstrapServers string) (*KafkaProducer, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": bootstrapServers,
		"acks":              "all",
	})
	if err != nil {
		return nil, err
	}

	// Drain delivery reports so the internal queue never fills up. Failed
	// deliveries are logged; purchase state is already durable in Postgres,
	// so a lost event is a notification gap, not a ledger inconsistency.
	go func() {
		for e := range p.Events() {
			if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
				log.WithError(m.TopicPartition.Error).
					WithField("topic", *m.TopicPartition.Topic).
					Error("Failed to deliver event")
			}
		}
	}()

	return &KafkaProducer{producer: p}, nil
}

func (p *KafkaProducer) Publish(ctx context.Context, topic string, key string, event interface{}) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          value,
	}, nil)
}

func (p *KafkaProducer) Close() {
	p.producer.Flush(5000)
	p.producer.Close()
}

// NopProducer is used when Kafka is not configured (local development).
type NopProducer struct{}

func (NopProducer) Publish(ctx context.Context, topic string, key string, event interface{}) error {
	log.WithFields(log.Fields{"topic": topic, "key": key}).Debug("Kafka disabled, dropping event")
	return nil
}

func (NopProducer) Close() {}
