package events

import (
	"context"
	"fmt"
	"time"

	"cod-fulfillment/internal/domain"
	"cod-fulfillment/pkg/logger"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
)

// KafkaPublisher sends COD events through a synchronous producer so the
// caller learns about a failed publish before its transaction commits.
type KafkaPublisher struct {
	producer    sarama.SyncProducer
	topicPrefix string
}

// NewKafkaProducer dials the brokers, retrying while Kafka starts up.
func NewKafkaProducer(ctx context.Context, brokers []string, attempts int) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.ClientID = "cod-fulfillment"
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Idempotent = true
	config.Producer.Retry.Max = 5
	config.Net.MaxOpenRequests = 1
	config.Producer.Partitioner = sarama.NewHashPartitioner

	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 1; i <= attempts; i++ {
		var producer sarama.SyncProducer
		producer, err = sarama.NewSyncProducer(brokers, config)
		if err == nil {
			logger.Info().Strs("brokers", brokers).Msg("Kafka producer initialized")
			return producer, nil
		}

		logger.Warn().Err(err).Int("attempt", i).Int("of", attempts).Msg("Waiting for Kafka")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return nil, fmt.Errorf("kafka producer: %w", err)
}

func NewKafkaPublisher(producer sarama.SyncProducer, topicPrefix string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topicPrefix: topicPrefix}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]*sarama.ProducerMessage, 0, len(events))
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal %s event: %w", e.Topic, err)
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: p.topicPrefix + e.Topic,
			Key:   sarama.StringEncoder(e.Key),
			Value: sarama.ByteEncoder(data),
		})
	}

	if err := p.producer.SendMessages(msgs); err != nil {
		logger.WithContext(ctx).Error().Err(err).Int("events", len(msgs)).Msg("Failed to publish COD events")
		return fmt.Errorf("publish events: %w", err)
	}

	for _, m := range msgs {
		logger.WithContext(ctx).Debug().
			Str("topic", m.Topic).
			Int32("partition", m.Partition).
			Int64("offset", m.Offset).
			Msg("Published COD event")
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
