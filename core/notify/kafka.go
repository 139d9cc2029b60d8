package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/relabs-tech/restgen/core"
	"github.com/relabs-tech/restgen/core/logger"
)

// Kafka publishes notifications to a topic. The domain is the message key, so all
// mutations of a domain keep their order within a partition.
type Kafka struct {
	writer *kafka.Writer
}

// NewKafka returns a notifier writing to topic on brokers
func NewKafka(brokers []string, topic string) *Kafka {
	logger.Default().Debugln("kafka notifications enabled on topic", topic)
	return &Kafka{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
	}
}

// Notify implements core.Notifier
func (k *Kafka) Notify(ctx context.Context, domain string, operation core.Operation, payload []byte) error {
	data, err := encode(domain, operation, payload)
	if err != nil {
		return err
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(domain),
		Value: data,
		Headers: []kafka.Header{
			{Key: "operation", Value: []byte(operation)},
		},
	})
	if err != nil {
		return fmt.Errorf("cannot write %s %s to kafka: %w", domain, operation, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer
func (k *Kafka) Close() error {
	return k.writer.Close()
}
