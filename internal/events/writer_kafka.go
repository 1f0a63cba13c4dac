package events

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaWriter publishes cloudevents in structured JSON mode. The event
// subject is the message key so all events of a job land on one partition.
type KafkaWriter struct {
	writer *kafka.Writer
}

func NewKafkaWriter(brokers []string) *KafkaWriter {
	return &KafkaWriter{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			BatchTimeout:           10 * time.Millisecond,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}
}

func (k *KafkaWriter) Write(ctx context.Context, topic string, e cloudevents.Event) error {
	value, err := e.MarshalJSON()
	if err != nil {
		return err
	}

	return k.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(e.Subject()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "ce_type", Value: []byte(e.Type())},
			{Key: "content-type", Value: []byte(cloudevents.ApplicationCloudEventsJSON)},
		},
	})
}

func (k *KafkaWriter) Close(_ context.Context) error {
	if err := k.writer.Close(); err != nil {
		zap.S().Named("kafka_writer").Errorw("failed to close kafka writer", "error", err)
		return err
	}
	return nil
}
