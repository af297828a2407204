package stream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"cve-crawler/pkg/models"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RecordPublisher emits persisted records to a Kafka topic, keyed by
// identifier so a compacted topic keeps the latest version of each record.
type RecordPublisher struct {
	writer messageWriter
}

func NewRecordPublisher(brokers []string, topic string) *RecordPublisher {
	return &RecordPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
	}
}

func (rp *RecordPublisher) Publish(ctx context.Context, records []models.VulnerabilityRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(records))
	for _, rec := range records {
		value, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", rec.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(rec.ID),
			Value: value,
		})
	}
	return rp.writer.WriteMessages(ctx, msgs...)
}

func (rp *RecordPublisher) Close() error {
	return rp.writer.Close()
}
