package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/nurpe/jurisconnect/internal/model"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one JSON message per intent, keyed by request id so
// a request's notifications stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	log    zerolog.Logger
}

func NewKafkaPublisher(brokers []string, topic string, log zerolog.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		AllowAutoTopicCreation: true,
		Balancer:               &kafka.Hash{},
		Compression:            kafka.Gzip,
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            3,
		WriteBackoffMin:        100 * time.Millisecond,
		WriteBackoffMax:        time.Second,
	}
	log.Info().Strs("brokers", brokers).Str("topic", topic).Msg("kafka notification publisher created")
	return &KafkaPublisher{writer: writer, topic: topic, log: log}
}

func (p *KafkaPublisher) Publish(ctx context.Context, intents []model.Intent) error {
	messages := make([]kafka.Message, 0, len(intents))
	for _, intent := range intents {
		data, err := json.Marshal(intent)
		if err != nil {
			return fmt.Errorf("marshal intent %s: %w", intent.Kind, err)
		}
		messages = append(messages, kafka.Message{
			Topic: p.topic,
			Key:   []byte(intent.RequestID.String()),
			Value: data,
			Time:  intent.OccurredAt,
		})
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("write %d notification messages: %w", len(messages), err)
	}
	p.log.Debug().Str("topic", p.topic).Int("count", len(messages)).Msg("notifications published")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
