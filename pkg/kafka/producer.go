// Package kafka carries analysis events over segmentio/kafka-go. Messages
// are JSON bodies with the event type in a header so consumers can route
// without decoding.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/config"
)

const (
	headerType        = "event-type"
	headerContentType = "content-type"
	contentTypeJSON   = "application/json"
)

// Message is one outgoing event. Key selects the partition.
type Message struct {
	Key   string
	Type  string
	Value any
}

type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			BatchTimeout:           10 * time.Millisecond,
			MaxAttempts:            3,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish writes msg synchronously.
func (p *Producer) Publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg.Value)
	if err != nil {
		return fmt.Errorf("encoding %s message: %w", msg.Type, err)
	}
	km := kafka.Message{
		Key:   []byte(msg.Key),
		Value: body,
		Headers: []kafka.Header{
			{Key: headerContentType, Value: []byte(contentTypeJSON)},
		},
	}
	if msg.Type != "" {
		km.Headers = append(km.Headers, kafka.Header{Key: headerType, Value: []byte(msg.Type)})
	}
	if err := p.writer.WriteMessages(ctx, km); err != nil {
		return fmt.Errorf("publishing %s to %s: %w", msg.Type, p.writer.Topic, err)
	}
	p.logger.Debug("message published", "type", msg.Type, "key", msg.Key, "bytes", len(body))
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
