package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/config"
)

// Delivery is one received message.
type Delivery struct {
	Key       []byte
	Type      string
	Value     []byte
	Partition int
	Offset    int64
}

// Decode unmarshals the JSON body of d into T.
func Decode[T any](d Delivery) (T, error) {
	var v T
	if err := json.Unmarshal(d.Value, &v); err != nil {
		return v, fmt.Errorf("decoding %q message at offset %d: %w", d.Type, d.Offset, err)
	}
	return v, nil
}

// Handler processes one delivery. A nil return commits the message.
type Handler func(ctx context.Context, d Delivery) error

// Consumer feeds a topic to a Handler as part of a consumer group.
type Consumer struct {
	reader  *kafka.Reader
	handler Handler
	logger  *slog.Logger
}

func NewConsumer(cfg config.KafkaConfig, topic string, handler Handler) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       topic,
			GroupID:     cfg.ConsumerGroup,
			MaxBytes:    1 << 20,
			StartOffset: kafka.FirstOffset,
		}),
		handler: handler,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// Start consumes until ctx is cancelled, then closes the reader. Messages
// whose handler fails are left uncommitted.
func (c *Consumer) Start(ctx context.Context) error {
	defer c.reader.Close()
	c.logger.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopped")
				return nil
			}
			c.logger.Error("fetch failed", "error", err)
			continue
		}
		d := delivery(msg)
		if err := c.handler(ctx, d); err != nil {
			c.logger.Error("handler failed", "type", d.Type, "partition", d.Partition, "offset", d.Offset, "error", err)
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("commit failed", "partition", d.Partition, "offset", d.Offset, "error", err)
		}
	}
}

func delivery(msg kafka.Message) Delivery {
	d := Delivery{Key: msg.Key, Value: msg.Value, Partition: msg.Partition, Offset: msg.Offset}
	for _, h := range msg.Headers {
		if h.Key == headerType {
			d.Type = string(h.Value)
		}
	}
	return d
}
