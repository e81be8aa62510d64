package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes share events to a Kafka topic, keyed by diagram ID
// so all events of one diagram land on the same partition.
type KafkaNotifier struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewKafkaNotifier creates a producer for topic on the given brokers.
func NewKafkaNotifier(brokers []string, topic string, logger *slog.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			WriteTimeout: 10 * time.Second,
			ReadTimeout:  10 * time.Second,
		},
		topic:  topic,
		logger: logger,
	}
}

func (n *KafkaNotifier) NotifyShare(ctx context.Context, event *ShareEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("notify: encoding %s event: %w", event.Type, err)
	}

	msg := kafka.Message{
		Key:   []byte(event.DiagramID),
		Value: value,
		Time:  event.Timestamp,
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("notify: publishing %s to %s: %w", event.Type, n.topic, err)
	}

	n.logger.Debug("published share event",
		slog.String("event", event.Type),
		slog.String("diagram", event.DiagramID),
		slog.String("topic", n.topic),
	)
	return nil
}

// Close flushes pending messages and closes the writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
