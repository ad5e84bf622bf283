package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaChannel.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter builds a writer balancing across brokers.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
}

// KafkaChannel forwards each event to an event bus topic keyed by event id.
type KafkaChannel struct {
	writer MessageWriter
	topic  string
}

// NewKafkaChannel constructs the event bus channel.
func NewKafkaChannel(writer MessageWriter, topic string) (*KafkaChannel, error) {
	if writer == nil {
		return nil, errors.New("kafka channel: writer is required")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, errors.New("kafka channel: topic is required")
	}
	return &KafkaChannel{writer: writer, topic: topic}, nil
}

// Name implements Channel.
func (c *KafkaChannel) Name() string { return ChannelKafka }

type busMessage struct {
	Event
	Recipients []string `json:"recipients"`
}

// Deliver writes one JSON message for the event.
func (c *KafkaChannel) Deliver(ctx context.Context, event Event, recipients []string) (Outcome, error) {
	value, err := json.Marshal(busMessage{Event: event, Recipients: recipients})
	if err != nil {
		return Outcome{}, fmt.Errorf("kafka: encode %s: %w", event.ID, err)
	}

	err = c.writer.WriteMessages(ctx, kafka.Message{
		Topic: c.topic,
		Key:   []byte(event.ID),
		Value: value,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("kafka: write %s: %w", event.ID, err)
	}
	return Outcome{
		Channel:        ChannelKafka,
		Status:         StatusDelivered,
		RecipientCount: len(recipients),
		Details:        map[string]any{"topic": c.topic},
	}, nil
}
