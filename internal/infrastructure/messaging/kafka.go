package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkaGo "github.com/segmentio/kafka-go"
)

type kafkaPublisher struct {
	w *kafkaGo.Writer
}

// NewKafkaPublisher returns a publisher sharing one writer across topics;
// the topic is set per message.
func NewKafkaPublisher(brokers []string) Publisher {
	return &kafkaPublisher{
		w: &kafkaGo.Writer{
			Addr:         kafkaGo.TCP(brokers...),
			Balancer:     &kafkaGo.Hash{},
			RequiredAcks: kafkaGo.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (k *kafkaPublisher) PublishEvent(ctx context.Context, topic string, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return k.w.WriteMessages(ctx, kafkaGo.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
	})
}

func (k *kafkaPublisher) Close() error {
	return k.w.Close()
}
