package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-raffle/internal/config"
	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	Writer MessageWriter
	Logger *logger.Logger
}

// NewProducer builds an async writer without a fixed topic; each message
// names its own. Delivery failures surface through Completion.
func NewProducer(brokers []string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Error("KAFKA", fmt.Sprintf("Failed to deliver %d message(s): %v", len(messages), err))
			}
		},
	}
	return &Producer{Writer: writer, Logger: log}
}

func (p *Producer) Publish(ctx context.Context, topic, key string, value any) error {
	msgBytes, err := json.Marshal(value)
	if err != nil {
		return err
	}

	err = p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: msgBytes,
	})
	if err != nil {
		return fmt.Errorf("write to %s: %w", topic, err)
	}

	p.Logger.LogKafka("PUBLISH", topic, string(msgBytes))
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

// TicketEventPublisher routes lifecycle events to their topics, keyed by
// ticket id so events of one ticket stay ordered within a partition.
type TicketEventPublisher struct {
	Producer *Producer
	Topics   config.TopicConfig
}

func NewTicketEventPublisher(p *Producer, topics config.TopicConfig) *TicketEventPublisher {
	return &TicketEventPublisher{Producer: p, Topics: topics}
}

func (t *TicketEventPublisher) PublishTicketEvent(ctx context.Context, event models.TicketEvent) error {
	topic, err := t.topicFor(event.Type)
	if err != nil {
		return err
	}
	return t.Producer.Publish(ctx, topic, event.TicketID, event)
}

func (t *TicketEventPublisher) topicFor(eventType string) (string, error) {
	switch eventType {
	case models.EventTicketReserved:
		return t.Topics.TicketReserved, nil
	case models.EventTicketActivated:
		return t.Topics.TicketActivated, nil
	case models.EventTicketOwnerUpdated:
		return t.Topics.TicketOwnerUpdated, nil
	default:
		return "", fmt.Errorf("no topic for event type %q", eventType)
	}
}
