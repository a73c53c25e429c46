package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
)

// MessageReader is satisfied by *kafka.Reader.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type ChangeTarget interface {
	Notify()
}

// ChangeConsumer follows the ticket lifecycle topics and wakes Target for
// every event, so a process sees writes made by the other services.
type ChangeConsumer struct {
	Reader MessageReader
	Target ChangeTarget
	Logger *logger.Logger

	retryDelay time.Duration
	cancel     context.CancelFunc
	done       chan struct{}
	closeOnce  sync.Once
}

// NewChangeConsumer joins a consumer group of its own so every process
// receives every event, starting from the newest offset.
func NewChangeConsumer(brokers, topics []string, groupPrefix string, target ChangeTarget, log *logger.Logger) *ChangeConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     fmt.Sprintf("%s-%s", groupPrefix, uuid.NewString()),
		GroupTopics: topics,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		MaxWait:     500 * time.Millisecond,
	})
	return &ChangeConsumer{Reader: reader, Target: target, Logger: log, retryDelay: time.Second}
}

// Start runs the read loop until ctx is done or Close is called.
func (c *ChangeConsumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	c.Logger.Info("KAFKA", "🔄 Ticket change consumer started")
	go c.run(ctx)
}

func (c *ChangeConsumer) run(ctx context.Context) {
	defer close(c.done)

	for {
		msg, err := c.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			c.Logger.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retryDelay):
			}
			continue
		}

		var event models.TicketEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.Logger.Warn("KAFKA", fmt.Sprintf("Skipping undecodable message on %s: %v", msg.Topic, err))
			continue
		}

		c.Logger.LogKafka("CONSUME", msg.Topic, fmt.Sprintf("%s %s", event.Type, event.Code))
		c.Target.Notify()
	}
}

// Close stops the loop and closes the reader. Safe to call more than once.
func (c *ChangeConsumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		err = c.Reader.Close()
		if c.done != nil {
			<-c.done
		}
	})
	return err
}
