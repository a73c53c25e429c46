package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-raffle/internal/config"
	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

var topics = config.TopicConfig{
	TicketReserved:     "raffle.tickets.reserved",
	TicketActivated:    "raffle.tickets.activated",
	TicketOwnerUpdated: "raffle.tickets.owner_updated",
}

func TestTicketEventPublisher_RoutesByType(t *testing.T) {
	w := &recordingWriter{}
	pub := NewTicketEventPublisher(&Producer{Writer: w, Logger: logger.Discard()}, topics)
	ticket := &models.Ticket{ID: "t-1", Code: "GA-20260101-AB12", Numbers: "4821", UserID: "573001112233", Status: models.TicketActive}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for _, eventType := range []string{models.EventTicketReserved, models.EventTicketActivated, models.EventTicketOwnerUpdated} {
		require.NoError(t, pub.PublishTicketEvent(context.Background(), models.NewTicketEvent(eventType, ticket, now)))
	}

	require.Len(t, w.messages, 3)
	assert.Equal(t, topics.TicketReserved, w.messages[0].Topic)
	assert.Equal(t, topics.TicketActivated, w.messages[1].Topic)
	assert.Equal(t, topics.TicketOwnerUpdated, w.messages[2].Topic)

	msg := w.messages[1]
	assert.Equal(t, "t-1", string(msg.Key))
	var event models.TicketEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, models.EventTicketActivated, event.Type)
	assert.Equal(t, "4821", event.Numbers)
	assert.Equal(t, models.TicketActive, event.Status)
}

func TestTicketEventPublisher_UnknownType(t *testing.T) {
	w := &recordingWriter{}
	pub := NewTicketEventPublisher(&Producer{Writer: w, Logger: logger.Discard()}, topics)

	err := pub.PublishTicketEvent(context.Background(), models.TicketEvent{Type: "ticket.deleted"})
	assert.Error(t, err)
	assert.Empty(t, w.messages)
}

func TestProducer_WriteError(t *testing.T) {
	p := &Producer{Writer: &recordingWriter{err: errors.New("broker down")}, Logger: logger.Discard()}
	err := p.Publish(context.Background(), "raffle.tickets.reserved", "t-1", map[string]string{"a": "b"})
	assert.ErrorContains(t, err, "broker down")
}

func TestNewProducer_WritesAsync(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, logger.Discard())
	defer p.Close()

	w, ok := p.Writer.(*kafka.Writer)
	require.True(t, ok)
	assert.True(t, w.Async)
	assert.NotNil(t, w.Completion)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
}
