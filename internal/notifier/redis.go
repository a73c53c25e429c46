package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-raffle/internal/logger"
)

const publishTimeout = 2 * time.Second

// RedisNotifier relays change signals between processes over a Redis
// pub/sub channel and delivers them to a local Hub.
type RedisNotifier struct {
	Client  *redis.Client
	Channel string
	Logger  *logger.Logger

	hub    *Hub
	mu     sync.Mutex
	pubsub *redis.PubSub
}

func NewRedisNotifier(client *redis.Client, channel string, log *logger.Logger) *RedisNotifier {
	return &RedisNotifier{Client: client, Channel: channel, Logger: log, hub: NewHub()}
}

// Start subscribes to the channel. Until it succeeds only local Notify
// calls reach subscribers.
func (n *RedisNotifier) Start(ctx context.Context) error {
	pubsub := n.Client.Subscribe(ctx, n.Channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe to %s: %w", n.Channel, err)
	}

	n.mu.Lock()
	n.pubsub = pubsub
	n.mu.Unlock()

	go func() {
		for range pubsub.Channel() {
			n.hub.Notify()
		}
		n.Logger.Debug("NOTIFIER", fmt.Sprintf("Redis channel %s closed", n.Channel))
	}()

	n.Logger.Info("NOTIFIER", fmt.Sprintf("Listening for ticket changes on Redis channel %s", n.Channel))
	return nil
}

// Notify publishes a change. If Redis is unreachable the signal is still
// delivered to this process's subscribers.
func (n *RedisNotifier) Notify() {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := n.Client.Publish(ctx, n.Channel, "changed").Err(); err != nil {
		n.Logger.Warn("NOTIFIER", fmt.Sprintf("Failed to publish change on %s: %v", n.Channel, err))
		n.hub.Notify()
		return
	}

	n.mu.Lock()
	listening := n.pubsub != nil
	n.mu.Unlock()
	if !listening {
		n.hub.Notify()
	}
}

func (n *RedisNotifier) Subscribe(cb func()) *Subscription {
	return n.hub.Subscribe(cb)
}

func (n *RedisNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pubsub == nil {
		return nil
	}
	err := n.pubsub.Close()
	n.pubsub = nil
	return err
}
