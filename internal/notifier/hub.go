package notifier

import (
	"sync"
)

// Source is anything ticket-change callbacks can be registered on.
type Source interface {
	Subscribe(cb func()) *Subscription
}

// Subscription is returned by Subscribe. Unsubscribe may be called any
// number of times, also on a nil Subscription.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func (s *Subscription) Unsubscribe() {
	if s == nil || s.cancel == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Hub fans change signals out to in-process subscribers. Signals carry no
// payload and coalesce: a subscriber that is still running its callback
// sees at most one more call for any burst of changes.
type Hub struct {
	mu      sync.RWMutex
	clients map[uint64]*client
	nextID  uint64
}

type client struct {
	pending chan struct{}
	done    chan struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[uint64]*client)}
}

func (h *Hub) Subscribe(cb func()) *Subscription {
	c := &client{
		pending: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.clients[id] = c
	h.mu.Unlock()

	go func() {
		for {
			select {
			case <-c.pending:
				cb()
			case <-c.done:
				return
			}
		}
	}()

	return &Subscription{cancel: func() {
		h.mu.Lock()
		delete(h.clients, id)
		h.mu.Unlock()
		close(c.done)
	}}
}

// Notify never blocks.
func (h *Hub) Notify() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.pending <- struct{}{}:
		default:
			// already signalled
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Notifier is a Source that can also be signalled.
type Notifier interface {
	Source
	Notify()
}
