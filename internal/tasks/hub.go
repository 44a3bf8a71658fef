package tasks

import (
	"sync"

	"github.com/desertthunder/lyrx/internal/models"
	"github.com/desertthunder/lyrx/internal/shared"
)

const defaultSubscriberBuffer = 32

// Subscription receives engine events until it is closed.
type Subscription struct {
	ID     string
	ch     chan models.Event
	mu     sync.Mutex
	closed bool
}

// C returns the channel events are delivered on. It is closed on unsubscribe.
func (s *Subscription) C() <-chan models.Event {
	return s.ch
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Hub fans engine events out to subscribers without blocking the publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	buffer int
}

// NewHub creates a hub whose subscribers buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{subs: make(map[string]*Subscription), buffer: buffer}
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{ID: shared.GenerateID(), ch: make(chan models.Event, h.buffer)}

	h.mu.Lock()
	h.subs[sub.ID] = sub
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes the subscriber with id and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()

	if ok {
		sub.close()
	}
}

// Publish delivers ev to every subscriber with room in its buffer. Full subscribers miss the event.
func (h *Hub) Publish(ev models.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Count returns the number of subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close unsubscribes everyone.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*Subscription)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}
