// Package notify broadcasts progress messages to connected log viewers.
// Delivery is best effort: a subscriber that does not keep up misses
// messages, and emitting never blocks.
package notify

import (
	"sync"
	"time"
)

const (
	EventLog    = "log"
	EventStatus = "status"

	DefaultHistorySize = 500
	subscriberBuffer   = 64
)

// Event is one message on the status channel.
type Event struct {
	Time    time.Time `json:"time"`
	Type    string    `json:"type"`
	Message string    `json:"message"`
}

// Hub fans events out to all subscribers and keeps a bounded history.
type Hub struct {
	mu          sync.Mutex
	subscribers map[chan Event]struct{}
	history     []Event
	historySize int
	now         func() time.Time
}

func NewHub(historySize int) *Hub {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Hub{
		subscribers: map[chan Event]struct{}{},
		historySize: historySize,
		now:         time.Now,
	}
}

// Emit publishes a log message.
func (h *Hub) Emit(message string) {
	h.Publish(Event{Type: EventLog, Message: message})
}

// Publish sends e to every subscriber without waiting on any of them.
func (h *Hub) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = h.now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history = append(h.history, e)
	if len(h.history) > h.historySize {
		h.history = h.history[len(h.history)-h.historySize:]
	}
	for ch := range h.subscribers {
		select {
		case ch <- e:
		default:
			// subscriber is too slow, drop
		}
	}
}

// Subscribe returns a channel receiving all future events and a function
// that ends the subscription and closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// History returns a copy of the retained events, oldest first.
func (h *Hub) History() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Event(nil), h.history...)
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}
