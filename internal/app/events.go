package app

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the listener callback an event came from
type EventType string

const (
	EventPrepared EventType = "prepared"
	EventProgress EventType = "progress"
	EventSuccess  EventType = "success"
	EventFailed   EventType = "failed"
)

// TransferEvent is a listener callback recorded for subscribers
type TransferEvent struct {
	ID         string    `json:"id"`
	Target     string    `json:"target"`
	Type       EventType `json:"type"`
	TotalBytes int64     `json:"total_bytes,omitempty"`
	BytesSoFar int64     `json:"bytes_so_far,omitempty"`
	Percent    int       `json:"percent,omitempty"`
	URI        string    `json:"uri,omitempty"`
	MimeType   string    `json:"mime_type,omitempty"`
	Error      string    `json:"error,omitempty"`
	Time       time.Time `json:"time"`
}

func newTransferEvent(target string, eventType EventType) TransferEvent {
	return TransferEvent{
		ID:     uuid.New().String(),
		Target: target,
		Type:   eventType,
		Time:   time.Now(),
	}
}

// EventHub fans transfer events out to subscribers. Slow subscribers lose
// events rather than blocking publishers.
type EventHub struct {
	mu          sync.RWMutex
	subscribers map[int]chan TransferEvent
	next        int
	closed      bool
}

// NewEventHub creates an empty hub
func NewEventHub() *EventHub {
	return &EventHub{subscribers: make(map[int]chan TransferEvent)}
}

// Subscribe returns a channel of future events and a function that ends the
// subscription. The channel is closed when the subscription or hub ends.
func (h *EventHub) Subscribe(buffer int) (<-chan TransferEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan TransferEvent, buffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.next
	h.next++
	h.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subscribers[id]; ok {
				delete(h.subscribers, id)
				close(sub)
			}
		})
	}
}

// Publish delivers event to every subscriber with room in its buffer
func (h *EventHub) Publish(event TransferEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribers returns the number of active subscriptions
func (h *EventHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close ends all subscriptions
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subscribers {
		delete(h.subscribers, id)
		close(ch)
	}
}
