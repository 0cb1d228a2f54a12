package serve

import (
	"sync"

	"github.com/everydev1618/rigel"
)

const (
	maxSubscribers   = 50
	subscriberBuffer = 64
)

// EventBroker fans out pipeline events to SSE subscribers.
type EventBroker struct {
	subscribers map[chan rigel.Event]struct{}
	closed      bool
	mu          sync.RWMutex
}

// NewEventBroker creates a new broker.
func NewEventBroker() *EventBroker {
	return &EventBroker{
		subscribers: make(map[chan rigel.Event]struct{}),
	}
}

// Subscribe returns a channel that receives events, or nil when the broker
// is full or closed. The caller must call Unsubscribe when done.
func (b *EventBroker) Subscribe() chan rigel.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || len(b.subscribers) >= maxSubscribers {
		return nil
	}

	ch := make(chan rigel.Event, subscriberBuffer)
	b.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscriber channel.
func (b *EventBroker) Unsubscribe(ch chan rigel.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// Close closes all subscriber channels, causing SSE handlers to exit.
func (b *EventBroker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, ch)
	}
}

// Publish sends an event to all subscribers.
// Non-blocking: if a subscriber's buffer is full, the event is dropped for that subscriber.
func (b *EventBroker) Publish(event rigel.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber too slow, drop event
		}
	}
}

// Subscribers returns the number of active subscribers.
func (b *EventBroker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
