package events

import (
	"context"
	"sync"
)

// EventHandler consumes a published event. Handlers own their failure
// handling; a subscriber that cannot act logs and moves on, so
// publication has no error path.
type EventHandler func(context.Context, Event)

// Dispatcher decouples ticket state changes from their observers.
type Dispatcher interface {
	Publish(ctx context.Context, event Event)
	Subscribe(eventType EventType, handler EventHandler)
}

// InMemoryDispatcher invokes handlers synchronously on the publishing
// goroutine. Subscriptions happen during wiring and publishes after,
// but the lock keeps midflight registration safe anyway.
type InMemoryDispatcher struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventHandler
}

// NewInMemoryDispatcher creates an empty dispatcher.
func NewInMemoryDispatcher() *InMemoryDispatcher {
	return &InMemoryDispatcher{listeners: make(map[EventType][]EventHandler)}
}

func (d *InMemoryDispatcher) Publish(ctx context.Context, event Event) {
	d.mu.RLock()
	handlers := append([]EventHandler(nil), d.listeners[event.Type]...)
	d.mu.RUnlock()

	for _, handler := range handlers {
		handler(ctx, event)
	}
}

func (d *InMemoryDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[eventType] = append(d.listeners[eventType], handler)
}
