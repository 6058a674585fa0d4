package memory

import (
	"context"
	"sync"

	"github.com/aescanero/bago/pkg/domain"
	"github.com/aescanero/bago/pkg/ports"
)

// InMemoryEventBus implements EventBus using in-memory handlers.
// Intended for tests and single-process deployments.
type InMemoryEventBus struct {
	subscribers map[string][]ports.EventHandler
	mu          sync.RWMutex
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus() *InMemoryEventBus {
	return &InMemoryEventBus{
		subscribers: make(map[string][]ports.EventHandler),
	}
}

// Publish delivers an event to all subscribers of a topic. Handlers run
// synchronously in subscription order; handler errors are ignored.
func (e *InMemoryEventBus) Publish(ctx context.Context, topic string, event domain.Event) error {
	e.mu.RLock()
	handlers := make([]ports.EventHandler, len(e.subscribers[topic]))
	copy(handlers, e.subscribers[topic])
	e.mu.RUnlock()

	for _, handler := range handlers {
		_ = handler(ctx, event)
	}

	return nil
}

// Subscribe subscribes to events on a specific topic until ctx is
// cancelled.
func (e *InMemoryEventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	e.mu.Lock()
	e.subscribers[topic] = append(e.subscribers[topic], handler)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.Unsubscribe(context.Background(), topic)
	}()

	return nil
}

// Unsubscribe removes all subscriptions from a topic
func (e *InMemoryEventBus) Unsubscribe(ctx context.Context, topic string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.subscribers, topic)
	return nil
}

// Close closes the event bus and cleans up resources
func (e *InMemoryEventBus) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.subscribers = make(map[string][]ports.EventHandler)
	return nil
}
