package pubsub

import (
	"context"
	"sync"
)

// MemoryBroker is an in-process Broker for single-node dev deployments (no
// Redis configured) and tests. Publish delivers synchronously in subscription
// order, which preserves per-channel ordering.
type MemoryBroker struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]Handler
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		subs: make(map[string]map[int]Handler),
	}
}

func (b *MemoryBroker) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[channel]))
	for _, h := range b.subs[channel] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(payload)
	}
	return nil
}

func (b *MemoryBroker) Subscribe(_ context.Context, channel string, h Handler) (func(), error) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[int]Handler)
	}
	b.subs[channel][id] = h
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if handlers, ok := b.subs[channel]; ok {
			delete(handlers, id)
			if len(handlers) == 0 {
				delete(b.subs, channel)
			}
		}
	}
	return unsubscribe, nil
}

// SubscriberCount reports how many handlers are registered for channel. Used
// by readiness probes and tests to verify subscriptions are released.
func (b *MemoryBroker) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}
