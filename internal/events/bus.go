package events

import (
	"sync"

	"github.com/google/uuid"
)

// Handler receives published events.
type Handler func(Event)

// Publisher is the sending side of the bus.
type Publisher interface {
	Publish(Event)
}

type subscription struct {
	id      uint64
	kind    Kind
	all     bool
	handler Handler
}

// Bus is an in-process publish/subscribe channel keyed by event kind.
//
// Publish is synchronous: handlers run on the publishing goroutine, in
// registration order. Consumers that must not block the publisher wrap their
// handler in a Queue.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers handler for a single kind. The returned function
// removes the subscription; calling it more than once is a no-op.
func (b *Bus) Subscribe(kind Kind, handler Handler) func() {
	return b.add(subscription{kind: kind, handler: handler})
}

// SubscribeAll registers handler for every kind.
func (b *Bus) SubscribeAll(handler Handler) func() {
	return b.add(subscription{all: true, handler: handler})
}

func (b *Bus) add(sub subscription) func() {
	b.mu.Lock()
	b.nextID++
	sub.id = b.nextID
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(sub.id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers e to every matching subscriber. An empty ID is filled in.
func (b *Bus) Publish(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if s.all || s.kind == e.Kind {
			handlers = append(handlers, s.handler)
		}
	}
	b.mu.RUnlock()

	// Called outside the lock so handlers may subscribe or unsubscribe.
	for _, h := range handlers {
		h(e)
	}
}

// Len returns the number of active subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
