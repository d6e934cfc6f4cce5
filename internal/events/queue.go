package events

import (
	"sync"
	"sync/atomic"
)

// DefaultQueueSize is the buffer size used when NewQueue is given a size <= 0.
const DefaultQueueSize = 64

// Queue moves event delivery off the publishing goroutine. Events are handed
// to a single consumer goroutine in publish order; when the buffer is full the
// newest event is dropped and counted.
type Queue struct {
	ch      chan Event
	handler Handler
	dropped atomic.Uint64
	done    chan struct{}
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
}

// NewQueue starts a consumer goroutine that calls handler for each enqueued event.
func NewQueue(size int, handler Handler) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}

	q := &Queue{
		ch:      make(chan Event, size),
		handler: handler,
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.done)
	for e := range q.ch {
		q.handler(e)
	}
}

// Handle enqueues e without blocking. It has the Handler signature so a
// Queue can be passed straight to Bus.Subscribe.
func (q *Queue) Handle(e Event) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return
	}

	select {
	case q.ch <- e:
	default:
		q.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Close stops accepting events and waits for the buffered ones to be handled.
func (q *Queue) Close() {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.ch)
		q.mu.Unlock()
	})
	<-q.done
}
