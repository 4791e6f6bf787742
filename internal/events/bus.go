// Package events provides the process-wide notification channel for sync
// completion. It is a narrowly scoped publish/subscribe bus with a single
// payload shape; it lives for the application session and persists nothing.
package events

import (
	"sync"
	"time"
)

// SyncCompleted is the payload published after every sync run.
type SyncCompleted struct {
	// Success is false when the run aborted on a structural failure
	// (unreadable queue, connectivity lost mid-run). Individual action
	// failures do not clear it.
	Success bool

	// Applied is the number of actions confirmed by the remote service and
	// removed from the queue.
	Applied int

	// Rejected is the number of actions the remote refused; they were
	// removed rather than retried.
	Rejected int

	// Remaining is the number of actions still queued for a later attempt.
	Remaining int

	// Stuck is the number of queued actions past the retry ceiling.
	Stuck int

	// Error holds the structural failure reason when Success is false.
	Error string

	// Duration is the wall time of the run.
	Duration time.Duration
}

// Handler receives sync completion events.
type Handler func(SyncCompleted)

// Bus fans completion events out to subscribers.
type Bus struct {
	mu   sync.RWMutex
	next int
	subs map[int]Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]Handler)}
}

// Subscribe registers a handler and returns an unsubscribe function.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish delivers the event to every subscriber. A panicking handler is
// contained so it cannot take down the sync engine.
func (b *Bus) Publish(ev SyncCompleted) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() { recover() }()
			h(ev)
		}()
	}
}
