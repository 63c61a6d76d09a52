// Package events provides a lightweight pub/sub event bus for voice runtime
// observability. Components publish through an Emitter; metrics and tracing
// subscribe to the bus.
package events

import (
	"sync"
)

const (
	defaultWorkerPoolSize  = 4
	defaultEventBufferSize = 256
)

// Listener is a function that handles events.
type Listener func(*Event)

// Option configures an EventBus.
type Option func(*EventBus)

// WithWorkerPoolSize sets the number of delivery goroutines. Values below 1
// are ignored.
func WithWorkerPoolSize(n int) Option {
	return func(eb *EventBus) {
		if n > 0 {
			eb.workers = n
		}
	}
}

// WithEventBufferSize sets the publish queue size. Values below 1 are ignored.
func WithEventBufferSize(n int) Option {
	return func(eb *EventBus) {
		if n > 0 {
			eb.bufferSize = n
		}
	}
}

type subscription struct {
	id       uint64
	listener Listener
}

// EventBus manages event distribution to listeners.
type EventBus struct {
	mu              sync.RWMutex
	listeners       map[EventType][]subscription
	globalListeners []subscription
	nextID          uint64

	workers    int
	bufferSize int
	queue      chan *Event
	wg         sync.WaitGroup

	closeMu sync.RWMutex
	closed  bool
}

// NewEventBus creates a new event bus and starts its workers.
func NewEventBus(opts ...Option) *EventBus {
	eb := &EventBus{
		listeners:  make(map[EventType][]subscription),
		workers:    defaultWorkerPoolSize,
		bufferSize: defaultEventBufferSize,
	}
	for _, opt := range opts {
		opt(eb)
	}
	eb.queue = make(chan *Event, eb.bufferSize)
	for i := 0; i < eb.workers; i++ {
		eb.wg.Add(1)
		go eb.worker()
	}
	return eb
}

// Subscribe registers a listener for a specific event type and returns a
// function that removes it.
func (eb *EventBus) Subscribe(eventType EventType, listener Listener) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextID++
	id := eb.nextID
	eb.listeners[eventType] = append(eb.listeners[eventType], subscription{id: id, listener: listener})

	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		eb.listeners[eventType] = removeSubscription(eb.listeners[eventType], id)
	}
}

// SubscribeAll registers a listener for all event types and returns a
// function that removes it.
func (eb *EventBus) SubscribeAll(listener Listener) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextID++
	id := eb.nextID
	eb.globalListeners = append(eb.globalListeners, subscription{id: id, listener: listener})

	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		eb.globalListeners = removeSubscription(eb.globalListeners, id)
	}
}

// Publish queues an event for delivery. It never blocks: it returns false
// when the bus is closed or the queue is full and the event was dropped.
func (eb *EventBus) Publish(event *Event) bool {
	eb.closeMu.RLock()
	defer eb.closeMu.RUnlock()
	if eb.closed {
		return false
	}
	select {
	case eb.queue <- event:
		return true
	default:
		return false
	}
}

// Close stops accepting events, delivers the queued ones, and waits for the
// workers to exit. Close is idempotent.
func (eb *EventBus) Close() {
	eb.closeMu.Lock()
	if eb.closed {
		eb.closeMu.Unlock()
		return
	}
	eb.closed = true
	close(eb.queue)
	eb.closeMu.Unlock()

	eb.wg.Wait()
}

// Clear removes all listeners (primarily for tests).
func (eb *EventBus) Clear() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.listeners = make(map[EventType][]subscription)
	eb.globalListeners = nil
}

func (eb *EventBus) worker() {
	defer eb.wg.Done()
	for event := range eb.queue {
		eb.dispatch(event)
	}
}

func (eb *EventBus) dispatch(event *Event) {
	eb.mu.RLock()
	specific := make([]subscription, len(eb.listeners[event.Type]))
	copy(specific, eb.listeners[event.Type])
	global := make([]subscription, len(eb.globalListeners))
	copy(global, eb.globalListeners)
	eb.mu.RUnlock()

	for _, s := range specific {
		safeInvoke(s.listener, event)
	}
	for _, s := range global {
		safeInvoke(s.listener, event)
	}
}

func removeSubscription(subs []subscription, id uint64) []subscription {
	out := subs[:0:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

func safeInvoke(listener Listener, event *Event) {
	defer func() { _ = recover() }()
	listener(event)
}
