// Package events provides the settings event bus: in-process pub/sub that
// fans out change notifications to SSE clients, the terminal editor and the
// metrics collector. Regular subscribers get ring-buffer semantics; priority
// subscribers never miss an event.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Event is the base interface for all events.
type Event interface {
	EventID() string
	EventType() string
	Timestamp() time.Time
	// SessionID is the form session that caused the event, empty when the
	// change came from outside this process.
	SessionID() string
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Time    time.Time `json:"timestamp"`
	Session string    `json:"session_id,omitempty"`
}

func (e BaseEvent) EventID() string      { return e.ID }
func (e BaseEvent) EventType() string    { return e.Type }
func (e BaseEvent) Timestamp() time.Time { return e.Time }
func (e BaseEvent) SessionID() string    { return e.Session }

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType, sessionID string) BaseEvent {
	return BaseEvent{
		ID:      uuid.NewString(),
		Type:    eventType,
		Time:    time.Now(),
		Session: sessionID,
	}
}

// Subscriber represents an event subscription.
type Subscriber struct {
	ch    chan Event
	types map[string]bool // Empty means all types
}

func (s *Subscriber) wants(eventType string) bool {
	return len(s.types) == 0 || s.types[eventType]
}

// EventBus provides pub/sub with backpressure control.
type EventBus struct {
	mu           sync.RWMutex
	subscribers  []*Subscriber
	prioritySubs []*Subscriber
	bufferSize   int
	droppedCount int64
	closed       bool
}

// New creates a new EventBus with the specified buffer size.
func New(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &EventBus{bufferSize: bufferSize}
}

// Subscribe creates a subscription for specific event types.
// If no types are specified, subscribes to all events.
func (eb *EventBus) Subscribe(types ...string) <-chan Event {
	return eb.subscribe(false, eb.bufferSize, types)
}

// SubscribePriority creates a subscription that never drops events.
// Publishers block while its buffer is full, so consumers must keep up.
func (eb *EventBus) SubscribePriority(types ...string) <-chan Event {
	return eb.subscribe(true, 16, types)
}

func (eb *EventBus) subscribe(priority bool, size int, types []string) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	sub := &Subscriber{
		ch:    make(chan Event, size),
		types: make(map[string]bool, len(types)),
	}
	for _, t := range types {
		sub.types[t] = true
	}
	if eb.closed {
		close(sub.ch)
		return sub.ch
	}
	if priority {
		eb.prioritySubs = append(eb.prioritySubs, sub)
	} else {
		eb.subscribers = append(eb.subscribers, sub)
	}
	return sub.ch
}

// Unsubscribe removes a subscription and closes its channel.
func (eb *EventBus) Unsubscribe(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers = removeSubscriber(eb.subscribers, ch)
	eb.prioritySubs = removeSubscriber(eb.prioritySubs, ch)
}

func removeSubscriber(subs []*Subscriber, ch <-chan Event) []*Subscriber {
	result := make([]*Subscriber, 0, len(subs))
	for _, sub := range subs {
		if sub.ch != ch {
			result = append(result, sub)
		} else {
			close(sub.ch)
		}
	}
	return result
}

// Publish sends an event to all matching regular subscribers. A full
// subscriber buffer drops its oldest event.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}
	eb.publish(event)
}

// PublishPriority sends an event to regular subscribers and, blocking, to
// priority subscribers.
func (eb *EventBus) PublishPriority(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}
	eb.publish(event)
	for _, sub := range eb.prioritySubs {
		if sub.wants(event.EventType()) {
			sub.ch <- event
		}
	}
}

// publish must be called with the read lock held.
func (eb *EventBus) publish(event Event) {
	eventType := event.EventType()
	for _, sub := range eb.subscribers {
		if !sub.wants(eventType) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			select {
			case <-sub.ch:
				atomic.AddInt64(&eb.droppedCount, 1)
			default:
			}
			select {
			case sub.ch <- event:
			default:
				atomic.AddInt64(&eb.droppedCount, 1)
			}
		}
	}
}

// DroppedCount returns the total number of dropped events.
func (eb *EventBus) DroppedCount() int64 {
	return atomic.LoadInt64(&eb.droppedCount)
}

// Close closes the event bus and all subscriber channels.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true

	for _, sub := range eb.subscribers {
		close(sub.ch)
	}
	for _, sub := range eb.prioritySubs {
		close(sub.ch)
	}
	eb.subscribers = nil
	eb.prioritySubs = nil
}
