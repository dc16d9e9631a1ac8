package bus

import (
	"context"
	"sync"
	"time"
)

type EventType string

const (
	EventReceived       EventType = "event_received"
	EventAcked          EventType = "event_acked"
	EventListenerFailed EventType = "listener_failed"
	EventQueryAnswered  EventType = "query_answered"
	EventQueryFailed    EventType = "query_failed"
	EventReplied        EventType = "replied"
	EventReplyFailed    EventType = "reply_failed"
)

type Event struct {
	Type      EventType         `json:"type"`
	At        time.Time         `json:"at"`
	UpdateID  int               `json:"update_id,omitempty"`
	ChatID    int64             `json:"chat_id,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Payload   map[string]string `json:"payload,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Publish delivers event to every subscriber without blocking.
func (b *Bus) Publish(ctx context.Context, event Event) bool {
	if b == nil {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return false
	case <-b.done:
		return false
	default:
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Drop instead of blocking the relay loop on slow subscribers.
		}
	}

	return true
}

// Subscribe returns a buffered event stream and an idempotent unsubscribe
// func. The stream closes when ctx ends, on unsubscribe, or on Close.
func (b *Bus) Subscribe(ctx context.Context, buffer int) (<-chan Event, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}

	ch := make(chan Event, buffer)
	if b == nil {
		close(ch)
		return ch, func() {}
	}

	b.mu.Lock()
	select {
	case <-b.done:
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}

	id := b.nextSubscriberID
	b.nextSubscriberID++
	b.subscribers[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			if eventCh, ok := b.subscribers[id]; ok {
				delete(b.subscribers, id)
				close(eventCh)
			}
			b.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-b.done:
			unsubscribe()
		}
	}()

	return ch, unsubscribe
}
