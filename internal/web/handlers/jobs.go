package handlers

import (
	"sync"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/constants"
)

// EventBroadcaster fans attendance job events out to SSE listeners.
// Its Publish method is registered as the job's event hook.
type EventBroadcaster struct {
	listeners []chan attendance.Event
	mu        sync.RWMutex
}

func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{}
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan attendance.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan attendance.Event, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes and closes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan attendance.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// Publish sends an event to all listeners without blocking.
func (b *EventBroadcaster) Publish(event attendance.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// Listeners returns the number of connected listeners.
func (b *EventBroadcaster) Listeners() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Close closes every listener so open event streams end.
func (b *EventBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.listeners {
		close(ch)
	}
	b.listeners = nil
}
