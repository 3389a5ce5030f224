// Package statecache holds the latest computed state per account and fans
// every write out to registered listeners.
package statecache

import (
	"sync"

	"treasury/internal/types"
)

// Listener receives bus events. It runs on the emitting goroutine and must
// return quickly.
type Listener func(types.Event)

// ListenerID identifies a registration for Off.
type ListenerID uint64

type registration struct {
	id ListenerID
	fn Listener
}

// Bus is a synchronous publish/subscribe channel keyed by topic. Listeners
// for a topic are invoked in registration order.
//
// Emit iterates over a snapshot of the listener slice, so a listener may call
// On or Off (including on itself) while being invoked.
type Bus struct {
	mu        sync.RWMutex
	nextID    ListenerID
	listeners map[types.Topic][]registration
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[types.Topic][]registration)}
}

// On registers fn for topic and returns its ID.
func (b *Bus) On(topic types.Topic, fn Listener) ListenerID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	// Always allocate a new slice so snapshots held by Emit stay untouched.
	current := b.listeners[topic]
	next := make([]registration, len(current), len(current)+1)
	copy(next, current)
	b.listeners[topic] = append(next, registration{id: id, fn: fn})
	return id
}

// Off removes the listener. Unknown IDs are ignored.
func (b *Bus) Off(topic types.Topic, id ListenerID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.listeners[topic]
	for i, r := range current {
		if r.id != id {
			continue
		}
		next := make([]registration, 0, len(current)-1)
		next = append(next, current[:i]...)
		next = append(next, current[i+1:]...)
		if len(next) == 0 {
			delete(b.listeners, topic)
		} else {
			b.listeners[topic] = next
		}
		return
	}
}

// Emit delivers ev to every listener registered for ev.Topic at the time of
// the call.
func (b *Bus) Emit(ev types.Event) {
	b.mu.RLock()
	snapshot := b.listeners[ev.Topic]
	b.mu.RUnlock()

	for _, r := range snapshot {
		r.fn(ev)
	}
}

// ListenerCount returns the number of listeners on topic.
func (b *Bus) ListenerCount(topic types.Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[topic])
}
