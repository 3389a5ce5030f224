package stream

import (
	"sync"
	"sync/atomic"

	"treasury/internal/statecache"
	"treasury/internal/types"
)

type listenerRef struct {
	topic types.Topic
	id    statecache.ListenerID
}

// Subscription is one attached client.
type Subscription struct {
	ID     string
	Filter string

	bus       *statecache.Bus
	listeners []listenerRef
	onClose   func(id string)

	mu      sync.Mutex
	closed  bool
	frames  chan Frame
	dropped atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

// Frames returns the channel of queued frames. It is closed when the
// subscription closes.
func (s *Subscription) Frames() <-chan Frame {
	return s.frames
}

// Done is closed when the subscription closes.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Dropped returns how many live events were discarded because the buffer
// was full.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Close deregisters every listener. It is safe to call more than once and
// from any goroutine.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		for _, l := range s.listeners {
			s.bus.Off(l.topic, l.id)
		}

		s.mu.Lock()
		s.closed = true
		close(s.frames)
		s.mu.Unlock()

		close(s.done)
		if s.onClose != nil {
			s.onClose(s.ID)
		}
	})
}

func (s *Subscription) matches(key string) bool {
	return s.Filter == "" || key == s.Filter
}

// deliver runs on the emitting goroutine. It never blocks on a slow client:
// when the buffer is full the event is dropped.
func (s *Subscription) deliver(ev types.Event) {
	if !s.matches(ev.Entry.Key) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	select {
	case s.frames <- Frame{Topic: ev.Topic, Key: ev.Entry.Key, Payload: ev.Entry.Payload}:
	default:
		s.dropped.Add(1)
	}
}
