// Package stream pushes state cache contents and live bus events to
// long-lived client connections.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"treasury/internal/statecache"
	"treasury/internal/types"
)

const (
	DefaultKeepalive  = 15 * time.Second
	DefaultBufferSize = 64
)

// ErrClosed is returned by Subscribe once the gateway has been closed.
var ErrClosed = errors.New("stream: gateway closed")

// Frame is one message pushed to a subscriber.
type Frame struct {
	Topic   types.Topic `json:"topic"`
	Key     string      `json:"key"`
	Payload any         `json:"payload"`
	Replay  bool        `json:"replay"`
}

// Sink writes frames to one client connection. Implementations are only
// called from the Serve goroutine.
type Sink interface {
	WriteFrame(Frame) error
	WriteKeepalive() error
}

// Config configures a Gateway.
type Config struct {
	Cache      *statecache.Cache
	Topics     []types.Topic
	Keepalive  time.Duration
	BufferSize int
	Logger     *slog.Logger
}

// Gateway maps client connections onto the state cache's bus.
type Gateway struct {
	cache      *statecache.Cache
	topics     []types.Topic
	keepalive  time.Duration
	bufferSize int
	logger     *slog.Logger

	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool
}

// NewGateway creates a Gateway. Zero values in cfg take package defaults and
// a nil Topics slice subscribes to every topic.
func NewGateway(cfg Config) *Gateway {
	if cfg.Keepalive <= 0 {
		cfg.Keepalive = DefaultKeepalive
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Topics == nil {
		cfg.Topics = types.AllTopics
	}
	return &Gateway{
		cache:      cfg.Cache,
		topics:     cfg.Topics,
		keepalive:  cfg.Keepalive,
		bufferSize: cfg.BufferSize,
		logger:     cfg.Logger,
		subs:       make(map[string]*Subscription),
	}
}

// Subscribe attaches a new subscriber. An empty filter receives every key;
// otherwise only entries whose key equals the normalized filter are sent.
//
// Every cached value matching the filter is queued as a replay frame before
// any live event. The caller must Close the subscription. Once the gateway
// is closed it returns ErrClosed.
func (g *Gateway) Subscribe(filter string) (*Subscription, error) {
	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	sub := &Subscription{
		ID:     uuid.NewString(),
		Filter: types.NormalizeAddress(filter),
		bus:    g.cache.Bus(),
		done:   make(chan struct{}),
		onClose: func(id string) {
			g.mu.Lock()
			delete(g.subs, id)
			g.mu.Unlock()
		},
	}

	// Listeners block on sub.mu until replay is queued, which keeps replay
	// ahead of live events.
	sub.mu.Lock()
	for _, topic := range g.topics {
		id := sub.bus.On(topic, sub.deliver)
		sub.listeners = append(sub.listeners, listenerRef{topic: topic, id: id})
	}

	var replay []Frame
	for _, topic := range g.topics {
		for _, entry := range g.cache.List(topic) {
			if sub.matches(entry.Key) {
				replay = append(replay, Frame{Topic: topic, Key: entry.Key, Payload: entry.Payload, Replay: true})
			}
		}
	}
	sub.frames = make(chan Frame, len(replay)+g.bufferSize)
	for _, f := range replay {
		sub.frames <- f
	}
	sub.mu.Unlock()

	g.mu.Lock()
	if g.closed {
		// Close ran while replay was being queued.
		g.mu.Unlock()
		sub.Close()
		return nil, ErrClosed
	}
	g.subs[sub.ID] = sub
	g.mu.Unlock()

	g.logger.Debug("stream subscriber attached",
		"subscription_id", sub.ID,
		"filter", sub.Filter,
		"replayed", len(replay),
	)
	return sub, nil
}

// Serve pumps frames from sub into sink until ctx is done, the subscription
// closes, or the sink returns an error. It sends a keepalive on a fixed
// interval and always closes sub before returning.
func (g *Gateway) Serve(ctx context.Context, sub *Subscription, sink Sink) error {
	defer sub.Close()

	keepalive := time.NewTicker(g.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sub.done:
			return nil
		case <-keepalive.C:
			if err := sink.WriteKeepalive(); err != nil {
				return err
			}
		case f, ok := <-sub.frames:
			if !ok {
				return nil
			}
			if err := sink.WriteFrame(f); err != nil {
				return err
			}
		}
	}
}

// Active returns the number of attached subscribers.
func (g *Gateway) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.subs)
}

// Close detaches every subscriber and rejects new ones.
func (g *Gateway) Close() {
	g.mu.Lock()
	g.closed = true
	subs := make([]*Subscription, 0, len(g.subs))
	for _, s := range g.subs {
		subs = append(subs, s)
	}
	g.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
}
