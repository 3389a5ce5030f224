package statecache

import (
	"sort"
	"sync"

	"treasury/internal/types"
)

// Cache is the in-memory, last-write-wins store of computed state. Every Set
// writes through to the bus.
type Cache struct {
	mu      sync.RWMutex
	entries map[types.Topic]map[string]types.CacheEntry
	order   map[types.Topic][]string
	bus     *Bus
}

// New creates a cache that emits on bus. A nil bus gets a private one.
func New(bus *Bus) *Cache {
	if bus == nil {
		bus = NewBus()
	}
	return &Cache{
		entries: make(map[types.Topic]map[string]types.CacheEntry),
		order:   make(map[types.Topic][]string),
		bus:     bus,
	}
}

// Bus returns the bus the cache emits on.
func (c *Cache) Bus() *Bus {
	return c.bus
}

// Set overwrites the value for (topic, key) and then emits it. The key is
// normalized here so every reader sees the canonical form.
func (c *Cache) Set(topic types.Topic, key string, payload any) types.CacheEntry {
	entry := types.CacheEntry{Key: types.NormalizeAddress(key), Payload: payload}

	c.mu.Lock()
	byKey, ok := c.entries[topic]
	if !ok {
		byKey = make(map[string]types.CacheEntry)
		c.entries[topic] = byKey
	}
	if _, exists := byKey[entry.Key]; !exists {
		c.order[topic] = append(c.order[topic], entry.Key)
	}
	byKey[entry.Key] = entry
	c.mu.Unlock()

	// Emit outside the lock so listeners can read the cache.
	c.bus.Emit(types.Event{Topic: topic, Entry: entry})
	return entry
}

// Get returns the cached entry for (topic, key).
func (c *Cache) Get(topic types.Topic, key string) (types.CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[topic][types.NormalizeAddress(key)]
	return entry, ok
}

// List returns every entry under topic in first-insertion order. The result
// is never nil.
func (c *Cache) List(topic types.Topic) []types.CacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := c.order[topic]
	out := make([]types.CacheEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, c.entries[topic][k])
	}
	return out
}

// Keys returns the sorted keys cached under topic.
func (c *Cache) Keys(topic types.Topic) []string {
	c.mu.RLock()
	keys := append([]string(nil), c.order[topic]...)
	c.mu.RUnlock()
	sort.Strings(keys)
	return keys
}
