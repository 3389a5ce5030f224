package types

// Topic is a named channel on the event bus and a namespace in the state
// cache.
type Topic string

const (
	TopicSnapshot        Topic = "snapshot"
	TopicAlerts          Topic = "alerts"
	TopicRisk            Topic = "risk"
	TopicProjection      Topic = "projection"
	TopicProtocolMetrics Topic = "protocol-metrics"
	TopicExecution       Topic = "execution"
	TopicRun             Topic = "run"
)

// AllTopics lists every topic in a stable order. Replay to new subscribers
// walks topics in this order.
var AllTopics = []Topic{
	TopicSnapshot,
	TopicAlerts,
	TopicRisk,
	TopicProjection,
	TopicProtocolMetrics,
	TopicExecution,
	TopicRun,
}

// Valid reports whether t is a known topic.
func (t Topic) Valid() bool {
	for _, known := range AllTopics {
		if t == known {
			return true
		}
	}
	return false
}

// CacheEntry is the value the state cache holds per (topic, key). Key is a
// normalized account address, or a network identifier for protocol metrics.
type CacheEntry struct {
	Key     string `json:"key"`
	Payload any    `json:"payload"`
}

// Event is what the bus delivers to listeners.
type Event struct {
	Topic Topic      `json:"topic"`
	Entry CacheEntry `json:"entry"`
}
