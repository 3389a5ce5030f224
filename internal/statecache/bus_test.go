package statecache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"treasury/internal/types"
)

func TestBus_RegistrationOrder(t *testing.T) {
	bus := NewBus()
	var got []string
	bus.On(types.TopicRisk, func(types.Event) { got = append(got, "first") })
	bus.On(types.TopicRisk, func(types.Event) { got = append(got, "second") })
	bus.On(types.TopicSnapshot, func(types.Event) { got = append(got, "other-topic") })

	bus.Emit(types.Event{Topic: types.TopicRisk})

	assert.Equal(t, []string{"first", "second"}, got)
}

func TestBus_OffDuringEmit(t *testing.T) {
	bus := NewBus()
	var calls []string
	var selfID ListenerID
	selfID = bus.On(types.TopicAlerts, func(types.Event) {
		calls = append(calls, "self-removing")
		bus.Off(types.TopicAlerts, selfID)
	})
	bus.On(types.TopicAlerts, func(types.Event) { calls = append(calls, "after") })

	bus.Emit(types.Event{Topic: types.TopicAlerts})
	bus.Emit(types.Event{Topic: types.TopicAlerts})

	assert.Equal(t, []string{"self-removing", "after", "after"}, calls)
	assert.Equal(t, 1, bus.ListenerCount(types.TopicAlerts))
}

func TestBus_OnDuringEmitNotInvokedUntilNextEmit(t *testing.T) {
	bus := NewBus()
	late := 0
	bus.On(types.TopicRisk, func(types.Event) {
		bus.On(types.TopicRisk, func(types.Event) { late++ })
	})

	bus.Emit(types.Event{Topic: types.TopicRisk})
	assert.Equal(t, 0, late)

	bus.Emit(types.Event{Topic: types.TopicRisk})
	assert.Equal(t, 1, late)
}

func TestBus_OffIsIdempotent(t *testing.T) {
	bus := NewBus()
	id := bus.On(types.TopicRisk, func(types.Event) {})
	bus.Off(types.TopicRisk, id)
	bus.Off(types.TopicRisk, id)
	bus.Off(types.TopicSnapshot, 999)
	assert.Equal(t, 0, bus.ListenerCount(types.TopicRisk))
}

func TestBus_ConcurrentAttachDetach(t *testing.T) {
	bus := NewBus()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			id := bus.On(types.TopicSnapshot, func(types.Event) {})
			bus.Off(types.TopicSnapshot, id)
		}()
		go func() {
			defer wg.Done()
			bus.Emit(types.Event{Topic: types.TopicSnapshot})
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, bus.ListenerCount(types.TopicSnapshot))
}
