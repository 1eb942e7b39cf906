package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusPublishDeliversToMatchingSubscriber(t *testing.T) {
	bus := NewBus(nil)
	ch := bus.Subscribe("agent-1", nil)

	bus.Publish("agent-1", New(KindAgentCreated, "agent-1", AgentCreated{AgentID: "agent-1"}))

	select {
	case ev := <-ch:
		assert.Equal(t, KindAgentCreated, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected event, got none")
	}
}

func TestBusPublishSkipsNonMatchingTarget(t *testing.T) {
	bus := NewBus(nil)
	ch := bus.Subscribe("agent-2", nil)

	bus.Publish("agent-1", New(KindAgentCreated, "agent-1", AgentCreated{AgentID: "agent-1"}))

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event delivered: %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusSubscribeAllReceivesEverything(t *testing.T) {
	bus := NewBus(nil)
	ch := bus.Subscribe("all", nil)

	bus.Publish("agent-3", New(KindAgentStopped, "agent-3", AgentStopped{AgentID: "agent-3"}))

	select {
	case ev := <-ch:
		assert.Equal(t, KindAgentStopped, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected broadcast event")
	}
}

func TestBusFiltersByKind(t *testing.T) {
	bus := NewBus(nil)
	ch := bus.Subscribe("all", []Kind{KindTaskFailed})

	bus.Publish("a", New(KindTaskCompleted, "a", TaskCompleted{}))
	bus.Publish("a", New(KindTaskFailed, "a", TaskFailed{Reason: "boom"}))

	select {
	case ev := <-ch:
		require.Equal(t, KindTaskFailed, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected filtered event")
	}

	select {
	case ev := <-ch:
		t.Fatalf("unexpected second event: %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusDropsWhenSubscriberBufferFull(t *testing.T) {
	bus := NewBus(nil)
	_ = bus.Subscribe("all", nil) // never drained, forcing backpressure

	for i := 0; i < subscriberBufferSize+maxBackpressureRetries+5; i++ {
		bus.Publish("x", New(KindTaskCompleted, "x", TaskCompleted{}))
	}

	assert.Greater(t, bus.DroppedEventCount(), uint64(0))
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(nil)
	ch := bus.Subscribe("all", nil)
	bus.Unsubscribe(ch)

	bus.Publish("x", New(KindAgentCreated, "x", AgentCreated{}))

	_, open := <-ch
	assert.False(t, open)
}
