package event_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Meeds-io/deeds-dapp-sub003/pkg/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greetingEvent struct{ Message string }

func (greetingEvent) EventType() event.Type { return "test.greeting" }

type otherEvent struct{}

func (otherEvent) EventType() event.Type { return "test.other" }

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	bus := event.NewBus(nil)
	t.Cleanup(bus.Stop)

	var got []string
	event.Subscribe(bus, func(_ context.Context, evt greetingEvent) {
		got = append(got, "first:"+evt.Message)
	})
	event.Subscribe(bus, func(_ context.Context, evt greetingEvent) {
		got = append(got, "second:"+evt.Message)
	})
	event.Subscribe(bus, func(_ context.Context, _ otherEvent) {
		got = append(got, "other")
	})

	bus.Publish(context.Background(), greetingEvent{Message: "hello"})

	assert.ElementsMatch(t, []string{"first:hello", "second:hello"}, got)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := event.NewBus(nil)
	t.Cleanup(bus.Stop)

	calls := 0
	id := event.Subscribe(bus, func(_ context.Context, _ greetingEvent) { calls++ })

	bus.Publish(context.Background(), greetingEvent{})
	bus.Unsubscribe(greetingEvent{}.EventType(), id)
	bus.Publish(context.Background(), greetingEvent{})

	assert.Equal(t, 1, calls)
}

func TestHandlerPanicIsContained(t *testing.T) {
	bus := event.NewBus(nil)
	t.Cleanup(bus.Stop)

	delivered := false
	event.Subscribe(bus, func(_ context.Context, _ greetingEvent) { panic("boom") })
	event.Subscribe(bus, func(_ context.Context, _ greetingEvent) { delivered = true })

	require.NotPanics(t, func() {
		bus.Publish(context.Background(), greetingEvent{})
	})
	assert.True(t, delivered, "a panicking handler must not take down the others")
}

func TestPublishAsync(t *testing.T) {
	bus := event.NewBus(nil)
	t.Cleanup(bus.Stop)

	var mu sync.Mutex
	done := make(chan struct{})
	var got string
	event.Subscribe(bus, func(_ context.Context, evt greetingEvent) {
		mu.Lock()
		got = evt.Message
		mu.Unlock()
		close(done)
	})

	bus.PublishAsync(context.Background(), greetingEvent{Message: "async"})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("async event was not delivered")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "async", got)
}
