package event

import (
	"context"
	"sync"
	"time"

	"github.com/Meeds-io/deeds-dapp-sub003/pkg/logger"
	"github.com/Meeds-io/deeds-dapp-sub003/pkg/logger/slogx"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	asyncQueueSize      = 1000
	asyncWorkerPoolSize = 4
)

// Type names a kind of event carried by the bus.
type Type string

// Payload is implemented by every event payload struct. EventType must be
// callable on the zero value, so subscriptions can be registered before any
// event is published.
type Payload interface {
	EventType() Type
}

// SubscriberID identifies a single subscription for Unsubscribe.
type SubscriberID int

// Event wraps a payload with its publication time.
type Event struct {
	Timestamp time.Time
	Payload   Payload
}

type handlerFunc func(context.Context, Event)

type asyncEvent struct {
	ctx   context.Context
	event Event
}

// Bus is an in-process publish/subscribe bus. Delivery to handlers is
// at-least-once from the caller's perspective: a payload published while the
// bus is stopping may be dropped, so handlers must stay idempotent.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Type]map[SubscriberID]handlerFunc
	lastSubID   SubscriberID
	metrics     *busMetrics

	asyncQueue chan asyncEvent
	asyncWg    sync.WaitGroup
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// NewBus creates a Bus with an async worker pool. promRegistry may be nil to
// disable metrics.
func NewBus(promRegistry prometheus.Registerer) *Bus {
	b := &Bus{
		subscribers: make(map[Type]map[SubscriberID]handlerFunc),
		asyncQueue:  make(chan asyncEvent, asyncQueueSize),
		stopCh:      make(chan struct{}),
	}
	if promRegistry != nil {
		b.initMetrics(promRegistry)
	}
	for i := 0; i < asyncWorkerPoolSize; i++ {
		b.asyncWg.Add(1)
		go b.asyncWorker()
	}
	return b
}

func (b *Bus) asyncWorker() {
	defer b.asyncWg.Done()
	for {
		select {
		case <-b.stopCh:
			return
		case ae, ok := <-b.asyncQueue:
			if !ok {
				return
			}
			b.dispatch(ae.ctx, ae.event)
		}
	}
}

// Stop shuts down the async worker pool. Pending queued events are dropped.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
		b.asyncWg.Wait()
	})
}

// Publish delivers the payload synchronously to every handler subscribed to
// its type. Handler panics are contained so one subscriber cannot take down
// the publisher.
func (b *Bus) Publish(ctx context.Context, payload Payload) {
	b.dispatch(ctx, Event{Timestamp: time.Now(), Payload: payload})
}

// PublishAsync queues the payload for delivery by the worker pool. When the
// queue is full the event is dropped with a warning rather than blocking the
// caller.
func (b *Bus) PublishAsync(ctx context.Context, payload Payload) {
	ae := asyncEvent{ctx: ctx, event: Event{Timestamp: time.Now(), Payload: payload}}
	select {
	case b.asyncQueue <- ae:
	default:
		logger.WarnContext(ctx, "Event queue full, dropping async event",
			slogx.String("event_type", string(payload.EventType())))
		b.metrics.dropped(payload.EventType())
	}
}

func (b *Bus) dispatch(ctx context.Context, evt Event) {
	eventType := evt.Payload.EventType()

	b.mu.RLock()
	handlers := make([]handlerFunc, 0, len(b.subscribers[eventType]))
	for _, h := range b.subscribers[eventType] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	b.metrics.published(eventType)
	for _, handler := range handlers {
		b.deliver(ctx, evt, handler)
	}
}

func (b *Bus) deliver(ctx context.Context, evt Event, handler handlerFunc) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "Event handler panicked",
				slogx.String("event_type", string(evt.Payload.EventType())),
				slogx.Any("panic", r))
		}
	}()
	handler(ctx, evt)
}

// Unsubscribe removes the subscription with the given id.
func (b *Bus) Unsubscribe(eventType Type, id SubscriberID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.subscribers[eventType]; ok {
		delete(subs, id)
	}
}

func (b *Bus) subscribe(eventType Type, handler handlerFunc) SubscriberID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastSubID++
	id := b.lastSubID
	if b.subscribers[eventType] == nil {
		b.subscribers[eventType] = make(map[SubscriberID]handlerFunc)
	}
	b.subscribers[eventType][id] = handler
	return id
}

// Subscribe registers fn for the payload type T. The payload type is checked
// at compile time, so handlers never need to assert on arbitrary data.
func Subscribe[T Payload](b *Bus, fn func(context.Context, T)) SubscriberID {
	var zero T
	return b.subscribe(zero.EventType(), func(ctx context.Context, evt Event) {
		payload, ok := evt.Payload.(T)
		if !ok {
			logger.ErrorContext(ctx, "Event payload type mismatch",
				slogx.String("event_type", string(zero.EventType())))
			return
		}
		fn(ctx, payload)
	})
}
