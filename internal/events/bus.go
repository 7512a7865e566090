package events

import (
	"slices"

	"github.com/kelindar/event"
)

// TypeSerial tags the envelope carrying every serial event.
const TypeSerial uint32 = 100

// serialEnvelope carries serial events through a single kelindar type.
// kelindar orders delivery per subscription, so one type for all serial
// events lets a subscriber see a device stop after the lines preceding it.
type serialEnvelope struct {
	ev Event
}

func (serialEnvelope) Type() uint32 { return TypeSerial }

// Bus wraps kelindar/event dispatcher for event broadcasting.
// Each subscription receives serial events in publish order, across types.
// Log entries travel separately and are not ordered against serial events.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers
// Usage: bus.Publish(LineReceivedEvent{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	case LineReceivedEvent, StreamStoppedEvent, StreamErrorEvent, ModeChangedEvent, ConnectionChangedEvent:
		event.Publish(b.dispatcher, serialEnvelope{ev: e})
	}
}

// Subscribe subscribes to events with a handler function.
// The handler's parameter type selects which events it receives.
// Returns an unsubscribe function; unknown handler types get a no-op.
// Usage: unsub := bus.Subscribe(func(e LineReceivedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(LineReceivedEvent):
		return subscribeSerial(b, h)
	case func(StreamStoppedEvent):
		return subscribeSerial(b, h)
	case func(StreamErrorEvent):
		return subscribeSerial(b, h)
	case func(ModeChangedEvent):
		return subscribeSerial(b, h)
	case func(ConnectionChangedEvent):
		return subscribeSerial(b, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

func subscribeSerial[T Event](b *Bus, h func(T)) func() {
	return event.Subscribe(b.dispatcher, func(env serialEnvelope) {
		if e, ok := env.ev.(T); ok {
			h(e)
		}
	})
}

// SubscribeSerial delivers every serial event to h, in publish order, from
// a single subscription. Log entries are not included.
func (b *Bus) SubscribeSerial(h func(Event)) func() {
	return event.Subscribe(b.dispatcher, func(env serialEnvelope) {
		h(env.ev)
	})
}

// subscribeSerialTypes delivers serial events whose Type is in types to h
// from one subscription.
func subscribeSerialTypes(b *Bus, types []uint32, h func(Event)) func() {
	return event.Subscribe(b.dispatcher, func(env serialEnvelope) {
		if slices.Contains(types, env.ev.Type()) {
			h(env.ev)
		}
	})
}
