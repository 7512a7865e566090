package events

import "github.com/kelindar/event"

// SubscribeToChannel bridges kelindar/event callback-based subscriptions to channels.
// Used by the SSE handlers, which select over a channel.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	send := func(e T) {
		select {
		case ch <- e:
		default:
			// Drop event if channel is full (non-blocking)
		}
	}
	if _, isLog := any(*new(T)).(LogEntryEvent); isLog {
		return event.Subscribe(bus.dispatcher, send)
	}
	return subscribeSerial(bus, send)
}

// ForwardToChannel sends serial events of the given types to ch from a
// single subscription, so ch sees them in publish order. Events are
// dropped when ch is full.
func ForwardToChannel(bus *Bus, ch chan<- any, types ...uint32) func() {
	return subscribeSerialTypes(bus, types, func(e Event) {
		select {
		case ch <- e:
		default:
		}
	})
}
