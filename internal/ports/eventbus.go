// Package ports declares the interfaces the playback core depends on and the
// adapters implement.
package ports

import (
	"github.com/tejashwikalptaru/gotune-core/internal/domain"
)

// EventBus carries domain events from the queue and playback services to
// observers such as the state projector and the CLI.
//
// Implementations must be safe for concurrent use. Publishers cannot tell how
// many handlers ran, and handlers cannot tell who published.
//
//	id := bus.Subscribe(domain.EventWaveformReady, func(e domain.Event) {
//	    ready := e.(domain.WaveformReadyEvent)
//	    draw(ready.Envelope)
//	})
//	defer bus.Unsubscribe(id)
type EventBus interface {
	// Publish hands event to every matching subscriber. Synchronous
	// implementations run handlers on the caller's goroutine in
	// subscription order, so handlers must return quickly.
	Publish(event domain.Event)

	// Subscribe registers handler for one event type. Registering the same
	// handler twice yields two subscriptions.
	Subscribe(eventType domain.EventType, handler domain.EventHandler) domain.SubscriptionID

	// Unsubscribe removes a subscription. Unknown ids are ignored.
	Unsubscribe(id domain.SubscriptionID)

	// SubscribeAll registers handler for every event type.
	SubscribeAll(handler domain.EventHandler) domain.SubscriptionID

	// HasSubscribers reports whether publishing eventType would reach anyone.
	HasSubscribers(eventType domain.EventType) bool

	// Close drops all subscriptions. Later publishes are ignored.
	Close() error
}

// EventFilter decides whether a subscriber sees an event.
type EventFilter func(event domain.Event) bool

// FilteringEventBus adds filtered subscriptions.
type FilteringEventBus interface {
	EventBus

	// SubscribeFiltered registers handler for eventType events accepted by filter.
	//
	//	bus.SubscribeFiltered(domain.EventPlaybackStopped, func(e domain.Event) bool {
	//	    return e.(domain.PlaybackStoppedEvent).EndOfQueue
	//	}, quit)
	SubscribeFiltered(eventType domain.EventType, filter EventFilter, handler domain.EventHandler) domain.SubscriptionID
}
