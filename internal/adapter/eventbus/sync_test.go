package eventbus

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/tejashwikalptaru/gotune-core/internal/domain"
)

func testTrack() domain.Track {
	return domain.Track{ID: "test123", Title: "Test Track", Locator: "/music/test.wav"}
}

// TestNewSyncEventBus tests event bus creation.
func TestNewSyncEventBus(t *testing.T) {
	bus := NewSyncEventBus()

	if bus == nil {
		t.Fatal("NewSyncEventBus returned nil")
	}
	if bus.SubscriberCount() != 0 {
		t.Errorf("Expected 0 subscribers, got %d", bus.SubscriberCount())
	}
	if bus.closed {
		t.Error("New event bus should not be closed")
	}
}

// TestPublishSubscribe tests basic publish/subscribe functionality.
func TestPublishSubscribe(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	var received domain.Event
	var callCount int

	subID := bus.Subscribe(domain.EventTrackLoaded, func(event domain.Event) {
		received = event
		callCount++
	})
	if subID == "" {
		t.Fatal("Subscribe returned empty subscription ID")
	}

	bus.Publish(domain.NewTrackLoadedEvent(testTrack(), 60000, 0))

	if callCount != 1 {
		t.Fatalf("Expected handler to be called once, got %d", callCount)
	}
	loaded, ok := received.(domain.TrackLoadedEvent)
	if !ok {
		t.Fatalf("Expected TrackLoadedEvent, got %T", received)
	}
	if loaded.Track.ID != "test123" || loaded.DurationMs != 60000 {
		t.Errorf("Unexpected event payload: %+v", loaded)
	}
}

// TestUnsubscribe tests that removed handlers stop receiving events and the
// remaining ones keep their order.
func TestUnsubscribe(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	var order []string
	first := bus.Subscribe(domain.EventRepeatChanged, func(domain.Event) { order = append(order, "a") })
	bus.Subscribe(domain.EventRepeatChanged, func(domain.Event) { order = append(order, "b") })
	bus.Subscribe(domain.EventRepeatChanged, func(domain.Event) { order = append(order, "c") })

	bus.Unsubscribe(first)
	bus.Publish(domain.NewRepeatChangedEvent(domain.RepeatAll))

	if len(order) != 2 || order[0] != "b" || order[1] != "c" {
		t.Errorf("Expected [b c], got %v", order)
	}

	// Unknown ids are ignored
	bus.Unsubscribe("invalid-id")
	bus.Unsubscribe("")
}

// TestSubscribeAll tests wildcard subscriptions.
func TestSubscribeAll(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	var count int32
	id := bus.SubscribeAll(func(domain.Event) { atomic.AddInt32(&count, 1) })

	bus.Publish(domain.NewShuffleChangedEvent(true))
	bus.Publish(domain.NewRepeatChangedEvent(domain.RepeatOne))
	bus.Publish(domain.NewPlaybackStoppedEvent(false))

	if atomic.LoadInt32(&count) != 3 {
		t.Errorf("Expected 3 events, got %d", count)
	}

	bus.Unsubscribe(id)
	bus.Publish(domain.NewShuffleChangedEvent(false))
	if atomic.LoadInt32(&count) != 3 {
		t.Errorf("Wildcard handler called after unsubscribe")
	}
}

// TestSubscribeFiltered tests that filters gate delivery.
func TestSubscribeFiltered(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	var endOfQueue int32
	bus.SubscribeFiltered(domain.EventPlaybackStopped, func(e domain.Event) bool {
		return e.(domain.PlaybackStoppedEvent).EndOfQueue
	}, func(domain.Event) {
		atomic.AddInt32(&endOfQueue, 1)
	})

	bus.Publish(domain.NewPlaybackStoppedEvent(false))
	bus.Publish(domain.NewPlaybackStoppedEvent(true))

	if atomic.LoadInt32(&endOfQueue) != 1 {
		t.Errorf("Expected 1 filtered delivery, got %d", endOfQueue)
	}
}

// TestHasSubscribers tests the HasSubscribers method.
func TestHasSubscribers(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	if bus.HasSubscribers(domain.EventSnapshotUpdated) {
		t.Error("Expected no subscribers initially")
	}

	bus.Subscribe(domain.EventSnapshotUpdated, func(domain.Event) {})

	if !bus.HasSubscribers(domain.EventSnapshotUpdated) {
		t.Error("Expected subscribers after subscription")
	}
	if bus.HasSubscribers(domain.EventWaveformReady) {
		t.Error("Expected no subscribers for different event type")
	}

	bus.SubscribeAll(func(domain.Event) {})
	if !bus.HasSubscribers(domain.EventWaveformReady) {
		t.Error("Expected wildcard subscriber to count for every type")
	}
}

// TestHandlerPanic tests that panicking handlers don't crash the bus.
func TestHandlerPanic(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	var callCount int32
	bus.Subscribe(domain.EventTrackCompleted, func(domain.Event) { panic("test panic") })
	bus.Subscribe(domain.EventTrackCompleted, func(domain.Event) { atomic.AddInt32(&callCount, 1) })

	bus.Publish(domain.NewTrackCompletedEvent(testTrack(), domain.RepeatOff))

	if atomic.LoadInt32(&callCount) != 1 {
		t.Errorf("Expected normal handler to be called despite panic, got %d calls", callCount)
	}
}

// TestPublishFromHandler tests that handlers may publish without deadlocking.
func TestPublishFromHandler(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	var stopped int32
	bus.Subscribe(domain.EventTrackCompleted, func(domain.Event) {
		bus.Publish(domain.NewPlaybackStoppedEvent(true))
	})
	bus.Subscribe(domain.EventPlaybackStopped, func(domain.Event) {
		atomic.AddInt32(&stopped, 1)
	})

	bus.Publish(domain.NewTrackCompletedEvent(testTrack(), domain.RepeatOff))

	if atomic.LoadInt32(&stopped) != 1 {
		t.Errorf("Expected nested publish to be delivered, got %d", stopped)
	}
}

// TestClose tests closing the event bus.
func TestClose(t *testing.T) {
	bus := NewSyncEventBus()

	bus.Subscribe(domain.EventQueueChanged, func(domain.Event) {})
	bus.SubscribeAll(func(domain.Event) {})

	if err := bus.Close(); err != nil {
		t.Errorf("Close returned error: %v", err)
	}
	if bus.SubscriberCount() != 0 {
		t.Errorf("Expected 0 subscribers after close, got %d", bus.SubscriberCount())
	}

	// Publishing should be a no-op
	bus.Publish(domain.NewQueueChangedEvent(nil, domain.NoContext(), -1))

	if err := bus.Close(); err == nil {
		t.Error("Expected error when closing already closed bus")
	}
}

// TestConcurrentPublishAndSubscribe tests concurrent publishing and subscribing.
func TestConcurrentPublishAndSubscribe(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	var eventCount int32
	handler := func(domain.Event) { atomic.AddInt32(&eventCount, 1) }
	bus.Subscribe(domain.EventSnapshotUpdated, handler)

	const numPublishers = 5
	const numSubscribers = 5
	const eventsPerPublisher = 100

	var wg sync.WaitGroup
	wg.Add(numPublishers + numSubscribers)

	for i := 0; i < numPublishers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerPublisher; j++ {
				bus.Publish(domain.NewSnapshotUpdatedEvent(domain.PlaybackSnapshot{DurationMs: 1}))
			}
		}()
	}
	for i := 0; i < numSubscribers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				bus.Subscribe(domain.EventSnapshotUpdated, handler)
			}
		}()
	}

	wg.Wait()

	if got := atomic.LoadInt32(&eventCount); got < numPublishers*eventsPerPublisher {
		t.Errorf("Expected at least %d deliveries, got %d", numPublishers*eventsPerPublisher, got)
	}
	if bus.SubscriberCount() != 1+numSubscribers*10 {
		t.Errorf("Expected %d subscribers, got %d", 1+numSubscribers*10, bus.SubscriberCount())
	}
}

// TestNilHandler tests that subscribing with nil handler panics.
func TestNilHandler(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic when subscribing with nil handler")
		}
	}()

	bus.Subscribe(domain.EventTrackLoaded, nil)
}
