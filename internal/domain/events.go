package domain

import (
	"time"
)

// Event is the base interface for all events in the system.
// All events must implement this interface to be published via the event bus.
type Event interface {
	// Type returns the event type identifier
	Type() EventType

	// Timestamp returns when the event occurred
	Timestamp() time.Time
}

// EventType is a string identifier for different event types.
type EventType string

// Event type constants define all possible events in the system.
const (
	// Playback events
	EventTrackLoaded      EventType = "track.loaded"
	EventTrackUnavailable EventType = "track.unavailable"
	EventTrackError       EventType = "track.error"
	EventTrackCompleted   EventType = "track.completed"
	EventPlaybackStopped  EventType = "playback.stopped"
	EventSnapshotUpdated  EventType = "playback.snapshot"

	// Waveform events
	EventWaveformReady EventType = "waveform.ready"

	// Queue events
	EventQueueChanged   EventType = "queue.changed"
	EventShuffleChanged EventType = "queue.shuffle"
	EventRepeatChanged  EventType = "queue.repeat"
)

// EventHandler is a function that handles events.
type EventHandler func(event Event)

// SubscriptionID uniquely identifies an event subscription.
type SubscriptionID string

// baseEvent provides common event functionality.
// All concrete events should embed this struct.
type baseEvent struct {
	timestamp time.Time
}

// Timestamp returns when the event occurred.
func (e baseEvent) Timestamp() time.Time {
	return e.timestamp
}

// newBaseEvent creates a new base event with the current timestamp.
func newBaseEvent() baseEvent {
	return baseEvent{timestamp: time.Now()}
}

// TrackLoadedEvent is published when a track is prepared in the engine.
type TrackLoadedEvent struct {
	baseEvent
	Track      Track
	DurationMs int64
	Index      int // Index in the active order, -1 when loaded from outside the queue
}

// Type returns the event type.
func (e TrackLoadedEvent) Type() EventType {
	return EventTrackLoaded
}

// NewTrackLoadedEvent creates a new TrackLoadedEvent.
func NewTrackLoadedEvent(track Track, durationMs int64, index int) TrackLoadedEvent {
	return TrackLoadedEvent{
		baseEvent:  newBaseEvent(),
		Track:      track,
		DurationMs: durationMs,
		Index:      index,
	}
}

// TrackUnavailableEvent is published when a load request cannot be resolved
// and the session falls back to the placeholder track.
type TrackUnavailableEvent struct {
	baseEvent
	TrackID string
}

// Type returns the event type.
func (e TrackUnavailableEvent) Type() EventType {
	return EventTrackUnavailable
}

// NewTrackUnavailableEvent creates a new TrackUnavailableEvent.
func NewTrackUnavailableEvent(trackID string) TrackUnavailableEvent {
	return TrackUnavailableEvent{
		baseEvent: newBaseEvent(),
		TrackID:   trackID,
	}
}

// TrackErrorEvent is published when the engine rejects a command for a track.
type TrackErrorEvent struct {
	baseEvent
	Track Track
	Error error
}

// Type returns the event type.
func (e TrackErrorEvent) Type() EventType {
	return EventTrackError
}

// NewTrackErrorEvent creates a new TrackErrorEvent.
func NewTrackErrorEvent(track Track, err error) TrackErrorEvent {
	return TrackErrorEvent{
		baseEvent: newBaseEvent(),
		Track:     track,
		Error:     err,
	}
}

// TrackCompletedEvent is published when a track finishes playing naturally.
type TrackCompletedEvent struct {
	baseEvent
	Track  Track
	Repeat RepeatMode
}

// Type returns the event type.
func (e TrackCompletedEvent) Type() EventType {
	return EventTrackCompleted
}

// NewTrackCompletedEvent creates a new TrackCompletedEvent.
func NewTrackCompletedEvent(track Track, repeat RepeatMode) TrackCompletedEvent {
	return TrackCompletedEvent{
		baseEvent: newBaseEvent(),
		Track:     track,
		Repeat:    repeat,
	}
}

// PlaybackStoppedEvent is published when the session returns to idle.
type PlaybackStoppedEvent struct {
	baseEvent
	EndOfQueue bool
}

// Type returns the event type.
func (e PlaybackStoppedEvent) Type() EventType {
	return EventPlaybackStopped
}

// NewPlaybackStoppedEvent creates a new PlaybackStoppedEvent.
func NewPlaybackStoppedEvent(endOfQueue bool) PlaybackStoppedEvent {
	return PlaybackStoppedEvent{
		baseEvent:  newBaseEvent(),
		EndOfQueue: endOfQueue,
	}
}

// SnapshotUpdatedEvent carries every newly published playback snapshot.
type SnapshotUpdatedEvent struct {
	baseEvent
	Snapshot PlaybackSnapshot
}

// Type returns the event type.
func (e SnapshotUpdatedEvent) Type() EventType {
	return EventSnapshotUpdated
}

// NewSnapshotUpdatedEvent creates a new SnapshotUpdatedEvent.
func NewSnapshotUpdatedEvent(snapshot PlaybackSnapshot) SnapshotUpdatedEvent {
	return SnapshotUpdatedEvent{
		baseEvent: newBaseEvent(),
		Snapshot:  snapshot,
	}
}

// WaveformReadyEvent is published when the envelope for the current track is known.
type WaveformReadyEvent struct {
	baseEvent
	Envelope WaveformEnvelope
	Cached   bool
}

// Type returns the event type.
func (e WaveformReadyEvent) Type() EventType {
	return EventWaveformReady
}

// NewWaveformReadyEvent creates a new WaveformReadyEvent.
func NewWaveformReadyEvent(envelope WaveformEnvelope, cached bool) WaveformReadyEvent {
	return WaveformReadyEvent{
		baseEvent: newBaseEvent(),
		Envelope:  envelope,
		Cached:    cached,
	}
}

// QueueChangedEvent is published when the queue is repopulated or reordered.
type QueueChangedEvent struct {
	baseEvent
	Tracks  []Track
	Context PlaylistContext
	Index   int // Current index in the active order, -1 if none
}

// Type returns the event type.
func (e QueueChangedEvent) Type() EventType {
	return EventQueueChanged
}

// NewQueueChangedEvent creates a new QueueChangedEvent.
func NewQueueChangedEvent(tracks []Track, ctx PlaylistContext, index int) QueueChangedEvent {
	return QueueChangedEvent{
		baseEvent: newBaseEvent(),
		Tracks:    tracks,
		Context:   ctx,
		Index:     index,
	}
}

// ShuffleChangedEvent is published when shuffle is enabled, reshuffled or disabled.
type ShuffleChangedEvent struct {
	baseEvent
	Enabled bool
}

// Type returns the event type.
func (e ShuffleChangedEvent) Type() EventType {
	return EventShuffleChanged
}

// NewShuffleChangedEvent creates a new ShuffleChangedEvent.
func NewShuffleChangedEvent(enabled bool) ShuffleChangedEvent {
	return ShuffleChangedEvent{
		baseEvent: newBaseEvent(),
		Enabled:   enabled,
	}
}

// RepeatChangedEvent is published when the repeat mode changes.
type RepeatChangedEvent struct {
	baseEvent
	Mode RepeatMode
}

// Type returns the event type.
func (e RepeatChangedEvent) Type() EventType {
	return EventRepeatChanged
}

// NewRepeatChangedEvent creates a new RepeatChangedEvent.
func NewRepeatChangedEvent(mode RepeatMode) RepeatChangedEvent {
	return RepeatChangedEvent{
		baseEvent: newBaseEvent(),
		Mode:      mode,
	}
}
