package ports

import (
	"context"
	"time"
)

// SourceID identifies one SetSource call on an engine. Zero means no source.
type SourceID uint64

// MediaEngine is the interface for the external audio decode/render engine.
// The playback session is the only component allowed to hold one.
//
// Implementations must be thread-safe: the session polls from its own goroutine
// while commands arrive on the caller's goroutine.
type MediaEngine interface {
	// Source methods

	// SetSource selects the resource to play next. Any current source is stopped.
	//
	// Returns an error if the locator is rejected.
	SetSource(locator string) error

	// CurrentSource returns the id of the source chosen by the latest
	// successful SetSource. Ids increase and are never reused.
	CurrentSource() SourceID

	// Prepare opens and decodes enough of the source to report its duration.
	// It may block; ctx bounds how long the caller is willing to wait.
	//
	// Returns an error if no source is set or the source cannot be opened.
	Prepare(ctx context.Context) error

	// Playback control methods

	// Play starts or resumes playback of the prepared source.
	Play() error

	// Pause pauses playback, preserving the position.
	Pause() error

	// Stop halts playback and rewinds. The source stays prepared.
	Stop() error

	// Seek sets the playback position. The position must be within [0, Duration].
	Seek(position time.Duration) error

	// State query methods

	// Position returns the current playback position.
	Position() (time.Duration, error)

	// Duration returns the total duration of the prepared source.
	Duration() (time.Duration, error)

	// IsPlaying reports whether audio is currently being rendered.
	IsPlaying() (bool, error)

	// Events

	// SetCompletionHandler registers the function called exactly once when playback
	// reaches the natural end of a source, with that source's id. The call may
	// arrive after a newer source was set, so receivers compare the id with the
	// source they expect. It may be called from any goroutine and must not be
	// invoked while the engine holds its own locks.
	SetCompletionHandler(handler func(source SourceID))

	// Lifecycle

	// Release frees every engine resource. The engine is unusable afterwards.
	Release() error
}
