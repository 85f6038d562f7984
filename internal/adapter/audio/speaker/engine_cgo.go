//go:build (linux && cgo) || windows || darwin

// Package speaker implements the MediaEngine interface on the system audio
// device using gopxl/beep.
package speaker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/tejashwikalptaru/gotune-core/internal/adapter/decoder"
	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/ports"
)

// Available indicates whether audio playback is supported in this build.
const Available = true

// Engine plays one source at a time through the beep speaker.
//
// The speaker is initialized lazily on the first Prepare, so an engine that
// never prepares a source never opens the audio device.
//
// Thread-safety: mu guards the engine fields; speaker.Lock guards anything
// the speaker goroutine reads (the Ctrl and the streamer position).
type Engine struct {
	logger *slog.Logger
	mu     sync.Mutex

	sampleRate  beep.SampleRate
	initialized bool

	// Current source
	locator  string
	sourceID ports.SourceID
	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	queued   bool   // the source sits in the speaker mixer
	gen      uint64 // changes whenever the source is replaced

	onDone   func(ports.SourceID)
	released bool
}

// Open creates a speaker engine rendering at sampleRate.
func Open(sampleRate int, logger *slog.Logger) (ports.MediaEngine, error) {
	return New(sampleRate, logger), nil
}

// New creates a speaker engine rendering at sampleRate.
func New(sampleRate int, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	return &Engine{
		logger:     logger.With(slog.String("engine", "speaker")),
		sampleRate: beep.SampleRate(sampleRate),
	}
}

// SetSource selects the next source and drops the current one.
func (e *Engine) SetSource(locator string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.released {
		return domain.ErrEngineReleased
	}
	if locator == "" {
		return domain.ErrInvalidFilePath
	}

	e.closeSourceLocked()
	e.locator = locator
	e.sourceID++
	return nil
}

// CurrentSource returns the id of the latest source.
func (e *Engine) CurrentSource() ports.SourceID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sourceID
}

// closeSourceLocked removes the current source from the speaker and closes it.
func (e *Engine) closeSourceLocked() {
	e.gen++
	if e.initialized {
		speaker.Clear()
	}
	if e.streamer != nil {
		if err := e.streamer.Close(); err != nil {
			e.logger.Debug("failed to close streamer", slog.String("locator", e.locator), slog.Any("error", err))
		}
	}
	e.streamer = nil
	e.ctrl = nil
	e.queued = false
}

// Prepare decodes the source header and parks it, paused, in the speaker.
func (e *Engine) Prepare(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.released {
		return domain.ErrEngineReleased
	}
	if e.locator == "" {
		return domain.ErrNoSource
	}

	e.closeSourceLocked()
	streamer, format, err := decoder.OpenPlayback(e.locator)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		_ = streamer.Close()
		return err
	}

	if !e.initialized {
		if err := speaker.Init(e.sampleRate, e.sampleRate.N(time.Second/10)); err != nil {
			_ = streamer.Close()
			return domain.NewAudioEngineError("init", e.locator, "failed to open audio device", err)
		}
		e.initialized = true
	}

	e.streamer = streamer
	e.format = format
	e.ctrl = &beep.Ctrl{
		Streamer: beep.Resample(4, format.SampleRate, e.sampleRate, streamer),
		Paused:   true,
	}
	e.queueLocked()

	e.logger.Debug("source prepared",
		slog.String("locator", e.locator),
		slog.Int("sample_rate", int(format.SampleRate)),
		slog.Duration("duration", format.SampleRate.D(streamer.Len())))
	return nil
}

// queueLocked hands the current source to the speaker. The speaker drops a
// sequence once it drains, so a finished source is queued again before replay.
func (e *Engine) queueLocked() {
	gen := e.gen
	e.queued = true
	speaker.Play(beep.Seq(e.ctrl, beep.Callback(func() {
		// Runs on the speaker goroutine with the speaker locked
		go e.finished(gen)
	})))
}

func (e *Engine) finished(gen uint64) {
	e.mu.Lock()
	if e.released || e.gen != gen {
		e.mu.Unlock()
		return
	}
	e.queued = false
	handler := e.onDone
	locator, source := e.locator, e.sourceID
	e.mu.Unlock()

	e.logger.Debug("source completed", slog.String("locator", locator))
	if handler != nil {
		handler(source)
	}
}

// Play starts or resumes playback.
func (e *Engine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.readyLocked(); err != nil {
		return err
	}

	speaker.Lock()
	e.ctrl.Paused = false
	speaker.Unlock()

	if !e.queued {
		// A drained resampler does not restart, so wrap the rewound source afresh
		e.ctrl.Streamer = beep.Resample(4, e.format.SampleRate, e.sampleRate, e.streamer)
		e.queueLocked()
	}
	return nil
}

// Pause pauses playback.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.readyLocked(); err != nil {
		return err
	}

	speaker.Lock()
	e.ctrl.Paused = true
	speaker.Unlock()
	return nil
}

// Stop pauses and rewinds. The source stays prepared.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.readyLocked(); err != nil {
		return err
	}

	speaker.Lock()
	defer speaker.Unlock()

	e.ctrl.Paused = true
	if err := e.streamer.Seek(0); err != nil {
		return domain.NewAudioEngineError("stop", e.locator, "failed to rewind", err)
	}
	return nil
}

// Seek sets the playback position.
func (e *Engine) Seek(position time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.readyLocked(); err != nil {
		return err
	}

	speaker.Lock()
	defer speaker.Unlock()

	n := e.format.SampleRate.N(position)
	if position < 0 || n > e.streamer.Len() {
		return domain.ErrInvalidPosition
	}
	if err := e.streamer.Seek(n); err != nil {
		return domain.NewAudioEngineError("seek", e.locator, "failed to seek", err)
	}
	return nil
}

// Position returns the current playback position.
func (e *Engine) Position() (time.Duration, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.readyLocked(); err != nil {
		return 0, err
	}

	speaker.Lock()
	pos := e.streamer.Position()
	speaker.Unlock()

	return e.format.SampleRate.D(pos), nil
}

// Duration returns the total duration of the prepared source.
func (e *Engine) Duration() (time.Duration, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.readyLocked(); err != nil {
		return 0, err
	}
	return e.format.SampleRate.D(e.streamer.Len()), nil
}

// IsPlaying reports whether the source is queued and not paused.
func (e *Engine) IsPlaying() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.readyLocked(); err != nil {
		return false, err
	}

	speaker.Lock()
	paused := e.ctrl.Paused
	speaker.Unlock()

	return e.queued && !paused, nil
}

func (e *Engine) readyLocked() error {
	if e.released {
		return domain.ErrEngineReleased
	}
	if e.streamer == nil || e.ctrl == nil {
		return domain.ErrNoSource
	}
	return nil
}

// SetCompletionHandler registers the end-of-source callback.
func (e *Engine) SetCompletionHandler(handler func(ports.SourceID)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onDone = handler
}

// Release closes the source and the audio device. Calling it again does nothing.
func (e *Engine) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.released {
		return nil
	}
	e.closeSourceLocked()
	e.released = true
	e.onDone = nil

	if e.initialized {
		speaker.Close()
		e.initialized = false
	}
	e.logger.Debug("speaker engine released")
	return nil
}

// Verify interface implementation
var _ ports.MediaEngine = (*Engine)(nil)
