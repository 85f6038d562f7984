// Package mock provides a scriptable in-memory implementation of the MediaEngine interface.
// It is used for testing the playback session without an audio device, and by the CLI's --mock flag.
package mock

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/ports"
)

// DefaultDuration is reported for sources without an explicit duration.
const DefaultDuration = 3 * time.Minute

// Engine simulates a media engine in memory without playing audio.
// Time only moves when a test calls SimulateProgress or SimulateCompletion.
//
// Thread-safety: This implementation is thread-safe. The completion handler is
// always invoked with the engine lock released.
type Engine struct {
	logger *slog.Logger
	mu     sync.RWMutex

	// Source state
	source    string
	sourceID  ports.SourceID
	prepared  bool
	playing   bool
	position  time.Duration
	duration  time.Duration
	completed bool
	released  bool

	durations map[string]time.Duration
	onDone    func(ports.SourceID)

	// Behavior configuration (for testing error scenarios)
	failSetSource bool
	failPrepare   bool
	failPlay      bool
	failSeek      bool
	failPoll      bool
	pollDelay     time.Duration
	prepareDelay  time.Duration

	// Call log
	sources     []string
	playCalls   int
	seekCalls   []time.Duration
	pollCalls   int
	releaseHits int
}

// NewEngine creates a new mock media engine.
func NewEngine() *Engine {
	return &Engine{
		durations: make(map[string]time.Duration),
	}
}

// SetLogger sets the logger for this engine.
// This should be called after construction before using the engine.
func (m *Engine) SetLogger(logger *slog.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = logger
}

// SetDuration configures the duration reported after preparing locator.
func (m *Engine) SetDuration(locator string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations[locator] = d
}

// SetFailSetSource configures the mock to reject sources (for testing).
func (m *Engine) SetFailSetSource(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSetSource = fail
}

// SetFailPrepare configures the mock to fail preparing sources (for testing).
func (m *Engine) SetFailPrepare(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPrepare = fail
}

// SetFailPlay configures the mock to fail playback (for testing).
func (m *Engine) SetFailPlay(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPlay = fail
}

// SetFailSeek configures the mock to fail seeking (for testing).
func (m *Engine) SetFailSeek(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSeek = fail
}

// SetFailPoll makes Position, Duration and IsPlaying fail (for testing).
func (m *Engine) SetFailPoll(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPoll = fail
}

// SetPollDelay makes Position block for d before answering (for testing).
func (m *Engine) SetPollDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollDelay = d
}

// SetPrepareDelay makes Prepare block for d or until its context ends (for testing).
func (m *Engine) SetPrepareDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prepareDelay = d
}

// SetSource selects the next source and stops the current one.
func (m *Engine) SetSource(locator string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.released {
		return domain.ErrEngineReleased
	}
	if locator == "" {
		return domain.ErrInvalidFilePath
	}
	if m.failSetSource {
		return domain.NewAudioEngineError("set_source", locator, "mock source rejected", nil)
	}

	m.source = locator
	m.sourceID++
	m.prepared = false
	m.playing = false
	m.position = 0
	m.duration = 0
	m.completed = false
	m.sources = append(m.sources, locator)
	return nil
}

// Prepare makes the current source playable.
func (m *Engine) Prepare(ctx context.Context) error {
	m.mu.RLock()
	delay := m.prepareDelay
	m.mu.RUnlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.released {
		return domain.ErrEngineReleased
	}
	if m.source == "" {
		return domain.ErrNoSource
	}
	if m.failPrepare {
		return domain.NewAudioEngineError("prepare", m.source, "mock prepare failed", nil)
	}

	d, ok := m.durations[m.source]
	if !ok {
		d = DefaultDuration
	}
	m.duration = d
	m.prepared = true
	return nil
}

// Play starts or resumes playback.
func (m *Engine) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.released {
		return domain.ErrEngineReleased
	}
	if !m.prepared {
		return domain.ErrNoSource
	}
	if m.failPlay {
		return domain.ErrPlaybackFailed
	}

	m.playCalls++
	m.playing = true
	return nil
}

// Pause pauses playback.
func (m *Engine) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.released {
		return domain.ErrEngineReleased
	}
	m.playing = false
	return nil
}

// Stop halts playback and rewinds.
func (m *Engine) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.released {
		return domain.ErrEngineReleased
	}
	m.playing = false
	m.position = 0
	return nil
}

// Seek sets the playback position.
func (m *Engine) Seek(position time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.released {
		return domain.ErrEngineReleased
	}
	if !m.prepared {
		return domain.ErrNoSource
	}
	if m.failSeek {
		return domain.NewAudioEngineError("seek", m.source, "mock seek failed", nil)
	}
	if position < 0 || position > m.duration {
		return domain.ErrInvalidPosition
	}

	m.seekCalls = append(m.seekCalls, position)
	m.position = position
	if position < m.duration {
		m.completed = false
	}
	return nil
}

// Position returns the current playback position.
func (m *Engine) Position() (time.Duration, error) {
	m.mu.RLock()
	delay := m.pollDelay
	m.mu.RUnlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.pollCalls++
	if err := m.pollErrLocked(); err != nil {
		return 0, err
	}
	return m.position, nil
}

// Duration returns the total duration of the prepared source.
func (m *Engine) Duration() (time.Duration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.pollErrLocked(); err != nil {
		return 0, err
	}
	return m.duration, nil
}

// IsPlaying reports whether playback is active.
func (m *Engine) IsPlaying() (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.pollErrLocked(); err != nil {
		return false, err
	}
	return m.playing, nil
}

func (m *Engine) pollErrLocked() error {
	if m.released {
		return domain.ErrEngineReleased
	}
	if m.failPoll {
		return domain.NewAudioEngineError("poll", m.source, "mock poll failed", nil)
	}
	if !m.prepared {
		return domain.ErrNoSource
	}
	return nil
}

// CurrentSource returns the id of the latest source.
func (m *Engine) CurrentSource() ports.SourceID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sourceID
}

// SetCompletionHandler registers the end-of-source callback.
func (m *Engine) SetCompletionHandler(handler func(ports.SourceID)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDone = handler
}

// Release frees the engine. Further calls fail with ErrEngineReleased.
func (m *Engine) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.releaseHits++
	if m.released {
		return nil
	}
	m.released = true
	m.playing = false
	m.onDone = nil
	return nil
}

// SimulateProgress advances a playing source by delta (for testing).
// Reaching the end stops playback and fires the completion handler.
func (m *Engine) SimulateProgress(delta time.Duration) {
	m.mu.Lock()
	if !m.playing || m.released {
		m.mu.Unlock()
		return
	}
	m.position += delta
	if m.position < m.duration {
		m.mu.Unlock()
		return
	}
	m.position = m.duration
	done := m.finishLocked()
	m.mu.Unlock()

	if done != nil {
		done()
	}
}

// SimulateCompletion jumps to the end of the source and fires the completion handler (for testing).
func (m *Engine) SimulateCompletion() {
	m.mu.Lock()
	if !m.prepared || m.released {
		m.mu.Unlock()
		return
	}
	m.position = m.duration
	done := m.finishLocked()
	m.mu.Unlock()

	if done != nil {
		done()
	}
}

// finishLocked marks the source finished and returns the handler call to make,
// at most once per source.
func (m *Engine) finishLocked() func() {
	m.playing = false
	if m.completed {
		return nil
	}
	m.completed = true
	if m.logger != nil {
		m.logger.Debug("mock source completed", slog.String("locator", m.source))
	}
	handler, id := m.onDone, m.sourceID
	if handler == nil {
		return nil
	}
	return func() { handler(id) }
}

// Source returns the current locator (for testing).
func (m *Engine) Source() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.source
}

// Sources returns every locator passed to SetSource, in order (for testing).
func (m *Engine) Sources() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.sources...)
}

// PlayCalls returns how many times Play succeeded (for testing).
func (m *Engine) PlayCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.playCalls
}

// SeekCalls returns every accepted seek target (for testing).
func (m *Engine) SeekCalls() []time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]time.Duration(nil), m.seekCalls...)
}

// PollCalls returns how many times Position was called (for testing).
func (m *Engine) PollCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pollCalls
}

// IsReleased reports whether Release was called (for testing).
func (m *Engine) IsReleased() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.released
}

// Verify that Engine implements the MediaEngine interface
var _ ports.MediaEngine = (*Engine)(nil)
