package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/ports"
	"github.com/tejashwikalptaru/gotune-core/internal/waveform"
)

// DefaultPollInterval is how often the engine is polled for position and state.
const DefaultPollInterval = 200 * time.Millisecond

// DefaultReadDrainTimeout is how long Shutdown waits for a running engine read.
const DefaultReadDrainTimeout = time.Second

// WaveformAnalyzer produces the amplitude envelope of a source.
// A non-nil error means the returned envelope is a synthetic placeholder.
type WaveformAnalyzer interface {
	Analyze(ctx context.Context, locator string, durationMs int64) ([]uint8, error)
}

// PlaybackOptions holds the optional collaborators of a PlaybackService.
type PlaybackOptions struct {
	// Catalog resolves ids that are not in the queue
	Catalog ports.Catalog

	// Cache and Analyzer produce waveforms; without an analyzer every track gets the placeholder
	Cache    ports.WaveformCache
	Analyzer WaveformAnalyzer

	// PollInterval defaults to DefaultPollInterval
	PollInterval time.Duration

	// ReadDrainTimeout bounds how long Shutdown waits for an engine read that
	// is still running; defaults to DefaultReadDrainTimeout
	ReadDrainTimeout time.Duration
}

// PlaybackService is the single owner of the media engine.
//
// Commands (Load, PlayPause, SeekTo, Stop, completion handling) are serialized
// on cmdMu. Published state lives in an atomic snapshot cell, so readers never
// block. pubMu orders the two snapshot writers, the poll loop and commands; the
// poll loop never takes cmdMu, so a slow Load does not stall polling.
//
// Two generation counters discard stale work: engineGen changes whenever a
// command touches the engine and invalidates poll reads started before it;
// loadGen changes on every Load and invalidates waveform jobs for older tracks.
// Completions are matched against the engine source id of the current load.
type PlaybackService struct {
	// Dependencies (injected)
	logger   *slog.Logger
	engine   ports.MediaEngine
	queue    *QueueService
	bus      ports.EventBus
	catalog  ports.Catalog
	cache    ports.WaveformCache
	analyzer WaveformAnalyzer

	pollInterval     time.Duration
	readDrainTimeout time.Duration

	// Published state
	snapshot atomic.Pointer[domain.PlaybackSnapshot]
	waveform atomic.Pointer[domain.WaveformEnvelope]
	tick     uint64 // guarded by pubMu

	// Concurrency control
	cmdMu     sync.Mutex
	pubMu     sync.Mutex
	waveMu    sync.Mutex // orders waveform stores against loadGen
	engineGen atomic.Uint64
	loadGen   atomic.Uint64
	source    ports.SourceID // engine source of the current load, guarded by cmdMu

	// Lifecycle
	baseCtx    context.Context
	baseCancel context.CancelFunc
	loopMu     sync.Mutex
	pollCancel context.CancelFunc
	pollWg     sync.WaitGroup // poll loop
	readWg     sync.WaitGroup // engine reads started by the poll loop
	polling    atomic.Bool    // an engine read is in flight
	jobCancel  context.CancelFunc
	jobWg      sync.WaitGroup // waveform jobs
	closed     atomic.Bool

	// Event subscriptions
	flagSubs []domain.SubscriptionID
}

// NewPlaybackService creates a session in the Idle state and registers its
// completion handler with the engine. Call Start to begin polling.
func NewPlaybackService(
	logger *slog.Logger,
	engine ports.MediaEngine,
	queue *QueueService,
	bus ports.EventBus,
	opts PlaybackOptions,
) *PlaybackService {
	if logger == nil {
		logger = slog.Default()
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	drain := opts.ReadDrainTimeout
	if drain <= 0 {
		drain = DefaultReadDrainTimeout
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())
	s := &PlaybackService{
		logger:       logger.With(slog.String("service", "PlaybackService")),
		engine:       engine,
		queue:        queue,
		bus:          bus,
		catalog:      opts.Catalog,
		cache:        opts.Cache,
		analyzer:     opts.Analyzer,
		pollInterval:     interval,
		readDrainTimeout: drain,
		baseCtx:      baseCtx,
		baseCancel:   baseCancel,
	}

	ctx, shuffle, repeat := queue.Flags()
	s.snapshot.Store(&domain.PlaybackSnapshot{
		DurationMs: 1,
		Context:    ctx,
		Shuffle:    shuffle,
		Repeat:     repeat,
		State:      domain.SessionIdle,
	})
	s.waveform.Store(&domain.WaveformEnvelope{})

	engine.SetCompletionHandler(s.onEngineCompleted)

	// Queue flag changes show up in the snapshot without waiting for a tick
	if bus != nil {
		refresh := func(domain.Event) { s.RefreshFlags() }
		for _, t := range []domain.EventType{
			domain.EventQueueChanged,
			domain.EventShuffleChanged,
			domain.EventRepeatChanged,
		} {
			s.flagSubs = append(s.flagSubs, bus.Subscribe(t, refresh))
		}
	}

	s.logger.Debug("playback service initialized", slog.Duration("poll_interval", interval))
	return s
}

// Snapshot returns the latest published snapshot. It never blocks.
func (s *PlaybackService) Snapshot() domain.PlaybackSnapshot {
	return *s.snapshot.Load()
}

// Waveform returns a copy of the current track's envelope. It never blocks.
// Amplitudes is nil while the envelope is still being computed.
func (s *PlaybackService) Waveform() domain.WaveformEnvelope {
	return s.waveform.Load().Clone()
}

// Load makes trackID the current track.
//
// The id is resolved against the queue first and the catalog second. An id
// that resolves nowhere is not an error: the session shows a placeholder track
// with a synthetic waveform, stops the engine, and goes Idle. Engine failures
// are returned as *domain.AudioEngineError and also leave the session Idle;
// the next Load starts from a clean slate.
func (s *PlaybackService) Load(ctx context.Context, trackID string, autoPlay bool) error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	if s.closed.Load() {
		return domain.ErrSessionClosed
	}
	return s.loadLocked(ctx, trackID, autoPlay)
}

// loadLocked expects cmdMu held.
func (s *PlaybackService) loadLocked(ctx context.Context, trackID string, autoPlay bool) error {
	gen := s.loadGen.Add(1)
	s.engineGen.Add(1)
	s.source = 0
	s.cancelWaveformJobLocked()
	s.storeWaveform(gen, domain.WaveformEnvelope{TrackID: trackID}, false, false)

	s.logger.Debug("loading track", slog.String("track_id", trackID), slog.Bool("auto_play", autoPlay))
	s.publishSnapshot(func(snap *domain.PlaybackSnapshot) bool {
		snap.State = domain.SessionLoading
		snap.PositionMs = 0
		return true
	})

	s.queue.Select(trackID)
	track, ok := s.resolve(ctx, trackID)
	if !ok {
		s.showUnavailableLocked(gen, trackID)
		return nil
	}

	durationMs, err := s.prepareLocked(ctx, track, autoPlay)
	if err != nil {
		s.logger.Error("failed to load track",
			slog.String("track_id", track.ID),
			slog.String("locator", track.Locator),
			slog.Any("error", err))
		s.engineGen.Add(1)
		s.publishSnapshot(func(snap *domain.PlaybackSnapshot) bool {
			snap.CurrentTrack = &track
			snap.PositionMs = 0
			snap.DurationMs = track.DurationMs
			snap.IsPlaying = false
			snap.State = domain.SessionIdle
			return true
		})
		s.storeWaveform(gen, waveform.FallbackEnvelope(track.ID), true, false)
		s.publishEvent(domain.NewTrackErrorEvent(track, err))
		return err
	}

	s.publishSnapshot(func(snap *domain.PlaybackSnapshot) bool {
		snap.CurrentTrack = &track
		snap.PositionMs = 0
		snap.DurationMs = durationMs
		snap.IsPlaying = autoPlay
		snap.State = domain.SessionReady
		return true
	})
	s.publishEvent(domain.NewTrackLoadedEvent(track, durationMs, s.queue.IndexOf(track.ID)))
	s.startWaveformJobLocked(gen, track, durationMs)

	s.logger.Info("track loaded",
		slog.String("track_id", track.ID),
		slog.String("title", track.Title),
		slog.Int64("duration_ms", durationMs))
	return nil
}

// resolve looks trackID up in the queue, then in the catalog.
func (s *PlaybackService) resolve(ctx context.Context, trackID string) (domain.Track, bool) {
	if trackID == "" {
		return domain.Track{}, false
	}
	if t, ok := s.queue.Lookup(trackID); ok {
		return t, true
	}
	if s.catalog == nil {
		return domain.Track{}, false
	}

	t, ok, err := s.catalog.FindTrack(ctx, trackID)
	if err != nil {
		s.logger.Warn("catalog lookup failed", slog.String("track_id", trackID), slog.Any("error", err))
		return domain.Track{}, false
	}
	return t, ok
}

// showUnavailableLocked publishes the placeholder state for an unresolvable id.
func (s *PlaybackService) showUnavailableLocked(gen uint64, trackID string) {
	s.logger.Warn("track unavailable", slog.String("track_id", trackID))

	if err := s.engine.Stop(); err != nil && !errors.Is(err, domain.ErrNoSource) {
		s.logger.Debug("failed to stop engine", slog.Any("error", err))
	}
	s.engineGen.Add(1)

	placeholder := domain.UnavailableTrack(trackID)
	s.publishSnapshot(func(snap *domain.PlaybackSnapshot) bool {
		snap.CurrentTrack = &placeholder
		snap.PositionMs = 0
		snap.DurationMs = 1
		snap.IsPlaying = false
		snap.State = domain.SessionIdle
		return true
	})
	s.storeWaveform(gen, waveform.FallbackEnvelope(trackID), true, false)
	s.publishEvent(domain.NewTrackUnavailableEvent(trackID))
}

// prepareLocked hands track to the engine and returns the duration to publish.
func (s *PlaybackService) prepareLocked(ctx context.Context, track domain.Track, autoPlay bool) (int64, error) {
	if err := s.engine.SetSource(track.Locator); err != nil {
		return 0, engineError("set_source", track, "failed to set source", err)
	}
	s.source = s.engine.CurrentSource()
	if err := s.engine.Prepare(ctx); err != nil {
		return 0, engineError("prepare", track, "failed to prepare source", err)
	}

	durationMs := track.DurationMs
	if d, err := s.engine.Duration(); err == nil && d > 0 {
		durationMs = d.Milliseconds()
	}

	if autoPlay {
		if err := s.engine.Play(); err != nil {
			return 0, engineError("play", track, "failed to start playback", err)
		}
	}
	return domain.ClampDurationMs(durationMs), nil
}

func engineError(op string, track domain.Track, message string, err error) error {
	var engineErr *domain.AudioEngineError
	if errors.As(err, &engineErr) {
		return fmt.Errorf("%s %s: %w", op, track.ID, err)
	}
	return domain.NewAudioEngineError(op, track.Locator, message, err)
}

// PlayPause toggles between playing and paused.
// When Idle with a real track (after a stop or a failed load) it reloads the
// track and starts playing. Without a track it does nothing.
func (s *PlaybackService) PlayPause() error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	if s.closed.Load() {
		return domain.ErrSessionClosed
	}

	snap := s.Snapshot()
	if snap.CurrentTrack == nil {
		return nil
	}
	switch snap.State {
	case domain.SessionIdle:
		if snap.CurrentTrack.IsUnavailable() {
			return nil
		}
		return s.loadLocked(s.baseCtx, snap.CurrentTrack.ID, true)
	case domain.SessionReady:
		return s.setPlayingLocked(*snap.CurrentTrack, !snap.IsPlaying)
	default:
		return nil
	}
}

// Play resumes playback of a ready track.
func (s *PlaybackService) Play() error {
	return s.setPlaying(true)
}

// Pause pauses playback of a ready track.
func (s *PlaybackService) Pause() error {
	return s.setPlaying(false)
}

func (s *PlaybackService) setPlaying(playing bool) error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	if s.closed.Load() {
		return domain.ErrSessionClosed
	}

	snap := s.Snapshot()
	if snap.State != domain.SessionReady || snap.CurrentTrack == nil {
		return domain.ErrNoTrackLoaded
	}
	if snap.IsPlaying == playing {
		return nil
	}
	return s.setPlayingLocked(*snap.CurrentTrack, playing)
}

// setPlayingLocked drives the engine and publishes the new state without
// waiting for the next poll.
func (s *PlaybackService) setPlayingLocked(track domain.Track, playing bool) error {
	op, call := "pause", s.engine.Pause
	if playing {
		op, call = "play", s.engine.Play
	}
	if err := call(); err != nil {
		err = engineError(op, track, "engine rejected "+op, err)
		s.logger.Warn("playback toggle failed", slog.String("op", op), slog.Any("error", err))
		s.publishEvent(domain.NewTrackErrorEvent(track, err))
		return err
	}

	s.engineGen.Add(1)
	s.publishSnapshot(func(snap *domain.PlaybackSnapshot) bool {
		snap.IsPlaying = playing
		return true
	})
	return nil
}

// SeekTo moves playback to ms, clamped to [0, duration].
// The published position follows on the next poll tick.
func (s *PlaybackService) SeekTo(ms int64) error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	if s.closed.Load() {
		return domain.ErrSessionClosed
	}

	snap := s.Snapshot()
	if snap.State != domain.SessionReady || snap.CurrentTrack == nil {
		return domain.ErrNoTrackLoaded
	}

	target := max(0, min(ms, snap.DurationMs))
	if err := s.engine.Seek(time.Duration(target) * time.Millisecond); err != nil {
		return engineError("seek", *snap.CurrentTrack, "failed to seek", err)
	}
	s.engineGen.Add(1)

	s.logger.Debug("seeked", slog.Int64("requested_ms", ms), slog.Int64("position_ms", target))
	return nil
}

// Stop halts playback and goes Idle. The current track stays selected so
// PlayPause can restart it.
func (s *PlaybackService) Stop() error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	if s.closed.Load() {
		return domain.ErrSessionClosed
	}
	return s.stopLocked(false)
}

// stopLocked expects cmdMu held.
func (s *PlaybackService) stopLocked(endOfQueue bool) error {
	snap := s.Snapshot()
	if snap.CurrentTrack == nil {
		return nil
	}

	var stopErr error
	if err := s.engine.Stop(); err != nil && !errors.Is(err, domain.ErrNoSource) {
		stopErr = engineError("stop", *snap.CurrentTrack, "failed to stop", err)
		s.logger.Warn("failed to stop engine", slog.Any("error", stopErr))
	}
	s.engineGen.Add(1)

	s.publishSnapshot(func(snap *domain.PlaybackSnapshot) bool {
		snap.PositionMs = 0
		snap.IsPlaying = false
		snap.State = domain.SessionIdle
		return true
	})
	s.publishEvent(domain.NewPlaybackStoppedEvent(endOfQueue))

	s.logger.Debug("playback stopped", slog.Bool("end_of_queue", endOfQueue))
	return stopErr
}

// Next skips to the following queue entry and plays it.
// An empty queue does nothing.
func (s *PlaybackService) Next(ctx context.Context) error {
	return s.skip(ctx, s.queue.Next)
}

// Previous skips to the preceding queue entry and plays it.
// An empty queue does nothing.
func (s *PlaybackService) Previous(ctx context.Context) error {
	return s.skip(ctx, s.queue.Previous)
}

func (s *PlaybackService) skip(ctx context.Context, move func() (domain.Track, bool)) error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	if s.closed.Load() {
		return domain.ErrSessionClosed
	}

	track, ok := move()
	if !ok {
		return nil
	}
	return s.loadLocked(ctx, track.ID, true)
}

// onEngineCompleted runs when the engine reaches the natural end of a source.
// It may be called on any goroutine, possibly after a newer load replaced the
// source that finished; such completions are dropped.
func (s *PlaybackService) onEngineCompleted(source ports.SourceID) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	if s.closed.Load() {
		return
	}
	if source == 0 || source != s.source {
		s.logger.Debug("ignoring completion of a replaced source",
			slog.Uint64("source", uint64(source)),
			slog.Uint64("current", uint64(s.source)))
		return
	}

	snap := s.Snapshot()
	if snap.State != domain.SessionReady || snap.CurrentTrack == nil {
		s.logger.Debug("ignoring completion", slog.String("state", snap.State.String()))
		return
	}

	track := *snap.CurrentTrack
	repeat := s.queue.Repeat()
	s.publishEvent(domain.NewTrackCompletedEvent(track, repeat))

	switch {
	case repeat == domain.RepeatOne:
		s.replayLocked(track)

	case s.queue.Len() == 0, repeat == domain.RepeatOff && s.queue.IsAtEnd():
		s.logger.Info("reached end of queue", slog.String("track_id", track.ID))
		_ = s.stopLocked(true)

	default:
		next, ok := s.queue.Next()
		if !ok {
			_ = s.stopLocked(true)
			return
		}
		if err := s.loadLocked(s.baseCtx, next.ID, true); err != nil {
			s.logger.Warn("failed to advance to next track", slog.String("track_id", next.ID), slog.Any("error", err))
		}
	}
}

// replayLocked restarts the current source for repeat-one.
func (s *PlaybackService) replayLocked(track domain.Track) {
	if err := s.engine.Seek(0); err != nil {
		s.logger.Warn("failed to rewind for repeat", slog.Any("error", err))
		_ = s.stopLocked(false)
		return
	}
	if err := s.engine.Play(); err != nil {
		s.logger.Warn("failed to replay for repeat", slog.Any("error", err))
		s.publishEvent(domain.NewTrackErrorEvent(track, engineError("play", track, "failed to replay", err)))
		_ = s.stopLocked(false)
		return
	}

	s.engineGen.Add(1)
	s.publishSnapshot(func(snap *domain.PlaybackSnapshot) bool {
		snap.PositionMs = 0
		snap.IsPlaying = true
		return true
	})
}

// ResumeState captures what an external store needs to restore the session.
func (s *PlaybackService) ResumeState() domain.ResumeState {
	snap := s.Snapshot()
	return domain.ResumeState{
		TrackID:    snap.TrackID(),
		IsPlaying:  snap.IsPlaying,
		PositionMs: snap.PositionMs,
		Context:    snap.Context.Kind,
		ContextID:  snap.Context.Payload(),
	}
}

// Restore reloads a saved state: the track is loaded, playing if it was
// playing, and the saved position is applied.
func (s *PlaybackService) Restore(ctx context.Context, rs domain.ResumeState) error {
	if rs.TrackID == "" {
		return nil
	}
	if err := s.Load(ctx, rs.TrackID, rs.IsPlaying); err != nil {
		return err
	}
	if rs.PositionMs <= 0 || s.Snapshot().State != domain.SessionReady {
		return nil
	}
	return s.SeekTo(rs.PositionMs)
}

// Start begins polling the engine. Calling Start again while running does nothing.
// The loop stops when ctx is cancelled or Shutdown is called.
func (s *PlaybackService) Start(ctx context.Context) error {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()

	if s.closed.Load() {
		return domain.ErrSessionClosed
	}
	if s.pollCancel != nil {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.pollCancel = cancel

	s.pollWg.Add(1)
	go func() {
		defer s.pollWg.Done()
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return

			case <-ticker.C:
				s.pollOnce(loopCtx)
			}
		}
	}()

	s.logger.Debug("poll loop started")
	return nil
}

type engineReading struct {
	position time.Duration
	duration time.Duration
	playing  bool
	err      error
}

// pollOnce reads the engine and publishes one snapshot.
// The read runs on a helper goroutine bounded by the poll interval. If it is
// still running when the interval ends the tick is skipped, and no new read
// starts until that one returns.
func (s *PlaybackService) pollOnce(ctx context.Context) {
	if s.Snapshot().State != domain.SessionReady {
		return
	}
	if !s.polling.CompareAndSwap(false, true) {
		s.logger.Debug("previous engine read still running, skipping tick")
		return
	}

	gen := s.engineGen.Load()
	result := make(chan engineReading, 1)

	s.readWg.Add(1)
	go func() {
		defer s.readWg.Done()
		defer s.polling.Store(false)
		result <- s.readEngine()
	}()

	timer := time.NewTimer(s.pollInterval)
	defer timer.Stop()

	var r engineReading
	select {
	case r = <-result:
	case <-timer.C:
		s.logger.Debug("engine read exceeded poll interval, skipping tick")
		return
	case <-ctx.Done():
		return
	}

	if r.err != nil {
		s.logger.Debug("engine poll failed", slog.Any("error", r.err))
		return
	}

	s.publishSnapshot(func(snap *domain.PlaybackSnapshot) bool {
		// A command touched the engine after this read started
		if s.engineGen.Load() != gen || snap.State != domain.SessionReady {
			return false
		}
		snap.DurationMs = r.duration.Milliseconds()
		snap.PositionMs = max(0, min(r.position.Milliseconds(), domain.ClampDurationMs(snap.DurationMs)))
		snap.IsPlaying = r.playing
		return true
	})
}

func (s *PlaybackService) readEngine() engineReading {
	var r engineReading
	if r.position, r.err = s.engine.Position(); r.err != nil {
		return r
	}
	if r.duration, r.err = s.engine.Duration(); r.err != nil {
		return r
	}
	r.playing, r.err = s.engine.IsPlaying()
	return r
}

// publishSnapshot copies the current snapshot, applies mutate, and publishes
// the result as a new immutable value. Queue flags are refreshed on every
// publication. mutate returning false cancels the publication.
//
// SnapshotUpdated handlers run under pubMu and must not call session commands.
func (s *PlaybackService) publishSnapshot(mutate func(*domain.PlaybackSnapshot) bool) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	next := *s.snapshot.Load()
	if !mutate(&next) {
		return
	}
	if next.CurrentTrack != nil {
		t := *next.CurrentTrack
		next.CurrentTrack = &t
	}
	next.Context, next.Shuffle, next.Repeat = s.queue.Flags()
	next.DurationMs = domain.ClampDurationMs(next.DurationMs)
	next.PositionMs = max(0, next.PositionMs)
	s.tick++
	next.Tick = s.tick

	s.snapshot.Store(&next)
	s.publishEvent(domain.NewSnapshotUpdatedEvent(next))
}

// RefreshFlags republishes the snapshot so queue flag changes show up before the next tick.
func (s *PlaybackService) RefreshFlags() {
	s.publishSnapshot(func(*domain.PlaybackSnapshot) bool { return true })
}

// startWaveformJobLocked computes the envelope for track on its own goroutine.
func (s *PlaybackService) startWaveformJobLocked(gen uint64, track domain.Track, durationMs int64) {
	ctx, cancel := context.WithCancel(s.baseCtx)
	s.jobCancel = cancel

	s.jobWg.Add(1)
	go func() {
		defer s.jobWg.Done()
		defer cancel()
		s.runWaveformJob(ctx, gen, track, durationMs)
	}()
}

func (s *PlaybackService) cancelWaveformJobLocked() {
	if s.jobCancel != nil {
		s.jobCancel()
		s.jobCancel = nil
	}
}

// runWaveformJob consults the cache, falls back to analysis, and stores the
// result if this load is still current.
func (s *PlaybackService) runWaveformJob(ctx context.Context, gen uint64, track domain.Track, durationMs int64) {
	log := s.logger.With(slog.String("track_id", track.ID))

	if s.cache != nil {
		amps, ok, err := s.cache.Get(ctx, track.ID)
		switch {
		case err != nil:
			log.Warn("waveform cache read failed, treating as miss", slog.Any("error", err))
		case ok && len(amps) == domain.WaveformLength:
			s.storeWaveform(gen, domain.WaveformEnvelope{TrackID: track.ID, Amplitudes: amps}, true, true)
			return
		}
	}

	if s.analyzer == nil {
		s.storeWaveform(gen, waveform.FallbackEnvelope(track.ID), true, false)
		return
	}

	amps, err := s.analyzer.Analyze(ctx, track.Locator, durationMs)
	if ctx.Err() != nil {
		log.Debug("waveform job cancelled")
		return
	}
	if err != nil {
		log.Debug("waveform analysis failed", slog.Any("error", err))
		s.storeWaveform(gen, waveform.FallbackEnvelope(track.ID), true, false)
		return
	}

	if s.cache != nil && s.loadGen.Load() == gen {
		if err := s.cache.Put(ctx, track.ID, amps); err != nil {
			log.Warn("waveform cache write failed", slog.Any("error", err))
		}
	}
	s.storeWaveform(gen, domain.WaveformEnvelope{TrackID: track.ID, Amplitudes: amps}, true, false)
}

// storeWaveform installs env if gen is still the current load.
func (s *PlaybackService) storeWaveform(gen uint64, env domain.WaveformEnvelope, announce, cached bool) {
	s.waveMu.Lock()
	defer s.waveMu.Unlock()

	if s.loadGen.Load() != gen {
		return
	}
	stored := env.Clone()
	s.waveform.Store(&stored)
	if announce && s.bus != nil && s.bus.HasSubscribers(domain.EventWaveformReady) {
		s.bus.Publish(domain.NewWaveformReadyEvent(stored.Clone(), cached))
	}
}

func (s *PlaybackService) publishEvent(e domain.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}

// Shutdown stops polling and waveform jobs, waits for them, then stops and
// releases the engine. Calling it again does nothing.
func (s *PlaybackService) Shutdown() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	// Stop the poll loop first (without cmdMu, to avoid waiting behind a command)
	s.loopMu.Lock()
	if s.pollCancel != nil {
		s.pollCancel()
	}
	s.loopMu.Unlock()
	s.baseCancel()

	s.pollWg.Wait()
	s.waitForEngineRead()

	if s.bus != nil {
		for _, id := range s.flagSubs {
			s.bus.Unsubscribe(id)
		}
	}

	// Let any in-flight command finish before touching the engine
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	s.jobWg.Wait()

	var errs []error
	if err := s.engine.Stop(); err != nil && !errors.Is(err, domain.ErrNoSource) {
		errs = append(errs, err)
	}
	s.engine.SetCompletionHandler(nil)
	if err := s.engine.Release(); err != nil {
		errs = append(errs, err)
	}

	s.logger.Debug("playback service shut down")
	return errors.Join(errs...)
}

// waitForEngineRead gives an in-flight engine read readDrainTimeout to return.
// A read that hangs longer is abandoned; the engine is released under it.
func (s *PlaybackService) waitForEngineRead() {
	done := make(chan struct{})
	go func() {
		s.readWg.Wait()
		close(done)
	}()

	timer := time.NewTimer(s.readDrainTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		s.logger.Warn("abandoning engine read that did not return",
			slog.Duration("waited", s.readDrainTimeout))
	}
}
