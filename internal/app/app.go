// Package app provides application-level orchestration and dependency injection.
// This package wires together all components and manages the application lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/tejashwikalptaru/gotune-core/internal/adapter/audio/mock"
	"github.com/tejashwikalptaru/gotune-core/internal/adapter/audio/speaker"
	"github.com/tejashwikalptaru/gotune-core/internal/adapter/decoder"
	"github.com/tejashwikalptaru/gotune-core/internal/adapter/eventbus"
	"github.com/tejashwikalptaru/gotune-core/internal/adapter/repository/memory"
	"github.com/tejashwikalptaru/gotune-core/internal/adapter/repository/sqlite"
	"github.com/tejashwikalptaru/gotune-core/internal/adapter/repository/tagfile"
	"github.com/tejashwikalptaru/gotune-core/internal/config"
	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/logger"
	"github.com/tejashwikalptaru/gotune-core/internal/ports"
	"github.com/tejashwikalptaru/gotune-core/internal/service"
	"github.com/tejashwikalptaru/gotune-core/internal/waveform"
)

// Application is the root application structure that holds all dependencies.
// It follows the Dependency Injection pattern with constructor-based injection.
//
// The Application struct is responsible for:
// - Creating and wiring all dependencies
// - Managing the application lifecycle (startup, shutdown)
// - Providing a clean entry point for the CLI
type Application struct {
	// Core dependencies
	logger *slog.Logger
	config Config

	// Infrastructure
	eventBus *eventbus.SyncEventBus
	engine   ports.MediaEngine
	decoder  *decoder.Decoder
	analyzer *waveform.Analyzer

	// Repositories
	catalog     *tagfile.Catalog
	cache       ports.WaveformCache
	resumeStore ports.ResumeStore
	db          *sqlite.WaveformCache // nil when storage is in memory

	// Services
	queueService    *service.QueueService
	playbackService *service.PlaybackService
	projector       *service.StateProjector

	shutdownOnce sync.Once
	shutdownErr  error
}

// Config holds application configuration.
type Config struct {
	// AppName is the display name
	AppName string

	// SampleRate is the speaker output rate
	SampleRate int

	// UseMockAudio selects the in-memory engine instead of the speaker
	UseMockAudio bool

	// PollInterval is how often the session reads the engine
	PollInterval time.Duration

	// WaveformDB is the sqlite file for waveforms and resume state; empty keeps both in memory
	WaveformDB string

	// LogLevel and LogFormat control logging
	LogLevel  slog.Level
	LogFormat string

	// Logger replaces the logger built from LogLevel and LogFormat (nil for production)
	Logger *slog.Logger
}

// DefaultConfig returns the default application configuration.
func DefaultConfig() Config {
	return FromSettings(config.Default())
}

// FromSettings derives the application configuration from loaded settings.
func FromSettings(s config.Config) Config {
	return Config{
		AppName:      "tune",
		SampleRate:   s.SampleRate,
		PollInterval: s.PollInterval,
		WaveformDB:   s.WaveformDB,
		LogLevel:     s.LogLevel,
		LogFormat:    s.LogFormat,
	}
}

// NewApplication creates a new application with all dependencies wired.
// This is the main dependency injection function.
func NewApplication(cfg Config) (*Application, error) {
	app := &Application{config: cfg}

	// Step 1: Create logger
	app.logger = cfg.Logger
	if app.logger == nil {
		app.logger = logger.NewLogger(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	}
	app.logger.Info("initializing application",
		slog.String("app_name", cfg.AppName),
		slog.String("version", GetVersionInfo().Version))

	// Step 2: Create an event bus
	app.eventBus = eventbus.NewSyncEventBus()
	app.eventBus.SetLogger(app.logger.With(slog.String("component", "eventbus")))

	// Step 3: Create repositories
	if cfg.WaveformDB != "" {
		db, err := sqlite.Open(cfg.WaveformDB, app.logger.With(slog.String("component", "sqlite")))
		if err != nil {
			return nil, fmt.Errorf("failed to open waveform database: %w", err)
		}
		app.db = db
		app.cache = db
		app.resumeStore = db.ResumeStore()
	} else {
		app.cache = memory.NewWaveformCache()
		app.resumeStore = memory.NewResumeStore()
	}

	app.decoder = decoder.New(app.logger)
	app.analyzer = waveform.NewAnalyzer(app.decoder, app.logger)
	app.catalog = tagfile.NewCatalog(app.decoder, app.logger)

	// Step 4: Create an audio engine
	if cfg.UseMockAudio {
		engine := mock.NewEngine()
		engine.SetLogger(app.logger.With(slog.String("engine", "mock")))
		app.engine = engine
	} else {
		engine, err := speaker.Open(cfg.SampleRate, app.logger)
		if err != nil {
			_ = app.db.Close()
			return nil, fmt.Errorf("failed to initialize audio engine: %w", err)
		}
		app.engine = engine
	}

	// Step 5: Create services (with dependency injection)
	app.queueService = service.NewQueueService(app.eventBus, app.logger)
	app.playbackService = service.NewPlaybackService(
		app.logger,
		app.engine,
		app.queueService,
		app.eventBus,
		service.PlaybackOptions{
			Catalog:      app.catalog,
			Cache:        app.cache,
			Analyzer:     app.analyzer,
			PollInterval: cfg.PollInterval,
		},
	)
	app.projector = service.NewStateProjector(app.eventBus, app.logger)

	return app, nil
}

// Start begins polling the engine.
func (a *Application) Start(ctx context.Context) error {
	return a.playbackService.Start(ctx)
}

// QueueOptions controls how Enqueue sets up the queue.
type QueueOptions struct {
	Shuffle bool
	Repeat  domain.RepeatMode
}

// Enqueue registers paths with the catalog and makes them the queue.
// Unreadable paths are skipped; their errors are returned alongside the tracks
// that were queued. The context is derived from the tracks' album and artist ids.
func (a *Application) Enqueue(ctx context.Context, paths []string, opts QueueOptions) ([]domain.Track, error) {
	tracks, err := a.catalog.Register(ctx, paths...)
	if len(tracks) == 0 {
		return nil, errors.Join(domain.ErrQueueEmpty, err)
	}

	a.queueService.SetShuffle(opts.Shuffle)
	a.queueService.SetRepeat(opts.Repeat)
	a.queueService.ReplaceQueue(tracks, queueContext(tracks))

	a.logger.Info("queue ready",
		slog.Int("tracks", len(tracks)),
		slog.Bool("shuffle", opts.Shuffle),
		slog.String("repeat", opts.Repeat.String()))
	return tracks, err
}

// queueContext names what the tracks have in common.
func queueContext(tracks []domain.Track) domain.PlaylistContext {
	albums := lo.Uniq(lo.Map(tracks, func(t domain.Track, _ int) string { return t.AlbumID }))
	if len(albums) == 1 && albums[0] != "" {
		return domain.AlbumContext(albums[0])
	}
	artists := lo.Uniq(lo.Map(tracks, func(t domain.Track, _ int) string { return t.ArtistID }))
	if len(artists) == 1 && artists[0] != "" {
		return domain.ArtistContext(artists[0])
	}
	return domain.AllTracksContext()
}

// Begin starts playback of the queue. With resume set, a saved state whose
// track is queued is restored; otherwise the first track in the active order plays.
func (a *Application) Begin(ctx context.Context, resume bool) error {
	if resume {
		restored, err := a.loadSavedState(ctx)
		if err != nil {
			// Non-fatal - just log and continue
			a.logger.Warn("failed to load saved state", slog.Any("error", err))
		}
		if restored {
			return nil
		}
	}
	return a.playbackService.Next(ctx)
}

// loadSavedState restores the session from the previous run.
func (a *Application) loadSavedState(ctx context.Context) (bool, error) {
	state, ok, err := a.resumeStore.Load(ctx)
	if err != nil || !ok {
		return false, err
	}
	if a.queueService.IndexOf(state.TrackID) < 0 {
		a.logger.Debug("saved track is not queued", slog.String("track_id", state.TrackID))
		return false, nil
	}

	// Resume playing; a paused save would otherwise leave the CLI silent
	state.IsPlaying = true
	if err := a.playbackService.Restore(ctx, state); err != nil {
		return false, fmt.Errorf("failed to restore %s: %w", state.TrackID, err)
	}
	a.logger.Info("resumed previous session",
		slog.String("track_id", state.TrackID),
		slog.Int64("position_ms", state.PositionMs))
	return true, nil
}

// saveState persists the current session state.
func (a *Application) saveState(ctx context.Context) error {
	state := a.playbackService.ResumeState()
	if state.TrackID == "" {
		return nil
	}
	if err := a.resumeStore.Save(ctx, state); err != nil {
		return fmt.Errorf("failed to save resume state: %w", err)
	}
	return nil
}

// Waveform returns the envelope for the file at path, from the cache when
// possible. cached reports whether the cache served it. Analysis failures
// return the synthetic envelope together with the error; they are not cached.
func (a *Application) Waveform(ctx context.Context, path string) (env domain.WaveformEnvelope, cached bool, err error) {
	tracks, err := a.catalog.Register(ctx, path)
	if err != nil {
		return domain.WaveformEnvelope{}, false, err
	}
	track := tracks[0]

	amps, ok, err := a.cache.Get(ctx, track.ID)
	if err != nil {
		a.logger.Warn("waveform cache read failed, treating as miss", slog.Any("error", err))
	}
	if ok {
		return domain.WaveformEnvelope{TrackID: track.ID, Amplitudes: amps}, true, nil
	}

	amps, err = a.analyzer.Analyze(ctx, track.Locator, track.DurationMs)
	if err != nil {
		return waveform.FallbackEnvelope(track.ID), false, err
	}
	if err := a.cache.Put(ctx, track.ID, amps); err != nil {
		a.logger.Warn("waveform cache write failed", slog.Any("error", err))
	}
	return domain.WaveformEnvelope{TrackID: track.ID, Amplitudes: amps}, false, nil
}

// CacheLen returns the number of cached waveforms.
func (a *Application) CacheLen(ctx context.Context) (int, error) {
	return a.cache.Len(ctx)
}

// GetServices returns the core services.
func (a *Application) GetServices() (*service.QueueService, *service.PlaybackService, *service.StateProjector) {
	return a.queueService, a.playbackService, a.projector
}

// GetEventBus returns the event bus.
func (a *Application) GetEventBus() ports.FilteringEventBus {
	return a.eventBus
}

// GetLogger returns the application logger.
func (a *Application) GetLogger() *slog.Logger {
	return a.logger
}

// Shutdown gracefully shuts down the application.
// It saves the session state and releases resources in reverse order of
// creation. Calling it again returns the first result.
func (a *Application) Shutdown() error {
	a.shutdownOnce.Do(func() {
		a.shutdownErr = a.shutdown()
	})
	return a.shutdownErr
}

func (a *Application) shutdown() error {
	a.logger.Info("shutting down application")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error

	// Save the current state
	if err := a.saveState(ctx); err != nil {
		a.logger.Warn("failed to save state", slog.Any("error", err))
		errs = append(errs, err)
	}

	// Shutdown services (in reverse order of creation)
	a.projector.Close()

	// The playback service owns the engine and releases it
	if err := a.playbackService.Shutdown(); err != nil {
		a.logger.Warn("failed to shutdown playback service", slog.Any("error", err))
		errs = append(errs, err)
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close waveform database", slog.Any("error", err))
			errs = append(errs, err)
		}
	}

	if err := a.eventBus.Close(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
