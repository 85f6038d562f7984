package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejashwikalptaru/gotune-core/internal/config"
	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/logger"
	"github.com/tejashwikalptaru/gotune-core/internal/testutil"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.UseMockAudio = true // Use mock for testing
	cfg.Logger = logger.NewTestLogger()
	return cfg
}

func writeTracks(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = testutil.WriteWAV(t, dir, name, testutil.WAVSpec{
			SampleRate: 8000,
			Frames:     8000,
			Amplitude:  testutil.Ramp(8000),
		})
	}
	return paths
}

func TestNewApplication(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	app, err := NewApplication(testConfig(t))
	require.NoError(t, err)
	require.NotNil(t, app)

	// Verify all services were created
	queue, playback, projector := app.GetServices()
	assert.NotNil(t, queue)
	assert.NotNil(t, playback)
	assert.NotNil(t, projector)

	// Verify event bus was created
	assert.NotNil(t, app.GetEventBus())
	assert.NotNil(t, app.GetLogger())

	// Cleanup
	assert.NoError(t, app.Shutdown())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "tune", cfg.AppName)
	assert.Equal(t, 44100, cfg.SampleRate)
	assert.Equal(t, config.DefaultPollInterval, cfg.PollInterval)
	assert.Empty(t, cfg.WaveformDB)
	assert.False(t, cfg.UseMockAudio)
}

func TestFromSettings(t *testing.T) {
	settings := config.Default()
	settings.SampleRate = 22050
	settings.WaveformDB = "/tmp/w.db"

	cfg := FromSettings(settings)
	assert.Equal(t, 22050, cfg.SampleRate)
	assert.Equal(t, "/tmp/w.db", cfg.WaveformDB)
}

func TestApplicationLifecycle(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	app, err := NewApplication(testConfig(t))
	require.NoError(t, err)
	require.NoError(t, app.Start(context.Background()))

	// Shutdown
	assert.NoError(t, app.Shutdown())

	// Shutdown again should not panic
	assert.NoError(t, app.Shutdown())
}

func TestEnqueueAndBegin(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)
	ctx := context.Background()

	app, err := NewApplication(testConfig(t))
	require.NoError(t, err)
	defer app.Shutdown()

	paths := writeTracks(t, "one.wav", "two.wav", "three.wav")
	tracks, err := app.Enqueue(ctx, paths, QueueOptions{Repeat: domain.RepeatAll})
	require.NoError(t, err)
	require.Len(t, tracks, 3)

	queue, playback, _ := app.GetServices()
	assert.Equal(t, 3, queue.Len())
	assert.Equal(t, domain.RepeatAll, queue.Repeat())
	assert.Equal(t, domain.ContextAllTracks, queue.Context().Kind)

	require.NoError(t, app.Begin(ctx, false))

	snap := playback.Snapshot()
	assert.Equal(t, tracks[0].ID, snap.TrackID())
	assert.Equal(t, "one", snap.CurrentTrack.Title)
	assert.Equal(t, domain.SessionReady, snap.State)
	assert.True(t, snap.IsPlaying)
}

func TestEnqueue_NothingReadable(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	app, err := NewApplication(testConfig(t))
	require.NoError(t, err)
	defer app.Shutdown()

	tracks, err := app.Enqueue(context.Background(), []string{"/no/such/file.mp3"}, QueueOptions{})
	assert.Empty(t, tracks)
	assert.ErrorIs(t, err, domain.ErrQueueEmpty)
	assert.ErrorIs(t, err, domain.ErrFileNotFound)
}

func TestResumeAcrossRuns(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)
	ctx := context.Background()

	cfg := testConfig(t)
	cfg.WaveformDB = filepath.Join(t.TempDir(), "tune.db")
	paths := writeTracks(t, "a.wav", "b.wav", "c.wav")

	// First run: move to the second track and quit
	first, err := NewApplication(cfg)
	require.NoError(t, err)
	tracks, err := first.Enqueue(ctx, paths, QueueOptions{})
	require.NoError(t, err)
	require.NoError(t, first.Begin(ctx, false))
	_, playback, _ := first.GetServices()
	require.NoError(t, playback.Next(ctx))
	require.NoError(t, first.Shutdown())

	// Second run: the same files resume at the second track
	second, err := NewApplication(cfg)
	require.NoError(t, err)
	defer second.Shutdown()
	_, err = second.Enqueue(ctx, paths, QueueOptions{})
	require.NoError(t, err)
	require.NoError(t, second.Begin(ctx, true))

	_, playback, _ = second.GetServices()
	snap := playback.Snapshot()
	assert.Equal(t, tracks[1].ID, snap.TrackID())
	assert.True(t, snap.IsPlaying)
}

func TestResumeIgnoresTracksOutsideQueue(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)
	ctx := context.Background()

	app, err := NewApplication(testConfig(t))
	require.NoError(t, err)
	defer app.Shutdown()

	require.NoError(t, app.resumeStore.Save(ctx, domain.ResumeState{TrackID: "elsewhere", IsPlaying: true}))

	tracks, err := app.Enqueue(ctx, writeTracks(t, "x.wav"), QueueOptions{})
	require.NoError(t, err)
	require.NoError(t, app.Begin(ctx, true))

	_, playback, _ := app.GetServices()
	assert.Equal(t, tracks[0].ID, playback.Snapshot().TrackID())
}

func TestWaveform(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)
	ctx := context.Background()

	cfg := testConfig(t)
	cfg.WaveformDB = filepath.Join(t.TempDir(), "tune.db")
	app, err := NewApplication(cfg)
	require.NoError(t, err)
	defer app.Shutdown()

	path := writeTracks(t, "ramp.wav")[0]

	env, cached, err := app.Waveform(ctx, path)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.False(t, env.Synthetic)
	require.Len(t, env.Amplitudes, domain.WaveformLength)
	assert.Equal(t, uint8(255), env.Amplitudes[domain.WaveformLength-1])

	again, cached, err := app.Waveform(ctx, path)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, env.Amplitudes, again.Amplitudes)

	n, err := app.CacheLen(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWaveform_UnreadableFile(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)
	ctx := context.Background()

	app, err := NewApplication(testConfig(t))
	require.NoError(t, err)
	defer app.Shutdown()

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("not audio"), 0o644))

	env, cached, err := app.Waveform(ctx, path)
	require.Error(t, err)
	assert.False(t, cached)
	assert.True(t, env.Synthetic)
	assert.Len(t, env.Amplitudes, domain.WaveformLength)

	n, err := app.CacheLen(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "fallback envelopes are not cached")
}

func TestQueueContext(t *testing.T) {
	sameAlbum := []domain.Track{{ID: "1", AlbumID: "al", ArtistID: "ar"}, {ID: "2", AlbumID: "al", ArtistID: "ar"}}
	assert.Equal(t, domain.AlbumContext("al"), queueContext(sameAlbum))

	sameArtist := []domain.Track{{ID: "1", AlbumID: "a1", ArtistID: "ar"}, {ID: "2", AlbumID: "a2", ArtistID: "ar"}}
	assert.Equal(t, domain.ArtistContext("ar"), queueContext(sameArtist))

	untagged := []domain.Track{{ID: "1"}, {ID: "2"}}
	assert.Equal(t, domain.AllTracksContext(), queueContext(untagged))
}

func TestVersionInfo(t *testing.T) {
	info := GetVersionInfo()
	assert.NotEmpty(t, info.Version)

	tagged := VersionInfo{Version: "dev", GitTag: "v1.2.0", GitCommit: "abc123", BuildTime: "today"}
	assert.Equal(t, "tune v1.2.0 (commit: abc123, built: today)", tagged.FullString())

	plain := VersionInfo{Version: "dev", GitCommit: "unknown", BuildTime: "unknown"}
	assert.Equal(t, "tune dev (commit: unknown, built: unknown)", plain.FullString())
}
