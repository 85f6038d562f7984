package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejashwikalptaru/gotune-core/internal/adapter/eventbus"
	"github.com/tejashwikalptaru/gotune-core/internal/config"
	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/logger"
	"github.com/tejashwikalptaru/gotune-core/internal/service"
	"github.com/tejashwikalptaru/gotune-core/internal/testutil"
)

// isolate points the commands at a private settings file and database.
func isolate(t *testing.T) (envFile, db string) {
	t.Helper()
	dir := t.TempDir()
	db = filepath.Join(dir, "tune.db")
	t.Setenv(config.EnvLogLevel, "error")
	t.Setenv(config.EnvLogFormat, "")
	t.Setenv(config.EnvPollInterval, "20ms")
	t.Setenv(config.EnvSampleRate, "")
	t.Setenv(config.EnvWaveformDB, db)
	return filepath.Join(dir, "missing.env"), db
}

func rampFile(t *testing.T, name string) string {
	t.Helper()
	return testutil.WriteWAV(t, t.TempDir(), name, testutil.WAVSpec{
		SampleRate: 8000,
		Frames:     8000,
		Amplitude:  testutil.Ramp(8000),
	})
}

func TestRunWaveform(t *testing.T) {
	env, _ := isolate(t)
	path := rampFile(t, "ramp.wav")

	var stdout, stderr bytes.Buffer
	code := RunWaveform(context.Background(), &WaveformParams{File: path, Width: 50, Env: env}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "(analyzed)")
	assert.Equal(t, 50, len([]rune(lines[1])))
	assert.True(t, strings.HasSuffix(lines[1], "█"))

	// Second run is served by the database
	stdout.Reset()
	code = RunWaveform(context.Background(), &WaveformParams{File: path, Width: 50, Env: env}, &stdout, &stderr)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "(cached)")

	stdout.Reset()
	code = RunCache(context.Background(), &CacheParams{Env: env}, &stdout, &stderr)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "1 waveforms")
}

func TestRunWaveform_Errors(t *testing.T) {
	env, _ := isolate(t)

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, RunWaveform(context.Background(), &WaveformParams{File: "x.wav", Width: 0, Env: env}, &stdout, &stderr))
	assert.Equal(t, 1, RunWaveform(context.Background(), &WaveformParams{File: "/no/such.wav", Width: 10, Env: env}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "file not found")
}

func TestRunCache_NoDatabase(t *testing.T) {
	env, _ := isolate(t)
	t.Setenv(config.EnvWaveformDB, "")

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, RunCache(context.Background(), &CacheParams{Env: env}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), config.EnvWaveformDB)
}

func TestRunPlay_UntilCancelled(t *testing.T) {
	env, _ := isolate(t)
	path := rampFile(t, "first song.wav")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var stdout, stderr bytes.Buffer
	code := RunPlay(ctx, &PlayParams{Files: []string{path}, Repeat: "all", Mock: true, Env: env}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	assert.True(t, strings.HasPrefix(stdout.String(), "All tracks, 1 track\n"), stdout.String())
	assert.Contains(t, stdout.String(), "[1/1] first song\n")
	assert.Contains(t, stdout.String(), "playing")
	assert.Contains(t, stdout.String(), "repeat:all")
}

func TestRunPlay_Errors(t *testing.T) {
	env, _ := isolate(t)

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, RunPlay(context.Background(), &PlayParams{Files: []string{"a.wav"}, Repeat: "twice", Mock: true, Env: env}, &stdout, &stderr))
	assert.Equal(t, 1, RunPlay(context.Background(), &PlayParams{Files: []string{"/no/such.wav"}, Repeat: "off", Mock: true, Env: env}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "queue is empty")
}

func TestStatusPrinter(t *testing.T) {
	queue := service.NewQueueService(eventbus.NewSyncEventBus(), logger.NewTestLogger())
	tracks := []domain.Track{
		{ID: "a", Title: "Intro", Artist: "Band", AlbumID: "lp"},
		{ID: "b", Title: "Outro", AlbumID: "lp"},
	}
	queue.ReplaceQueue(tracks, domain.AlbumContext("lp"))

	var out bytes.Buffer
	p := statusPrinter{out: &out, queue: queue}
	p.header()

	queue.Select("b")
	second := tracks[1]
	p.show(domain.PlaybackSnapshot{CurrentTrack: &second, PositionMs: 1_000, DurationMs: 60_000, IsPlaying: true})
	p.show(domain.PlaybackSnapshot{CurrentTrack: &second, PositionMs: 1_000, DurationMs: 60_000, IsPlaying: true})

	outside := domain.Track{ID: "x", Title: "Elsewhere"}
	queue.Select("x")
	p.show(domain.PlaybackSnapshot{CurrentTrack: &outside, DurationMs: 1_000})
	p.finish()

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "Album: lp, 2 tracks", lines[0])
	assert.Equal(t, "[2/2] Outro", lines[1])
	assert.Contains(t, lines[2], "0:01 / 1:00  playing")
	assert.Equal(t, 1, strings.Count(lines[2], "\r"), "unchanged status is not rewritten")
	assert.Equal(t, "[-/2] Elsewhere", lines[3])
	assert.Contains(t, lines[4], "paused")
}

func TestRenderBars(t *testing.T) {
	assert.Equal(t, "", renderBars(nil, 10))
	assert.Equal(t, " █", renderBars([]uint8{0, 0, 255, 10}, 2))
	assert.Equal(t, "▄", renderBars([]uint8{128}, 1))
}

func TestFormatMs(t *testing.T) {
	assert.Equal(t, "0:00", formatMs(0))
	assert.Equal(t, "1:05", formatMs(65_000))
	assert.Equal(t, "61:01", formatMs(3_661_000))
}
