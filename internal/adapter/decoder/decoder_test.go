package decoder

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/logger"
	"github.com/tejashwikalptaru/gotune-core/internal/testutil"
)

func newTestDecoder() *Decoder {
	return New(logger.NewTestLogger())
}

func drain(t *testing.T, d *Decoder, path string) [][2]float64 {
	t.Helper()
	stream, err := d.Open(path)
	require.NoError(t, err)
	defer stream.Close()

	var out [][2]float64
	buf := make([][2]float64, 512)
	for {
		n, ok := stream.Stream(buf)
		out = append(out, buf[:n]...)
		if !ok {
			break
		}
	}
	require.NoError(t, stream.Err())
	return out
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"/a/song.wav", FormatWAV},
		{"/a/SONG.WAV", FormatWAV},
		{"/a/song.mp3", FormatMP3},
		{"/a/song.flac", FormatFLAC},
		{"/a/song.ogg", FormatVorbis},
		{"/a/song.oga", FormatVorbis},
		{"/a/song.mod", FormatUnknown},
		{"/a/song", FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.path))
			assert.Equal(t, tt.want != FormatUnknown, IsSupported(tt.path))
		})
	}
}

func TestOpen_MonoWAV(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteWAV(t, dir, "mono.wav", testutil.WAVSpec{
		SampleRate: 8000,
		Channels:   1,
		Frames:     2000,
		Amplitude:  testutil.Constant(0.5),
	})

	d := newTestDecoder()
	frames := drain(t, d, path)

	require.Len(t, frames, 2000)
	for _, f := range frames {
		assert.InDelta(t, 0.5, f[0], 0.001)
		assert.Equal(t, f[0], f[1], "mono should be duplicated")
	}
}

func TestOpen_StereoWAV(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteWAV(t, dir, "stereo.wav", testutil.WAVSpec{
		SampleRate: 8000,
		Channels:   2,
		Frames:     1000,
		Amplitude: func(_, ch int) float64 {
			if ch == 0 {
				return 0.25
			}
			return -0.75
		},
	})

	stream, err := newTestDecoder().Open(path)
	require.NoError(t, err)
	defer stream.Close()

	assert.Equal(t, 8000, stream.SampleRate())

	buf := make([][2]float64, 100)
	n, ok := stream.Stream(buf)
	require.True(t, ok)
	require.Equal(t, 100, n)
	assert.InDelta(t, 0.25, buf[0][0], 0.001)
	assert.InDelta(t, -0.75, buf[0][1], 0.001)
}

func TestOpen_Errors(t *testing.T) {
	d := newTestDecoder()
	dir := t.TempDir()

	_, err := d.Open(filepath.Join(dir, "song.xyz"))
	assert.True(t, errors.Is(err, domain.ErrUnsupportedFormat))

	_, err = d.Open(filepath.Join(dir, "missing.wav"))
	assert.True(t, errors.Is(err, domain.ErrFileNotFound))

	_, err = d.Open("")
	assert.Error(t, err)

	garbage := filepath.Join(dir, "garbage.wav")
	require.NoError(t, os.WriteFile(garbage, []byte("definitely not riff data"), 0o644))
	_, err = d.Open(garbage)
	var engineErr *domain.AudioEngineError
	assert.True(t, errors.As(err, &engineErr))

	badMP3 := filepath.Join(dir, "garbage.mp3")
	require.NoError(t, os.WriteFile(badMP3, []byte{0, 1, 2, 3}, 0o644))
	_, err = d.Open(badMP3)
	assert.Error(t, err)
}

func TestDuration_WAV(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteWAV(t, dir, "two-seconds.wav", testutil.WAVSpec{
		SampleRate: 8000,
		Channels:   1,
		Frames:     16000,
		Amplitude:  func(i, _ int) float64 { return math.Sin(float64(i) / 10) },
	})

	got, err := newTestDecoder().Duration(path)
	require.NoError(t, err)
	assert.InDelta(t, float64(2*time.Second), float64(got), float64(10*time.Millisecond))
}

func TestOpenPlayback_WAV(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteWAV(t, dir, "play.wav", testutil.WAVSpec{
		SampleRate: 8000,
		Channels:   2,
		Frames:     4000,
		Amplitude:  testutil.Constant(0.1),
	})

	streamer, format, err := OpenPlayback(path)
	require.NoError(t, err)
	defer streamer.Close()

	assert.Equal(t, 8000, int(format.SampleRate))
	assert.Equal(t, 4000, streamer.Len())
	require.NoError(t, streamer.Seek(2000))
	assert.Equal(t, 2000, streamer.Position())
}
