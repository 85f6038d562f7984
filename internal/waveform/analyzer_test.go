package waveform

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejashwikalptaru/gotune-core/internal/adapter/decoder"
	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/logger"
	"github.com/tejashwikalptaru/gotune-core/internal/ports"
	"github.com/tejashwikalptaru/gotune-core/internal/testutil"
)

// memStream serves frames from memory and can fail after a number of frames.
type memStream struct {
	rate   int
	frames [][2]float64
	pos    int
	failAt int
	err    error
	onRead func()
}

func (s *memStream) SampleRate() int { return s.rate }

func (s *memStream) Stream(samples [][2]float64) (int, bool) {
	if s.onRead != nil {
		s.onRead()
	}
	if s.failAt > 0 && s.pos >= s.failAt {
		s.err = errors.New("corrupt frame")
		return 0, false
	}
	if s.pos >= len(s.frames) {
		return 0, false
	}
	n := copy(samples, s.frames[s.pos:])
	s.pos += n
	return n, true
}

func (s *memStream) Err() error   { return s.err }
func (s *memStream) Close() error { return nil }

type memDecoder struct {
	stream *memStream
	err    error
}

func (d *memDecoder) Open(string) (ports.SampleStream, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.stream, nil
}

func newTestAnalyzer(dec ports.SampleDecoder) *Analyzer {
	return NewAnalyzer(dec, logger.NewTestLogger())
}

func assertEnvelopeShape(t *testing.T, amps []uint8) {
	t.Helper()
	require.Len(t, amps, domain.WaveformLength)
}

func TestAnalyze_RampPeaks(t *testing.T) {
	// 1000 frames at 1 kHz = 1000 ms, so 5 frames per bucket
	frames := make([][2]float64, 1000)
	for i := range frames {
		v := float64(i) / 999
		frames[i] = [2]float64{v, -v}
	}
	a := newTestAnalyzer(&memDecoder{stream: &memStream{rate: 1000, frames: frames}})

	amps, err := a.Analyze(context.Background(), "ramp", 1000)
	require.NoError(t, err)
	assertEnvelopeShape(t, amps)

	assert.Equal(t, uint8(0), amps[0])
	assert.Equal(t, uint8(255), amps[len(amps)-1])
	for i := 1; i < len(amps); i++ {
		assert.GreaterOrEqual(t, amps[i], amps[i-1], "ramp must not decrease at bucket %d", i)
	}
}

func TestAnalyze_ShortStreamLeavesTrailingZeros(t *testing.T) {
	// Catalog says 1000 ms but the stream only has the first half
	frames := make([][2]float64, 500)
	for i := range frames {
		frames[i] = [2]float64{0.8, 0.8}
	}
	a := newTestAnalyzer(&memDecoder{stream: &memStream{rate: 1000, frames: frames}})

	amps, err := a.Analyze(context.Background(), "short", 1000)
	require.NoError(t, err)
	assertEnvelopeShape(t, amps)

	assert.Equal(t, uint8(255), amps[0])
	assert.Equal(t, uint8(255), amps[99])
	assert.Equal(t, uint8(0), amps[100])
	assert.Equal(t, uint8(0), amps[199])
}

func TestAnalyze_FlatEnvelopeKeepsAbsoluteLevel(t *testing.T) {
	frames := make([][2]float64, 2000)
	for i := range frames {
		frames[i] = [2]float64{0.5, 0.25}
	}
	a := newTestAnalyzer(&memDecoder{stream: &memStream{rate: 1000, frames: frames}})

	amps, err := a.Analyze(context.Background(), "flat", 2000)
	require.NoError(t, err)
	for _, v := range amps {
		assert.Equal(t, uint8(128), v)
	}
}

func TestAnalyze_SilenceIsZero(t *testing.T) {
	a := newTestAnalyzer(&memDecoder{stream: &memStream{rate: 1000, frames: make([][2]float64, 400)}})

	amps, err := a.Analyze(context.Background(), "silence", 400)
	require.NoError(t, err)
	assertEnvelopeShape(t, amps)
	for _, v := range amps {
		assert.Equal(t, uint8(0), v)
	}
}

func TestAnalyze_FailuresReturnFallback(t *testing.T) {
	tests := []struct {
		name       string
		dec        *memDecoder
		durationMs int64
	}{
		{
			name:       "open error",
			dec:        &memDecoder{err: domain.ErrFileNotFound},
			durationMs: 1000,
		},
		{
			name:       "unsupported format",
			dec:        &memDecoder{err: domain.ErrUnsupportedFormat},
			durationMs: 1000,
		},
		{
			name:       "zero duration",
			dec:        &memDecoder{stream: &memStream{rate: 1000, frames: make([][2]float64, 10)}},
			durationMs: 0,
		},
		{
			name:       "negative duration",
			dec:        &memDecoder{stream: &memStream{rate: 1000, frames: make([][2]float64, 10)}},
			durationMs: -5,
		},
		{
			name: "decode error mid-stream",
			dec: &memDecoder{stream: &memStream{
				rate:   1000,
				frames: make([][2]float64, 1000),
				failAt: 300,
			}},
			durationMs: 1000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAnalyzer(tt.dec)

			amps, err := a.Analyze(context.Background(), "/music/broken.mp3", tt.durationMs)
			require.Error(t, err)
			assertEnvelopeShape(t, amps)
			assert.Equal(t, Fallback("/music/broken.mp3"), amps)
		})
	}
}

func TestAnalyze_CancelledBetweenBuckets(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := &memStream{rate: 1000, frames: make([][2]float64, 10000)}
	reads := 0
	stream.onRead = func() {
		reads++
		if reads == 3 {
			cancel()
		}
	}
	a := newTestAnalyzer(&memDecoder{stream: stream})

	amps, err := a.Analyze(ctx, "long", 10000)
	require.ErrorIs(t, err, context.Canceled)
	assertEnvelopeShape(t, amps)
	assert.Less(t, stream.pos, len(stream.frames), "decoding should stop early")
}

func TestAnalyze_RealWAV(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteWAV(t, dir, "ramp.wav", testutil.WAVSpec{
		SampleRate: 8000,
		Channels:   2,
		Frames:     8000,
		Amplitude:  testutil.Ramp(8000),
	})
	a := newTestAnalyzer(decoder.New(logger.NewTestLogger()))

	amps, err := a.Analyze(context.Background(), path, 1000)
	require.NoError(t, err)
	assertEnvelopeShape(t, amps)
	assert.Equal(t, uint8(255), amps[199])
	assert.Less(t, amps[0], uint8(5))

	_, err = a.Analyze(context.Background(), filepath.Join(dir, "missing.wav"), 1000)
	assert.ErrorIs(t, err, domain.ErrFileNotFound)
}

func TestFallback(t *testing.T) {
	a := Fallback("track-1")
	b := Fallback("track-1")
	c := Fallback("track-2")

	assertEnvelopeShape(t, a)
	assert.Equal(t, a, b, "fallback must be deterministic")

	for _, v := range a {
		assert.GreaterOrEqual(t, v, uint8(fallbackLow))
		assert.LessOrEqual(t, v, uint8(fallbackHigh))
	}
	for i := fallbackPeriod; i < len(a); i++ {
		assert.Equal(t, a[i-fallbackPeriod], a[i], "period must be %d", fallbackPeriod)
	}
	assert.Contains(t, a, uint8(fallbackLow))
	assert.Contains(t, a, uint8(fallbackHigh))
	assert.Len(t, c, domain.WaveformLength)
}

func TestFallbackEnvelope(t *testing.T) {
	env := FallbackEnvelope("x")
	assert.True(t, env.Synthetic)
	assert.Equal(t, "x", env.TrackID)
	assert.Equal(t, Fallback("x"), env.Amplitudes)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, []uint8{0, 128, 255}, normalize([]float64{0, 0.5, 1}))
	assert.Equal(t, []uint8{255, 255}, normalize([]float64{1.5, 1.5}), "flat values clamp at 255")
	assert.Empty(t, normalize(nil))
}
