package testutil

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVSpec describes a 16-bit PCM fixture.
type WAVSpec struct {
	SampleRate int
	Channels   int

	// Frames is the number of sample frames to write
	Frames int

	// Amplitude returns the sample in [-1, 1] for frame i and channel ch
	Amplitude func(i, ch int) float64
}

// WriteWAV encodes fx into dir/name and returns the path.
func WriteWAV(t *testing.T, dir, name string, fx WAVSpec) string {
	t.Helper()

	if fx.SampleRate == 0 {
		fx.SampleRate = 8000
	}
	if fx.Channels == 0 {
		fx.Channels = 1
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav fixture: %v", err)
	}
	defer f.Close()

	data := make([]int, fx.Frames*fx.Channels)
	for i := 0; i < fx.Frames; i++ {
		for ch := 0; ch < fx.Channels; ch++ {
			v := 0.0
			if fx.Amplitude != nil {
				v = fx.Amplitude(i, ch)
			}
			data[i*fx.Channels+ch] = int(math.Round(clamp(v) * math.MaxInt16))
		}
	}

	enc := wav.NewEncoder(f, fx.SampleRate, 16, fx.Channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: fx.Channels, SampleRate: fx.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode wav fixture: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close wav encoder: %v", err)
	}
	return path
}

// Ramp returns an amplitude function rising linearly from 0 to 1 across frames.
func Ramp(frames int) func(i, ch int) float64 {
	return func(i, _ int) float64 {
		if frames <= 1 {
			return 1
		}
		return float64(i) / float64(frames-1)
	}
}

// Constant returns an amplitude function with a fixed level.
func Constant(level float64) func(i, ch int) float64 {
	return func(int, int) float64 { return level }
}

func clamp(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
