// Package waveform computes the fixed-length amplitude envelopes drawn behind the seek bar.
package waveform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/ports"
)

// readChunk caps the frames requested from the decoder per call.
const readChunk = 4096

// ErrInvalidDuration is returned for durations that leave no frames to bucket.
var ErrInvalidDuration = errors.New("duration must be positive")

// Analyzer decodes a track and reduces it to per-bucket peak amplitudes.
//
// Thread-safety: Analyzer is stateless between calls; concurrent Analyze calls
// each own their decode stream.
type Analyzer struct {
	decoder ports.SampleDecoder
	buckets int
	logger  *slog.Logger
}

// NewAnalyzer creates an analyzer producing domain.WaveformLength buckets.
func NewAnalyzer(decoder ports.SampleDecoder, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		decoder: decoder,
		buckets: domain.WaveformLength,
		logger:  logger.With(slog.String("service", "WaveformAnalyzer")),
	}
}

// Analyze returns the normalized peak envelope of locator.
//
// durationMs decides the bucket width: each bucket covers
// ceil(durationMs*sampleRate/1000 / buckets) frames, and buckets past the end
// of the stream stay at zero.
//
// The result always has domain.WaveformLength values. When err is non-nil the
// result is the synthetic Fallback for locator and must not be cached.
// Cancelling ctx aborts decoding between buckets.
func (a *Analyzer) Analyze(ctx context.Context, locator string, durationMs int64) ([]uint8, error) {
	amps, err := a.analyze(ctx, locator, durationMs)
	if err != nil {
		a.logger.Debug("waveform analysis failed, using fallback",
			slog.String("locator", locator),
			slog.Any("error", err))
		return Fallback(locator), err
	}
	return amps, nil
}

func (a *Analyzer) analyze(ctx context.Context, locator string, durationMs int64) ([]uint8, error) {
	if durationMs <= 0 {
		return nil, ErrInvalidDuration
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stream, err := a.decoder.Open(locator)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	sampleRate := int64(stream.SampleRate())
	totalFrames := durationMs * sampleRate / 1000
	if totalFrames <= 0 {
		return nil, fmt.Errorf("%w: %d ms at %d Hz", ErrInvalidDuration, durationMs, sampleRate)
	}
	perBucket := (totalFrames + int64(a.buckets) - 1) / int64(a.buckets)

	peaks := make([]float64, a.buckets)
	buf := make([][2]float64, min(perBucket, readChunk))

	var frame int64
	bucket := 0
	for bucket < a.buckets {
		// Never read across a bucket boundary so cancellation is checked per bucket
		want := min(int64(len(buf)), (int64(bucket)+1)*perBucket-frame)
		n, ok := stream.Stream(buf[:want])
		for _, s := range buf[:n] {
			peaks[bucket] = max(peaks[bucket], math.Abs(s[0]), math.Abs(s[1]))
		}
		frame += int64(n)

		if !ok {
			if err := stream.Err(); err != nil {
				return nil, fmt.Errorf("decode %s at frame %d: %w", locator, frame, err)
			}
			break
		}

		if next := int(frame / perBucket); next != bucket {
			bucket = next
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	}

	return normalize(peaks), nil
}

// normalize maps peaks onto 0..255 with min-max scaling across buckets.
// A flat envelope has no range to stretch and keeps its absolute level instead.
func normalize(peaks []float64) []uint8 {
	out := make([]uint8, len(peaks))
	if len(peaks) == 0 {
		return out
	}

	lo, hi := peaks[0], peaks[0]
	for _, p := range peaks[1:] {
		lo = min(lo, p)
		hi = max(hi, p)
	}

	span := hi - lo
	for i, p := range peaks {
		var v float64
		if span <= 1e-9 {
			v = p * 255
		} else {
			v = (p - lo) / span * 255
		}
		out[i] = uint8(math.Round(math.Max(0, math.Min(255, v))))
	}
	return out
}
