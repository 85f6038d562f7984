package waveform

import (
	"hash/fnv"

	"github.com/tejashwikalptaru/gotune-core/internal/domain"
)

const (
	fallbackPeriod = 20
	fallbackLow    = 24
	fallbackHigh   = 232
)

// Fallback returns the placeholder envelope shown when analysis is impossible:
// a triangle wave between 24 and 232 with a 20-bucket period. The phase is
// derived from seed, so the same track always gets the same placeholder.
func Fallback(seed string) []uint8 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(seed))
	phase := int(h.Sum32() % fallbackPeriod)

	out := make([]uint8, domain.WaveformLength)
	half := fallbackPeriod / 2
	for i := range out {
		pos := (i + phase) % fallbackPeriod
		dist := pos
		if pos > half {
			dist = fallbackPeriod - pos
		}
		out[i] = uint8(fallbackLow + (fallbackHigh-fallbackLow)*dist/half)
	}
	return out
}

// FallbackEnvelope wraps Fallback for trackID in a synthetic envelope.
func FallbackEnvelope(trackID string) domain.WaveformEnvelope {
	return domain.WaveformEnvelope{
		TrackID:    trackID,
		Amplitudes: Fallback(trackID),
		Synthetic:  true,
	}
}
