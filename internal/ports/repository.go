package ports

import (
	"context"

	"github.com/tejashwikalptaru/gotune-core/internal/domain"
)

// Catalog resolves track ids the session cannot find in the active queue.
// The catalog is owned elsewhere; the core only reads from it.
//
// Thread-safety: Implementations must be thread-safe.
type Catalog interface {
	// FindTrack looks up a track by id.
	// A missing track is reported as (zero, false, nil), not as an error.
	//
	// Returns an error only if the lookup itself fails.
	FindTrack(ctx context.Context, id string) (domain.Track, bool, error)
}

// WaveformCache is a passive key -> envelope store keyed by track id.
// It never computes on a miss: callers decide when to run the analyzer.
// Entries never expire.
//
// Thread-safety: Implementations must be thread-safe.
type WaveformCache interface {
	// Get returns a copy of the stored amplitudes.
	// A miss is reported as (nil, false, nil).
	Get(ctx context.Context, trackID string) ([]uint8, bool, error)

	// Put stores a copy of amplitudes, replacing any previous entry.
	Put(ctx context.Context, trackID string, amplitudes []uint8) error

	// Len returns the number of stored envelopes.
	Len(ctx context.Context) (int, error)
}

// ResumeStore persists the session's ResumeState between runs.
// The core only produces and consumes the value; where it lives is up to the implementation.
//
// Thread-safety: Implementations must be thread-safe.
type ResumeStore interface {
	// Save replaces the stored state.
	Save(ctx context.Context, state domain.ResumeState) error

	// Load returns the stored state.
	// Nothing saved yet is reported as (zero, false, nil).
	Load(ctx context.Context) (domain.ResumeState, bool, error)

	// Clear removes the stored state.
	Clear(ctx context.Context) error
}
