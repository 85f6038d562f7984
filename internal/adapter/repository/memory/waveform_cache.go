// Package memory provides in-memory repository implementations.
// Contents live for the lifetime of the process.
package memory

import (
	"context"
	"sync"

	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/ports"
)

// WaveformCache implements ports.WaveformCache with a map.
// There is no eviction: entries stay until the process exits.
//
// Thread-safe: All operations protected by sync.RWMutex.
type WaveformCache struct {
	entries map[string][]uint8
	mu      sync.RWMutex
}

// NewWaveformCache creates an empty cache.
func NewWaveformCache() *WaveformCache {
	return &WaveformCache{
		entries: make(map[string][]uint8),
	}
}

// Get returns a copy of the envelope stored for trackID.
func (c *WaveformCache) Get(ctx context.Context, trackID string) ([]uint8, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	amps, ok := c.entries[trackID]
	if !ok {
		return nil, false, nil
	}
	return append([]uint8(nil), amps...), true, nil
}

// Put stores a copy of amplitudes under trackID.
func (c *WaveformCache) Put(ctx context.Context, trackID string, amplitudes []uint8) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if trackID == "" {
		return domain.NewValidationError("trackID", trackID, "track id cannot be empty")
	}
	if len(amplitudes) != domain.WaveformLength {
		return domain.NewValidationError("amplitudes", len(amplitudes), "envelope must have WaveformLength values")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[trackID] = append([]uint8(nil), amplitudes...)
	return nil
}

// Len returns the number of cached envelopes.
func (c *WaveformCache) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries), nil
}

// Verify interface implementation
var _ ports.WaveformCache = (*WaveformCache)(nil)
