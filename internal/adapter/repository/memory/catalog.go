package memory

import (
	"context"
	"sync"

	"github.com/samber/lo"

	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/ports"
)

// Catalog implements ports.Catalog over a fixed set of tracks.
// Tracks keep their insertion order for All.
//
// Thread-safe: All operations protected by sync.RWMutex.
type Catalog struct {
	tracks map[string]domain.Track
	order  []string
	mu     sync.RWMutex
}

// NewCatalog creates a catalog holding tracks.
func NewCatalog(tracks ...domain.Track) *Catalog {
	c := &Catalog{
		tracks: make(map[string]domain.Track),
	}
	c.Add(tracks...)
	return c
}

// Add inserts or replaces tracks by id. Tracks without an id are skipped.
func (c *Catalog) Add(tracks ...domain.Track) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range tracks {
		if t.ID == "" {
			continue
		}
		if _, exists := c.tracks[t.ID]; !exists {
			c.order = append(c.order, t.ID)
		}
		c.tracks[t.ID] = t
	}
}

// Remove deletes a track. Unknown ids are ignored.
func (c *Catalog) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tracks[id]; !exists {
		return
	}
	delete(c.tracks, id)
	c.order = lo.Without(c.order, id)
}

// FindTrack looks up a track by id.
func (c *Catalog) FindTrack(ctx context.Context, id string) (domain.Track, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Track{}, false, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.tracks[id]
	return t, ok, nil
}

// All returns every track in insertion order.
func (c *Catalog) All() []domain.Track {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return lo.Map(c.order, func(id string, _ int) domain.Track {
		return c.tracks[id]
	})
}

// Len returns the number of tracks.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tracks)
}

// Verify interface implementation
var _ ports.Catalog = (*Catalog)(nil)
