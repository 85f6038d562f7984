package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/ports"
)

// ResumeStore implements ports.ResumeStore by keeping the last state as JSON,
// the same encoding a file or key-value backed store would write.
//
// Thread-safe: All operations protected by sync.RWMutex.
type ResumeStore struct {
	data []byte
	mu   sync.RWMutex
}

// NewResumeStore creates an empty store.
func NewResumeStore() *ResumeStore {
	return &ResumeStore{}
}

// resumeRecord is the serialized form of domain.ResumeState.
type resumeRecord struct {
	TrackID    string `json:"track_id"`
	IsPlaying  bool   `json:"is_playing"`
	PositionMs int64  `json:"position_ms"`
	Context    string `json:"context"`
	ContextID  string `json:"context_id,omitempty"`
}

var contextKinds = map[string]domain.ContextKind{
	domain.ContextNone.String():      domain.ContextNone,
	domain.ContextAllTracks.String(): domain.ContextAllTracks,
	domain.ContextAlbum.String():     domain.ContextAlbum,
	domain.ContextArtist.String():    domain.ContextArtist,
	domain.ContextSearch.String():    domain.ContextSearch,
}

// Save replaces the stored state.
func (r *ResumeStore) Save(ctx context.Context, state domain.ResumeState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(resumeRecord{
		TrackID:    state.TrackID,
		IsPlaying:  state.IsPlaying,
		PositionMs: state.PositionMs,
		Context:    state.Context.String(),
		ContextID:  state.ContextID,
	})
	if err != nil {
		return domain.NewRepositoryError("Save", "ResumeStore", "failed to marshal resume state", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = data
	return nil
}

// Load returns the stored state.
func (r *ResumeStore) Load(ctx context.Context) (domain.ResumeState, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.ResumeState{}, false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.data) == 0 {
		return domain.ResumeState{}, false, nil
	}

	var rec resumeRecord
	if err := json.Unmarshal(r.data, &rec); err != nil {
		return domain.ResumeState{}, false, domain.NewRepositoryError("Load", "ResumeStore", "failed to unmarshal resume state", err)
	}

	// Unknown kinds degrade to ContextNone
	return domain.ResumeState{
		TrackID:    rec.TrackID,
		IsPlaying:  rec.IsPlaying,
		PositionMs: rec.PositionMs,
		Context:    contextKinds[rec.Context],
		ContextID:  rec.ContextID,
	}, true, nil
}

// Clear removes the stored state.
func (r *ResumeStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = nil
	return nil
}

// Verify interface implementation
var _ ports.ResumeStore = (*ResumeStore)(nil)
