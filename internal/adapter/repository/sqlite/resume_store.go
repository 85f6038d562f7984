package sqlite

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/ports"
)

const resumeRepoType = "SQLiteResumeStore"

// resumeSlot is the primary key of the single stored state.
const resumeSlot = 1

// resumeRow holds the last saved session state.
type resumeRow struct {
	ID         int    `gorm:"primaryKey;autoIncrement:false"`
	TrackID    string `gorm:"not null"`
	IsPlaying  bool
	PositionMs int64
	Context    int
	ContextID  string
	UpdatedAt  time.Time
}

func (resumeRow) TableName() string { return "resume_state" }

// ResumeStore implements ports.ResumeStore in the cache database.
type ResumeStore struct {
	db *gorm.DB
}

// ResumeStore returns the resume store sharing this cache's database.
func (c *WaveformCache) ResumeStore() *ResumeStore {
	return &ResumeStore{db: c.db}
}

// Save replaces the stored state.
func (r *ResumeStore) Save(ctx context.Context, state domain.ResumeState) error {
	row := resumeRow{
		ID:         resumeSlot,
		TrackID:    state.TrackID,
		IsPlaying:  state.IsPlaying,
		PositionMs: state.PositionMs,
		Context:    int(state.Context),
		ContextID:  state.ContextID,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return domain.NewRepositoryError("Save", resumeRepoType, "storing resume state", err)
	}
	return nil
}

// Load returns the stored state.
func (r *ResumeStore) Load(ctx context.Context) (domain.ResumeState, bool, error) {
	var row resumeRow
	err := r.db.WithContext(ctx).Where("id = ?", resumeSlot).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ResumeState{}, false, nil
	}
	if err != nil {
		return domain.ResumeState{}, false, domain.NewRepositoryError("Load", resumeRepoType, "querying resume state", err)
	}

	// Unknown kinds degrade to ContextNone
	kind := domain.RestoreContext(domain.ContextKind(row.Context), row.ContextID).Kind
	return domain.ResumeState{
		TrackID:    row.TrackID,
		IsPlaying:  row.IsPlaying,
		PositionMs: row.PositionMs,
		Context:    kind,
		ContextID:  row.ContextID,
	}, true, nil
}

// Clear removes the stored state.
func (r *ResumeStore) Clear(ctx context.Context) error {
	if err := r.db.WithContext(ctx).Delete(&resumeRow{}, resumeSlot).Error; err != nil {
		return domain.NewRepositoryError("Clear", resumeRepoType, "deleting resume state", err)
	}
	return nil
}

// Verify interface implementation
var _ ports.ResumeStore = (*ResumeStore)(nil)
