// Package sqlite provides durable storage on SQLite through gorm: the waveform
// cache and the resume state share one database file.
// The pure-Go glebarez driver keeps the build free of cgo.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/ports"
)

// DefaultDBFile is used when no path is configured.
const DefaultDBFile = "waveforms.sqlite3"

const repoType = "SQLiteWaveformCache"

// waveformRow is one cached envelope.
type waveformRow struct {
	TrackID    string `gorm:"primaryKey;column:track_id"`
	Amplitudes []byte `gorm:"column:amplitudes;not null"`
	CreatedAt  time.Time
}

func (waveformRow) TableName() string { return "waveforms" }

// WaveformCache implements ports.WaveformCache on a SQLite file.
// Entries survive restarts and are never evicted.
//
// Thread-safety: gorm and database/sql handle concurrent use.
type WaveformCache struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open opens (and migrates) the cache at path, creating parent directories.
func Open(path string, logger *slog.Logger) (*WaveformCache, error) {
	if path == "" {
		path = DefaultDBFile
	}
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, domain.NewRepositoryError("Open", repoType, "creating db dir", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, domain.NewRepositoryError("Open", repoType, "opening sqlite db", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, domain.NewRepositoryError("Open", repoType, "getting sql.DB from gorm", err)
	}
	// SQLite serializes writers anyway
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&waveformRow{}, &resumeRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, domain.NewRepositoryError("Open", repoType, "auto migrate", err)
	}

	logger.Debug("waveform cache opened", slog.String("path", path))
	return &WaveformCache{db: db, logger: logger}, nil
}

// Get returns the envelope stored for trackID.
func (c *WaveformCache) Get(ctx context.Context, trackID string) ([]uint8, bool, error) {
	var row waveformRow
	err := c.db.WithContext(ctx).Where("track_id = ?", trackID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, domain.NewRepositoryError("Get", repoType, "querying waveform", err)
	}
	if len(row.Amplitudes) != domain.WaveformLength {
		// Written by an incompatible version; treat as a miss so it gets recomputed
		c.logger.Warn("discarding malformed cached waveform",
			slog.String("track_id", trackID),
			slog.Int("length", len(row.Amplitudes)))
		return nil, false, nil
	}
	return row.Amplitudes, true, nil
}

// Put stores amplitudes under trackID, replacing any previous entry.
func (c *WaveformCache) Put(ctx context.Context, trackID string, amplitudes []uint8) error {
	if trackID == "" {
		return domain.NewValidationError("trackID", trackID, "track id cannot be empty")
	}
	if len(amplitudes) != domain.WaveformLength {
		return domain.NewValidationError("amplitudes", len(amplitudes), "envelope must have WaveformLength values")
	}

	row := waveformRow{
		TrackID:    trackID,
		Amplitudes: append([]byte(nil), amplitudes...),
	}
	err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "track_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"amplitudes", "created_at"}),
	}).Create(&row).Error
	if err != nil {
		return domain.NewRepositoryError("Put", repoType, fmt.Sprintf("storing waveform for %s", trackID), err)
	}
	return nil
}

// Len returns the number of stored envelopes.
func (c *WaveformCache) Len(ctx context.Context) (int, error) {
	var n int64
	if err := c.db.WithContext(ctx).Model(&waveformRow{}).Count(&n).Error; err != nil {
		return 0, domain.NewRepositoryError("Len", repoType, "counting waveforms", err)
	}
	return int(n), nil
}

// Close closes the database.
func (c *WaveformCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Verify interface implementation
var _ ports.WaveformCache = (*WaveformCache)(nil)
