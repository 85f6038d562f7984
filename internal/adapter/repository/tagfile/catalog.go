// Package tagfile builds a catalog from audio files by reading their embedded tags.
// Only paths handed to Register are read; directories are never walked.
package tagfile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/google/uuid"

	"github.com/tejashwikalptaru/gotune-core/internal/adapter/repository/memory"
	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/ports"
)

// DurationReader measures the playable length of a file.
type DurationReader interface {
	Duration(locator string) (time.Duration, error)
}

// Catalog resolves tracks registered from local files.
//
// Track ids are name-based UUIDs of the absolute path, so the same file gets
// the same id across runs and cached waveforms stay valid.
//
// Thread-safe: lookups go through the embedded memory catalog.
type Catalog struct {
	durations DurationReader
	tracks    *memory.Catalog
	logger    *slog.Logger
}

// NewCatalog creates an empty catalog. durations may be nil, leaving track durations at 0.
func NewCatalog(durations DurationReader, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		durations: durations,
		tracks:    memory.NewCatalog(),
		logger:    logger.With(slog.String("service", "TagCatalog")),
	}
}

// TrackID returns the stable id for the file at path.
func TrackID(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(path))).String()
}

func groupID(kind string, parts ...string) string {
	if strings.Join(parts, "") == "" {
		return ""
	}
	key := kind + ":" + strings.ToLower(strings.Join(parts, "\x00"))
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

// Register reads each path and adds it to the catalog, in order.
// Files that cannot be read are skipped; their errors are joined into the returned error.
func (c *Catalog) Register(ctx context.Context, paths ...string) ([]domain.Track, error) {
	var (
		added []domain.Track
		errs  []error
	)
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return added, err
		}

		track, err := c.readTrack(p)
		if err != nil {
			c.logger.Warn("skipping unreadable file", slog.String("path", p), slog.Any("error", err))
			errs = append(errs, err)
			continue
		}
		c.tracks.Add(track)
		added = append(added, track)
	}
	return added, errors.Join(errs...)
}

func (c *Catalog) readTrack(path string) (domain.Track, error) {
	if path == "" {
		return domain.Track{}, domain.ErrInvalidFilePath
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return domain.Track{}, fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if errors.Is(err, os.ErrNotExist) {
		return domain.Track{}, fmt.Errorf("%s: %w", path, domain.ErrFileNotFound)
	}
	if err != nil {
		return domain.Track{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return domain.Track{}, fmt.Errorf("%s is a directory: %w", path, domain.ErrInvalidFilePath)
	}

	// Base track from the filename
	track := domain.Track{
		ID:      TrackID(abs),
		Title:   strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs)),
		Locator: abs,
	}

	c.applyTags(&track)
	track.AlbumID = groupID("album", track.Artist, track.Album)
	track.ArtistID = groupID("artist", track.Artist)

	if c.durations != nil {
		if d, err := c.durations.Duration(abs); err == nil {
			track.DurationMs = d.Milliseconds()
		} else {
			c.logger.Debug("reading duration failed", slog.String("path", abs), slog.Any("error", err))
		}
	}
	return track, nil
}

// applyTags overlays embedded metadata. Files without tags keep the filename title.
func (c *Catalog) applyTags(track *domain.Track) {
	file, err := os.Open(track.Locator)
	if err != nil {
		return
	}
	defer file.Close()

	metadata, err := tag.ReadFrom(file)
	if err != nil || metadata == nil {
		return
	}

	if title := strings.TrimSpace(metadata.Title()); title != "" {
		track.Title = title
	}
	if artist := strings.TrimSpace(metadata.Artist()); artist != "" {
		track.Artist = artist
	}
	if album := strings.TrimSpace(metadata.Album()); album != "" {
		track.Album = album
	}
}

// FindTrack looks up a registered track by id.
func (c *Catalog) FindTrack(ctx context.Context, id string) (domain.Track, bool, error) {
	return c.tracks.FindTrack(ctx, id)
}

// Tracks returns every registered track in registration order.
func (c *Catalog) Tracks() []domain.Track {
	return c.tracks.All()
}

// Verify interface implementation
var _ ports.Catalog = (*Catalog)(nil)
