// Package domain contains core business models and logic with no external dependencies.
// This package defines the queue, playback and waveform entities of the player core.
package domain

import (
	"fmt"
	"time"
)

// WaveformLength is the number of amplitude buckets in every waveform envelope.
const WaveformLength = 200

// Track represents a single playable item known to the catalog.
// Tracks are values: the core copies them around and never mutates them.
type Track struct {
	// ID is a unique, stable identifier for the track
	ID string

	// Title is the song title (from metadata or filename)
	Title string

	// Artist is the performing artist name
	Artist string

	// Album is the album name
	Album string

	// DurationMs is the catalog's idea of the track length in milliseconds
	DurationMs int64

	// Locator is the opaque resource reference handed to the engine and decoders (path or URI)
	Locator string

	// AlbumID and ArtistID are optional catalog ids used to build playlist contexts
	AlbumID  string
	ArtistID string
}

// Duration returns the catalog duration as a time.Duration.
func (t Track) Duration() time.Duration {
	return time.Duration(t.DurationMs) * time.Millisecond
}

// IsZero reports whether t is the zero Track.
func (t Track) IsZero() bool {
	return t.ID == ""
}

// Placeholder metadata shown for tracks that could not be resolved.
const (
	UnavailableTitle  = "Track unavailable"
	UnavailableArtist = "Unknown artist"
)

// UnavailableTrack builds the placeholder shown when id cannot be resolved.
// It keeps the requested id so observers can tell which request failed.
func UnavailableTrack(id string) Track {
	return Track{
		ID:     id,
		Title:  UnavailableTitle,
		Artist: UnavailableArtist,
	}
}

// IsUnavailable reports whether t is a placeholder built by UnavailableTrack.
func (t Track) IsUnavailable() bool {
	return t.Locator == "" && t.Title == UnavailableTitle && t.Artist == UnavailableArtist
}

// ContextKind discriminates the PlaylistContext variants.
type ContextKind int

const (
	// ContextNone means the queue was assembled ad hoc
	ContextNone ContextKind = iota

	// ContextAllTracks means the queue holds the whole library
	ContextAllTracks

	// ContextAlbum means the queue holds one album
	ContextAlbum

	// ContextArtist means the queue holds one artist's tracks
	ContextArtist

	// ContextSearch means the queue holds search results
	ContextSearch
)

// String returns a stable identifier for the kind.
func (k ContextKind) String() string {
	switch k {
	case ContextNone:
		return "none"
	case ContextAllTracks:
		return "all_tracks"
	case ContextAlbum:
		return "album"
	case ContextArtist:
		return "artist"
	case ContextSearch:
		return "search"
	default:
		return "unknown"
	}
}

// PlaylistContext describes how the queue was populated.
// It is descriptive only and never affects ordering or playback.
// Build values with the constructors below; the payload field that matters depends on Kind.
type PlaylistContext struct {
	Kind ContextKind

	// ID is the album or artist id for ContextAlbum and ContextArtist
	ID string

	// Query is the search text for ContextSearch
	Query string
}

// NoContext returns the None variant.
func NoContext() PlaylistContext { return PlaylistContext{Kind: ContextNone} }

// AllTracksContext returns the AllTracks variant.
func AllTracksContext() PlaylistContext { return PlaylistContext{Kind: ContextAllTracks} }

// AlbumContext returns the Album variant.
func AlbumContext(albumID string) PlaylistContext {
	return PlaylistContext{Kind: ContextAlbum, ID: albumID}
}

// ArtistContext returns the Artist variant.
func ArtistContext(artistID string) PlaylistContext {
	return PlaylistContext{Kind: ContextArtist, ID: artistID}
}

// SearchContext returns the Search variant.
func SearchContext(query string) PlaylistContext {
	return PlaylistContext{Kind: ContextSearch, Query: query}
}

// Payload returns the variant's payload: album/artist id, search query, or "".
func (c PlaylistContext) Payload() string {
	switch c.Kind {
	case ContextAlbum, ContextArtist:
		return c.ID
	case ContextSearch:
		return c.Query
	case ContextNone, ContextAllTracks:
		return ""
	default:
		return ""
	}
}

// Label returns the text a UI shows for the context.
func (c PlaylistContext) Label() string {
	switch c.Kind {
	case ContextNone:
		return ""
	case ContextAllTracks:
		return "All tracks"
	case ContextAlbum:
		return "Album: " + c.ID
	case ContextArtist:
		return "Artist: " + c.ID
	case ContextSearch:
		return fmt.Sprintf("Search: %q", c.Query)
	default:
		return ""
	}
}

// RestoreContext rebuilds a context from its persisted kind and payload.
func RestoreContext(kind ContextKind, payload string) PlaylistContext {
	switch kind {
	case ContextAllTracks:
		return AllTracksContext()
	case ContextAlbum:
		return AlbumContext(payload)
	case ContextArtist:
		return ArtistContext(payload)
	case ContextSearch:
		return SearchContext(payload)
	case ContextNone:
		return NoContext()
	default:
		return NoContext()
	}
}

// RepeatMode defines the repeat behavior.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatAll
	RepeatOne
)

// String returns the repeat mode name.
func (m RepeatMode) String() string {
	switch m {
	case RepeatOff:
		return "off"
	case RepeatAll:
		return "all"
	case RepeatOne:
		return "one"
	default:
		return "unknown"
	}
}

// Next returns the following mode in the Off -> All -> One -> Off cycle.
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatOff:
		return RepeatAll
	case RepeatAll:
		return RepeatOne
	default:
		return RepeatOff
	}
}

// ParseRepeatMode parses "off", "all" or "one".
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch s {
	case "off", "":
		return RepeatOff, nil
	case "all":
		return RepeatAll, nil
	case "one":
		return RepeatOne, nil
	default:
		return RepeatOff, NewValidationError("repeat", s, "must be off, all or one")
	}
}

// SessionState is the coarse playback session state.
type SessionState int

const (
	// SessionIdle means nothing is prepared in the engine
	SessionIdle SessionState = iota

	// SessionLoading means a source is being resolved or prepared
	SessionLoading

	// SessionReady means a source is prepared; IsPlaying tells playing from paused
	SessionReady
)

// String returns a human-readable representation of the session state.
func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionLoading:
		return "loading"
	case SessionReady:
		return "ready"
	default:
		return "unknown"
	}
}

// PlaybackSnapshot is the published read model of the session.
// Snapshots are immutable once published; a new value replaces the old one whole.
type PlaybackSnapshot struct {
	// CurrentTrack is the loaded track, a placeholder, or nil before the first load
	CurrentTrack *Track

	// PositionMs is the engine position, never negative
	PositionMs int64

	// DurationMs is never below 1 so consumers can divide by it
	DurationMs int64

	IsPlaying bool
	Context   PlaylistContext
	Shuffle   bool
	Repeat    RepeatMode
	State     SessionState

	// Tick increases by one for every published snapshot
	Tick uint64
}

// Progress returns the playback progress in [0, 1].
func (s PlaybackSnapshot) Progress() float64 {
	if s.DurationMs <= 0 {
		return 0
	}
	p := float64(s.PositionMs) / float64(s.DurationMs)
	if p > 1 {
		return 1
	}
	return p
}

// TrackID returns the current track id or "".
func (s PlaybackSnapshot) TrackID() string {
	if s.CurrentTrack == nil {
		return ""
	}
	return s.CurrentTrack.ID
}

// ClampDurationMs applies the never-zero duration rule.
func ClampDurationMs(ms int64) int64 {
	if ms < 1 {
		return 1
	}
	return ms
}

// WaveformEnvelope is the fixed-length amplitude summary of a track.
type WaveformEnvelope struct {
	TrackID string

	// Amplitudes always holds WaveformLength values
	Amplitudes []uint8

	// Synthetic marks generated placeholder envelopes
	Synthetic bool
}

// Clone returns a deep copy so observers cannot alias internal buffers.
func (w WaveformEnvelope) Clone() WaveformEnvelope {
	out := w
	if w.Amplitudes != nil {
		out.Amplitudes = append([]uint8(nil), w.Amplitudes...)
	}
	return out
}

// ResumeState is the plain state handed to an external persistence component
// and replayed into Load and SeekTo on cold start.
type ResumeState struct {
	TrackID    string
	IsPlaying  bool
	PositionMs int64
	Context    ContextKind
	ContextID  string
}
