// Package decoder turns audio files into sample streams for waveform analysis and playback.
// WAV files are read with go-audio/wav; MP3, FLAC and Ogg Vorbis go through the beep decoders.
package decoder

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/ports"
)

// Format identifies a supported container by file extension.
type Format int

const (
	FormatUnknown Format = iota
	FormatWAV
	FormatMP3
	FormatFLAC
	FormatVorbis
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatWAV:
		return "wav"
	case FormatMP3:
		return "mp3"
	case FormatFLAC:
		return "flac"
	case FormatVorbis:
		return "vorbis"
	default:
		return "unknown"
	}
}

// DetectFormat maps a locator's extension to a Format.
func DetectFormat(locator string) Format {
	switch strings.ToLower(filepath.Ext(locator)) {
	case ".wav", ".wave":
		return FormatWAV
	case ".mp3":
		return FormatMP3
	case ".flac":
		return FormatFLAC
	case ".ogg", ".oga":
		return FormatVorbis
	default:
		return FormatUnknown
	}
}

// IsSupported reports whether locator has a decodable extension.
func IsSupported(locator string) bool {
	return DetectFormat(locator) != FormatUnknown
}

// Decoder opens local files as sample streams.
//
// Thread-safety: Decoder holds no per-call state and may be shared.
// Each returned stream belongs to a single goroutine.
type Decoder struct {
	logger *slog.Logger
}

// New creates a decoder.
func New(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{logger: logger}
}

// Open opens locator and returns a stream positioned at the first frame.
func (d *Decoder) Open(locator string) (ports.SampleStream, error) {
	format := DetectFormat(locator)
	if format == FormatUnknown {
		return nil, fmt.Errorf("open %s: %w", locator, domain.ErrUnsupportedFormat)
	}

	file, err := openFile(locator)
	if err != nil {
		return nil, err
	}

	var stream ports.SampleStream
	switch format {
	case FormatWAV:
		stream, err = newWAVStream(file)
	default:
		stream, err = newBeepStream(file, format)
	}
	if err != nil {
		_ = file.Close()
		return nil, domain.NewAudioEngineError("decode", locator, "failed to read "+format.String()+" header", err)
	}

	d.logger.Debug("stream opened",
		slog.String("locator", locator),
		slog.String("format", format.String()),
		slog.Int("sample_rate", stream.SampleRate()))
	return stream, nil
}

// Duration returns the playable length of locator.
func (d *Decoder) Duration(locator string) (time.Duration, error) {
	format := DetectFormat(locator)
	if format == FormatUnknown {
		return 0, fmt.Errorf("duration %s: %w", locator, domain.ErrUnsupportedFormat)
	}

	file, err := openFile(locator)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	if format == FormatWAV {
		return wavDuration(file)
	}

	streamer, f, err := decodeBeep(file, format)
	if err != nil {
		return 0, domain.NewAudioEngineError("duration", locator, "failed to read "+format.String()+" header", err)
	}
	defer streamer.Close()
	return f.SampleRate.D(streamer.Len()), nil
}

func openFile(locator string) (*os.File, error) {
	if locator == "" {
		return nil, domain.ErrInvalidFilePath
	}
	file, err := os.Open(locator)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", locator, domain.ErrFileNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", locator, err)
	}
	return file, nil
}

// Verify that Decoder implements the SampleDecoder interface
var _ ports.SampleDecoder = (*Decoder)(nil)
