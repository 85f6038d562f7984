package decoder

import (
	"errors"
	"fmt"
	"os"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"

	"github.com/tejashwikalptaru/gotune-core/internal/domain"
)

// beepStream adapts a beep streamer to ports.SampleStream. The shapes match,
// so frames are handed through unchanged.
type beepStream struct {
	file     *os.File
	streamer beep.StreamSeekCloser
	format   beep.Format
}

func newBeepStream(file *os.File, format Format) (*beepStream, error) {
	streamer, f, err := decodeBeep(file, format)
	if err != nil {
		return nil, err
	}
	return &beepStream{file: file, streamer: streamer, format: f}, nil
}

func decodeBeep(file *os.File, format Format) (beep.StreamSeekCloser, beep.Format, error) {
	switch format {
	case FormatMP3:
		return mp3.Decode(file)
	case FormatFLAC:
		return flac.Decode(file)
	case FormatVorbis:
		return vorbis.Decode(file)
	case FormatWAV:
		return wav.Decode(file)
	default:
		return nil, beep.Format{}, domain.ErrUnsupportedFormat
	}
}

func (s *beepStream) SampleRate() int {
	return int(s.format.SampleRate)
}

func (s *beepStream) Stream(samples [][2]float64) (int, bool) {
	return s.streamer.Stream(samples)
}

func (s *beepStream) Err() error {
	return s.streamer.Err()
}

// Close closes the streamer and the file. Some beep decoders close the file themselves.
func (s *beepStream) Close() error {
	err := s.streamer.Close()
	if cerr := s.file.Close(); cerr != nil && !errors.Is(cerr, os.ErrClosed) && err == nil {
		err = cerr
	}
	return err
}

// OpenPlayback opens locator as a seekable beep streamer for the speaker engine.
// Every supported format, WAV included, goes through beep here.
// Closing the streamer releases the file.
func OpenPlayback(locator string) (beep.StreamSeekCloser, beep.Format, error) {
	format := DetectFormat(locator)
	if format == FormatUnknown {
		return nil, beep.Format{}, fmt.Errorf("open %s: %w", locator, domain.ErrUnsupportedFormat)
	}

	file, err := openFile(locator)
	if err != nil {
		return nil, beep.Format{}, err
	}

	streamer, f, err := decodeBeep(file, format)
	if err != nil {
		_ = file.Close()
		return nil, beep.Format{}, domain.NewAudioEngineError("decode", locator, "failed to read "+format.String()+" header", err)
	}
	return &fileStreamer{StreamSeekCloser: streamer, file: file}, f, nil
}

// fileStreamer closes its backing file along with the decoder.
type fileStreamer struct {
	beep.StreamSeekCloser
	file *os.File
}

func (s *fileStreamer) Close() error {
	err := s.StreamSeekCloser.Close()
	if cerr := s.file.Close(); cerr != nil && !errors.Is(cerr, os.ErrClosed) && err == nil {
		err = cerr
	}
	return err
}
