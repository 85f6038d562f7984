package decoder

import (
	"errors"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var errInvalidWAV = errors.New("invalid wav file")

// wavStream reads PCM frames through go-audio's decoder, one caller-sized buffer at a time.
type wavStream struct {
	file     *os.File
	dec      *wav.Decoder
	buf      *audio.IntBuffer
	channels int
	scale    float64
	unsigned bool
	err      error
}

func newWAVStream(file *os.File) (*wavStream, error) {
	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		if err := dec.Err(); err != nil {
			return nil, err
		}
		return nil, errInvalidWAV
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, err
	}

	channels := int(dec.NumChans)
	return &wavStream{
		file: file,
		dec:  dec,
		buf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: channels,
				SampleRate:  int(dec.SampleRate),
			},
			SourceBitDepth: int(dec.BitDepth),
		},
		channels: channels,
		scale:    float64(int(1) << (uint(dec.BitDepth) - 1)),
		unsigned: dec.BitDepth == 8,
	}, nil
}

func (s *wavStream) SampleRate() int {
	return int(s.dec.SampleRate)
}

// Stream converts interleaved integer PCM into [-1, 1] stereo frames.
// Channels beyond the second are ignored; mono is duplicated.
func (s *wavStream) Stream(samples [][2]float64) (int, bool) {
	if s.err != nil || len(samples) == 0 {
		return 0, false
	}

	want := len(samples) * s.channels
	if cap(s.buf.Data) < want {
		s.buf.Data = make([]int, want)
	}
	s.buf.Data = s.buf.Data[:want]

	n, err := s.dec.PCMBuffer(s.buf)
	if err != nil {
		s.err = err
		return 0, false
	}

	frames := n / s.channels
	if frames == 0 {
		return 0, false
	}

	for i := 0; i < frames; i++ {
		base := i * s.channels
		left := s.sample(s.buf.Data[base])
		right := left
		if s.channels > 1 {
			right = s.sample(s.buf.Data[base+1])
		}
		samples[i] = [2]float64{left, right}
	}
	return frames, true
}

func (s *wavStream) sample(v int) float64 {
	// 8-bit PCM is unsigned
	if s.unsigned {
		v -= 128
	}
	return float64(v) / s.scale
}

func (s *wavStream) Err() error {
	return s.err
}

func (s *wavStream) Close() error {
	return s.file.Close()
}

func wavDuration(file *os.File) (time.Duration, error) {
	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		if err := dec.Err(); err != nil {
			return 0, err
		}
		return 0, errInvalidWAV
	}
	return dec.Duration()
}
