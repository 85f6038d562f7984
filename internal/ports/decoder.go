package ports

// SampleStream yields decoded stereo frames in [-1, 1].
// Mono sources repeat the sample in both channels.
// The shape follows beep.Streamer so beep decoders fit without copying.
type SampleStream interface {
	// SampleRate returns frames per second.
	SampleRate() int

	// Stream fills samples and returns the number of frames written.
	// ok is false once the stream is drained or failed; check Err afterwards.
	Stream(samples [][2]float64) (n int, ok bool)

	// Err returns the decode error that stopped the stream, if any.
	Err() error

	// Close releases the underlying file.
	Close() error
}

// SampleDecoder opens locators as sample streams.
type SampleDecoder interface {
	// Open returns a stream positioned at the first frame.
	// Unknown formats yield domain.ErrUnsupportedFormat.
	Open(locator string) (SampleStream, error)
}
