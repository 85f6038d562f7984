package logger

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"sync"
)

// NewTestLogger returns a logger for tests. It discards everything below WARN;
// set TUNE_TEST_DEBUG to see debug output on stdout.
func NewTestLogger() *slog.Logger {
	if os.Getenv("TUNE_TEST_DEBUG") != "" {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// Capture collects log output so tests can assert on it.
type Capture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// NewCaptureLogger returns a text logger at level writing into the returned Capture.
func NewCaptureLogger(level slog.Level) (*slog.Logger, *Capture) {
	c := &Capture{}
	return slog.New(slog.NewTextHandler(c, &slog.HandlerOptions{Level: level})), c
}

func (c *Capture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

// String returns everything logged so far.
func (c *Capture) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}
