//go:build !((linux && cgo) || windows || darwin)

package speaker

import (
	"errors"
	"log/slog"

	"github.com/tejashwikalptaru/gotune-core/internal/ports"
)

// Available indicates whether audio playback is supported in this build.
// Audio requires CGO for native sound libraries.
const Available = false

// ErrUnavailable is returned by Open when the build has no audio output.
var ErrUnavailable = errors.New("audio output requires a cgo build")

// Open reports that no speaker engine exists in this build. Use the mock engine instead.
func Open(int, *slog.Logger) (ports.MediaEngine, error) {
	return nil, ErrUnavailable
}
