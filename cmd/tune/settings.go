package main

import (
	"fmt"
	"io"

	"github.com/tejashwikalptaru/gotune-core/internal/app"
	"github.com/tejashwikalptaru/gotune-core/internal/config"
)

// loadSettings reads envFile and the environment. Bad values are reported on
// stderr and replaced by their defaults.
func loadSettings(envFile string, stderr io.Writer) app.Config {
	settings, err := config.Load(envFile)
	if err != nil {
		fmt.Fprintf(stderr, "tune: %v\n", err)
		if settings == (config.Config{}) {
			settings, _ = config.FromEnv()
		}
	}
	return app.FromSettings(settings)
}

func formatMs(ms int64) string {
	secs := ms / 1000
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
