// Command tune plays audio files from the terminal and manages the waveform cache.
//
// Build:
//
//	go build -o build/tune ./cmd/tune
//
// Run:
//
//	./build/tune play --shuffle --repeat all song1.mp3 song2.flac
package main

import (
	"github.com/GiGurra/boa/pkg/boa"
	"github.com/spf13/cobra"

	"github.com/tejashwikalptaru/gotune-core/internal/app"
)

func main() {
	boa.CmdT[boa.NoParams]{
		Use:     "tune",
		Short:   "Terminal music player",
		Version: app.GetVersionInfo().FullString(),
		SubCmds: []*cobra.Command{
			PlayCmd(),
			WaveformCmd(),
			CacheCmd(),
		},
	}.Run()
}

func paramEnricher() boa.ParamEnricher {
	return boa.ParamEnricherCombine(
		boa.ParamEnricherBool,
		boa.ParamEnricherName,
		boa.ParamEnricherShort,
	)
}
