package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/tejashwikalptaru/gotune-core/internal/app"
)

type WaveformParams struct {
	File  string `pos:"true" required:"true" help:"Audio file to analyze."`
	Width int    `short:"w" optional:"true" help:"Number of columns to draw." default:"50"`
	Env   string `short:"e" optional:"true" help:"Settings file to read before the environment." default:".env"`
}

func WaveformCmd() *cobra.Command {
	return boa.CmdT[WaveformParams]{
		Use:         "waveform",
		Short:       "Draw the waveform of an audio file",
		Long:        "Analyze FILE into its amplitude envelope and draw it. Envelopes are cached in TUNE_WAVEFORM_DB when it is set.",
		ParamEnrich: paramEnricher(),
		RunFunc: func(params *WaveformParams, cmd *cobra.Command, args []string) {
			exitCode := RunWaveform(cmd.Context(), params, os.Stdout, os.Stderr)
			os.Exit(exitCode)
		},
	}.ToCobra()
}

// RunWaveform prints the envelope of params.File.
func RunWaveform(ctx context.Context, params *WaveformParams, stdout, stderr io.Writer) int {
	if ctx == nil {
		ctx = context.Background()
	}
	if params.Width <= 0 {
		fmt.Fprintf(stderr, "waveform: width must be positive, got %d\n", params.Width)
		return 2
	}

	cfg := loadSettings(params.Env, stderr)
	cfg.UseMockAudio = true

	application, err := app.NewApplication(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "waveform: %v\n", err)
		return 1
	}
	defer application.Shutdown()

	env, cached, err := application.Waveform(ctx, params.File)
	if err != nil {
		fmt.Fprintf(stderr, "waveform: %v\n", err)
		return 1
	}

	source := "analyzed"
	if cached {
		source = "cached"
	}
	fmt.Fprintf(stdout, "%s (%s)\n", params.File, source)
	fmt.Fprintln(stdout, renderBars(env.Amplitudes, params.Width))
	return 0
}

var barLevels = []rune(" ▁▂▃▄▅▆▇█")

// renderBars draws amps in width columns, each column the peak of its bucket.
func renderBars(amps []uint8, width int) string {
	if len(amps) == 0 {
		return ""
	}
	size := (len(amps) + width - 1) / width
	columns := lo.Map(lo.Chunk(amps, size), func(bucket []uint8, _ int) rune {
		peak := int(lo.Max(bucket))
		return barLevels[peak*(len(barLevels)-1)/255]
	})
	var sb strings.Builder
	for _, r := range columns {
		sb.WriteRune(r)
	}
	return sb.String()
}
