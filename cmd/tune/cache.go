package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/spf13/cobra"

	"github.com/tejashwikalptaru/gotune-core/internal/app"
	"github.com/tejashwikalptaru/gotune-core/internal/config"
)

type CacheParams struct {
	Env string `short:"e" optional:"true" help:"Settings file to read before the environment." default:".env"`
}

func CacheCmd() *cobra.Command {
	return boa.CmdT[CacheParams]{
		Use:         "cache",
		Short:       "Show the waveform cache",
		ParamEnrich: paramEnricher(),
		RunFunc: func(params *CacheParams, cmd *cobra.Command, args []string) {
			exitCode := RunCache(cmd.Context(), params, os.Stdout, os.Stderr)
			os.Exit(exitCode)
		},
	}.ToCobra()
}

// RunCache reports how many envelopes the configured database holds.
func RunCache(ctx context.Context, params *CacheParams, stdout, stderr io.Writer) int {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := loadSettings(params.Env, stderr)
	if cfg.WaveformDB == "" {
		fmt.Fprintf(stderr, "cache: no waveform database configured, set %s\n", config.EnvWaveformDB)
		return 1
	}
	cfg.UseMockAudio = true

	application, err := app.NewApplication(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "cache: %v\n", err)
		return 1
	}
	defer application.Shutdown()

	n, err := application.CacheLen(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "cache: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "%s: %d waveforms\n", cfg.WaveformDB, n)
	return 0
}
