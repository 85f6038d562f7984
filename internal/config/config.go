// Package config loads runtime settings from the environment and an optional .env file.
package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/logger"
)

// Environment variable names.
const (
	EnvLogLevel     = "TUNE_LOG_LEVEL"
	EnvLogFormat    = "TUNE_LOG_FORMAT"
	EnvPollInterval = "TUNE_POLL_INTERVAL"
	EnvWaveformDB   = "TUNE_WAVEFORM_DB"
	EnvSampleRate   = "TUNE_SAMPLE_RATE"
)

// Defaults and limits.
const (
	DefaultPollInterval = 200 * time.Millisecond
	MinPollInterval     = 10 * time.Millisecond
	DefaultSampleRate   = 44100
)

// Config holds application configuration.
type Config struct {
	// Logging
	LogLevel  slog.Level
	LogFormat string // "text" or "json"

	// PollInterval is how often the session reads the engine
	PollInterval time.Duration

	// WaveformDB is the sqlite file for cached waveforms; empty keeps them in memory
	WaveformDB string

	// SampleRate is the speaker output rate
	SampleRate int
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		LogLevel:     slog.LevelInfo,
		LogFormat:    "text",
		PollInterval: DefaultPollInterval,
		SampleRate:   DefaultSampleRate,
	}
}

// Load reads the given .env files (".env" when none are given) and then the
// environment. Missing .env files are not an error, and variables already set
// in the environment win over .env values. Invalid values are reported as
// *domain.ValidationError.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (Config, error) {
	cfg := Default()
	cfg.LogLevel = logger.ParseLevel(os.Getenv(EnvLogLevel), cfg.LogLevel)
	cfg.WaveformDB = strings.TrimSpace(os.Getenv(EnvWaveformDB))

	var errs []error

	switch format := strings.ToLower(strings.TrimSpace(os.Getenv(EnvLogFormat))); format {
	case "":
	case "text", "json":
		cfg.LogFormat = format
	default:
		errs = append(errs, domain.NewValidationError(EnvLogFormat, format, "must be text or json"))
	}

	if v := strings.TrimSpace(os.Getenv(EnvPollInterval)); v != "" {
		d, err := time.ParseDuration(v)
		switch {
		case err != nil:
			errs = append(errs, domain.NewValidationError(EnvPollInterval, v, "not a duration"))
		case d < MinPollInterval:
			errs = append(errs, domain.NewValidationError(EnvPollInterval, v, "must be at least "+MinPollInterval.String()))
		default:
			cfg.PollInterval = d
		}
	}

	if v := strings.TrimSpace(os.Getenv(EnvSampleRate)); v != "" {
		rate, err := strconv.Atoi(v)
		if err != nil || rate <= 0 {
			errs = append(errs, domain.NewValidationError(EnvSampleRate, v, "must be a positive integer"))
		} else {
			cfg.SampleRate = rate
		}
	}

	return cfg, errors.Join(errs...)
}

// Logger returns the logger configuration for these settings.
func (c Config) Logger() logger.Config {
	return logger.Config{
		Level:  c.LogLevel,
		Format: c.LogFormat,
	}
}
