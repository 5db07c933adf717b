// Package logging builds the process-wide slog logger from the environment.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

type Config struct {
	Level       string // debug, info, warn, error
	Format      string // text or json
	Environment string
	AddSource   bool
}

// ConfigFromEnv reads LOG_LEVEL, LOG_FORMAT, ENVIRONMENT and LOG_ADD_SOURCE,
// filling the blanks with per-environment defaults.
func ConfigFromEnv() Config {
	cfg := Config{
		Level:       strings.ToLower(os.Getenv("LOG_LEVEL")),
		Format:      strings.ToLower(os.Getenv("LOG_FORMAT")),
		Environment: strings.ToLower(os.Getenv("ENVIRONMENT")),
		AddSource:   strings.EqualFold(os.Getenv("LOG_ADD_SOURCE"), "true"),
	}
	if cfg.Environment == "" {
		cfg.Environment = EnvDevelopment
	}

	switch cfg.Environment {
	case EnvProduction:
		if cfg.Format == "" {
			cfg.Format = "json"
		}
		if cfg.Level == "" {
			cfg.Level = "info"
		}
	default:
		if cfg.Format == "" {
			cfg.Format = "text"
		}
		if cfg.Level == "" {
			cfg.Level = "debug"
		}
	}
	return cfg
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a logger writing to w.
func New(cfg Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level), AddSource: cfg.AddSource}
	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With("env", cfg.Environment)
}

// Setup builds the logger from the environment and installs it as the default.
func Setup(component string) *slog.Logger {
	logger := New(ConfigFromEnv(), os.Stderr).With("component", component)
	slog.SetDefault(logger)
	return logger
}

// Discard is a logger for tests and optional collaborators.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
