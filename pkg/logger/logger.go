// Package logger configures the process-wide zerolog logger. Only
// cmd/ingest touches the package-level Log; every library package takes a
// zerolog.Logger at construction instead of reaching for a global.
package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Log is the process-wide logger. It starts disabled until Init runs so
// that importing this package never produces noisy default output.
var Log zerolog.Logger = zerolog.New(nil).Level(zerolog.Disabled)

// Init configures Log from the logging.level/logging.file configuration
// knobs. An empty file path logs to stderr with a human console
// writer; a non-empty path logs newline-delimited JSON to that file,
// creating parent directories as needed.
func Init(level string, file string) error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("logger: parse level %q: %w", level, err)
	}
	if level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var out *os.File
	var writer interface {
		Write(p []byte) (int, error)
	}
	if file == "" {
		writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000000"}
	} else {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return fmt.Errorf("logger: create log directory: %w", err)
		}
		out, err = os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("logger: open log file %q: %w", file, err)
		}
		writer = out
	}

	Log = zerolog.New(writer).Level(lvl).With().Timestamp().Logger()
	return nil
}

// Get returns the process-wide logger, for libraries that only accept a
// *zerolog.Logger rather than this package directly.
func Get() *zerolog.Logger {
	return &Log
}
