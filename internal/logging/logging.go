// Package logging builds the process's zerolog.Logger. There is no package
// global: every component receives its logger through its constructor so
// tests can capture or silence output per case.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New builds a JSON logger at the given level, writing to w.
// level accepts zerolog's names (debug, info, warn, error); anything else
// falls back to info.
func New(level string, w io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}

	return zerolog.New(w).Level(parsed).With().Timestamp().Logger()
}

// NewDefault builds a logger writing to stderr, for process entrypoints.
func NewDefault(level string) zerolog.Logger {
	return New(level, os.Stderr)
}
