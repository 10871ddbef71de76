// logger.go - Structured logging setup for the treasury daemon.
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// newLogger builds the daemon's zerolog root logger from a config level
// string. Unknown levels fall back to info.
func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
