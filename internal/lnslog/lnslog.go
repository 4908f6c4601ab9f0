// Package lnslog configures the process-wide structured logger every other
// package logs through.
package lnslog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the process-global logger, replaced by Init at startup and read
// by every component that calls New before Init has run (it starts at
// InfoLevel writing to stderr, so a package imported for its side effects
// alone never logs into a void).
var Logger = zerolog.New(defaultWriter()).Level(zerolog.InfoLevel).With().Timestamp().Logger()

func defaultWriter() io.Writer {
	return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
}

// Init configures the global logger's verbosity and output. verbose maps to
// DebugLevel; otherwise InfoLevel, matching the `-v`/`--verbose` CLI flag.
func Init(verbose bool) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	Logger = zerolog.New(defaultWriter()).Level(level).With().Timestamp().Logger()
}

// For returns a child logger tagged with component, the convention every
// engine in this daemon uses to identify its log lines.
func For(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}
