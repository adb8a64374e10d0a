// Package logging builds the per-component loggers used across eventlog.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects the shared log destination.
type Options struct {
	// File, when set, routes logs to a rotating file instead of stderr.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Writer returns the shared log sink for the given options.
func Writer(opts Options) io.Writer {
	if opts.File == "" {
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
	}
}

// New returns a logger with the given component prefix, e.g. "[syncd] ".
func New(w io.Writer, prefix string) *log.Logger {
	return log.New(w, prefix, log.LstdFlags)
}
