// Package logging builds the prefixed loggers used across svsync.
//
// Every component gets its own *log.Logger with a bracketed prefix. All of
// them share one writer: stderr, optionally teed into a size-rotated log
// file.
package logging

import (
	"io"
	"log"
	"os"

	"github.com/diddy-rotations/svsync/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Factory hands out loggers that share a single output.
type Factory struct {
	out     io.Writer
	flags   int
	rotator *lumberjack.Logger
}

// New creates a Factory from the [log] section. With an empty File only
// stderr receives output.
func New(cfg config.LogConfig) *Factory {
	return newFactory(os.Stderr, cfg)
}

func newFactory(stderr io.Writer, cfg config.LogConfig) *Factory {
	f := &Factory{out: stderr, flags: log.LstdFlags}
	if cfg.File == "" {
		return f
	}

	f.rotator = &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	f.out = io.MultiWriter(stderr, f.rotator)
	return f
}

// Logger returns a logger with the given component name as its prefix,
// e.g. "daemon" yields "[daemon] ".
func (f *Factory) Logger(component string) *log.Logger {
	prefix := ""
	if component != "" {
		prefix = "[" + component + "] "
	}
	return log.New(f.out, prefix, f.flags)
}

// Writer returns the shared output.
func (f *Factory) Writer() io.Writer {
	return f.out
}

// Close flushes and closes the log file, if any.
func (f *Factory) Close() error {
	if f.rotator == nil {
		return nil
	}
	return f.rotator.Close()
}
