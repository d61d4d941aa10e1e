package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// newLogger builds the diagnostic logger. With a log file the output is JSON lines
// appended to it. Otherwise logs go to stderr as console text, except under the
// TUI, which owns stderr, where they are discarded. The returned closer releases
// the log file.
func newLogger(cfg *config, stderr io.Writer, tuiActive bool) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, fmt.Errorf("invalid SPTB_LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("failed to open log file: %w", err)
		}
		return zerolog.New(f).Level(level).With().Timestamp().Logger(), f, nil
	}

	if tuiActive {
		return zerolog.Nop(), nopCloser{}, nil
	}

	w := zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.Kitchen}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nopCloser{}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// lockedWriter serializes writes from the logger and the displayer, which share
// stderr and may run on different goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
