// Package logging builds the process logger: console output at the chosen
// level, plus an append-only error log file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Options describes logger construction parameters.
type Options struct {
	Level string // debug, info, warn, error; default info
	JSON  bool   // console output as JSON instead of text

	// Console defaults to os.Stderr.
	Console io.Writer

	// ErrorFile receives ERROR records only. Empty disables it.
	ErrorFile string
}

// New constructs the logger. The returned closer releases the error file.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	var consoleHandler slog.Handler
	hopts := &slog.HandlerOptions{Level: level}
	if opts.JSON {
		consoleHandler = slog.NewJSONHandler(console, hopts)
	} else {
		consoleHandler = slog.NewTextHandler(console, hopts)
	}

	if opts.ErrorFile == "" {
		return slog.New(consoleHandler), nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.ErrorFile), 0o755); err != nil {
		return nil, nil, fmt.Errorf("ensure log directory: %w", err)
	}
	f, err := os.OpenFile(opts.ErrorFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open error log: %w", err)
	}
	fileHandler := slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelError})

	return slog.New(TeeHandler(consoleHandler, fileHandler)), f, nil
}

// ParseLevel maps a level name to slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log level: unsupported value %q", s)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
