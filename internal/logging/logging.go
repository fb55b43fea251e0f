// Package logging builds the slog loggers used by every command.
// The console cannot log to the terminal it draws on, so it logs to a file
// or nowhere.
package logging

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ParseLevel normalizes a log level string into slog.Level.
// Unknown values return slog.LevelInfo with an error.
func ParseLevel(s string) (slog.Level, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s)
	switch s {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug", "trace":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error", "err":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errors.New("invalid log level")
	}
}

// Options controls logger formatting and destination.
type Options struct {
	Level string
	JSON  bool
	// Writer defaults to stderr. Discard sends everything to io.Discard.
	Writer      io.Writer
	Discard     bool
	DefaultSlog bool
}

// New constructs a configured slog.Logger and returns its parsed level.
func New(opt Options) (*slog.Logger, slog.Level, error) {
	level, err := ParseLevel(opt.Level)
	if err != nil {
		return nil, 0, err
	}
	var w io.Writer = os.Stderr
	switch {
	case opt.Discard:
		w = io.Discard
	case opt.Writer != nil:
		w = opt.Writer
	}
	lo := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var h slog.Handler
	if opt.JSON {
		h = slog.NewJSONHandler(w, lo)
	} else {
		h = slog.NewTextHandler(w, lo)
	}
	lg := slog.New(h)
	if opt.DefaultSlog {
		slog.SetDefault(lg)
	}
	return lg, level, nil
}

// OpenFile opens path for appending, creating parent directories. An empty
// path returns a no-op closer and a nil writer.
func OpenFile(path string) (io.Writer, func() error, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, func() error { return nil }, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

// Component tags lg with a component name.
func Component(lg *slog.Logger, name string) *slog.Logger {
	if lg == nil {
		lg = slog.Default()
	}
	return lg.With("component", name)
}
