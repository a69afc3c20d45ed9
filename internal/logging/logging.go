// Package logging configures the process-wide structured logger: colorized
// tint output on a terminal, plain text otherwise, with every byte passed
// through the secret redaction registry before it reaches the destination.
package logging

import (
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"

	"github.com/blufio/blufio/internal/security"
)

var (
	mu       sync.Mutex
	logger   *slog.Logger
	level    = new(slog.LevelVar)
	registry = security.NewRegistry()
)

func init() {
	level.Set(slog.LevelInfo)
	logger = build(os.Stderr)
}

// Registry returns the shared redaction registry so vault/config loaders
// can register secret values as soon as they are read.
func Registry() *security.Registry {
	return registry
}

// Logger returns the process-wide structured logger.
func Logger() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// SetLevel adjusts the minimum logged level at runtime (the CLI's
// --verbose flag toggles this between info and debug).
func SetLevel(l slog.Level) {
	level.Set(l)
}

// SetOutput redirects logging to w (used by tests).
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = build(w)
}

func build(dest io.Writer) *slog.Logger {
	redacted := security.NewWriter(dest, registry)

	isTerminal := false
	if f, ok := dest.(*os.File); ok {
		isTerminal = term.IsTerminal(int(f.Fd()))
	}

	if isTerminal {
		return slog.New(tint.NewHandler(redacted, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}))
	}
	return slog.New(slog.NewTextHandler(redacted, &slog.HandlerOptions{Level: level}))
}
