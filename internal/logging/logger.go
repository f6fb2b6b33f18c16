// Package logging constructs the feeder's structured logger. Every
// long-lived component logs through one of these, rather than printing
// directly, even though the core itself never ships a statistics/log
// dashboard (spec's Non-goals exclude that outer layer, not logging
// itself).
//
// Grounded on nishisan-dev-n-backup/internal/logging/logger.go's use of
// log/slog.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// New builds a slog.Logger at the given level ("debug"|"info"|"warn"|
// "error", default info) and format ("json"|"text", default json). If
// filePath is non-empty, logs go to stdout and the file; the returned
// io.Closer must be closed on shutdown (a no-op Closer if filePath is
// empty).
func New(level, format, filePath string) (*slog.Logger, io.Closer) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var w io.Writer = os.Stdout
	var closer io.Closer = io.NopCloser(strings.NewReader(""))

	if filePath != "" {
		f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "WARNING: could not open log file %q: %v (logging to stdout only)\n", filePath, err)
		} else {
			w = io.MultiWriter(os.Stdout, f)
			closer = f
		}
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler), closer
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
