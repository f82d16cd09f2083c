// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package util

import (
	"io"
	"log/slog"
	"os"
)

// Logger discards everything until InitLoggerTo is called, so library
// packages can log unconditionally.
var Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

// InitLoggerTo initializes the global logger writing to w.
// Set SKFLOW_DEBUG=1 to enable debug logging.
func InitLoggerTo(w io.Writer) {
	level := slog.LevelInfo // Default: only show Info, Warn, Error

	if os.Getenv("SKFLOW_DEBUG") != "" {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		// Remove timestamp and level for cleaner CLI output
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			if a.Key == slog.LevelKey {
				return slog.Attr{}
			}
			return a
		},
	})

	Logger = slog.New(handler)
}

// Debug logs a debug message (only shown when SKFLOW_DEBUG is set)
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}
