// Package logging configures the process-wide slog logger. Deployed
// environments emit JSON to stdout; local development uses a colorized
// console handler.
package logging

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// New builds a *slog.Logger for the given environment and level string.
// environment "local" selects the tint console handler; everything else
// emits JSON. The returned logger carries the service name on every record.
func New(environment, service, level string) *slog.Logger {
	lvl := parseLevel(level)

	var handler slog.Handler
	if environment == "local" {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      lvl,
			TimeFormat: time.Kitchen,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: lvl,
		})
	}

	return slog.New(handler).With("service", service)
}

// parseLevel converts a level string to a slog.Level, defaulting to info.
func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
