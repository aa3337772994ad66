package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Setup configures the global logger based on the environment.
// It returns the logger instance, but also sets it as the default global logger.
//
// LOG_LEVEL (debug, info, warn, error) overrides the per-environment default.
func Setup(env string) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if env != "production" {
		opts.Level = slog.LevelDebug
	}
	if lvl, ok := parseLevel(os.Getenv("LOG_LEVEL")); ok {
		opts.Level = lvl
	}

	if env == "production" {
		// JSON for the log shipper
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With("service", "gateway")
	slog.SetDefault(logger)

	return logger
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}
