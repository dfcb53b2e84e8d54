// Package logging builds the structured loggers used across mocify.
//
// It wraps log/slog. Every component accepts a *slog.Logger through an
// option or setter and falls back to Nop when none is given.
//
//	logger := logging.New(logging.Config{Level: logging.LevelDebug, Format: logging.FormatJSON})
//	logger = logging.Component(logger, "registry")
//	logger.Info("listener started", "port", 3001)
//
// Mock traffic is logged at Debug; only failures inside the listener
// itself reach Warn or Error.
package logging
