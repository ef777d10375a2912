// Package logging provides structured logging utilities for calpane.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "calendar.list")
//	logger.Info("listed events", logging.Status(logging.StatusSuccess))
//
// Access tokens are never logged directly; use SanitizeToken when a token
// has to be mentioned at all.
package logging
