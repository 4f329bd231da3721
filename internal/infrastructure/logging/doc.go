// Package logging provides structured logging for Nexus Core.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Security
//
// Never log credentials, signing secrets, or password material.
// Tokens appear in logs only as their one-way hash prefix:
//
//	logger.Info("credential blocked", "hash_prefix", hash[:8])
package logging
