// Package logging provides structured logging using uber/zap.
//
// This package offers production-ready logging with two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Log Levels:
//   - Debug: Verbose debugging information
//   - Info: General informational messages
//   - Warn: Warning messages
//   - Error: Error messages
//   - Fatal: Fatal errors (exits process)
//
// Features:
//   - Structured fields for context
//   - Configurable output paths
//
// Example Usage:
//
//	logger, err := logging.FromConfig(cfg.Logging)
//	logger.Info("Server starting", zap.String("port", "8000"))
//	logger.Session(id).Warn("Read failed", zap.Error(err))
package logging
