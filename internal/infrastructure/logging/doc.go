// Package logging provides structured logging using uber/zap.
//
// This package offers production-ready logging with two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Limited wraps a zap logger with a token bucket for paths that can fire on
// every output chunk, such as rejected domain events or dropped stream frames.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Supervisor starting", zap.Int("pool_size", 2))
//
//	warn := logging.NewLimited(logger.Named("events"), time.Second, 5)
//	warn.Warn("Dropping invalid event", zap.Error(err))
package logging
