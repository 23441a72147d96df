// Package config provides 12-factor configuration management for the
// supervisor.
//
// Configuration is loaded from environment variables with sensible defaults,
// or from a YAML file layered over the defaults.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Logging: Log level and output format
//   - Flow: Batching delays and watermark limits
//   - Flood: Circuit breaker trip rate and resume window
//   - Input: Chunk size and drain interval for writes
//   - Buffers: Transcript and semantic buffer sizes
//   - Trash: Soft-delete TTL
//   - Pool: Warm shell pool
//   - Detect: Process-tree and activity observers
//   - Stream: Subscriber buffer size
//   - RateLimit: Per-IP rate limiting configuration
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Listening on %s\n", cfg.Addr())
package config
