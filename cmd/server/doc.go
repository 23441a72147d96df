// Package main is the entry point for the termvisor service.
//
// termvisor owns a set of terminal sessions (plain shells and AI coding
// agents), paces their output to connected clients and tracks what each
// agent is doing. Clients drive it over REST and receive output over a
// single WebSocket stream.
//
// Configuration:
//   - Environment variables (12-factor)
//   - A YAML file via --config
//   - CLI flags (override both)
//
// Usage:
//
//	# Production mode
//	./termvisor --port 8070
//
//	# Development mode (colored logs, debug level)
//	./termvisor --dev
//
//	# Show the configuration that would be used
//	./termvisor config -c termvisor.yaml
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
