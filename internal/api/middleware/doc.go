// Package middleware holds the gin middleware shared by the HTTP and
// WebSocket surfaces: CORS, per-client rate limiting and trace ids.
package middleware
