// Package http exposes the supervisor over a JSON API built on gin.
//
// Every route maps onto one supervisor operation. Errors are reported as
// {"success": false, "error": "..."} with a status derived from the
// supervisor's sentinel errors: unknown sessions are 404, bad dimensions
// 400, a closed supervisor 503 and failed spawns 502.
package http
