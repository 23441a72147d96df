// Package session models one supervised terminal session.
//
// A Session owns exactly one process handle and keeps two independent views
// of its output:
//   - Transcript: the last N bytes of raw output, for capture
//   - SemanticBuffer: the last lines as plain text, for heuristic inspection
//
// It also tracks the input/output/check timestamps used for silence
// detection and the agent state derived by the agentstate machine.
//
// Sessions are identified by ID plus Token. The token is taken from the spawn
// time and changes on every respawn, so an observation carrying an old token
// can be recognised as stale.
package session
