// Package activity infers whether a session is busy from the timing of its
// I/O alone. Output marks the session busy; a quiet period marks it idle.
// Short output right after a keystroke is treated as echo and ignored.
package activity
