// Package process defines the boundary between the supervisor and the OS
// process layer: process handles, spawners, the warm pool, and the external
// detectors that observe a running process.
package process

import (
	"context"
	"time"
)

// Handle is an exclusively owned child process attached to a pseudo-terminal.
type Handle interface {
	Pid() int
	// Read blocks until output is available. It returns io.EOF once the
	// terminal side is closed.
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Resize(cols, rows int) error
	// Pause stops the process group; Resume continues it.
	Pause() error
	Resume() error
	Kill() error
	// Wait blocks until the process exits and returns its exit code.
	Wait() (int, error)
}

// Spec describes a process to start.
type Spec struct {
	Shell string
	Args  []string
	Dir   string
	Env   map[string]string
	Cols  int
	Rows  int
}

// Spawner starts processes.
type Spawner interface {
	Spawn(ctx context.Context, spec Spec) (Handle, error)
}

// Pool hands out pre-started default shells. Acquire returns nil when empty.
type Pool interface {
	Acquire() Handle
}

// Detection is a process-tree observation.
type Detection struct {
	Detected    bool
	AgentType   string
	ProcessName string
	// IsBusy is nil when the detector cannot tell.
	IsBusy *bool
}

// Detector is a running observer that can be stopped.
type Detector interface {
	Stop()
}

// DetectorFactory starts a process-tree detector for the session id rooted
// at pid.
type DetectorFactory func(id string, pid int, report func(Detection)) Detector

// Activity is an output-timing observation.
type Activity struct {
	Busy bool
	At   time.Time
}

// ActivityMonitor watches a session's I/O timing. OnData returns true when
// the output starts a busy period; that transition is not passed to the
// factory's report callback, which only carries asynchronous changes.
type ActivityMonitor interface {
	OnData(n int) bool
	OnInput()
	Stop()
}

// ActivityFactory starts an activity monitor for the session id.
type ActivityFactory func(id string, report func(Activity)) ActivityMonitor
