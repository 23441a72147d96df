package pty

import (
	"context"
	"errors"
	"os/exec"

	"github.com/GriffinCanCode/termvisor/internal/domain/process"
)

var (
	ErrExited      = errors.New("process has exited")
	ErrUnsupported = errors.New("pty: unsupported platform")
)

// Spawner starts shells attached to new pseudo-terminals.
type Spawner struct {
	cfg Config
}

// NewSpawner creates a spawner with the given defaults.
func NewSpawner(cfg Config) *Spawner {
	return &Spawner{cfg: cfg.withDefaults()}
}

// Spawn starts spec. The context only guards the start; the process
// outlives it.
func (s *Spawner) Spawn(ctx context.Context, spec process.Spec) (process.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	spec = s.cfg.resolve(spec)

	cmd := exec.Command(spec.Shell, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = s.cfg.environ(spec)

	return start(cmd, spec.Cols, spec.Rows, s.cfg.CloseGrace)
}

// DefaultSpec is the spec used for pooled shells.
func (s *Spawner) DefaultSpec() process.Spec {
	return s.cfg.resolve(process.Spec{})
}
