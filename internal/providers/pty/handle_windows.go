//go:build windows

package pty

import (
	"os/exec"
	"time"

	"github.com/GriffinCanCode/termvisor/internal/domain/process"
)

func start(*exec.Cmd, int, int, time.Duration) (process.Handle, error) {
	return nil, ErrUnsupported
}
