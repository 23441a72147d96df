//go:build !windows

package pty

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	"github.com/GriffinCanCode/termvisor/internal/domain/process"
)

// Handle is a running process attached to a pty master. pty.Start makes
// the child a session leader, so its pid is also its process group id.
type Handle struct {
	cmd   *exec.Cmd
	ptmx  *os.File
	pid   int
	grace time.Duration

	done    chan struct{}
	code    int
	waitErr error

	closeOnce sync.Once
}

func start(cmd *exec.Cmd, cols, rows int, grace time.Duration) (process.Handle, error) {
	ptmx, err := pty.StartWithSize(cmd, winsize(cols, rows))
	if err != nil {
		return nil, fmt.Errorf("failed to start PTY: %w", err)
	}

	h := &Handle{
		cmd:   cmd,
		ptmx:  ptmx,
		pid:   cmd.Process.Pid,
		grace: grace,
		done:  make(chan struct{}),
	}
	go h.reap()
	return h, nil
}

func winsize(cols, rows int) *pty.Winsize {
	return &pty.Winsize{
		Cols: uint16(min(max(cols, 1), 0xffff)),
		Rows: uint16(min(max(rows, 1), 0xffff)),
	}
}

// reap waits for the process and records its exit code. The master stays
// open for a grace period so the reader can drain what the child wrote.
func (h *Handle) reap() {
	err := h.cmd.Wait()
	h.code, h.waitErr = exitStatus(err)
	close(h.done)
	time.AfterFunc(h.grace, h.closePTY)
}

func exitStatus(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// ExitCode is -1 when the process was killed by a signal.
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

func (h *Handle) closePTY() {
	h.closeOnce.Do(func() {
		_ = h.ptmx.Close()
	})
}

// Pid returns the process id.
func (h *Handle) Pid() int {
	return h.pid
}

// Read reads output from the terminal. Once the terminal side is gone it
// returns io.EOF and releases the master.
func (h *Handle) Read(p []byte) (int, error) {
	n, err := h.ptmx.Read(p)
	if err != nil {
		if errors.Is(err, unix.EIO) || errors.Is(err, os.ErrClosed) {
			err = io.EOF
		}
		h.closePTY()
	}
	return n, err
}

// Write sends input to the terminal.
func (h *Handle) Write(p []byte) (int, error) {
	return h.ptmx.Write(p)
}

// Resize changes the terminal dimensions.
func (h *Handle) Resize(cols, rows int) error {
	if h.Exited() {
		return ErrExited
	}
	return pty.Setsize(h.ptmx, winsize(cols, rows))
}

// Pause stops the session leader's group and the terminal's foreground
// job, which a shell with job control runs in a group of its own.
func (h *Handle) Pause() error {
	return h.signal(unix.SIGSTOP)
}

// Resume continues the groups stopped by Pause.
func (h *Handle) Resume() error {
	return h.signal(unix.SIGCONT)
}

// Kill terminates the process group and closes the terminal. Killing an
// already exited process is not an error.
func (h *Handle) Kill() error {
	err := h.signal(unix.SIGKILL)
	h.closePTY()
	if errors.Is(err, ErrExited) || errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

func (h *Handle) signal(sig unix.Signal) error {
	if h.Exited() {
		return ErrExited
	}
	for i, pgid := range targets(h.pid, h.foreground()) {
		err := unix.Kill(-pgid, sig)
		if err == nil || (i > 0 && errors.Is(err, unix.ESRCH)) {
			continue
		}
		return fmt.Errorf("signal %s to process group %d: %w", unix.SignalName(sig), pgid, err)
	}
	return nil
}

// foreground returns the terminal's foreground process group, or 0 when
// it cannot be read.
func (h *Handle) foreground() int {
	// Fd would switch the master to blocking mode.
	rc, err := h.ptmx.SyscallConn()
	if err != nil {
		return 0
	}
	var pgid int
	var ioctlErr error
	if err := rc.Control(func(fd uintptr) {
		pgid, ioctlErr = unix.IoctlGetInt(int(fd), unix.TIOCGPGRP)
	}); err != nil || ioctlErr != nil {
		return 0
	}
	return pgid
}

// targets lists the groups to signal, leader first.
func targets(leader, foreground int) []int {
	if foreground <= 0 || foreground == leader {
		return []int{leader}
	}
	return []int{leader, foreground}
}

// Wait blocks until the process exits and returns its exit code.
func (h *Handle) Wait() (int, error) {
	<-h.done
	return h.code, h.waitErr
}

// Exited reports whether the process has been reaped.
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}
