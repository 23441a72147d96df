//go:build !windows

package pty

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/termvisor/internal/domain/process"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
}

func readAll(t *testing.T, h process.Handle) []byte {
	t.Helper()
	var out bytes.Buffer
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 4096)
		for {
			n, err := h.Read(buf)
			out.Write(buf[:n])
			if err != nil {
				return
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("reader did not reach EOF")
	}
	return out.Bytes()
}

func TestSpawnRunsCommand(t *testing.T) {
	requireShell(t)
	s := NewSpawner(Config{Shell: "/bin/sh"})

	h, err := s.Spawn(context.Background(), process.Spec{
		Args: []string{"-c", "echo \"hello $GREETING\"; exit 3"},
		Env:  map[string]string{"GREETING": "world"},
	})
	require.NoError(t, err)

	out := readAll(t, h)
	assert.Contains(t, string(out), "hello world")

	code, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.True(t, h.(*Handle).Exited())
}

func TestSpawnHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSpawner(Config{}).Spawn(ctx, process.Spec{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHandleSignals(t *testing.T) {
	requireShell(t)
	s := NewSpawner(Config{Shell: "/bin/sh"})

	h, err := s.Spawn(context.Background(), process.Spec{Args: []string{"-c", "sleep 30"}})
	require.NoError(t, err)
	go func() { _, _ = io.Copy(io.Discard, readerFunc(h.Read)) }()

	require.NoError(t, h.Resize(100, 40))
	require.NoError(t, h.Pause())
	require.NoError(t, h.Resume())
	require.NoError(t, h.Kill())

	code, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, -1, code)

	assert.NoError(t, h.Kill(), "killing an exited process")
	assert.True(t, errors.Is(h.Pause(), ErrExited))
	assert.ErrorIs(t, h.Resize(80, 24), ErrExited)
}

func TestSignalTargets(t *testing.T) {
	tests := []struct {
		name       string
		leader     int
		foreground int
		want       []int
	}{
		{"leader in foreground", 100, 100, []int{100}},
		{"foreground unknown", 100, 0, []int{100}},
		{"job in foreground", 100, 142, []int{100, 142}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, targets(tt.leader, tt.foreground))
		})
	}
}

func TestForegroundGroup(t *testing.T) {
	requireShell(t)
	s := NewSpawner(Config{Shell: "/bin/sh"})

	h, err := s.Spawn(context.Background(), process.Spec{Args: []string{"-c", "sleep 30"}})
	require.NoError(t, err)
	go func() { _, _ = io.Copy(io.Discard, readerFunc(h.Read)) }()
	defer func() { _ = h.Kill() }()

	handle := h.(*Handle)
	assert.Equal(t, handle.Pid(), handle.foreground(), "session leader owns the terminal")
	assert.Equal(t, []int{handle.Pid()}, targets(handle.Pid(), handle.foreground()))
}

type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }

func TestExitStatus(t *testing.T) {
	code, err := exitStatus(nil)
	assert.NoError(t, err)
	assert.Zero(t, code)

	code, err = exitStatus(errors.New("wait failed"))
	assert.Error(t, err)
	assert.Equal(t, -1, code)
}
