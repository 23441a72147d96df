package supervisor

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/termvisor/internal/domain/events"
	"github.com/GriffinCanCode/termvisor/internal/domain/process"
	"github.com/GriffinCanCode/termvisor/internal/shared/clock"
)

// fakeHandle is a process.Handle whose output is fed by the test. emit
// blocks until the reader goroutine has taken the bytes.
type fakeHandle struct {
	pid int
	out chan []byte

	eof      chan struct{}
	eofOnce  sync.Once
	exit     chan int
	exitOnce sync.Once

	resizeErr error

	mu      sync.Mutex
	writes  [][]byte
	cols    int
	rows    int
	pauses  int
	resumes int
	kills   int
}

func newFakeHandle(pid int) *fakeHandle {
	return &fakeHandle{
		pid:  pid,
		out:  make(chan []byte),
		eof:  make(chan struct{}),
		exit: make(chan int, 1),
	}
}

func (h *fakeHandle) Pid() int { return h.pid }

func (h *fakeHandle) Read(p []byte) (int, error) {
	select {
	case b := <-h.out:
		return copy(p, b), nil
	case <-h.eof:
		return 0, io.EOF
	}
}

func (h *fakeHandle) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writes = append(h.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (h *fakeHandle) Resize(cols, rows int) error {
	if h.resizeErr != nil {
		return h.resizeErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cols, h.rows = cols, rows
	return nil
}

func (h *fakeHandle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pauses++
	return nil
}

func (h *fakeHandle) Resume() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resumes++
	return nil
}

func (h *fakeHandle) Kill() error {
	h.mu.Lock()
	h.kills++
	h.mu.Unlock()
	h.finish(-1)
	return nil
}

func (h *fakeHandle) Wait() (int, error) {
	return <-h.exit, nil
}

// emit feeds one read's worth of output.
func (h *fakeHandle) emit(t *testing.T, data []byte) {
	t.Helper()
	select {
	case h.out <- data:
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not consume output")
	}
}

// finish closes the terminal and lets Wait return code.
func (h *fakeHandle) finish(code int) {
	h.eofOnce.Do(func() { close(h.eof) })
	h.exitOnce.Do(func() { h.exit <- code })
}

func (h *fakeHandle) written() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []byte
	for _, w := range h.writes {
		out = append(out, w...)
	}
	return out
}

func (h *fakeHandle) counts() (pauses, resumes, kills int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pauses, h.resumes, h.kills
}

func (h *fakeHandle) size() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cols, h.rows
}

type fakeSpawner struct {
	mu      sync.Mutex
	err     error
	nextPid int
	handles []*fakeHandle
	specs   []process.Spec
}

func (f *fakeSpawner) Spawn(_ context.Context, spec process.Spec) (process.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.nextPid++
	h := newFakeHandle(1000 + f.nextPid)
	f.handles = append(f.handles, h)
	f.specs = append(f.specs, spec)
	return h, nil
}

func (f *fakeSpawner) last() *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.handles) == 0 {
		return nil
	}
	return f.handles[len(f.handles)-1]
}

func (f *fakeSpawner) spawned() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handles)
}

type fakePool struct {
	mu      sync.Mutex
	handles []*fakeHandle
}

func (p *fakePool) Acquire() process.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.handles) == 0 {
		return nil
	}
	h := p.handles[0]
	p.handles = p.handles[1:]
	return h
}

var errResize = errors.New("resize failed")

type harness struct {
	sup     *Supervisor
	clock   *clock.Fake
	spawner *fakeSpawner
	notes   <-chan events.Notification
}

func newHarness(t *testing.T, mutate func(*Config, *Deps)) *harness {
	t.Helper()

	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	spawner := &fakeSpawner{}
	cfg := Config{DrainTimeout: time.Second}
	deps := Deps{Spawner: spawner, Clock: clk}
	if mutate != nil {
		mutate(&cfg, &deps)
	}

	sup, err := New(cfg, deps)
	require.NoError(t, err)
	notes, _ := sup.Subscribe()
	t.Cleanup(sup.Dispose)

	return &harness{sup: sup, clock: clk, spawner: spawner, notes: notes}
}

// until collects notifications up to and including the next one of kind.
func (h *harness) until(t *testing.T, kind events.Kind) []events.Notification {
	t.Helper()
	var seen []events.Notification
	deadline := time.After(2 * time.Second)
	for {
		select {
		case n := <-h.notes:
			seen = append(seen, n)
			if n.Kind == kind {
				return seen
			}
		case <-deadline:
			t.Fatalf("no %s notification", kind)
			return nil
		}
	}
}

// next returns the next notification of kind, skipping others.
func (h *harness) next(t *testing.T, kind events.Kind) events.Notification {
	t.Helper()
	seen := h.until(t, kind)
	return seen[len(seen)-1]
}

// nextAgent returns the next agent event of the given type.
func (h *harness) nextAgent(t *testing.T, typ events.Type) events.DomainEvent {
	t.Helper()
	for {
		n := h.next(t, events.KindAgent)
		if n.Event.Type() == typ {
			return n.Event
		}
	}
}

// drain returns every notification already queued.
func (h *harness) drain() []events.Notification {
	var out []events.Notification
	for {
		select {
		case n := <-h.notes:
			out = append(out, n)
		default:
			return out
		}
	}
}

func agentTypes(notes []events.Notification) []events.Type {
	var out []events.Type
	for _, n := range notes {
		if n.Kind == events.KindAgent {
			out = append(out, n.Event.Type())
		}
	}
	return out
}
