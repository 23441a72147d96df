package pty

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/termvisor/internal/domain/process"
)

// DefaultPoolSize is the number of idle shells kept ready.
const DefaultPoolSize = 2

// Pool keeps pre-started default shells. Acquire hands one out and a
// replacement is started in the background.
type Pool struct {
	spawner process.Spawner
	spec    process.Spec
	size    int
	logger  *zap.Logger

	mu      sync.Mutex
	idle    []process.Handle
	filling int
	closed  bool
	wg      sync.WaitGroup
}

// exiter is implemented by handles that can report early exit.
type exiter interface {
	Exited() bool
}

// NewPool creates a pool of size shells started from spec. Call Fill to
// start them.
func NewPool(spawner process.Spawner, spec process.Spec, size int, logger *zap.Logger) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		spawner: spawner,
		spec:    spec,
		size:    size,
		logger:  logger.Named("pool"),
	}
}

// Fill starts shells until the pool is at capacity.
func (p *Pool) Fill() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	need := p.size - len(p.idle) - p.filling
	if need <= 0 {
		p.mu.Unlock()
		return
	}
	p.filling += need
	p.wg.Add(need)
	p.mu.Unlock()

	for i := 0; i < need; i++ {
		go p.spawnOne()
	}
}

func (p *Pool) spawnOne() {
	defer p.wg.Done()

	h, err := p.spawner.Spawn(context.Background(), p.spec)

	p.mu.Lock()
	p.filling--
	if err != nil {
		p.mu.Unlock()
		p.logger.Warn("Failed to pre-start shell", zap.Error(err))
		return
	}
	if p.closed {
		p.mu.Unlock()
		_ = h.Kill()
		return
	}
	p.idle = append(p.idle, h)
	p.mu.Unlock()
}

// Acquire returns an idle shell, or nil when none is ready. Shells that
// exited while idle are discarded.
func (p *Pool) Acquire() process.Handle {
	p.mu.Lock()
	var h process.Handle
	for len(p.idle) > 0 {
		next := p.idle[0]
		p.idle = p.idle[1:]
		if e, ok := next.(exiter); ok && e.Exited() {
			p.logger.Debug("Discarding exited pooled shell", zap.Int("pid", next.Pid()))
			_ = next.Kill()
			continue
		}
		h = next
		break
	}
	p.mu.Unlock()

	p.Fill()
	return h
}

// Len returns the number of idle shells.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Close kills every idle shell and waits for in-flight starts.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, h := range idle {
		_ = h.Kill()
	}
	p.wg.Wait()
}
