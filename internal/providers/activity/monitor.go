package activity

import (
	"sync"
	"time"

	"github.com/GriffinCanCode/termvisor/internal/domain/process"
	"github.com/GriffinCanCode/termvisor/internal/shared/clock"
)

// Defaults for Config.
const (
	DefaultIdleAfter  = 1500 * time.Millisecond
	DefaultEchoWindow = 100 * time.Millisecond
	DefaultEchoBytes  = 8
)

// Config tunes the monitors created by a Factory.
type Config struct {
	// IdleAfter is how long output must stay quiet before the session is
	// reported idle.
	IdleAfter time.Duration
	// Output of at most EchoBytes within EchoWindow of an input is echo.
	EchoWindow time.Duration
	EchoBytes  int
	Clock      clock.Clock
}

func (c Config) withDefaults() Config {
	if c.IdleAfter <= 0 {
		c.IdleAfter = DefaultIdleAfter
	}
	if c.EchoWindow <= 0 {
		c.EchoWindow = DefaultEchoWindow
	}
	if c.EchoBytes <= 0 {
		c.EchoBytes = DefaultEchoBytes
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	return c
}

// Factory returns an activity hook for the supervisor.
func Factory(cfg Config) process.ActivityFactory {
	cfg = cfg.withDefaults()
	return func(_ string, report func(process.Activity)) process.ActivityMonitor {
		return New(cfg, report)
	}
}

// Monitor tracks one session. It is safe for concurrent use. report is only
// called from the idle timer, never with the monitor's lock held.
type Monitor struct {
	cfg    Config
	report func(process.Activity)

	mu        sync.Mutex
	busy      bool
	lastInput time.Time
	timer     clock.Timer
	stopped   bool
}

// New creates a monitor that starts out idle.
func New(cfg Config, report func(process.Activity)) *Monitor {
	return &Monitor{cfg: cfg.withDefaults(), report: report}
}

// OnData records n bytes of output and reports whether it made the session
// busy. The busy transition is returned rather than reported so a caller
// holding its own loop is never called back re-entrantly.
func (m *Monitor) OnData(n int) bool {
	if n <= 0 {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return false
	}
	now := m.cfg.Clock.Now()
	if !m.busy && n <= m.cfg.EchoBytes && !m.lastInput.IsZero() && now.Sub(m.lastInput) <= m.cfg.EchoWindow {
		return false
	}

	m.armIdle()
	if m.busy {
		return false
	}
	m.busy = true
	return true
}

// OnInput records a write from the user.
func (m *Monitor) OnInput() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastInput = m.cfg.Clock.Now()
}

// Busy reports the current inference.
func (m *Monitor) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy
}

// Stop cancels the idle timer. No report follows Stop.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// armIdle restarts the quiet-period timer. Requires m.mu.
func (m *Monitor) armIdle() {
	if m.timer != nil {
		m.timer.Stop()
	}
	var t clock.Timer
	t = m.cfg.Clock.AfterFunc(m.cfg.IdleAfter, func() {
		m.mu.Lock()
		if m.timer != t || m.stopped || !m.busy {
			m.mu.Unlock()
			return
		}
		m.timer = nil
		m.busy = false
		m.mu.Unlock()

		m.report(process.Activity{Busy: false, At: m.cfg.Clock.Now()})
	})
	m.timer = t
}
