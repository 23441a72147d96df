package proctree

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/termvisor/internal/domain/process"
)

// DefaultInterval is how often a session's tree is inspected.
const DefaultInterval = 2 * time.Second

// Config configures a Watcher.
type Config struct {
	Interval time.Duration
	Logger   *zap.Logger
}

// Watcher polls a Source and starts one detector per session.
type Watcher struct {
	source   Source
	interval time.Duration
	logger   *zap.Logger
}

// NewWatcher creates a watcher over source.
func NewWatcher(source Source, cfg Config) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Watcher{
		source:   source,
		interval: cfg.Interval,
		logger:   cfg.Logger.Named("proctree"),
	}
}

// Factory adapts the watcher to the supervisor's detector hook.
func (w *Watcher) Factory() process.DetectorFactory {
	return func(id string, pid int, report func(process.Detection)) process.Detector {
		return w.Watch(id, pid, report)
	}
}

// Watch starts polling the tree rooted at pid. report is called from the
// polling goroutine whenever the detection changes.
func (w *Watcher) Watch(id string, pid int, report func(process.Detection)) *Detector {
	d := &Detector{
		watcher: w,
		id:      id,
		pid:     pid,
		report:  report,
		stop:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Detector is one session's polling loop.
type Detector struct {
	watcher *Watcher
	id      string
	pid     int
	report  func(process.Detection)

	last    process.Detection
	primed  bool
	stop    chan struct{}
	stopped sync.Once
}

func (d *Detector) run() {
	ticker := time.NewTicker(d.watcher.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.poll()
		case <-d.stop:
			return
		}
	}
}

func (d *Detector) poll() {
	procs, err := d.watcher.source.Processes()
	if err != nil {
		d.watcher.logger.Debug("Process listing failed",
			zap.String("session_id", d.id),
			zap.Error(err))
		return
	}

	det := Detect(procs, d.pid)
	if d.primed && same(det, d.last) {
		return
	}
	d.last, d.primed = det, true
	d.report(det)
}

// Stop ends polling. A poll already in flight may still report once.
func (d *Detector) Stop() {
	d.stopped.Do(func() { close(d.stop) })
}

func same(a, b process.Detection) bool {
	if a.Detected != b.Detected || a.AgentType != b.AgentType || a.ProcessName != b.ProcessName {
		return false
	}
	if (a.IsBusy == nil) != (b.IsBusy == nil) {
		return false
	}
	return a.IsBusy == nil || *a.IsBusy == *b.IsBusy
}
