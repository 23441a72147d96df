package supervisor

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/termvisor/internal/domain/agentstate"
	"github.com/GriffinCanCode/termvisor/internal/domain/events"
	"github.com/GriffinCanCode/termvisor/internal/domain/flow"
	"github.com/GriffinCanCode/termvisor/internal/domain/session"
	"github.com/GriffinCanCode/termvisor/internal/domain/trash"
	"github.com/GriffinCanCode/termvisor/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termvisor/internal/shared/clock"
)

// Supervisor owns every live session. All session state is confined to one
// loop goroutine; public methods marshal onto it and wait for the result.
type Supervisor struct {
	cfg  Config
	deps Deps

	logger  *zap.Logger
	metrics *monitoring.Metrics
	bus     *events.Bus

	// clock delivers timer callbacks onto the loop.
	clock clock.Clock

	ops      chan func()
	quit     chan struct{}
	stopped  chan struct{}
	quitOnce sync.Once
	readers  sync.WaitGroup

	// Loop-confined state.
	registry   *registry
	trash      *trash.Scheduler
	floodTimer clock.Timer
	lastToken  int64
	disposed   bool
}

// New creates a Supervisor and starts its loop.
func New(cfg Config, deps Deps) (*Supervisor, error) {
	if deps.Spawner == nil {
		return nil, errors.New("supervisor: spawner is required")
	}
	cfg = cfg.withDefaults()

	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Bus == nil {
		deps.Bus = events.NewBus(events.BusConfig{Logger: deps.Logger, Metrics: deps.Metrics})
	}

	s := &Supervisor{
		cfg:     cfg,
		deps:    deps,
		logger:  deps.Logger.Named("supervisor"),
		metrics: deps.Metrics,
		bus:     deps.Bus,
		ops:     make(chan func(), cfg.QueueSize),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	s.clock = clock.Func{
		Base: deps.Clock,
		Schedule: func(f func()) {
			_ = s.do(f)
		},
	}
	s.registry = newRegistry(deps.Bus)
	s.trash = trash.NewScheduler(s.clock, cfg.TrashTTL, s.onTrashExpired)

	go s.loop()

	if err := s.do(s.armFloodSampler); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Supervisor) loop() {
	defer close(s.stopped)
	for {
		select {
		case f := <-s.ops:
			f()
		case <-s.quit:
			return
		}
	}
}

// do runs f on the loop and waits for it to finish.
func (s *Supervisor) do(f func()) error {
	done := make(chan struct{})
	select {
	case s.ops <- func() {
		defer close(done)
		f()
	}:
	case <-s.quit:
		return ErrClosed
	}

	select {
	case <-done:
		return nil
	case <-s.quit:
		return ErrClosed
	}
}

// post queues f on the loop without waiting.
func (s *Supervisor) post(f func()) bool {
	select {
	case s.ops <- f:
		return true
	case <-s.quit:
		return false
	}
}

// Bus returns the notification bus.
func (s *Supervisor) Bus() *events.Bus {
	return s.bus
}

// Subscribe registers for notifications of the given kinds, or all kinds.
func (s *Supervisor) Subscribe(kinds ...events.Kind) (<-chan events.Notification, func()) {
	return s.bus.Subscribe(kinds...)
}

// Write sends user input to a session. traceID, when set, is attached to
// the session's later domain events.
func (s *Supervisor) Write(id string, data []byte, traceID string) error {
	var err error
	if doErr := s.do(func() {
		sess := s.registry.get(id)
		if sess == nil {
			err = ErrSessionNotFound
			return
		}
		if len(data) == 0 {
			return
		}
		if traceID != "" {
			sess.TraceID = traceID
		}

		sess.TouchInput(s.clock.Now())
		if werr := sess.Input.Write(data); werr != nil {
			err = fmt.Errorf("write to session %s: %w", id, werr)
			return
		}
		if sess.Activity != nil {
			sess.Activity.OnInput()
		}
		if tracked(sess) && bytes.ContainsAny(data, "\r\n") {
			s.transition(sess, agentstate.EventInput, agentstate.TriggerInput, nil, "")
		}
	}); doErr != nil {
		return doErr
	}
	return err
}

// Resize changes a session's terminal size. Unchanged dimensions are a
// no-op. A failure from the process layer is logged, not returned.
func (s *Supervisor) Resize(id string, cols, rows int) error {
	if cols <= 0 || rows <= 0 {
		return ErrInvalidDimensions
	}

	var err error
	if doErr := s.do(func() {
		sess := s.registry.get(id)
		if sess == nil {
			err = ErrSessionNotFound
			return
		}
		if sess.Cols == cols && sess.Rows == rows {
			return
		}
		if rerr := sess.Handle.Resize(cols, rows); rerr != nil {
			s.logger.Warn("Resize failed",
				zap.String("session_id", id),
				zap.Int("cols", cols),
				zap.Int("rows", rows),
				zap.Error(rerr))
			return
		}
		sess.Cols, sess.Rows = cols, rows
	}); doErr != nil {
		return doErr
	}
	return err
}

// Kill tears a session down immediately.
func (s *Supervisor) Kill(id, reason string) error {
	var err error
	if doErr := s.do(func() {
		sess := s.registry.get(id)
		if sess == nil {
			err = ErrSessionNotFound
			return
		}
		s.kill(sess, reason)
	}); doErr != nil {
		return doErr
	}
	return err
}

// Trash soft-deletes a session: it keeps running and is killed once the
// trash TTL elapses unless restored. Trashing twice keeps the first
// deadline.
func (s *Supervisor) Trash(id string) error {
	var err error
	if doErr := s.do(func() {
		if s.registry.get(id) == nil {
			err = ErrSessionNotFound
			return
		}
		if s.trash.Trash(id) {
			s.logger.Info("Session trashed", zap.String("session_id", id))
		}
	}); doErr != nil {
		return doErr
	}
	return err
}

// Restore takes a session out of the trash and reports whether it was there.
func (s *Supervisor) Restore(id string) bool {
	var restored bool
	_ = s.do(func() {
		restored = s.trash.Restore(id)
	})
	return restored
}

// IsInTrash reports whether a session is pending expiry.
func (s *Supervisor) IsInTrash(id string) bool {
	var trashed bool
	_ = s.do(func() {
		trashed = s.trash.IsTrashed(id)
	})
	return trashed
}

// SetNamespaceFilter limits data notifications to sessions in ns. An empty
// ns passes everything.
func (s *Supervisor) SetNamespaceFilter(ns string) error {
	return s.do(func() {
		s.registry.setActiveNamespace(ns)
	})
}

// ForNamespace lists the ids of sessions in ns.
func (s *Supervisor) ForNamespace(ns string) []string {
	var ids []string
	_ = s.do(func() {
		ids = s.registry.forNamespace(ns)
	})
	return ids
}

// SetDeliveryTier changes how eagerly a session's output is delivered.
func (s *Supervisor) SetDeliveryTier(id string, tier flow.Tier) error {
	var err error
	if doErr := s.do(func() {
		sess := s.registry.get(id)
		if sess == nil {
			err = ErrSessionNotFound
			return
		}
		sess.Flow.SetTier(tier)
	}); doErr != nil {
		return doErr
	}
	return err
}

// MarkChecked records that an external observer inspected the session.
func (s *Supervisor) MarkChecked(id string) error {
	var err error
	if doErr := s.do(func() {
		sess := s.registry.get(id)
		if sess == nil {
			err = ErrSessionNotFound
			return
		}
		sess.TouchCheck(s.clock.Now())
	}); doErr != nil {
		return doErr
	}
	return err
}

// GetSnapshot returns a view of one session.
func (s *Supervisor) GetSnapshot(id string) (session.Snapshot, bool) {
	var (
		snap session.Snapshot
		ok   bool
	)
	_ = s.do(func() {
		sess := s.registry.get(id)
		if sess == nil {
			return
		}
		snap, ok = s.snapshot(sess), true
	})
	return snap, ok
}

// GetAllSnapshots returns a view of every session ordered by id.
func (s *Supervisor) GetAllSnapshots() []session.Snapshot {
	var snaps []session.Snapshot
	_ = s.do(func() {
		for _, id := range s.registry.ids() {
			snaps = append(snaps, s.snapshot(s.registry.get(id)))
		}
	})
	return snaps
}

func (s *Supervisor) snapshot(sess *session.Session) session.Snapshot {
	snap := sess.Snapshot()
	if e, ok := s.trash.Lookup(sess.ID); ok {
		snap.InTrash = true
		expires := e.ExpiresAt
		snap.TrashExpires = &expires
	}
	return snap
}

// ReplayHistory pushes up to maxLines of the session's recent plain-text
// output as one replay payload. It bypasses the namespace filter.
func (s *Supervisor) ReplayHistory(id string, maxLines int) error {
	var err error
	if doErr := s.do(func() {
		sess := s.registry.get(id)
		if sess == nil {
			err = ErrSessionNotFound
			return
		}
		lines := sess.Semantic.Lines(maxLines)
		if len(lines) == 0 {
			return
		}
		s.bus.Publish(events.Notification{
			Kind:      events.KindData,
			SessionID: id,
			Timestamp: s.clock.Now(),
			Data:      []byte(strings.Join(lines, "\r\n")),
			Replay:    true,
		})
	}); doErr != nil {
		return doErr
	}
	return err
}

// Transition is an externally requested agent state change.
type Transition struct {
	Event   agentstate.Event
	Trigger agentstate.Trigger
	// Confidence overrides the default for Trigger when set.
	Confidence *float64
	// Message is recorded for error events.
	Message string
	// Token, when non-zero, must match the session's current token.
	Token int64
}

// TransitionState applies t to the session. It returns false, without
// touching state, if the session does not exist or t carries a stale token.
func (s *Supervisor) TransitionState(id string, t Transition) bool {
	var accepted bool
	_ = s.do(func() {
		sess := s.registry.get(id)
		if sess == nil {
			return
		}
		if t.Token != 0 && t.Token != sess.Token {
			s.stale("transition", id)
			return
		}
		accepted = true
		s.transition(sess, t.Event, t.Trigger, t.Confidence, t.Message)
	})
	return accepted
}

// Len returns the number of live sessions.
func (s *Supervisor) Len() int {
	var n int
	_ = s.do(func() {
		n = s.registry.len()
	})
	return n
}

// Sync waits until every operation queued so far has run.
func (s *Supervisor) Sync() error {
	return s.do(func() {})
}

// Dispose kills every session, cancels all timers and stops the loop.
func (s *Supervisor) Dispose() {
	_ = s.do(func() {
		if s.disposed {
			return
		}
		s.disposed = true
		if s.floodTimer != nil {
			s.floodTimer.Stop()
			s.floodTimer = nil
		}
		for _, id := range s.registry.ids() {
			s.kill(s.registry.get(id), ReasonShutdown)
		}
		s.trash.Close()
	})
	s.quitOnce.Do(func() { close(s.quit) })
	<-s.stopped

	drained := make(chan struct{})
	go func() {
		s.readers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(s.cfg.DrainTimeout):
		s.logger.Warn("Process goroutines still running after dispose")
	}
}

func (s *Supervisor) armFloodSampler() {
	if s.disposed {
		return
	}
	s.floodTimer = s.clock.AfterFunc(s.cfg.FloodInterval, func() {
		if s.disposed {
			return
		}
		now := s.clock.Now()
		for _, id := range s.registry.ids() {
			s.registry.get(id).Flow.Sample(now)
		}
		s.armFloodSampler()
	})
}

func (s *Supervisor) onTrashExpired(id string) {
	sess := s.registry.get(id)
	if sess == nil {
		return
	}
	s.logger.Info("Trash expired", zap.String("session_id", id))
	s.kill(sess, ReasonTrashExpired)
}

func (s *Supervisor) stale(source, id string) {
	s.metrics.RecordStale(source)
	s.logger.Debug("Discarding stale callback",
		zap.String("source", source),
		zap.String("session_id", id))
}
