package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/termvisor/internal/domain/agentstate"
	"github.com/GriffinCanCode/termvisor/internal/domain/events"
	"github.com/GriffinCanCode/termvisor/internal/domain/flow"
	"github.com/GriffinCanCode/termvisor/internal/domain/process"
	"github.com/GriffinCanCode/termvisor/internal/domain/session"
	"github.com/GriffinCanCode/termvisor/internal/infrastructure/monitoring"
)

// Spawn starts a session under id, replacing any live session with the same
// id. Default shells are taken from the warm pool when one is available.
func (s *Supervisor) Spawn(ctx context.Context, id string, opts session.Options) error {
	if id == "" {
		return fmt.Errorf("%w: empty session id", ErrSpawnFailed)
	}
	if opts.Cols <= 0 {
		opts.Cols = DefaultCols
	}
	if opts.Rows <= 0 {
		opts.Rows = DefaultRows
	}
	if opts.Kind == "" && opts.AgentID != "" {
		opts.Kind = session.KindAgent
	}

	timer := monitoring.NewTimer(s.metrics)
	handle, source, err := s.acquire(ctx, id, opts)
	if err != nil {
		timer.Stop("error")
		err = fmt.Errorf("%w: %s: %v", ErrSpawnFailed, id, err)
		s.logger.Error("Spawn failed", zap.String("session_id", id), zap.Error(err))
		s.bus.Publish(events.Notification{
			Kind:      events.KindError,
			SessionID: id,
			Timestamp: s.clock.Now(),
			Message:   err.Error(),
		})
		return err
	}
	timer.Stop("ok")

	var regErr error
	if doErr := s.do(func() {
		if s.disposed {
			regErr = ErrClosed
			return
		}
		s.register(id, opts, handle, source)
	}); doErr != nil {
		regErr = doErr
	}
	if regErr != nil {
		_ = handle.Kill()
		return regErr
	}
	return nil
}

// acquire returns a process for opts: a pooled default shell when possible,
// otherwise a fresh spawn. A pooled handle that cannot be resized is
// discarded in favour of a fresh spawn.
func (s *Supervisor) acquire(ctx context.Context, id string, opts session.Options) (process.Handle, string, error) {
	if s.deps.Pool != nil && !opts.Custom() {
		if h := s.deps.Pool.Acquire(); h != nil {
			err := h.Resize(opts.Cols, opts.Rows)
			if err == nil {
				return h, "pool", nil
			}
			s.logger.Debug("Discarding pooled process",
				zap.String("session_id", id),
				zap.Int("pid", h.Pid()),
				zap.Error(err))
			s.metrics.IncPoolFallbacks()
			_ = h.Kill()
		}
	}

	h, err := s.deps.Spawner.Spawn(ctx, process.Spec{
		Shell: opts.Shell,
		Args:  opts.Args,
		Dir:   opts.Dir,
		Env:   opts.Env,
		Cols:  opts.Cols,
		Rows:  opts.Rows,
	})
	if err != nil {
		return nil, "", err
	}
	return h, "spawn", nil
}

// register wires a started handle into a new session. Runs on the loop.
func (s *Supervisor) register(id string, opts session.Options, handle process.Handle, source string) {
	if old := s.registry.get(id); old != nil {
		s.logger.Info("Replacing session", zap.String("session_id", id))
		s.kill(old, ReasonReplaced)
	}

	now := s.clock.Now()
	sess := session.New(id, s.nextToken(now), now, opts, handle, s.cfg.Buffers)

	sess.Flow = flow.NewController(id, s.cfg.Flow, s.clock, opts.Tier, s.flowHooks(sess))
	sess.Input = flow.NewInputQueue(s.clock, s.cfg.Input, func(p []byte) error {
		_, err := handle.Write(p)
		return err
	}, func(err error) {
		s.logger.Warn("Deferred input write failed", zap.String("session_id", id), zap.Error(err))
		s.bus.Publish(events.Notification{
			Kind:      events.KindError,
			SessionID: id,
			Timestamp: s.clock.Now(),
			Message:   err.Error(),
		})
	})

	token := sess.Token
	if s.deps.Detectors != nil {
		sess.Detector = s.deps.Detectors(id, handle.Pid(), func(d process.Detection) {
			s.post(func() { s.onDetection(id, token, d) })
		})
	}
	if sess.IsAgent() && s.deps.Activity != nil {
		// Only the idle timer reports here, from its own goroutine.
		sess.Activity = s.deps.Activity(id, func(a process.Activity) {
			s.post(func() { s.onActivity(id, token, a) })
		})
	}

	s.registry.add(sess)
	s.metrics.RecordSpawn(source)
	s.metrics.SetSessionsActive(s.registry.len())
	s.logger.Info("Session spawned",
		zap.String("session_id", id),
		zap.Int("pid", handle.Pid()),
		zap.String("source", source),
		zap.String("kind", string(sess.Kind)),
		zap.String("namespace", sess.Namespace))

	s.startIO(id, token, handle)

	if sess.IsAgent() {
		s.emit(sess, events.Spawned{Base: s.base(sess)})
		s.transition(sess, agentstate.EventStart, agentstate.TriggerActivity, nil, "")
	}
}

// nextToken derives a session token from the spawn time, bumped so that
// tokens strictly increase even when the clock does not.
func (s *Supervisor) nextToken(now time.Time) int64 {
	t := now.UnixNano()
	if t <= s.lastToken {
		t = s.lastToken + 1
	}
	s.lastToken = t
	return t
}

// startIO launches the reader and waiter goroutines for a handle. They only
// post closures onto the loop; every closure re-validates id and token.
func (s *Supervisor) startIO(id string, token int64, handle process.Handle) {
	readDone := make(chan struct{})

	s.readers.Add(2)
	go func() {
		defer s.readers.Done()
		defer close(readDone)

		buf := make([]byte, s.cfg.ReadSize)
		for {
			n, err := handle.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				if !s.post(func() { s.onData(id, token, chunk) }) {
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					s.logger.Debug("Output reader stopped",
						zap.String("session_id", id),
						zap.Error(err))
				}
				return
			}
		}
	}()

	go func() {
		defer s.readers.Done()

		code, err := handle.Wait()
		if err != nil {
			s.logger.Debug("Process wait returned error",
				zap.String("session_id", id),
				zap.Error(err))
		}

		// Output that was already produced is delivered before the exit.
		select {
		case <-readDone:
		case <-time.After(s.cfg.DrainTimeout):
			s.logger.Warn("Output reader did not drain before exit", zap.String("session_id", id))
		}
		s.post(func() { s.onExit(id, token, code) })
	}()
}

func (s *Supervisor) onData(id string, token int64, chunk []byte) {
	sess := s.registry.lookup(id, token)
	if sess == nil {
		s.stale("data", id)
		return
	}

	sess.Record(chunk, s.clock.Now())
	s.metrics.RecordOutput("ingested", len(chunk))
	if sess.Activity != nil && sess.Activity.OnData(len(chunk)) {
		s.onActivity(id, token, process.Activity{Busy: true, At: s.clock.Now()})
	}
	if out := sess.Align(chunk); len(out) > 0 {
		sess.Flow.Append(out, session.IsRedraw(out))
	}
}

// flushOutput delivers everything still pending for sess, including bytes
// held back to complete a rune.
func (s *Supervisor) flushOutput(sess *session.Session) {
	if rest := sess.Remainder(); len(rest) > 0 {
		sess.Flow.Append(rest, false)
	}
	sess.Flow.Flush()
}

func (s *Supervisor) flowHooks(sess *session.Session) flow.Hooks {
	id := sess.ID
	log := s.logger.With(zap.String("session_id", id))

	return flow.Hooks{
		Deliver: func(data []byte) {
			now := s.clock.Now()
			s.metrics.RecordOutput("delivered", len(data))
			s.registry.emitFiltered(sess, data, now)
			if sess.IsAgent() {
				s.emit(sess, events.Output{Base: s.base(sess), Bytes: len(data)})
			}
		},
		Warn: func(w flow.Warning) {
			s.metrics.RecordWarning(w.String())
			log.Warn("Flow warning", zap.String("warning", w.String()))
			s.bus.Publish(events.Notification{
				Kind:      events.KindWarning,
				SessionID: id,
				Timestamp: s.clock.Now(),
				Warning:   w.String(),
				Message:   warningMessage(w),
			})
		},
		Pause: func() error {
			err := sess.Handle.Pause()
			if err != nil {
				log.Warn("Failed to pause flooding process", zap.Error(err))
			}
			return err
		},
		Resume: func() error {
			err := sess.Handle.Resume()
			if err != nil {
				log.Warn("Failed to resume process", zap.Error(err))
			}
			return err
		},
		WatermarkChanged: func(from, to flow.Watermark) {
			s.metrics.RecordWatermark(to.String())
			log.Debug("Watermark changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		Dropped: func(n int, reason flow.DropReason) {
			s.metrics.RecordDropped(string(reason), n)
		},
	}
}

func warningMessage(w flow.Warning) string {
	switch w {
	case flow.WarningOverflow:
		return "Output is arriving faster than it can be displayed; some output was discarded."
	case flow.WarningFlood:
		return "Process paused: output rate exceeded the flood limit."
	case flow.WarningFloodCleared:
		return "Output rate back to normal; process resumed."
	default:
		return w.String()
	}
}

// kill tears sess down on request. Runs on the loop.
func (s *Supervisor) kill(sess *session.Session, reason string) {
	sess.Killed = true
	s.flushOutput(sess)

	s.transition(sess, agentstate.EventExit, agentstate.TriggerExit, nil, "")
	if sess.IsAgent() {
		s.emit(sess, events.Killed{Base: s.base(sess), Reason: reason})
	}
	s.bus.Publish(events.Notification{
		Kind:      events.KindExit,
		SessionID: sess.ID,
		Timestamp: s.clock.Now(),
		Code:      -1,
		Killed:    true,
		Message:   reason,
	})

	s.teardown(sess)
	if err := sess.Handle.Kill(); err != nil {
		s.logger.Debug("Kill returned error",
			zap.String("session_id", sess.ID),
			zap.Error(err))
	}
	outcome := "killed"
	if reason == ReasonTrashExpired {
		outcome = "expired"
	}
	s.metrics.RecordSessionEnd(outcome)
	s.logger.Info("Session killed",
		zap.String("session_id", sess.ID),
		zap.String("reason", reason))
}

// onExit handles the process exiting on its own.
func (s *Supervisor) onExit(id string, token int64, code int) {
	sess := s.registry.lookup(id, token)
	if sess == nil {
		s.stale("exit", id)
		return
	}

	s.flushOutput(sess)
	s.trash.Cancel(id)

	prev := sess.Agent.State
	s.transition(sess, agentstate.EventExit, agentstate.TriggerExit, nil, "")
	outcome := "exited"
	if sess.IsAgent() && !sess.Killed && prev != agentstate.Failed {
		outcome = "completed"
		duration := s.clock.Now().Sub(sess.SpawnedAt)
		if duration < 0 {
			duration = 0
		}
		s.emit(sess, events.Completed{
			Base:       s.base(sess),
			ExitCode:   code,
			DurationMs: duration.Milliseconds(),
		})
	}

	s.bus.Publish(events.Notification{
		Kind:      events.KindExit,
		SessionID: id,
		Timestamp: s.clock.Now(),
		Code:      code,
	})

	s.teardown(sess)
	s.metrics.RecordSessionEnd(outcome)
	s.logger.Info("Session exited",
		zap.String("session_id", id),
		zap.Int("code", code))
}

// teardown removes sess and cancels everything it owns.
func (s *Supervisor) teardown(sess *session.Session) {
	s.registry.delete(sess.ID)
	s.trash.Cancel(sess.ID)
	sess.Flow.Close()
	sess.Input.Close()
	if sess.Detector != nil {
		sess.Detector.Stop()
	}
	if sess.Activity != nil {
		sess.Activity.Stop()
	}
	s.metrics.SetSessionsActive(s.registry.len())
}
