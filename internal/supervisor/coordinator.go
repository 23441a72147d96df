package supervisor

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/termvisor/internal/domain/agentstate"
	"github.com/GriffinCanCode/termvisor/internal/domain/events"
	"github.com/GriffinCanCode/termvisor/internal/domain/process"
	"github.com/GriffinCanCode/termvisor/internal/domain/session"
)

// tracked reports whether sess takes part in agent state tracking: either it
// was spawned as an agent or the process tree showed one running in it.
func tracked(sess *session.Session) bool {
	return sess.IsAgent() || sess.DetectedAgent != ""
}

// transition runs event through the state machine and publishes the result.
// Runs on the loop.
func (s *Supervisor) transition(sess *session.Session, event agentstate.Event, trigger agentstate.Trigger, confidence *float64, message string) {
	trigger, conf := agentstate.Resolve(event, trigger, confidence)
	prev, changed := sess.Apply(event, trigger, conf, message, s.clock.Now())
	if !changed {
		return
	}

	next := sess.Agent.State
	s.metrics.RecordTransition(string(next), string(trigger))
	s.logger.Debug("Agent state changed",
		zap.String("session_id", sess.ID),
		zap.String("from", string(prev)),
		zap.String("to", string(next)),
		zap.String("trigger", string(trigger)),
		zap.Float64("confidence", conf))

	if !sess.IsAgent() {
		return
	}
	s.emit(sess, events.StateChanged{
		Base:          s.base(sess),
		State:         string(next),
		PreviousState: string(prev),
		Trigger:       string(trigger),
		Confidence:    conf,
	})
	if next == agentstate.Failed {
		reason := sess.Agent.LastError
		if reason == "" {
			reason = "agent reported an error"
		}
		s.emit(sess, events.Failed{Base: s.base(sess), Error: reason})
	}
}

func (s *Supervisor) base(sess *session.Session) events.Base {
	return events.NewBase(sess.AgentID, sess.ID, sess.TraceID, sess.WorktreeID, s.clock.Now())
}

// emit publishes a domain event for an agent session. Events that fail
// validation are counted and logged by the bus.
func (s *Supervisor) emit(sess *session.Session, ev events.DomainEvent) {
	_ = s.bus.PublishAgent(sess.ID, ev)
}

func (s *Supervisor) onDetection(id string, token int64, d process.Detection) {
	sess := s.registry.lookup(id, token)
	if sess == nil {
		s.stale("detector", id)
		return
	}

	switch {
	case d.Detected && d.AgentType != sess.DetectedAgent:
		s.logger.Info("Agent detected in session",
			zap.String("session_id", id),
			zap.String("agent", d.AgentType),
			zap.String("process", d.ProcessName))
		sess.DetectedAgent = d.AgentType
	case !d.Detected && sess.DetectedAgent != "":
		s.logger.Info("Agent left session",
			zap.String("session_id", id),
			zap.String("agent", sess.DetectedAgent))
		sess.DetectedAgent = ""
	}

	if d.IsBusy == nil || !tracked(sess) {
		return
	}
	event := agentstate.EventPrompt
	if *d.IsBusy {
		event = agentstate.EventBusy
	}
	s.transition(sess, event, agentstate.TriggerHeuristic, nil, "")
}

func (s *Supervisor) onActivity(id string, token int64, a process.Activity) {
	sess := s.registry.lookup(id, token)
	if sess == nil {
		s.stale("activity", id)
		return
	}
	if !tracked(sess) {
		return
	}

	event := agentstate.EventPrompt
	if a.Busy {
		event = agentstate.EventBusy
	}
	s.transition(sess, event, agentstate.TriggerActivity, nil, "")
}
