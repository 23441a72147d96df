// Package agentstate holds the pure agent activity state machine: states,
// events, triggers and confidence scoring. It has no timers and no I/O.
package agentstate

import (
	"fmt"
	"math"
)

// State is the coarse activity state of an agent session.
type State string

const (
	Idle    State = "idle"
	Working State = "working"
	Waiting State = "waiting"
	Failed  State = "failed"
	Exited  State = "exited"
)

// Event is an input to the state machine.
type Event string

const (
	EventStart  Event = "start"
	EventInput  Event = "input"
	EventBusy   Event = "busy"
	EventPrompt Event = "prompt"
	EventExit   Event = "exit"
	EventError  Event = "error"
)

// Trigger names the source that caused a transition.
type Trigger string

const (
	TriggerInput            Trigger = "input"
	TriggerOutput           Trigger = "output"
	TriggerActivity         Trigger = "activity"
	TriggerExit             Trigger = "exit"
	TriggerHeuristic        Trigger = "heuristic"
	TriggerAIClassification Trigger = "ai-classification"
	TriggerTimeout          Trigger = "timeout"
)

// ParseState validates a wire state name.
func ParseState(s string) (State, error) {
	switch st := State(s); st {
	case Idle, Working, Waiting, Failed, Exited:
		return st, nil
	}
	return "", fmt.Errorf("unknown agent state: %q", s)
}

// ParseEvent validates a wire event name. "output-busy" and "output-idle"
// are accepted as aliases of busy and prompt.
func ParseEvent(s string) (Event, error) {
	switch s {
	case "output-busy":
		return EventBusy, nil
	case "output-idle":
		return EventPrompt, nil
	}
	switch e := Event(s); e {
	case EventStart, EventInput, EventBusy, EventPrompt, EventExit, EventError:
		return e, nil
	}
	return "", fmt.Errorf("unknown agent event: %q", s)
}

// ParseTrigger validates a wire trigger name. An empty name is accepted and
// resolved later from the event.
func ParseTrigger(s string) (Trigger, error) {
	switch t := Trigger(s); t {
	case "", TriggerInput, TriggerOutput, TriggerActivity, TriggerExit,
		TriggerHeuristic, TriggerAIClassification, TriggerTimeout:
		return t, nil
	}
	return "", fmt.Errorf("unknown trigger: %q", s)
}

// Next returns the state that follows current on event. It is total: unknown
// states and events leave the state unchanged.
func Next(current State, event Event) State {
	if current == Exited {
		return Exited
	}

	switch event {
	case EventExit:
		return Exited
	case EventError:
		return Failed
	case EventStart:
		return Working
	case EventInput, EventBusy:
		if current == Failed {
			return Failed
		}
		return Working
	case EventPrompt:
		switch current {
		case Working, Waiting:
			return Waiting
		default:
			return current
		}
	}
	return current
}

// DefaultTrigger is the trigger attributed to event when the caller names none.
func DefaultTrigger(event Event) Trigger {
	switch event {
	case EventInput:
		return TriggerInput
	case EventExit:
		return TriggerExit
	default:
		return TriggerActivity
	}
}

// Confidence is the default confidence for a transition caused by event via
// trigger.
func Confidence(trigger Trigger, event Event) float64 {
	switch trigger {
	case TriggerInput, TriggerOutput, TriggerActivity, TriggerExit:
		return 1.0
	case TriggerHeuristic:
		switch event {
		case EventBusy:
			return 0.9
		case EventPrompt:
			return 0.75
		case EventStart:
			return 0.7
		case EventError:
			return 0.65
		default:
			return 0.5
		}
	case TriggerAIClassification:
		return 0.85
	case TriggerTimeout:
		return 0.6
	default:
		return 0.5
	}
}

// Resolve fills in the trigger and confidence for a transition. A nil or NaN
// override takes the default; other overrides are clamped to [0, 1].
func Resolve(event Event, trigger Trigger, override *float64) (Trigger, float64) {
	if trigger == "" {
		trigger = DefaultTrigger(event)
	}
	if override == nil || math.IsNaN(*override) {
		return trigger, Confidence(trigger, event)
	}
	return trigger, math.Max(0, math.Min(1, *override))
}
