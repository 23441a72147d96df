// Package events defines what the supervisor pushes to its consumers: raw
// session notifications and typed agent domain events, plus the Bus that
// fans them out to subscribers.
package events

import (
	"fmt"
	"time"
)

// Kind is a notification channel.
type Kind string

const (
	KindData    Kind = "data"
	KindExit    Kind = "exit"
	KindError   Kind = "error"
	KindWarning Kind = "warning"
	KindAgent   Kind = "agent"
)

// ParseKind validates a wire kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindData, KindExit, KindError, KindWarning, KindAgent:
		return k, nil
	}
	return "", fmt.Errorf("unknown notification kind: %q", s)
}

// Notification is one push to consumers. Which fields are set depends on
// Kind.
type Notification struct {
	Kind      Kind
	SessionID string
	Timestamp time.Time

	// data
	Data   []byte
	Replay bool

	// exit
	Code   int
	Killed bool

	// error, warning
	Message string
	// warning
	Warning string

	// agent
	Event DomainEvent
}

// Type names a domain event.
type Type string

const (
	TypeSpawned      Type = "agent:spawned"
	TypeStateChanged Type = "agent:state-changed"
	TypeOutput       Type = "agent:output"
	TypeCompleted    Type = "agent:completed"
	TypeFailed       Type = "agent:failed"
	TypeKilled       Type = "agent:killed"
)

// DomainEvent is implemented by every agent event variant.
type DomainEvent interface {
	Type() Type
	Header() Base
}

// Base carries the fields shared by every domain event.
type Base struct {
	AgentID    string `json:"agentId" validate:"required"`
	TerminalID string `json:"terminalId" validate:"required"`
	// Timestamp is in unix milliseconds.
	Timestamp  int64  `json:"timestamp" validate:"gt=0"`
	TraceID    string `json:"traceId,omitempty"`
	WorktreeID string `json:"worktreeId,omitempty"`
}

// Header returns the shared fields.
func (b Base) Header() Base { return b }

// NewBase fills the shared fields at now.
func NewBase(agentID, terminalID, traceID, worktreeID string, now time.Time) Base {
	return Base{
		AgentID:    agentID,
		TerminalID: terminalID,
		Timestamp:  now.UnixMilli(),
		TraceID:    traceID,
		WorktreeID: worktreeID,
	}
}

// Spawned is emitted once an agent session is running.
type Spawned struct {
	Base
}

func (Spawned) Type() Type { return TypeSpawned }

// StateChanged is emitted on every agent state change.
type StateChanged struct {
	Base
	State         string  `json:"state" validate:"oneof=idle working waiting failed exited"`
	PreviousState string  `json:"previousState" validate:"oneof=idle working waiting failed exited"`
	Trigger       string  `json:"trigger" validate:"oneof=input output activity exit heuristic ai-classification timeout"`
	Confidence    float64 `json:"confidence" validate:"gte=0,lte=1"`
}

func (StateChanged) Type() Type { return TypeStateChanged }

// Output is emitted once per delivered payload of an agent session.
type Output struct {
	Base
	Bytes int `json:"bytes" validate:"gt=0"`
}

func (Output) Type() Type { return TypeOutput }

// Completed is emitted when an agent exits on its own without failing.
type Completed struct {
	Base
	ExitCode   int   `json:"exitCode"`
	DurationMs int64 `json:"durationMs" validate:"gte=0"`
}

func (Completed) Type() Type { return TypeCompleted }

// Failed is emitted when an agent enters the failed state.
type Failed struct {
	Base
	Error string `json:"error" validate:"required"`
}

func (Failed) Type() Type { return TypeFailed }

// Killed is emitted when an agent session is killed on request.
type Killed struct {
	Base
	Reason string `json:"reason,omitempty"`
}

func (Killed) Type() Type { return TypeKilled }
