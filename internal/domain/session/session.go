package session

import (
	"time"

	"github.com/GriffinCanCode/termvisor/internal/domain/agentstate"
	"github.com/GriffinCanCode/termvisor/internal/domain/flow"
	"github.com/GriffinCanCode/termvisor/internal/domain/process"
)

// Kind says whether a session is a plain shell or runs a managed agent.
type Kind string

const (
	KindShell Kind = "shell"
	KindAgent Kind = "agent"
)

// Options describes a session to spawn.
type Options struct {
	Kind       Kind              `json:"kind,omitempty" yaml:"kind"`
	AgentID    string            `json:"agent_id,omitempty" yaml:"agent_id"`
	Namespace  string            `json:"namespace,omitempty" yaml:"namespace"`
	WorktreeID string            `json:"worktree_id,omitempty" yaml:"worktree_id"`
	TraceID    string            `json:"trace_id,omitempty" yaml:"trace_id"`
	Shell      string            `json:"shell,omitempty" yaml:"shell"`
	Args       []string          `json:"args,omitempty" yaml:"args"`
	Dir        string            `json:"dir,omitempty" yaml:"dir"`
	Env        map[string]string `json:"env,omitempty" yaml:"env"`
	Cols       int               `json:"cols,omitempty" yaml:"cols"`
	Rows       int               `json:"rows,omitempty" yaml:"rows"`
	Tier       flow.Tier         `json:"-" yaml:"-"`
}

// IsAgent reports whether the options describe an agent-managed session.
func (o Options) IsAgent() bool {
	return o.Kind == KindAgent || o.AgentID != ""
}

// Custom reports whether the options need anything beyond the default shell,
// which rules out handing the session a pre-warmed process.
func (o Options) Custom() bool {
	return o.Shell != "" || len(o.Args) > 0 || len(o.Env) > 0 || o.Dir != "" || o.IsAgent()
}

// AgentStatus is the agent state of a session together with how it got there.
type AgentStatus struct {
	State           agentstate.State
	LastStateChange time.Time
	LastError       string
	Trigger         agentstate.Trigger
	Confidence      float64
}

// Buffers configures the per-session output buffers.
type Buffers struct {
	TranscriptSize int
	SemanticLines  int
	LineRunes      int
}

// Session is one live process and everything the supervisor tracks about it.
// It is owned by the supervisor loop and is not safe for concurrent use.
type Session struct {
	ID        string
	Token     int64
	SpawnedAt time.Time

	Kind       Kind
	AgentID    string
	Namespace  string
	WorktreeID string
	TraceID    string
	Cols       int
	Rows       int

	Handle process.Handle

	Transcript *Transcript
	Semantic   *SemanticBuffer

	LastInput  time.Time
	LastOutput time.Time
	LastCheck  time.Time

	Agent         AgentStatus
	DetectedAgent string
	Killed        bool

	Flow  *flow.Controller
	Input *flow.InputQueue

	Detector process.Detector
	Activity process.ActivityMonitor

	// carry is an incomplete UTF-8 sequence held back from the last read.
	carry []byte
}

// New creates the session record for a freshly started handle.
func New(id string, token int64, spawnedAt time.Time, opts Options, handle process.Handle, buffers Buffers) *Session {
	kind := opts.Kind
	if kind == "" {
		kind = KindShell
		if opts.AgentID != "" {
			kind = KindAgent
		}
	}

	s := &Session{
		ID:         id,
		Token:      token,
		SpawnedAt:  spawnedAt,
		Kind:       kind,
		AgentID:    opts.AgentID,
		Namespace:  opts.Namespace,
		WorktreeID: opts.WorktreeID,
		TraceID:    opts.TraceID,
		Cols:       opts.Cols,
		Rows:       opts.Rows,
		Handle:     handle,
		Transcript: NewTranscript(buffers.TranscriptSize),
		Semantic:   NewSemanticBuffer(buffers.SemanticLines, buffers.LineRunes),
		LastCheck:  spawnedAt,
		Agent: AgentStatus{
			State:           agentstate.Idle,
			LastStateChange: spawnedAt,
		},
	}
	return s
}

// IsAgent reports whether the session runs a managed agent.
func (s *Session) IsAgent() bool {
	return s.Kind == KindAgent
}

// Record captures output into the transcript and semantic buffers and
// advances LastOutput.
func (s *Session) Record(data []byte, now time.Time) {
	_, _ = s.Transcript.Write(data)
	_, _ = s.Semantic.Write(data)
	s.LastOutput = later(s.LastOutput, now)
}

// Align prepends bytes held back by the previous call and holds back an
// incomplete UTF-8 sequence at the end of data, so delivered payloads never
// split a rune.
func (s *Session) Align(data []byte) []byte {
	if len(s.carry) > 0 {
		data = append(s.carry, data...)
		s.carry = nil
	}
	if cut := incompleteTail(data); cut < len(data) {
		s.carry = append([]byte(nil), data[cut:]...)
		data = data[:cut]
	}
	return data
}

// Remainder returns and clears the bytes Align is holding back.
func (s *Session) Remainder() []byte {
	rest := s.carry
	s.carry = nil
	return rest
}

// TouchInput advances LastInput.
func (s *Session) TouchInput(now time.Time) {
	s.LastInput = later(s.LastInput, now)
}

// TouchCheck advances LastCheck.
func (s *Session) TouchCheck(now time.Time) {
	s.LastCheck = later(s.LastCheck, now)
}

// Apply runs event through the state machine. It returns the previous state
// and whether the state changed. An error event always records its message.
func (s *Session) Apply(event agentstate.Event, trigger agentstate.Trigger, confidence float64, message string, now time.Time) (agentstate.State, bool) {
	prev := s.Agent.State
	if event == agentstate.EventError && message != "" && prev != agentstate.Exited {
		s.Agent.LastError = message
	}

	next := agentstate.Next(prev, event)
	if next == prev {
		return prev, false
	}

	s.Agent.State = next
	s.Agent.LastStateChange = later(s.Agent.LastStateChange, now)
	s.Agent.Trigger = trigger
	s.Agent.Confidence = confidence
	return prev, true
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	ID            string             `json:"id"`
	Token         int64              `json:"token"`
	SpawnedAt     time.Time          `json:"spawned_at"`
	Kind          Kind               `json:"kind"`
	AgentID       string             `json:"agent_id,omitempty"`
	Namespace     string             `json:"namespace,omitempty"`
	WorktreeID    string             `json:"worktree_id,omitempty"`
	Pid           int                `json:"pid"`
	Cols          int                `json:"cols"`
	Rows          int                `json:"rows"`
	Lines         []string           `json:"lines"`
	LastInput     time.Time          `json:"last_input"`
	LastOutput    time.Time          `json:"last_output"`
	LastCheck     time.Time          `json:"last_check"`
	State         agentstate.State   `json:"state"`
	StateChanged  time.Time          `json:"state_changed"`
	Trigger       agentstate.Trigger `json:"trigger,omitempty"`
	Confidence    float64            `json:"confidence"`
	LastError     string             `json:"last_error,omitempty"`
	DetectedAgent string             `json:"detected_agent,omitempty"`
	Tier          string             `json:"tier"`
	Watermark     string             `json:"watermark"`
	Queued        int                `json:"queued"`
	Paused        bool               `json:"paused"`
	InTrash       bool               `json:"in_trash"`
	TrashExpires  *time.Time         `json:"trash_expires,omitempty"`
}

// Snapshot builds a view of the session.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		ID:            s.ID,
		Token:         s.Token,
		SpawnedAt:     s.SpawnedAt,
		Kind:          s.Kind,
		AgentID:       s.AgentID,
		Namespace:     s.Namespace,
		WorktreeID:    s.WorktreeID,
		Cols:          s.Cols,
		Rows:          s.Rows,
		Lines:         s.Semantic.Lines(0),
		LastInput:     s.LastInput,
		LastOutput:    s.LastOutput,
		LastCheck:     s.LastCheck,
		State:         s.Agent.State,
		StateChanged:  s.Agent.LastStateChange,
		Trigger:       s.Agent.Trigger,
		Confidence:    s.Agent.Confidence,
		LastError:     s.Agent.LastError,
		DetectedAgent: s.DetectedAgent,
	}
	if s.Handle != nil {
		snap.Pid = s.Handle.Pid()
	}
	if s.Flow != nil {
		st := s.Flow.State()
		snap.Tier = st.Tier.String()
		snap.Watermark = st.Watermark.String()
		snap.Queued = st.Queued
		snap.Paused = st.Paused
	}
	return snap
}

func later(prev, now time.Time) time.Time {
	if now.After(prev) {
		return now
	}
	return prev
}
