package ws

import (
	"github.com/GriffinCanCode/termvisor/internal/domain/events"
)

// Frame types sent to clients besides the notification kinds.
const (
	TypeSystem = "system"
	TypePong   = "pong"
)

// Inbound frame types.
const (
	TypeWrite  = "write"
	TypeResize = "resize"
	TypePing   = "ping"
)

// Frame is one outbound message.
type Frame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	// Timestamp is in unix milliseconds.
	Timestamp int64  `json:"timestamp"`
	Data      string `json:"data,omitempty"`
	Replay    bool   `json:"replay,omitempty"`
	Code      *int   `json:"code,omitempty"`
	Killed    bool   `json:"killed,omitempty"`
	Message   string `json:"message,omitempty"`
	Warning   string `json:"warning,omitempty"`
	ConnID    string `json:"conn_id,omitempty"`

	// agent
	Event   events.Type        `json:"event,omitempty"`
	Payload events.DomainEvent `json:"payload,omitempty"`
}

// Inbound is one message from a client.
type Inbound struct {
	Type      string  `json:"type"`
	SessionID string  `json:"session_id"`
	Data      string  `json:"data"`
	Cols      float64 `json:"cols"`
	Rows      float64 `json:"rows"`
	TraceID   string  `json:"trace_id"`
}

// FromNotification converts n into its wire frame.
func FromNotification(n events.Notification) Frame {
	f := Frame{
		Type:      string(n.Kind),
		SessionID: n.SessionID,
		Timestamp: n.Timestamp.UnixMilli(),
		Message:   n.Message,
	}
	switch n.Kind {
	case events.KindData:
		f.Data = string(n.Data)
		f.Replay = n.Replay
	case events.KindExit:
		code := n.Code
		f.Code = &code
		f.Killed = n.Killed
	case events.KindWarning:
		f.Warning = n.Warning
	case events.KindAgent:
		if n.Event != nil {
			f.Event = n.Event.Type()
			f.Payload = n.Event
		}
	}
	return f
}
