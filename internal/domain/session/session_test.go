package session

import (
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/termvisor/internal/domain/agentstate"
)

func TestTranscriptKeepsTail(t *testing.T) {
	tr := NewTranscript(10)

	_, _ = tr.Write([]byte("hello "))
	_, _ = tr.Write([]byte("world!!"))

	assert.Equal(t, "lo world!!", tr.String())
	assert.Equal(t, 10, tr.Len())
}

func TestTranscriptTrimsOnRuneBoundary(t *testing.T) {
	tr := NewTranscript(5)

	_, _ = tr.Write([]byte("ab世界"))

	assert.True(t, utf8.Valid(tr.Bytes()))
	assert.Equal(t, "界", tr.String())
}

func TestSemanticBuffer(t *testing.T) {
	tests := []struct {
		name     string
		writes   []string
		expected []string
	}{
		{
			name:     "splits lines",
			writes:   []string{"one\ntwo\n"},
			expected: []string{"one", "two"},
		},
		{
			name:     "joins writes across a line",
			writes:   []string{"hel", "lo\nwor", "ld\n"},
			expected: []string{"hello", "world"},
		},
		{
			name:     "strips ansi",
			writes:   []string{"\x1b[1;32mgreen\x1b[0m text\r\n"},
			expected: []string{"green text"},
		},
		{
			name:     "carriage return keeps the last segment",
			writes:   []string{"progress 10%\rprogress 55%\rprogress 100%\n"},
			expected: []string{"progress 100%"},
		},
		{
			name:     "crlf split across writes",
			writes:   []string{"done\r", "\n"},
			expected: []string{"done"},
		},
		{
			name:     "repeated carriage returns before newline",
			writes:   []string{"a\r\r\n"},
			expected: []string{"a"},
		},
		{
			name:     "partial line is visible",
			writes:   []string{"done\n$ "},
			expected: []string{"done", "$ "},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSemanticBuffer(50, 1000)
			for _, w := range tt.writes {
				_, _ = s.Write([]byte(w))
			}
			assert.Equal(t, tt.expected, s.Lines(0))
		})
	}
}

func TestSemanticBufferBounds(t *testing.T) {
	s := NewSemanticBuffer(3, 5)

	for _, line := range []string{"a", "b", "c", "d", "abcdefghij"} {
		_, _ = s.Write([]byte(line + "\n"))
	}

	assert.Equal(t, []string{"c", "d", "abcde"}, s.Lines(0))
	assert.Equal(t, []string{"abcde"}, s.Lines(1))
	assert.Equal(t, 3, s.Len())

	_, _ = s.Write([]byte(strings.Repeat("x", 1000)))
	lines := s.Lines(0)
	assert.Equal(t, "xxxxx", lines[len(lines)-1])
}

func TestSemanticBufferSpinnerKeepsUpdating(t *testing.T) {
	s := NewSemanticBuffer(50, 1000)

	for i := 0; i < 3000; i++ {
		_, _ = fmt.Fprintf(s, "\rprogress %5d%%", i)
	}
	assert.Equal(t, []string{"progress  2999%"}, s.Lines(0))

	// A long line without carriage returns is still reset by a later one.
	_, _ = s.Write([]byte(strings.Repeat("y", 20000)))
	_, _ = s.Write([]byte("\rfinished\r\n"))
	assert.Equal(t, []string{"finished"}, s.Lines(0))
}

func TestAlignHoldsSplitRunes(t *testing.T) {
	tests := []struct {
		name  string
		reads []string
		want  []string
		rest  string
	}{
		{"ascii passes through", []string{"abc"}, []string{"abc"}, ""},
		{"three byte rune split", []string{"cost \xe2\x82", "\xac 5"}, []string{"cost ", "\xe2\x82\xac 5"}, ""},
		{"four byte rune split twice", []string{"\xf0\x9f", "\x98", "\x80!"}, []string{"", "", "\xf0\x9f\x98\x80!"}, ""},
		{"incomplete at end is held", []string{"x\xe2"}, []string{"x"}, "\xe2"},
		{"invalid bytes are not held", []string{"bad \xff"}, []string{"bad \xff"}, ""},
		{"stray continuation is not held", []string{"a\x80"}, []string{"a\x80"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := New("t1", 1, time.Unix(0, 0), Options{}, nil, Buffers{})
			var got []string
			for _, r := range tt.reads {
				got = append(got, string(sess.Align([]byte(r))))
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.rest, string(sess.Remainder()))
			assert.Empty(t, sess.Remainder())
		})
	}
}

func TestIsRedraw(t *testing.T) {
	assert.True(t, IsRedraw([]byte("\x1b[2J")))
	assert.True(t, IsRedraw([]byte("text\x1b[3J")))
	assert.True(t, IsRedraw([]byte("\x1b[H\x1b[Kprompt")))
	assert.True(t, IsRedraw([]byte("\x1b[1;1H")))
	assert.True(t, IsRedraw([]byte("\x1bc")))
	assert.False(t, IsRedraw([]byte("\x1b[31mred")))
	assert.False(t, IsRedraw([]byte("plain [2J")))
}

func TestNewSessionDefaults(t *testing.T) {
	now := time.Unix(100, 0)

	s := New("t1", now.UnixNano(), now, Options{AgentID: "agent-1"}, nil, Buffers{})

	assert.Equal(t, KindAgent, s.Kind)
	assert.True(t, s.IsAgent())
	assert.Equal(t, agentstate.Idle, s.Agent.State)
	assert.Equal(t, now, s.LastCheck)

	shell := New("t2", now.UnixNano(), now, Options{}, nil, Buffers{})
	assert.Equal(t, KindShell, shell.Kind)
}

func TestOptionsCustom(t *testing.T) {
	assert.False(t, Options{Namespace: "proj", Cols: 120}.Custom())
	assert.True(t, Options{Shell: "/bin/zsh"}.Custom())
	assert.True(t, Options{Args: []string{"-l"}}.Custom())
	assert.True(t, Options{Env: map[string]string{"A": "1"}}.Custom())
	assert.True(t, Options{Kind: KindAgent}.Custom())
}

func TestTimestampsAreMonotonic(t *testing.T) {
	start := time.Unix(100, 0)
	s := New("t1", 1, start, Options{}, nil, Buffers{})

	s.TouchInput(start.Add(2 * time.Second))
	s.TouchInput(start.Add(time.Second))
	assert.Equal(t, start.Add(2*time.Second), s.LastInput)

	s.Record([]byte("x"), start.Add(3*time.Second))
	s.Record([]byte("y"), start)
	assert.Equal(t, start.Add(3*time.Second), s.LastOutput)

	s.TouchCheck(start.Add(-time.Second))
	assert.Equal(t, start, s.LastCheck)
}

func TestApply(t *testing.T) {
	now := time.Unix(100, 0)
	s := New("t1", 1, now, Options{Kind: KindAgent}, nil, Buffers{})

	prev, changed := s.Apply(agentstate.EventStart, agentstate.TriggerActivity, 1, "", now.Add(time.Second))
	require.True(t, changed)
	assert.Equal(t, agentstate.Idle, prev)
	assert.Equal(t, agentstate.Working, s.Agent.State)
	assert.Equal(t, now.Add(time.Second), s.Agent.LastStateChange)

	_, changed = s.Apply(agentstate.EventError, agentstate.TriggerActivity, 1, "boom", now.Add(2*time.Second))
	assert.True(t, changed)
	assert.Equal(t, "boom", s.Agent.LastError)

	_, changed = s.Apply(agentstate.EventError, agentstate.TriggerActivity, 1, "worse", now.Add(3*time.Second))
	assert.False(t, changed)
	assert.Equal(t, "worse", s.Agent.LastError)
	assert.Equal(t, agentstate.Failed, s.Agent.State)
}

func TestSnapshot(t *testing.T) {
	now := time.Unix(100, 0)
	s := New("t1", 42, now, Options{Namespace: "proj", Cols: 80, Rows: 24}, nil, Buffers{})
	s.Record([]byte("hi\n"), now)

	snap := s.Snapshot()
	assert.Equal(t, "t1", snap.ID)
	assert.Equal(t, int64(42), snap.Token)
	assert.Equal(t, "proj", snap.Namespace)
	assert.Equal(t, []string{"hi"}, snap.Lines)
	assert.Equal(t, agentstate.Idle, snap.State)
	assert.Zero(t, snap.Pid)
}
