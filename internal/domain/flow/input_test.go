package flow

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/termvisor/internal/shared/clock"
)

func TestChunkInput(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		max      int
		expected []string
	}{
		{name: "empty", input: "", max: 8, expected: nil},
		{name: "short text", input: "ls -la\r", max: 1024, expected: []string{"ls -la\r"}},
		{name: "splits at max", input: "abcdef", max: 4, expected: []string{"abcd", "ef"}},
		{name: "split before escape", input: "ab\x1b[Acd", max: 1024, expected: []string{"ab", "\x1b[Acd"}},
		{name: "adjacent sequences", input: "\x1b[A\x1b[B", max: 1024, expected: []string{"\x1b[A", "\x1b[B"}},
		{name: "long csi kept whole", input: "ab\x1b[38;5;123m", max: 4, expected: []string{"ab", "\x1b[38;5;123m"}},
		{name: "osc with bel", input: "\x1b]0;title\x07rest", max: 1024, expected: []string{"\x1b]0;title\x07rest"}},
		{name: "osc with string terminator", input: "x\x1b]0;t\x1b\\y", max: 1024, expected: []string{"x", "\x1b]0;t\x1b\\y"}},
		{name: "meta prefix", input: "\x1b\x1b[A", max: 1024, expected: []string{"\x1b\x1b[A"}},
		{name: "ss3", input: "\x1bOAz", max: 2, expected: []string{"\x1bOA", "z"}},
		{name: "charset designation", input: "\x1b(B", max: 1, expected: []string{"\x1b(B"}},
		{name: "utf8 runes stay whole", input: "héllo", max: 2, expected: []string{"h", "é", "ll", "o"}},
		{name: "trailing lone escape", input: "a\x1b", max: 1024, expected: []string{"a", "\x1b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := ChunkInput([]byte(tt.input), tt.max)

			var got []string
			for _, c := range chunks {
				got = append(got, string(c))
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestChunkInputPreservesContent(t *testing.T) {
	input := []byte(strings.Repeat("echo 世界 \x1b[1;31mred\x1b[0m \x1b]8;;http://x\x07link\x1b]8;;\x07\r", 200))

	chunks := ChunkInput(input, 64)
	assert.Equal(t, input, bytes.Join(chunks, nil))

	for _, c := range chunks {
		assert.True(t, utf8.Valid(c), "chunk splits a rune: %q", c)
		if bytes.IndexByte(c, esc) > 0 {
			t.Fatalf("escape not at chunk start: %q", c)
		}
		if len(c) > 64 {
			assert.Equal(t, byte(esc), c[0], "oversized chunk must be a single sequence: %q", c)
		}
	}
}

func TestChunkInputDefaultSize(t *testing.T) {
	chunks := ChunkInput(bytes.Repeat([]byte("a"), 3000), 0)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], DefaultInputChunk)
}

type inputSink struct {
	writes [][]byte
	err    error
}

func (s *inputSink) write(b []byte) error {
	if s.err != nil {
		return s.err
	}
	s.writes = append(s.writes, append([]byte(nil), b...))
	return nil
}

func TestInputQueueDrainsInOrder(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	sink := &inputSink{}
	q := NewInputQueue(clk, InputSettings{}, sink.write, nil)

	require.NoError(t, q.Write(bytes.Repeat([]byte("a"), 3000)))
	assert.Len(t, sink.writes, 1)
	assert.Equal(t, 3000-DefaultInputChunk, q.Pending())

	require.NoError(t, q.Write([]byte("b\r")))
	assert.Len(t, sink.writes, 1)

	clk.Advance(DefaultInputInterval)
	assert.Len(t, sink.writes, 2)

	clk.Advance(10 * DefaultInputInterval)
	require.Len(t, sink.writes, 4)
	assert.Equal(t, "b\r", string(sink.writes[3]))
	assert.Zero(t, q.Pending())
	assert.Zero(t, clk.Pending())

	require.NoError(t, q.Write([]byte("c")))
	assert.Len(t, sink.writes, 5)
}

func TestInputQueueSynchronousError(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	sink := &inputSink{err: errors.New("closed")}
	q := NewInputQueue(clk, InputSettings{}, sink.write, nil)

	err := q.Write(bytes.Repeat([]byte("a"), 3000))
	assert.EqualError(t, err, "closed")
	assert.Zero(t, q.Pending())
}

func TestInputQueueDeferredError(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	sink := &inputSink{}
	var reported error
	q := NewInputQueue(clk, InputSettings{ChunkSize: 4}, sink.write, func(err error) { reported = err })

	require.NoError(t, q.Write([]byte("aaaabbbbcccc")))
	sink.err = errors.New("gone")
	clk.Advance(DefaultInputInterval)

	assert.EqualError(t, reported, "gone")
	assert.Zero(t, q.Pending())
}

func TestInputQueueClose(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	sink := &inputSink{}
	q := NewInputQueue(clk, InputSettings{ChunkSize: 4}, sink.write, nil)

	require.NoError(t, q.Write([]byte("aaaabbbb")))
	q.Close()
	clk.Advance(time.Second)

	assert.Len(t, sink.writes, 1)
	assert.NoError(t, q.Write([]byte("x")))
	assert.Len(t, sink.writes, 1)
}
