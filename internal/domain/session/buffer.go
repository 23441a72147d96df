package session

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
)

// Buffer limits.
const (
	DefaultTranscriptSize = 100_000
	DefaultSemanticLines  = 50
	DefaultLineRunes      = 1000
)

// Transcript keeps the last N bytes of raw output. The retained window always
// starts on a UTF-8 rune boundary.
type Transcript struct {
	data []byte
	max  int
}

// NewTranscript creates a transcript that holds at most max bytes.
func NewTranscript(max int) *Transcript {
	if max <= 0 {
		max = DefaultTranscriptSize
	}
	return &Transcript{max: max}
}

// Write appends output. It never fails.
func (t *Transcript) Write(p []byte) (int, error) {
	t.data = append(t.data, p...)
	if len(t.data) > t.max {
		cut := len(t.data) - t.max
		for cut < len(t.data) && !utf8.RuneStart(t.data[cut]) {
			cut++
		}
		n := copy(t.data, t.data[cut:])
		t.data = t.data[:n]
	}
	return len(p), nil
}

// Bytes returns a copy of the retained output.
func (t *Transcript) Bytes() []byte {
	return append([]byte(nil), t.data...)
}

// String returns the retained output.
func (t *Transcript) String() string {
	return string(t.data)
}

// Len returns the number of retained bytes.
func (t *Transcript) Len() int {
	return len(t.data)
}

// SemanticBuffer keeps the last logical lines of output as plain text for
// heuristic inspection. ANSI sequences are removed, carriage-return
// overwrites keep only the final segment, and each line is capped.
type SemanticBuffer struct {
	lines    []string
	maxLines int
	maxRunes int
	partial  []byte
}

// NewSemanticBuffer creates a buffer of maxLines lines of at most maxRunes
// runes each.
func NewSemanticBuffer(maxLines, maxRunes int) *SemanticBuffer {
	if maxLines <= 0 {
		maxLines = DefaultSemanticLines
	}
	if maxRunes <= 0 {
		maxRunes = DefaultLineRunes
	}
	return &SemanticBuffer{maxLines: maxLines, maxRunes: maxRunes}
}

// Write feeds raw output. It never fails.
func (s *SemanticBuffer) Write(p []byte) (int, error) {
	s.partial = append(s.partial, p...)

	for {
		i := bytes.IndexByte(s.partial, '\n')
		if i < 0 {
			break
		}
		s.push(s.clean(s.partial[:i]))
		s.partial = s.partial[i+1:]
	}

	s.partial = overwrite(s.partial)

	// A partial line is only ever rendered up to maxRunes, so raw bytes far
	// beyond that are dead weight. Later carriage returns still reset it.
	if limit := s.maxRunes * 16; len(s.partial) > limit {
		s.partial = s.partial[:limit]
	}
	s.partial = append([]byte(nil), s.partial...)
	return len(p), nil
}

// overwrite drops everything a carriage return has overwritten. Trailing
// CRs are kept since they may be the first half of a CRLF.
func overwrite(partial []byte) []byte {
	end := len(partial)
	for end > 0 && partial[end-1] == '\r' {
		end--
	}
	if i := bytes.LastIndexByte(partial[:end], '\r'); i >= 0 {
		return partial[i+1:]
	}
	return partial
}

// Lines returns up to n of the most recent lines, oldest first, including
// the in-progress partial line. n <= 0 means all.
func (s *SemanticBuffer) Lines(n int) []string {
	out := make([]string, 0, len(s.lines)+1)
	out = append(out, s.lines...)
	if len(s.partial) > 0 {
		if line := s.clean(s.partial); line != "" {
			out = append(out, line)
		}
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// Len returns the number of completed lines.
func (s *SemanticBuffer) Len() int {
	return len(s.lines)
}

func (s *SemanticBuffer) push(line string) {
	s.lines = append(s.lines, line)
	if len(s.lines) > s.maxLines {
		s.lines = append(s.lines[:0], s.lines[len(s.lines)-s.maxLines:]...)
	}
}

func (s *SemanticBuffer) clean(raw []byte) string {
	line := strings.TrimRight(string(raw), "\r")
	if i := strings.LastIndexByte(line, '\r'); i >= 0 {
		line = line[i+1:]
	}
	line = ansi.Strip(line)
	line = strings.ToValidUTF8(line, "")

	if utf8.RuneCountInString(line) > s.maxRunes {
		runes := []rune(line)
		line = string(runes[:s.maxRunes])
	}
	return line
}

// incompleteTail returns the index where a trailing, not yet complete UTF-8
// sequence starts, or len(p) when p ends on a rune boundary. Invalid bytes
// count as complete.
func incompleteTail(p []byte) int {
	for i := len(p) - 1; i >= 0 && i > len(p)-utf8.UTFMax; i-- {
		b := p[i]
		if b < utf8.RuneSelf {
			return len(p)
		}
		if utf8.RuneStart(b) {
			if utf8.FullRune(p[i:]) {
				return len(p)
			}
			return i
		}
	}
	return len(p)
}

var redrawSequences = [][]byte{
	[]byte("\x1b[2J"),
	[]byte("\x1b[3J"),
	[]byte("\x1b[H"),
	[]byte("\x1b[1;1H"),
	[]byte("\x1bc"),
}

// IsRedraw reports whether data contains a full-screen clear or cursor-home
// sequence.
func IsRedraw(data []byte) bool {
	if bytes.IndexByte(data, 0x1b) < 0 {
		return false
	}
	for _, seq := range redrawSequences {
		if bytes.Contains(data, seq) {
			return true
		}
	}
	return false
}
