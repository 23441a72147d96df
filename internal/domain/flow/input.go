package flow

import (
	"time"
	"unicode/utf8"

	"github.com/GriffinCanCode/termvisor/internal/shared/clock"
)

// Input defaults.
const (
	DefaultInputChunk    = 1024
	DefaultInputInterval = 5 * time.Millisecond
)

const esc = 0x1b

// ChunkInput splits data into write units of at most maxSize bytes. A new
// unit starts immediately before every ESC so that an escape sequence is
// always parsed as a sequence by the receiving line discipline. Escape
// sequences and UTF-8 runes are never split; a single sequence longer than
// maxSize becomes its own oversized unit.
func ChunkInput(data []byte, maxSize int) [][]byte {
	if len(data) == 0 {
		return nil
	}
	if maxSize <= 0 {
		maxSize = DefaultInputChunk
	}

	var chunks [][]byte
	start := 0
	for i := 0; i < len(data); {
		var end int
		if data[i] == esc {
			if i > start {
				chunks = append(chunks, data[start:i])
				start = i
			}
			end = sequenceEnd(data, i)
		} else {
			_, size := utf8.DecodeRune(data[i:])
			end = i + size
		}
		if end-start > maxSize && i > start {
			chunks = append(chunks, data[start:i])
			start = i
		}
		i = end
	}
	if start < len(data) {
		chunks = append(chunks, data[start:])
	}
	return chunks
}

// sequenceEnd returns the index just past the escape sequence that starts at
// data[i]. An unterminated sequence runs to the end of data.
func sequenceEnd(data []byte, i int) int {
	n := len(data)
	if i+1 >= n {
		return n
	}

	switch b := data[i+1]; {
	case b == '[':
		for j := i + 2; j < n; j++ {
			if data[j] >= 0x40 && data[j] <= 0x7e {
				return j + 1
			}
		}
		return n
	case b == ']' || b == 'P' || b == 'X' || b == '^' || b == '_':
		for j := i + 2; j < n; j++ {
			if data[j] == 0x07 {
				return j + 1
			}
			if data[j] == esc && j+1 < n && data[j+1] == '\\' {
				return j + 2
			}
		}
		return n
	case b == 'O':
		return min(i+3, n)
	case b == esc:
		// Meta prefix: ESC followed by a complete sequence.
		return sequenceEnd(data, i+1)
	case b >= 0x20 && b <= 0x2f:
		j := i + 1
		for j < n && data[j] >= 0x20 && data[j] <= 0x2f {
			j++
		}
		return min(j+1, n)
	default:
		_, size := utf8.DecodeRune(data[i+1:])
		return i + 1 + size
	}
}

// InputSettings tunes an InputQueue.
type InputSettings struct {
	ChunkSize int
	Interval  time.Duration
}

// InputQueue writes user input to a process in paced chunks. The first chunk
// goes out synchronously; the rest drain one per interval. Writes that arrive
// while a drain is pending queue behind it so that ordering is preserved.
// It is not safe for concurrent use.
type InputQueue struct {
	clock    clock.Clock
	write    func([]byte) error
	onError  func(error)
	settings InputSettings

	pending [][]byte
	bytes   int
	timer   clock.Timer
	closed  bool
}

// NewInputQueue creates a queue that writes through write. Errors raised by
// deferred chunks are reported to onError, which may be nil.
func NewInputQueue(clk clock.Clock, settings InputSettings, write func([]byte) error, onError func(error)) *InputQueue {
	if settings.ChunkSize <= 0 {
		settings.ChunkSize = DefaultInputChunk
	}
	if settings.Interval <= 0 {
		settings.Interval = DefaultInputInterval
	}
	return &InputQueue{
		clock:    clk,
		write:    write,
		onError:  onError,
		settings: settings,
	}
}

// Write submits data. An error is returned only when the synchronous first
// chunk fails, in which case nothing from data is queued.
func (q *InputQueue) Write(data []byte) error {
	if q.closed || len(data) == 0 {
		return nil
	}

	chunks := ChunkInput(data, q.settings.ChunkSize)
	if len(q.pending) == 0 {
		if err := q.write(chunks[0]); err != nil {
			return err
		}
		chunks = chunks[1:]
	}
	for _, chunk := range chunks {
		cp := make([]byte, len(chunk))
		copy(cp, chunk)
		q.pending = append(q.pending, cp)
		q.bytes += len(cp)
	}
	q.arm()
	return nil
}

// Pending returns the number of queued bytes.
func (q *InputQueue) Pending() int {
	return q.bytes
}

// Close discards queued input and cancels the drain timer.
func (q *InputQueue) Close() {
	q.closed = true
	q.pending = nil
	q.bytes = 0
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
}

func (q *InputQueue) arm() {
	if q.timer != nil || len(q.pending) == 0 {
		return
	}
	var t clock.Timer
	t = q.clock.AfterFunc(q.settings.Interval, func() {
		if q.timer != t || q.closed {
			return
		}
		q.timer = nil
		q.drain()
	})
	q.timer = t
}

func (q *InputQueue) drain() {
	if len(q.pending) == 0 {
		return
	}
	chunk := q.pending[0]
	q.pending = q.pending[1:]
	q.bytes -= len(chunk)

	if err := q.write(chunk); err != nil {
		q.pending = nil
		q.bytes = 0
		if q.onError != nil {
			q.onError(err)
		}
		return
	}
	q.arm()
}
