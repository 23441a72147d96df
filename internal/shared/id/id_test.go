package id

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTraceID(t *testing.T) {
	a := NewTraceID()
	b := NewTraceID()

	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a.String(), TracePrefix+"_"))
}

func TestNewSubscriptionID(t *testing.T) {
	sub := NewSubscriptionID()
	assert.True(t, strings.HasPrefix(sub.String(), SubscriptionPrefix+"_"))
}

func TestTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Second)
	trace := NewTraceID()

	ts, err := Timestamp(trace.String())
	require.NoError(t, err)
	assert.True(t, ts.After(before))

	_, err = Timestamp("trace_not-a-ulid")
	assert.Error(t, err)
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()

	var (
		mu   sync.Mutex
		seen = make(map[string]bool)
		wg   sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s := gen.GenerateWithPrefix("x")
				mu.Lock()
				seen[s] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 800)
}
