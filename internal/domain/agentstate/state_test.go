package agentstate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextIsTotal(t *testing.T) {
	expected := map[State]map[Event]State{
		Idle:    {EventStart: Working, EventInput: Working, EventBusy: Working, EventPrompt: Idle, EventExit: Exited, EventError: Failed},
		Working: {EventStart: Working, EventInput: Working, EventBusy: Working, EventPrompt: Waiting, EventExit: Exited, EventError: Failed},
		Waiting: {EventStart: Working, EventInput: Working, EventBusy: Working, EventPrompt: Waiting, EventExit: Exited, EventError: Failed},
		Failed:  {EventStart: Working, EventInput: Failed, EventBusy: Failed, EventPrompt: Failed, EventExit: Exited, EventError: Failed},
		Exited:  {EventStart: Exited, EventInput: Exited, EventBusy: Exited, EventPrompt: Exited, EventExit: Exited, EventError: Exited},
	}

	for state, row := range expected {
		for event, next := range row {
			t.Run(string(state)+"/"+string(event), func(t *testing.T) {
				assert.Equal(t, next, Next(state, event))
			})
		}
	}
}

func TestNextUnknownEventIsNoop(t *testing.T) {
	assert.Equal(t, Waiting, Next(Waiting, Event("bogus")))
	assert.Equal(t, State("weird"), Next(State("weird"), EventPrompt))
}

func TestDefaultTrigger(t *testing.T) {
	assert.Equal(t, TriggerInput, DefaultTrigger(EventInput))
	assert.Equal(t, TriggerExit, DefaultTrigger(EventExit))
	assert.Equal(t, TriggerActivity, DefaultTrigger(EventPrompt))
	assert.Equal(t, TriggerActivity, DefaultTrigger(EventStart))
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		trigger  Trigger
		event    Event
		expected float64
	}{
		{TriggerInput, EventInput, 1.0},
		{TriggerOutput, EventBusy, 1.0},
		{TriggerActivity, EventPrompt, 1.0},
		{TriggerExit, EventExit, 1.0},
		{TriggerHeuristic, EventBusy, 0.9},
		{TriggerHeuristic, EventPrompt, 0.75},
		{TriggerHeuristic, EventStart, 0.7},
		{TriggerHeuristic, EventError, 0.65},
		{TriggerHeuristic, EventExit, 0.5},
		{TriggerAIClassification, EventPrompt, 0.85},
		{TriggerTimeout, EventPrompt, 0.6},
		{Trigger("mystery"), EventBusy, 0.5},
	}

	for _, tt := range tests {
		t.Run(string(tt.trigger)+"/"+string(tt.event), func(t *testing.T) {
			assert.Equal(t, tt.expected, Confidence(tt.trigger, tt.event))
		})
	}
}

func TestResolve(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	trigger, conf := Resolve(EventPrompt, "", nil)
	assert.Equal(t, TriggerActivity, trigger)
	assert.Equal(t, 1.0, conf)

	trigger, conf = Resolve(EventBusy, TriggerHeuristic, nil)
	assert.Equal(t, TriggerHeuristic, trigger)
	assert.Equal(t, 0.9, conf)

	_, conf = Resolve(EventBusy, TriggerHeuristic, f(0.42))
	assert.Equal(t, 0.42, conf)

	_, conf = Resolve(EventBusy, TriggerHeuristic, f(7))
	assert.Equal(t, 1.0, conf)

	_, conf = Resolve(EventBusy, TriggerHeuristic, f(-1))
	assert.Equal(t, 0.0, conf)

	_, conf = Resolve(EventBusy, TriggerHeuristic, f(math.NaN()))
	assert.Equal(t, 0.9, conf)
}

func TestParse(t *testing.T) {
	e, err := ParseEvent("output-idle")
	require.NoError(t, err)
	assert.Equal(t, EventPrompt, e)

	e, err = ParseEvent("output-busy")
	require.NoError(t, err)
	assert.Equal(t, EventBusy, e)

	_, err = ParseEvent("nap")
	assert.Error(t, err)

	s, err := ParseState("waiting")
	require.NoError(t, err)
	assert.Equal(t, Waiting, s)

	_, err = ParseState("asleep")
	assert.Error(t, err)

	tr, err := ParseTrigger("ai-classification")
	require.NoError(t, err)
	assert.Equal(t, TriggerAIClassification, tr)

	tr, err = ParseTrigger("")
	require.NoError(t, err)
	assert.Equal(t, Trigger(""), tr)

	_, err = ParseTrigger("magic")
	assert.Error(t, err)
}
