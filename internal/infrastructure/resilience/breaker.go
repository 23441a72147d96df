package resilience

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures the circuit breaker behavior
type Settings struct {
	// TripRate is the observed rate above which the breaker opens
	TripRate float64
	// ResumeRate is the rate at or below which the breaker may close again.
	// Defaults to half of TripRate.
	ResumeRate float64
	// Sustain is how long the rate must stay at or below ResumeRate before
	// the breaker closes
	Sustain time.Duration
	// OnStateChange is called whenever the state changes
	OnStateChange func(name string, from State, to State)
}

// Counts holds the statistics for the circuit breaker
type Counts struct {
	Observations uint64
	Trips        uint32
	Resets       uint32
}

// Breaker is a level-and-duration circuit breaker driven by periodic rate
// observations. It opens as soon as one observation exceeds TripRate and
// closes only after observations have stayed at or below ResumeRate for
// Sustain.
type Breaker struct {
	name     string
	settings Settings

	mu        sync.Mutex
	state     State
	counts    Counts
	calmSince time.Time
}

// New creates a new circuit breaker with the given settings
func New(name string, settings Settings) *Breaker {
	if settings.TripRate <= 0 {
		settings.TripRate = 5_000_000
	}
	if settings.ResumeRate <= 0 || settings.ResumeRate > settings.TripRate {
		settings.ResumeRate = settings.TripRate / 2
	}
	if settings.Sustain <= 0 {
		settings.Sustain = 2 * time.Second
	}

	return &Breaker{
		name:     name,
		settings: settings,
		state:    StateClosed,
	}
}

// Name returns the name of the circuit breaker
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state of the circuit breaker
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Counts returns a copy of the internal counts
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Allow returns ErrCircuitOpen while the breaker is open.
func (b *Breaker) Allow() error {
	if b.State() == StateOpen {
		return ErrCircuitOpen
	}
	return nil
}

// Observe feeds one rate sample taken at now and returns the resulting state.
func (b *Breaker) Observe(rate float64, now time.Time) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.counts.Observations++

	switch b.state {
	case StateClosed:
		if rate > b.settings.TripRate {
			b.counts.Trips++
			b.setState(StateOpen)
		}
	case StateOpen:
		if rate > b.settings.ResumeRate {
			b.calmSince = time.Time{}
			break
		}
		if b.calmSince.IsZero() {
			b.calmSince = now
			break
		}
		if now.Sub(b.calmSince) >= b.settings.Sustain {
			b.counts.Resets++
			b.setState(StateClosed)
		}
	}

	return b.state
}

// Reset forces the breaker closed without invoking OnStateChange.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.calmSince = time.Time{}
}

// setState changes the state of the circuit breaker
func (b *Breaker) setState(state State) {
	if b.state == state {
		return
	}

	prev := b.state
	b.state = state
	b.calmSince = time.Time{}

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, prev, state)
	}
}
