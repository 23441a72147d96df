package flow

import (
	"fmt"
	"time"
)

// Tier is a delivery priority class controlling the batching delay.
type Tier int

const (
	TierFocused Tier = iota
	TierVisible
	TierBackground
)

// String returns the wire name of the tier.
func (t Tier) String() string {
	switch t {
	case TierFocused:
		return "focused"
	case TierVisible:
		return "visible"
	case TierBackground:
		return "background"
	default:
		return "unknown"
	}
}

// ParseTier converts a wire name into a Tier.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "focused":
		return TierFocused, nil
	case "visible":
		return TierVisible, nil
	case "background":
		return TierBackground, nil
	default:
		return 0, fmt.Errorf("unknown delivery tier: %q", s)
	}
}

// Watermark is the queued-bytes threshold state.
type Watermark int

const (
	WatermarkNormal Watermark = iota
	WatermarkSoft
	WatermarkHard
)

// String returns the wire name of the watermark.
func (w Watermark) String() string {
	switch w {
	case WatermarkNormal:
		return "normal"
	case WatermarkSoft:
		return "soft"
	case WatermarkHard:
		return "hard"
	default:
		return "unknown"
	}
}

// Warning identifies a one-time user-visible flow notice.
type Warning int

const (
	// WarningOverflow is raised once per hard-watermark episode when output
	// had to be shed.
	WarningOverflow Warning = iota
	// WarningFlood is raised when the circuit breaker pauses the producer.
	WarningFlood
	// WarningFloodCleared is raised when the producer is resumed.
	WarningFloodCleared
)

// String returns the wire name of the warning.
func (w Warning) String() string {
	switch w {
	case WarningOverflow:
		return "output-overflow"
	case WarningFlood:
		return "flood-paused"
	case WarningFloodCleared:
		return "flood-normalized"
	default:
		return "unknown"
	}
}

// DropReason says why output bytes never reached the consumer.
type DropReason string

const (
	DropOverflow DropReason = "overflow"
	DropFlood    DropReason = "flood"
)

// Settings tunes one Controller. Zero fields take the defaults.
type Settings struct {
	VisibleDelay    time.Duration
	BackgroundDelay time.Duration
	FastDelay       time.Duration
	RedrawDelay     time.Duration
	SoftLimit       int
	HardLimit       int
	Hysteresis      time.Duration

	FloodRate    float64
	FloodSustain time.Duration
}

// Default flow constants.
const (
	DefaultVisibleDelay    = 100 * time.Millisecond
	DefaultBackgroundDelay = time.Second
	DefaultFastDelay       = 10 * time.Millisecond
	DefaultRedrawDelay     = 16 * time.Millisecond
	DefaultSoftLimit       = 256 * 1024
	DefaultHardLimit       = 1024 * 1024
	DefaultHysteresis      = 500 * time.Millisecond
	DefaultFloodRate       = 5_000_000
	DefaultFloodSustain    = 2 * time.Second
	DefaultFloodInterval   = time.Second
)

// DefaultSettings returns the production flow settings.
func DefaultSettings() Settings {
	return Settings{
		VisibleDelay:    DefaultVisibleDelay,
		BackgroundDelay: DefaultBackgroundDelay,
		FastDelay:       DefaultFastDelay,
		RedrawDelay:     DefaultRedrawDelay,
		SoftLimit:       DefaultSoftLimit,
		HardLimit:       DefaultHardLimit,
		Hysteresis:      DefaultHysteresis,
		FloodRate:       DefaultFloodRate,
		FloodSustain:    DefaultFloodSustain,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.VisibleDelay <= 0 {
		s.VisibleDelay = d.VisibleDelay
	}
	if s.BackgroundDelay <= 0 {
		s.BackgroundDelay = d.BackgroundDelay
	}
	if s.FastDelay <= 0 {
		s.FastDelay = d.FastDelay
	}
	if s.RedrawDelay <= 0 {
		s.RedrawDelay = d.RedrawDelay
	}
	if s.SoftLimit <= 0 {
		s.SoftLimit = d.SoftLimit
	}
	if s.HardLimit <= s.SoftLimit {
		s.HardLimit = max(d.HardLimit, s.SoftLimit*4)
	}
	if s.Hysteresis <= 0 {
		s.Hysteresis = d.Hysteresis
	}
	if s.FloodRate <= 0 {
		s.FloodRate = d.FloodRate
	}
	if s.FloodSustain <= 0 {
		s.FloodSustain = d.FloodSustain
	}
	return s
}
