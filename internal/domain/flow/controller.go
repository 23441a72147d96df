package flow

import (
	"time"

	"github.com/GriffinCanCode/termvisor/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/termvisor/internal/shared/clock"
)

// Hooks receive the controller's outputs. Every hook is optional.
type Hooks struct {
	// Deliver receives one coalesced payload. Payloads preserve byte order.
	Deliver func(data []byte)
	// Warn receives one-time flow notices.
	Warn func(w Warning)
	// Pause and Resume stop and restart the producing process.
	Pause  func() error
	Resume func() error
	// WatermarkChanged observes watermark transitions.
	WatermarkChanged func(from, to Watermark)
	// Dropped observes bytes that will never be delivered.
	Dropped func(n int, reason DropReason)
}

// Stats are cumulative per-controller counters.
type Stats struct {
	Ingested      int64
	Delivered     int64
	Payloads      int64
	DroppedShed   int64
	DroppedFlood  int64
	OverflowWarns int64
	FloodTrips    int64
}

// State is a point-in-time view of the controller.
type State struct {
	Tier      Tier
	Watermark Watermark
	Queued    int
	Paused    bool
	Stats     Stats
}

// Controller turns one session's bursty output into a paced sequence of
// payloads. It is not safe for concurrent use; the owner serialises calls.
type Controller struct {
	settings Settings
	clock    clock.Clock
	hooks    Hooks

	tier Tier

	chunks   [][]byte
	queued   int
	timer    clock.Timer
	timerDue time.Time

	watermark      Watermark
	belowSince     time.Time
	recoverTimer   clock.Timer
	overflowWarned bool

	breaker     *resilience.Breaker
	windowBytes int
	lastSample  time.Time
	paused      bool

	closed bool
	stats  Stats
}

// NewController creates a controller for the session called name.
func NewController(name string, settings Settings, clk clock.Clock, tier Tier, hooks Hooks) *Controller {
	settings = settings.withDefaults()

	c := &Controller{
		settings:   settings,
		clock:      clk,
		hooks:      hooks,
		tier:       tier,
		lastSample: clk.Now(),
	}
	c.breaker = resilience.New(name, resilience.Settings{
		TripRate: settings.FloodRate,
		Sustain:  settings.FloodSustain,
		OnStateChange: func(_ string, _, to resilience.State) {
			c.onBreaker(to)
		},
	})
	return c
}

// Append queues output bytes. redraw marks a chunk that begins a full-screen
// repaint so that it may wait one frame for the rest of the repaint.
func (c *Controller) Append(data []byte, redraw bool) {
	if c.closed || len(data) == 0 {
		return
	}

	c.windowBytes += len(data)
	c.stats.Ingested += int64(len(data))

	if c.paused {
		c.drop(len(data), DropFlood)
		return
	}

	if len(data) > c.settings.HardLimit {
		dropped := c.queued + len(data)
		c.discard()
		c.drop(dropped, DropOverflow)
		c.raise(WatermarkHard)
		c.warnOverflow()
		c.settle()
		return
	}

	chunk := make([]byte, len(data))
	copy(chunk, data)
	c.chunks = append(c.chunks, chunk)
	c.queued += len(chunk)

	switch {
	case c.queued > c.settings.HardLimit:
		c.shed()
		c.raise(WatermarkHard)
		c.warnOverflow()
	case c.queued >= c.settings.SoftLimit:
		c.raise(WatermarkSoft)
	}

	c.schedule(c.delay(redraw), c.watermark != WatermarkNormal)
	c.settle()
}

// Flush delivers everything queued now.
func (c *Controller) Flush() {
	c.stopTimer()
	if c.queued == 0 {
		return
	}

	var payload []byte
	if len(c.chunks) == 1 {
		payload = c.chunks[0]
	} else {
		payload = make([]byte, 0, c.queued)
		for _, chunk := range c.chunks {
			payload = append(payload, chunk...)
		}
	}
	c.chunks = nil
	c.queued = 0

	c.stats.Delivered += int64(len(payload))
	c.stats.Payloads++
	if c.hooks.Deliver != nil {
		c.hooks.Deliver(payload)
	}

	c.settle()
}

// SetTier changes the delivery tier. A pending flush is moved earlier if the
// new tier is faster, never later.
func (c *Controller) SetTier(t Tier) {
	c.tier = t
	if c.timer == nil {
		return
	}
	c.schedule(c.delay(false), true)
}

// Tier returns the current delivery tier.
func (c *Controller) Tier() Tier {
	return c.tier
}

// Sample feeds the flood breaker with the byte rate since the last sample.
// The owner calls it on a fixed interval regardless of output volume.
func (c *Controller) Sample(now time.Time) {
	if c.closed {
		return
	}
	elapsed := now.Sub(c.lastSample)
	if elapsed <= 0 {
		return
	}
	rate := float64(c.windowBytes) / elapsed.Seconds()
	c.windowBytes = 0
	c.lastSample = now
	c.breaker.Observe(rate, now)
}

// Paused reports whether the flood breaker has paused the producer.
func (c *Controller) Paused() bool {
	return c.paused
}

// State returns a snapshot of the controller.
func (c *Controller) State() State {
	return State{
		Tier:      c.tier,
		Watermark: c.watermark,
		Queued:    c.queued,
		Paused:    c.paused,
		Stats:     c.stats,
	}
}

// Close cancels every timer and discards queued output. If the breaker had
// paused the producer it is resumed so that it can be torn down.
func (c *Controller) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.stopTimer()
	if c.recoverTimer != nil {
		c.recoverTimer.Stop()
		c.recoverTimer = nil
	}
	c.discard()
	if c.paused {
		c.paused = false
		if c.hooks.Resume != nil {
			_ = c.hooks.Resume()
		}
	}
}

func (c *Controller) tierDelay() time.Duration {
	switch c.tier {
	case TierVisible:
		return c.settings.VisibleDelay
	case TierBackground:
		return c.settings.BackgroundDelay
	default:
		return 0
	}
}

func (c *Controller) delay(redraw bool) time.Duration {
	d := c.tierDelay()
	if redraw && d < c.settings.RedrawDelay {
		d = c.settings.RedrawDelay
	}
	if c.watermark != WatermarkNormal || c.queued >= c.settings.SoftLimit {
		d = min(d, c.settings.FastDelay)
	}
	return d
}

// schedule arms the flush timer. An armed timer is left alone unless advance
// is set, in which case it is moved earlier when d is shorter than what
// remains. Nothing ever pushes an armed flush later.
func (c *Controller) schedule(d time.Duration, advance bool) {
	if c.queued == 0 {
		return
	}
	now := c.clock.Now()
	if c.timer != nil {
		if !advance || !now.Add(d).Before(c.timerDue) {
			return
		}
		c.timer.Stop()
		c.timer = nil
	}
	if d <= 0 {
		c.Flush()
		return
	}
	c.timerDue = now.Add(d)
	var t clock.Timer
	t = c.clock.AfterFunc(d, func() {
		if c.timer != t {
			return
		}
		c.timer = nil
		c.Flush()
	})
	c.timer = t
}

func (c *Controller) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// shed drops the oldest chunks until the batch fits under the hard limit.
func (c *Controller) shed() {
	dropped := 0
	i := 0
	for c.queued > c.settings.HardLimit && i < len(c.chunks) {
		dropped += len(c.chunks[i])
		c.queued -= len(c.chunks[i])
		i++
	}
	c.chunks = append([][]byte(nil), c.chunks[i:]...)
	c.drop(dropped, DropOverflow)
}

func (c *Controller) discard() {
	c.chunks = nil
	c.queued = 0
	c.stopTimer()
}

func (c *Controller) drop(n int, reason DropReason) {
	if n <= 0 {
		return
	}
	switch reason {
	case DropOverflow:
		c.stats.DroppedShed += int64(n)
	case DropFlood:
		c.stats.DroppedFlood += int64(n)
	}
	if c.hooks.Dropped != nil {
		c.hooks.Dropped(n, reason)
	}
}

func (c *Controller) warnOverflow() {
	if c.overflowWarned {
		return
	}
	c.overflowWarned = true
	c.stats.OverflowWarns++
	if c.hooks.Warn != nil {
		c.hooks.Warn(WarningOverflow)
	}
}

func (c *Controller) raise(level Watermark) {
	if level <= c.watermark {
		return
	}
	c.setWatermark(level)
}

func (c *Controller) setWatermark(level Watermark) {
	prev := c.watermark
	c.watermark = level
	if c.hooks.WatermarkChanged != nil {
		c.hooks.WatermarkChanged(prev, level)
	}
}

// settle tracks how long the queue has stayed below the soft limit and arms
// the recovery timer that returns the watermark to normal.
func (c *Controller) settle() {
	if c.watermark == WatermarkNormal {
		return
	}
	if c.queued >= c.settings.SoftLimit {
		c.belowSince = time.Time{}
		if c.recoverTimer != nil {
			c.recoverTimer.Stop()
			c.recoverTimer = nil
		}
		return
	}
	if c.belowSince.IsZero() {
		c.belowSince = c.clock.Now()
	}
	if c.recoverTimer == nil {
		c.armRecovery(c.settings.Hysteresis - c.clock.Now().Sub(c.belowSince))
	}
}

func (c *Controller) armRecovery(d time.Duration) {
	var t clock.Timer
	t = c.clock.AfterFunc(d, func() {
		if c.recoverTimer != t || c.closed {
			return
		}
		c.recoverTimer = nil
		c.recover()
	})
	c.recoverTimer = t
}

func (c *Controller) recover() {
	if c.watermark == WatermarkNormal || c.belowSince.IsZero() || c.queued >= c.settings.SoftLimit {
		return
	}
	below := c.clock.Now().Sub(c.belowSince)
	if below < c.settings.Hysteresis {
		c.armRecovery(c.settings.Hysteresis - below)
		return
	}
	c.belowSince = time.Time{}
	c.overflowWarned = false
	c.setWatermark(WatermarkNormal)
}

func (c *Controller) onBreaker(to resilience.State) {
	switch to {
	case resilience.StateOpen:
		c.Flush()
		c.paused = true
		c.stats.FloodTrips++
		if c.hooks.Pause != nil {
			_ = c.hooks.Pause()
		}
		if c.hooks.Warn != nil {
			c.hooks.Warn(WarningFlood)
		}
	case resilience.StateClosed:
		c.paused = false
		if c.hooks.Resume != nil {
			_ = c.hooks.Resume()
		}
		if c.hooks.Warn != nil {
			c.hooks.Warn(WarningFloodCleared)
		}
	}
}
