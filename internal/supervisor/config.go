package supervisor

import (
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/termvisor/internal/domain/events"
	"github.com/GriffinCanCode/termvisor/internal/domain/flow"
	"github.com/GriffinCanCode/termvisor/internal/domain/process"
	"github.com/GriffinCanCode/termvisor/internal/domain/session"
	"github.com/GriffinCanCode/termvisor/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termvisor/internal/shared/clock"
)

// Defaults for Config.
const (
	DefaultCols         = 80
	DefaultRows         = 24
	DefaultDrainTimeout = 2 * time.Second
	DefaultReadSize     = 32 * 1024
	DefaultQueueSize    = 1024
)

// Config tunes a Supervisor. Zero values take defaults.
type Config struct {
	Flow          flow.Settings
	Input         flow.InputSettings
	Buffers       session.Buffers
	TrashTTL      time.Duration
	FloodInterval time.Duration
	// DrainTimeout bounds how long an exit waits for the output reader to
	// finish before it is reported anyway.
	DrainTimeout time.Duration
	ReadSize     int
	QueueSize    int
}

func (c Config) withDefaults() Config {
	if c.FloodInterval <= 0 {
		c.FloodInterval = flow.DefaultFloodInterval
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	if c.ReadSize <= 0 {
		c.ReadSize = DefaultReadSize
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	return c
}

// Deps are the collaborators a Supervisor drives. Spawner is required;
// everything else is optional.
type Deps struct {
	Spawner   process.Spawner
	Pool      process.Pool
	Detectors process.DetectorFactory
	Activity  process.ActivityFactory
	Clock     clock.Clock
	Bus       *events.Bus
	Logger    *zap.Logger
	Metrics   *monitoring.Metrics
}
