package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all supervisor configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LogConfig       `yaml:"logging"`
	Flow      FlowConfig      `yaml:"flow"`
	Flood     FloodConfig     `yaml:"flood"`
	Input     InputConfig     `yaml:"input"`
	Buffers   BufferConfig    `yaml:"buffers"`
	Trash     TrashConfig     `yaml:"trash"`
	Pool      PoolConfig      `yaml:"pool"`
	Detect    DetectConfig    `yaml:"detect"`
	Stream    StreamConfig    `yaml:"stream"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string        `envconfig:"PORT" default:"8070" yaml:"port"`
	Host         string        `envconfig:"HOST" default:"127.0.0.1" yaml:"host"`
	AllowOrigins []string      `envconfig:"CORS_ORIGINS" default:"*" yaml:"allow_origins"`
	ShutdownWait time.Duration `envconfig:"SHUTDOWN_WAIT" default:"10s" yaml:"shutdown_wait"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" yaml:"development"`
}

// FlowConfig holds output batching and watermark configuration.
type FlowConfig struct {
	VisibleDelay    time.Duration `envconfig:"FLOW_VISIBLE_DELAY" default:"100ms" yaml:"visible_delay"`
	BackgroundDelay time.Duration `envconfig:"FLOW_BACKGROUND_DELAY" default:"1s" yaml:"background_delay"`
	FastDelay       time.Duration `envconfig:"FLOW_FAST_DELAY" default:"10ms" yaml:"fast_delay"`
	RedrawDelay     time.Duration `envconfig:"FLOW_REDRAW_DELAY" default:"16ms" yaml:"redraw_delay"`
	SoftLimit       int           `envconfig:"FLOW_SOFT_LIMIT" default:"262144" yaml:"soft_limit"`
	HardLimit       int           `envconfig:"FLOW_HARD_LIMIT" default:"1048576" yaml:"hard_limit"`
	Hysteresis      time.Duration `envconfig:"FLOW_HYSTERESIS" default:"500ms" yaml:"hysteresis"`
}

// FloodConfig holds the flood circuit breaker configuration.
type FloodConfig struct {
	TripRate float64       `envconfig:"FLOOD_TRIP_RATE" default:"5000000" yaml:"trip_rate"`
	Sustain  time.Duration `envconfig:"FLOOD_SUSTAIN" default:"2s" yaml:"sustain"`
	Interval time.Duration `envconfig:"FLOOD_INTERVAL" default:"1s" yaml:"interval"`
}

// InputConfig holds chunked input configuration.
type InputConfig struct {
	ChunkSize int           `envconfig:"INPUT_CHUNK_SIZE" default:"1024" yaml:"chunk_size"`
	Interval  time.Duration `envconfig:"INPUT_INTERVAL" default:"5ms" yaml:"interval"`
}

// BufferConfig holds per-session output buffer sizes.
type BufferConfig struct {
	TranscriptSize int `envconfig:"TRANSCRIPT_SIZE" default:"100000" yaml:"transcript_size"`
	SemanticLines  int `envconfig:"SEMANTIC_LINES" default:"50" yaml:"semantic_lines"`
	LineRunes      int `envconfig:"SEMANTIC_LINE_RUNES" default:"1000" yaml:"line_runes"`
}

// TrashConfig holds soft-delete configuration.
type TrashConfig struct {
	TTL time.Duration `envconfig:"TRASH_TTL" default:"120s" yaml:"ttl"`
}

// PoolConfig holds warm process pool configuration.
type PoolConfig struct {
	Enabled bool   `envconfig:"POOL_ENABLED" default:"true" yaml:"enabled"`
	Size    int    `envconfig:"POOL_SIZE" default:"2" yaml:"size"`
	Shell   string `envconfig:"SHELL" default:"/bin/bash" yaml:"shell"`
}

// DetectConfig holds process observer configuration.
type DetectConfig struct {
	ProcTreeInterval time.Duration `envconfig:"PROCTREE_INTERVAL" default:"2s" yaml:"proctree_interval"`
	ActivityIdle     time.Duration `envconfig:"ACTIVITY_IDLE" default:"1500ms" yaml:"activity_idle"`
}

// StreamConfig holds notification fan-out configuration.
type StreamConfig struct {
	SubscriberBuffer int `envconfig:"STREAM_BUFFER" default:"256" yaml:"subscriber_buffer"`
	// MaxBacklog is how many bytes may queue for a slow subscriber before it
	// is disconnected.
	MaxBacklog int `envconfig:"STREAM_MAX_BACKLOG" default:"67108864" yaml:"max_backlog"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100" yaml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200" yaml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" yaml:"enabled"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadFile reads a YAML file on top of the defaults. Keys absent from the
// file keep their default values.
func LoadFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the supervisor cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Flow.SoftLimit <= 0 {
		errs = append(errs, errors.New("flow.soft_limit must be positive"))
	}
	if c.Flow.HardLimit <= c.Flow.SoftLimit {
		errs = append(errs, errors.New("flow.hard_limit must exceed flow.soft_limit"))
	}
	if c.Flood.TripRate <= 0 {
		errs = append(errs, errors.New("flood.trip_rate must be positive"))
	}
	if c.Flood.Interval <= 0 {
		errs = append(errs, errors.New("flood.interval must be positive"))
	}
	if c.Input.ChunkSize <= 0 {
		errs = append(errs, errors.New("input.chunk_size must be positive"))
	}
	if c.Pool.Size < 0 {
		errs = append(errs, errors.New("pool.size must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8070",
			Host:         "127.0.0.1",
			AllowOrigins: []string{"*"},
			ShutdownWait: 10 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Flow: FlowConfig{
			VisibleDelay:    100 * time.Millisecond,
			BackgroundDelay: time.Second,
			FastDelay:       10 * time.Millisecond,
			RedrawDelay:     16 * time.Millisecond,
			SoftLimit:       256 * 1024,
			HardLimit:       1024 * 1024,
			Hysteresis:      500 * time.Millisecond,
		},
		Flood: FloodConfig{
			TripRate: 5_000_000,
			Sustain:  2 * time.Second,
			Interval: time.Second,
		},
		Input: InputConfig{
			ChunkSize: 1024,
			Interval:  5 * time.Millisecond,
		},
		Buffers: BufferConfig{
			TranscriptSize: 100_000,
			SemanticLines:  50,
			LineRunes:      1000,
		},
		Trash: TrashConfig{
			TTL: 120 * time.Second,
		},
		Pool: PoolConfig{
			Enabled: true,
			Size:    2,
			Shell:   "/bin/bash",
		},
		Detect: DetectConfig{
			ProcTreeInterval: 2 * time.Second,
			ActivityIdle:     1500 * time.Millisecond,
		},
		Stream: StreamConfig{
			SubscriberBuffer: 256,
			MaxBacklog:       64 << 20,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
