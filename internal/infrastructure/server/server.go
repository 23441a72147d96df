package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/termvisor/internal/api/http"
	"github.com/GriffinCanCode/termvisor/internal/api/middleware"
	"github.com/GriffinCanCode/termvisor/internal/api/ws"
	"github.com/GriffinCanCode/termvisor/internal/domain/events"
	"github.com/GriffinCanCode/termvisor/internal/domain/flow"
	"github.com/GriffinCanCode/termvisor/internal/domain/process"
	"github.com/GriffinCanCode/termvisor/internal/domain/session"
	"github.com/GriffinCanCode/termvisor/internal/infrastructure/config"
	"github.com/GriffinCanCode/termvisor/internal/infrastructure/logging"
	"github.com/GriffinCanCode/termvisor/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termvisor/internal/providers/activity"
	"github.com/GriffinCanCode/termvisor/internal/providers/proctree"
	"github.com/GriffinCanCode/termvisor/internal/providers/pty"
	"github.com/GriffinCanCode/termvisor/internal/supervisor"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	config     *config.Config
	logger     *logging.Logger
	metrics    *monitoring.Metrics
	registry   *prometheus.Registry
	bus        *events.Bus
	supervisor *supervisor.Supervisor
	pool       *pty.Pool
	router     *gin.Engine
	http       *http.Server
}

// Options overrides how a Server obtains processes. Zero values use real
// pseudo-terminals and /proc.
type Options struct {
	Spawner process.Spawner
	// PoolSpec is the spec pooled shells are started from when Spawner is
	// overridden.
	PoolSpec process.Spec
	Source   proctree.Source
	Logger   *logging.Logger
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	return New(cfg, Options{})
}

// New creates a server with explicit collaborators.
func New(cfg *config.Config, opts Options) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Config{
			Level:       cfg.Logging.Level,
			Development: cfg.Logging.Development,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	logger.Info("Initializing terminal supervisor",
		zap.String("addr", cfg.Addr()),
		zap.Bool("pool", cfg.Pool.Enabled),
		zap.Duration("trash_ttl", cfg.Trash.TTL),
	)

	// Initialize metrics first (needed by other components)
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(registry)

	bus := events.NewBus(events.BusConfig{
		Buffer:     cfg.Stream.SubscriberBuffer,
		MaxBacklog: cfg.Stream.MaxBacklog,
		Logger:     logger.Logger,
		Metrics:    metrics,
	})

	spawner := opts.Spawner
	poolSpec := opts.PoolSpec
	if spawner == nil {
		ptys := pty.NewSpawner(pty.Config{Shell: cfg.Pool.Shell})
		spawner = ptys
		poolSpec = ptys.DefaultSpec()
	}

	deps := supervisor.Deps{
		Spawner: spawner,
		Bus:     bus,
		Logger:  logger.Logger,
		Metrics: metrics,
		Activity: activity.Factory(activity.Config{
			IdleAfter: cfg.Detect.ActivityIdle,
		}),
	}

	var pool *pty.Pool
	if cfg.Pool.Enabled && cfg.Pool.Size > 0 {
		pool = pty.NewPool(spawner, poolSpec, cfg.Pool.Size, logger.Logger)
		pool.Fill()
		deps.Pool = pool
		logger.Info("Warm shell pool enabled", zap.Int("size", cfg.Pool.Size))
	}

	source := opts.Source
	if source == nil {
		procs, err := proctree.NewProcFS("")
		if err != nil {
			logger.Warn("Process tree detection disabled", zap.Error(err))
		} else {
			source = procs
		}
	}
	if source != nil {
		watcher := proctree.NewWatcher(source, proctree.Config{
			Interval: cfg.Detect.ProcTreeInterval,
			Logger:   logger.Logger,
		})
		deps.Detectors = watcher.Factory()
	}

	sup, err := supervisor.New(SupervisorConfig(cfg), deps)
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, fmt.Errorf("failed to start supervisor: %w", err)
	}

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.Trace())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(cfg.Server.AllowOrigins))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	handlers := apihttp.NewHandlers(sup, apihttp.Options{
		Metrics:  metrics,
		Gatherer: registry,
		Logger:   logger.Logger,
	})
	handlers.Register(router)

	wsHandler := ws.NewHandler(sup, ws.Config{AllowOrigins: cfg.Server.AllowOrigins}, metrics, logger.Logger)
	router.GET("/stream", wsHandler.HandleConnection)

	logger.Info("Server initialized successfully")

	return &Server{
		config:     cfg,
		logger:     logger,
		metrics:    metrics,
		registry:   registry,
		bus:        bus,
		supervisor: sup,
		pool:       pool,
		router:     router,
		http: &http.Server{
			Addr:    cfg.Addr(),
			Handler: router,
		},
	}, nil
}

// SupervisorConfig translates the service configuration into supervisor
// settings.
func SupervisorConfig(cfg *config.Config) supervisor.Config {
	return supervisor.Config{
		Flow: flow.Settings{
			VisibleDelay:    cfg.Flow.VisibleDelay,
			BackgroundDelay: cfg.Flow.BackgroundDelay,
			FastDelay:       cfg.Flow.FastDelay,
			RedrawDelay:     cfg.Flow.RedrawDelay,
			SoftLimit:       cfg.Flow.SoftLimit,
			HardLimit:       cfg.Flow.HardLimit,
			Hysteresis:      cfg.Flow.Hysteresis,
			FloodRate:       cfg.Flood.TripRate,
			FloodSustain:    cfg.Flood.Sustain,
		},
		Input: flow.InputSettings{
			ChunkSize: cfg.Input.ChunkSize,
			Interval:  cfg.Input.Interval,
		},
		Buffers: session.Buffers{
			TranscriptSize: cfg.Buffers.TranscriptSize,
			SemanticLines:  cfg.Buffers.SemanticLines,
			LineRunes:      cfg.Buffers.LineRunes,
		},
		TrashTTL:      cfg.Trash.TTL,
		FloodInterval: cfg.Flood.Interval,
	}
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Supervisor returns the session supervisor.
func (s *Server) Supervisor() *supervisor.Supervisor {
	return s.supervisor
}

// Run starts the HTTP server and blocks until it stops. A server stopped by
// Shutdown returns nil.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, kills every session and closes all
// streams.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP shutdown failed", zap.Error(err))
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	s.supervisor.Dispose()
	s.logger.Info("Sessions disposed")

	// Closing the bus ends every WebSocket stream.
	s.bus.Close()
	if s.pool != nil {
		s.pool.Close()
	}

	// Sync logger before exit
	_ = s.logger.Sync()

	return errors.Join(errs...)
}
