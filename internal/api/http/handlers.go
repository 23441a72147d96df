package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/termvisor/internal/domain/flow"
	"github.com/GriffinCanCode/termvisor/internal/domain/session"
	"github.com/GriffinCanCode/termvisor/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termvisor/internal/supervisor"
)

// Sessions is the supervisor surface the handlers drive.
type Sessions interface {
	Spawn(ctx context.Context, id string, opts session.Options) error
	Write(id string, data []byte, traceID string) error
	Resize(id string, cols, rows int) error
	Kill(id, reason string) error
	Trash(id string) error
	Restore(id string) bool
	SetNamespaceFilter(ns string) error
	ForNamespace(ns string) []string
	SetDeliveryTier(id string, tier flow.Tier) error
	MarkChecked(id string) error
	GetSnapshot(id string) (session.Snapshot, bool)
	GetAllSnapshots() []session.Snapshot
	ReplayHistory(id string, maxLines int) error
	TransitionState(id string, t supervisor.Transition) bool
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	sessions Sessions
	metrics  *monitoring.Metrics
	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

// Options configures Handlers. Metrics and Gatherer are optional.
type Options struct {
	Metrics  *monitoring.Metrics
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// NewHandlers creates a new handlers instance
func NewHandlers(sessions Sessions, opts Options) *Handlers {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		sessions: sessions,
		metrics:  opts.Metrics,
		gatherer: opts.Gatherer,
		logger:   logger.Named("http"),
	}
}

// Register mounts every route on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.GET("/stats", h.Stats)
	if h.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}
	r.POST("/logs", h.StreamLogs)

	r.GET("/sessions", h.ListSessions)
	r.POST("/sessions", h.SpawnSession)
	r.GET("/sessions/:id", h.GetSession)
	r.DELETE("/sessions/:id", h.KillSession)
	r.POST("/sessions/:id/input", h.WriteInput)
	r.POST("/sessions/:id/resize", h.ResizeSession)
	r.POST("/sessions/:id/tier", h.SetTier)
	r.POST("/sessions/:id/trash", h.TrashSession)
	r.POST("/sessions/:id/restore", h.RestoreSession)
	r.POST("/sessions/:id/replay", h.ReplayHistory)
	r.POST("/sessions/:id/state", h.TransitionState)
	r.POST("/sessions/:id/check", h.MarkChecked)

	r.PUT("/namespace", h.SetNamespace)
	r.GET("/namespaces/:ns/sessions", h.ListNamespace)
}

// Health returns service health status
func (h *Handlers) Health(c *gin.Context) {
	snap := h.metrics.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"sessions":       len(h.sessions.GetAllSnapshots()),
		"uptime_seconds": h.metrics.UptimeDuration().Seconds(),
		"connections":    snap.ActiveConnections,
	})
}

// statusFor maps supervisor errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, supervisor.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, supervisor.ErrInvalidDimensions):
		return http.StatusBadRequest
	case errors.Is(err, supervisor.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, supervisor.ErrSpawnFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{
		"success": false,
		"error":   msg,
	})
}

func failErr(c *gin.Context, err error) {
	fail(c, statusFor(err), err.Error())
}
