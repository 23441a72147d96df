package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. Every recorder method is safe to
// call on a nil *Metrics.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsSpawned *prometheus.CounterVec
	SessionsEnded   *prometheus.CounterVec
	PoolFallbacks   prometheus.Counter
	SpawnDuration   *prometheus.HistogramVec

	// Output flow metrics
	OutputBytes  *prometheus.CounterVec
	DroppedBytes *prometheus.CounterVec
	Payloads     prometheus.Counter
	Watermarks   *prometheus.CounterVec
	FlowWarnings *prometheus.CounterVec

	// Agent state metrics
	StateTransitions *prometheus.CounterVec
	StaleEvents      *prometheus.CounterVec

	// Notification metrics
	InvalidEvents *prometheus.CounterVec
	BusEvictions  prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	// Snapshot for the health endpoint
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current metric values for the JSON health endpoint.
type Snapshot struct {
	TotalRequests     int64 `json:"total_requests"`
	TotalErrors       int64 `json:"total_errors"`
	ActiveSessions    int64 `json:"active_sessions"`
	ActiveConnections int64 `json:"active_connections"`
	DroppedBytes      int64 `json:"dropped_bytes"`
	InvalidEvents     int64 `json:"invalid_events"`
}

// NewMetrics creates a metrics collector registered on reg. A nil reg uses
// the default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{startTime: time.Now()}

	// HTTP metrics
	m.RequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termvisor_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	m.RequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "termvisor_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// Session metrics
	m.SessionsActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "termvisor_sessions_active",
			Help: "Number of live sessions",
		},
	)
	m.SessionsSpawned = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termvisor_sessions_spawned_total",
			Help: "Total number of sessions spawned, by process source",
		},
		[]string{"source"},
	)
	m.SessionsEnded = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termvisor_sessions_ended_total",
			Help: "Total number of sessions torn down, by outcome",
		},
		[]string{"outcome"},
	)
	m.PoolFallbacks = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "termvisor_pool_fallbacks_total",
			Help: "Pooled processes discarded in favour of a fresh spawn",
		},
	)
	m.SpawnDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "termvisor_spawn_duration_seconds",
			Help:    "Time taken to obtain a process for a session",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"status"},
	)

	// Output flow metrics
	m.OutputBytes = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termvisor_output_bytes_total",
			Help: "Output bytes by stage",
		},
		[]string{"stage"},
	)
	m.DroppedBytes = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termvisor_output_dropped_bytes_total",
			Help: "Output bytes dropped before delivery",
		},
		[]string{"reason"},
	)
	m.Payloads = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "termvisor_output_payloads_total",
			Help: "Delivered output payloads",
		},
	)
	m.Watermarks = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termvisor_watermark_transitions_total",
			Help: "Watermark transitions by target level",
		},
		[]string{"level"},
	)
	m.FlowWarnings = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termvisor_flow_warnings_total",
			Help: "Flow warnings raised",
		},
		[]string{"warning"},
	)

	// Agent state metrics
	m.StateTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termvisor_agent_transitions_total",
			Help: "Agent state transitions",
		},
		[]string{"state", "trigger"},
	)
	m.StaleEvents = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termvisor_stale_events_total",
			Help: "Callbacks discarded because their session was gone or replaced",
		},
		[]string{"source"},
	)

	// Notification metrics
	m.InvalidEvents = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termvisor_invalid_events_total",
			Help: "Domain events dropped for failing validation",
		},
		[]string{"type"},
	)
	m.BusEvictions = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "termvisor_bus_evictions_total",
			Help: "Subscribers closed for falling too far behind",
		},
	)

	// WebSocket metrics
	m.WSConnections = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "termvisor_ws_connections",
			Help: "Number of active WebSocket connections",
		},
	)
	m.WSMessages = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "termvisor_ws_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction", "type"},
	)

	// System metrics
	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "termvisor_uptime_seconds",
			Help: "Supervisor uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// SetSessionsActive sets the number of live sessions
func (m *Metrics) SetSessionsActive(count int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(count))
	m.mu.Lock()
	m.snapshot.ActiveSessions = int64(count)
	m.mu.Unlock()
}

// RecordSpawn counts a spawned session by process source ("pool" or "spawn")
func (m *Metrics) RecordSpawn(source string) {
	if m == nil {
		return
	}
	m.SessionsSpawned.WithLabelValues(source).Inc()
}

// RecordSessionEnd counts a torn-down session by outcome
func (m *Metrics) RecordSessionEnd(outcome string) {
	if m == nil {
		return
	}
	m.SessionsEnded.WithLabelValues(outcome).Inc()
}

// IncPoolFallbacks counts a discarded pooled process
func (m *Metrics) IncPoolFallbacks() {
	if m == nil {
		return
	}
	m.PoolFallbacks.Inc()
}

// RecordOutput counts output bytes at a pipeline stage
func (m *Metrics) RecordOutput(stage string, n int) {
	if m == nil {
		return
	}
	m.OutputBytes.WithLabelValues(stage).Add(float64(n))
	if stage == "delivered" {
		m.Payloads.Inc()
	}
}

// RecordDropped counts undeliverable output bytes
func (m *Metrics) RecordDropped(reason string, n int) {
	if m == nil {
		return
	}
	m.DroppedBytes.WithLabelValues(reason).Add(float64(n))
	m.mu.Lock()
	m.snapshot.DroppedBytes += int64(n)
	m.mu.Unlock()
}

// RecordWatermark counts a watermark transition
func (m *Metrics) RecordWatermark(level string) {
	if m == nil {
		return
	}
	m.Watermarks.WithLabelValues(level).Inc()
}

// RecordWarning counts a flow warning
func (m *Metrics) RecordWarning(warning string) {
	if m == nil {
		return
	}
	m.FlowWarnings.WithLabelValues(warning).Inc()
}

// RecordTransition counts an agent state transition
func (m *Metrics) RecordTransition(state, trigger string) {
	if m == nil {
		return
	}
	m.StateTransitions.WithLabelValues(state, trigger).Inc()
}

// RecordStale counts a discarded stale callback
func (m *Metrics) RecordStale(source string) {
	if m == nil {
		return
	}
	m.StaleEvents.WithLabelValues(source).Inc()
}

// RecordInvalidEvent counts a domain event that failed validation
func (m *Metrics) RecordInvalidEvent(eventType string) {
	if m == nil {
		return
	}
	m.InvalidEvents.WithLabelValues(eventType).Inc()
	m.mu.Lock()
	m.snapshot.InvalidEvents++
	m.mu.Unlock()
}

// IncBusEvictions counts a subscriber closed for exceeding its backlog
func (m *Metrics) IncBusEvictions() {
	if m == nil {
		return
	}
	m.BusEvictions.Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// Snapshot returns the current values tracked for the health endpoint
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// UptimeDuration returns time since the collector was created
func (m *Metrics) UptimeDuration() time.Duration {
	if m == nil {
		return 0
	}
	return time.Since(m.startTime)
}
