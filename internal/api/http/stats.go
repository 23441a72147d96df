package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/termvisor/internal/domain/session"
	"github.com/GriffinCanCode/termvisor/internal/infrastructure/monitoring"
)

// StatsSnapshot is the JSON summary served by GET /stats.
type StatsSnapshot struct {
	Timestamp time.Time           `json:"timestamp"`
	Sessions  SessionSummary      `json:"sessions"`
	Metrics   monitoring.Snapshot `json:"metrics"`
	Uptime    float64             `json:"uptime_seconds"`
}

// SessionSummary counts live sessions along a few dimensions.
type SessionSummary struct {
	Total      int            `json:"total"`
	Agents     int            `json:"agents"`
	InTrash    int            `json:"in_trash"`
	Paused     int            `json:"paused"`
	ByState    map[string]int `json:"by_state"`
	ByTier     map[string]int `json:"by_tier"`
	QueuedSize int            `json:"queued_bytes"`
}

// Stats returns an aggregated view of sessions and counters
func (h *Handlers) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, StatsSnapshot{
		Timestamp: time.Now(),
		Sessions:  summarize(h.sessions.GetAllSnapshots()),
		Metrics:   h.metrics.Snapshot(),
		Uptime:    h.metrics.UptimeDuration().Seconds(),
	})
}

func summarize(snaps []session.Snapshot) SessionSummary {
	sum := SessionSummary{
		Total:   len(snaps),
		ByState: make(map[string]int),
		ByTier:  make(map[string]int),
	}
	for _, s := range snaps {
		if s.Kind == session.KindAgent {
			sum.Agents++
		}
		if s.InTrash {
			sum.InTrash++
		}
		if s.Paused {
			sum.Paused++
		}
		if s.State != "" {
			sum.ByState[string(s.State)]++
		}
		sum.ByTier[s.Tier]++
		sum.QueuedSize += s.Queued
	}
	return sum
}
