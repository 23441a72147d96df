package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MaxLogEntries bounds one log batch.
const MaxLogEntries = 500

// ClientLogEntry is a log line reported by a terminal front end.
type ClientLogEntry struct {
	ID        string                 `json:"id"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	SessionID string                 `json:"session_id,omitempty"`
	Context   map[string]interface{} `json:"context"`
	Timestamp string                 `json:"timestamp"`
}

// ClientLogRequest is a batch of client log entries.
type ClientLogRequest struct {
	Source  string           `json:"source" binding:"required"`
	Entries []ClientLogEntry `json:"entries"`
}

// StreamLogs folds client-side logs into the server log so terminal and
// supervisor events can be read in one place
func (h *Handlers) StreamLogs(c *gin.Context) {
	var req ClientLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid log request format")
		return
	}
	if len(req.Entries) == 0 {
		fail(c, http.StatusBadRequest, "no log entries provided")
		return
	}
	if len(req.Entries) > MaxLogEntries {
		fail(c, http.StatusRequestEntityTooLarge, "too many log entries")
		return
	}

	logger := h.logger.Named("client").With(zap.String("source", req.Source))
	for _, entry := range req.Entries {
		logEntry(logger, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"entries_received": len(req.Entries),
		"timestamp":        time.Now().Unix(),
	})
}

func logEntry(logger *zap.Logger, entry ClientLogEntry) {
	fields := make([]zap.Field, 0, len(entry.Context)+3)
	fields = append(fields,
		zap.String("client_log_id", entry.ID),
		zap.String("client_timestamp", entry.Timestamp),
	)
	if entry.SessionID != "" {
		fields = append(fields, zap.String("session_id", entry.SessionID))
	}

	for key, value := range entry.Context {
		switch v := value.(type) {
		case string:
			fields = append(fields, zap.String(key, v))
		case float64:
			fields = append(fields, zap.Float64(key, v))
		case bool:
			fields = append(fields, zap.Bool(key, v))
		default:
			fields = append(fields, zap.Any(key, v))
		}
	}

	switch entry.Level {
	case "error":
		logger.Error(entry.Message, fields...)
	case "warn":
		logger.Warn(entry.Message, fields...)
	case "debug", "verbose":
		logger.Debug(entry.Message, fields...)
	default:
		logger.Info(entry.Message, fields...)
	}
}
