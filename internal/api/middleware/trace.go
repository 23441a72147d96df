package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/termvisor/internal/shared/id"
)

// TraceHeader carries a caller-chosen trace id on requests and the effective
// one on responses.
const TraceHeader = "X-Trace-ID"

const traceKey = "trace_id"

// Trace attaches a trace id to every request, taken from TraceHeader or
// freshly generated, and echoes it on the response.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceHeader)
		if traceID == "" {
			traceID = id.NewTraceID().String()
		}
		c.Set(traceKey, traceID)
		c.Header(TraceHeader, traceID)
		c.Next()
	}
}

// TraceID returns the trace id Trace attached to c, or "" outside it.
func TraceID(c *gin.Context) string {
	return c.GetString(traceKey)
}
