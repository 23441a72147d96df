package middleware

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// sessionMethods covers the session API and the stream upgrade.
var sessionMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}

// CORS lets browser dashboards at origins drive sessions. An empty list or
// a "*" entry allows any origin. The trace header is exposed so clients can
// correlate their requests with server logs.
func CORS(origins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	cfg.AllowMethods = sessionMethods
	cfg.AddAllowHeaders("Authorization", TraceHeader)
	cfg.ExposeHeaders = []string{TraceHeader}
	cfg.MaxAge = 12 * time.Hour
	return cors.New(cfg)
}
