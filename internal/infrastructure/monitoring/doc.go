/*
Package monitoring provides Prometheus metrics for the supervisor.

# Overview

Metrics cover the HTTP surface, session lifecycle, the output flow pipeline
(bytes ingested, delivered and dropped, watermark transitions, flood trips),
agent state transitions, and the notification bus.

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	metrics.RecordSpawn("pool")
	metrics.RecordDropped("overflow", 4096)

A nil *Metrics is valid and records nothing, which keeps tests free of
registry plumbing.
*/
package monitoring
