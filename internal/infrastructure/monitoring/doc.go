/*
Package monitoring collects Prometheus metrics for the terminal server.

# Overview

Metrics are registered on a private registry so several servers (and tests)
can live in one process. The collector tracks HTTP requests served through
Gin and terminal session activity; it implements terminal.Recorder.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	manager := terminal.NewManager(starter, cfg, terminal.WithRecorder(metrics))
*/
package monitoring
