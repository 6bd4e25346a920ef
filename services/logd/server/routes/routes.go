// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/recursivelog/logcollector/services/logd/server/handlers"
	"github.com/recursivelog/logcollector/services/logd/server/middleware"
	"github.com/recursivelog/logcollector/services/logd/stream"
)

// clientLogsRate bounds the SDK ingress per client IP. Generous for a
// dev tool, but stops a page stuck in a log loop.
const (
	clientLogsPerSecond = 50
	clientLogsBurst     = 200
)

// Deps carries everything the route table needs.
type Deps struct {
	RPC            *handlers.RPC
	Ingestor       *handlers.Ingestor
	Streamer       *stream.Streamer
	Log            *slog.Logger
	AuthToken      string
	CORSEnabled    bool
	RequestTimeout time.Duration
}

// SetupRoutes registers the full HTTP surface on the router.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", handlers.HandleStreamWebSocket(deps.Streamer, deps.Log))

	api := router.Group("/")
	if deps.CORSEnabled {
		api.Use(middleware.CORS())
	}
	api.Use(middleware.Auth(deps.AuthToken))
	api.Use(middleware.RequestTimeout(deps.RequestTimeout))
	{
		api.POST("/rpc", deps.RPC.Handle())

		limiter := middleware.NewRateLimiter(clientLogsPerSecond, clientLogsBurst)
		api.POST("/api/client-logs", limiter.Middleware(), handlers.HandleClientLogs(deps.Ingestor))
	}
}
