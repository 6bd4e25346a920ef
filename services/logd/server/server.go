// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server assembles the HTTP daemon: gin engine, route table and
// graceful lifecycle around the store, analyzer and streamer.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/recursivelog/logcollector/services/logd/analyzer"
	"github.com/recursivelog/logcollector/services/logd/server/handlers"
	"github.com/recursivelog/logcollector/services/logd/server/middleware"
	"github.com/recursivelog/logcollector/services/logd/server/routes"
	"github.com/recursivelog/logcollector/services/logd/store"
	"github.com/recursivelog/logcollector/services/logd/stream"
)

// shutdownGrace is how long in-flight requests get on shutdown.
const shutdownGrace = 5 * time.Second

// Config is the resolved server section of the configuration.
type Config struct {
	Host           string
	Port           int
	CORSEnabled    bool
	AuthToken      string
	RequestTimeout time.Duration
	MaxConnections int

	// Alerts configures outbound alert delivery.
	Alerts analyzer.NotifyConfig
}

// Server is the composed HTTP daemon.
type Server struct {
	cfg  Config
	http *http.Server
	log  *slog.Logger
}

// New wires the engine, handlers and routes. The store, analyzer and
// streamer are owned by the caller; Close order matters and belongs to
// the process, not the server.
func New(cfg Config, st *store.Store, an *analyzer.Analyzer, streamer *stream.Streamer, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		engine.Use(otelgin.Middleware("logcollector"))
	}
	if cfg.MaxConnections > 0 {
		engine.Use(middleware.ConcurrencyLimit(cfg.MaxConnections))
	}

	ingestor := &handlers.Ingestor{
		Store:    st,
		Analyzer: an,
		Streamer: streamer,
		Log:      log,
		Notifier: analyzer.NewNotifier(cfg.Alerts, log),
	}
	rpc := handlers.NewRPC(ingestor, st, an, log)

	routes.SetupRoutes(engine, routes.Deps{
		RPC:            rpc,
		Ingestor:       ingestor,
		Streamer:       streamer,
		Log:            log,
		AuthToken:      cfg.AuthToken,
		CORSEnabled:    cfg.CORSEnabled,
		RequestTimeout: cfg.RequestTimeout,
	})

	return &Server{
		cfg: cfg,
		http: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler: engine,
			// Read/write timeouts stay unset: /ws connections are
			// long-lived. Bounded reads are enforced per route.
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}

// Run serves until ctx is cancelled, then drains connections for up to
// shutdownGrace before returning.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen on %s: %w", s.http.Addr, err)
	case <-ctx.Done():
	}

	s.log.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
