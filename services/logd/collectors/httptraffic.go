// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package collectors

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/recursivelog/logcollector/services/logd/datatypes"
)

// defaultProxyPortOffset is added to each upstream port to form the
// proxy's listen port.
const defaultProxyPortOffset = 1000

// HTTPTrafficConfig configures the HTTP traffic collector.
type HTTPTrafficConfig struct {
	// Ports are the upstream application ports to shadow. For each port
	// P the collector listens on P + ProxyPortOffset and forwards to
	// 127.0.0.1:P.
	Ports []int

	// ProxyPortOffset defaults to 1000.
	ProxyPortOffset int

	// CaptureBody stores request bodies up to MaxBodySize in metadata.
	CaptureBody bool

	// MaxBodySize bounds captured bodies, in bytes. Default 4096.
	MaxBodySize int

	// IgnorePaths are path prefixes that are forwarded but not logged.
	IgnorePaths []string

	BufferSize    int
	FlushInterval time.Duration
}

// HTTPTrafficCollector runs one reverse proxy per configured port and
// logs an entry per forwarded request.
type HTTPTrafficCollector struct {
	cfg     HTTPTrafficConfig
	emitter *Emitter
	log     *slog.Logger
}

// NewHTTPTrafficCollector builds the collector.
func NewHTTPTrafficCollector(cfg HTTPTrafficConfig, sender Sender, log *slog.Logger) *HTTPTrafficCollector {
	if log == nil {
		log = slog.Default()
	}
	if cfg.ProxyPortOffset == 0 {
		cfg.ProxyPortOffset = defaultProxyPortOffset
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 4096
	}
	return &HTTPTrafficCollector{
		cfg:     cfg,
		emitter: NewEmitter("http_traffic", sender, cfg.BufferSize, cfg.FlushInterval, log),
		log:     log.With("collector", "http_traffic"),
	}
}

func (c *HTTPTrafficCollector) Name() string { return "http_traffic" }

// Start binds every proxy and blocks until ctx cancels. A port that
// cannot bind fails only its own proxy.
func (c *HTTPTrafficCollector) Start(ctx context.Context) error {
	defer c.emitter.Close()

	g, ctx := errgroup.WithContext(ctx)
	for _, port := range c.cfg.Ports {
		port := port
		g.Go(func() error {
			return c.runProxy(ctx, port)
		})
	}
	return g.Wait()
}

func (c *HTTPTrafficCollector) runProxy(ctx context.Context, port int) error {
	upstream, err := url.Parse(fmt.Sprintf("http://127.0.0.1:%d", port))
	if err != nil {
		return err
	}
	proxy := httputil.NewSingleHostReverseProxy(upstream)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		c.log.Warn("upstream unreachable", "port", port, "error", err)
		w.WriteHeader(http.StatusBadGateway)
	}

	listenPort := port + c.cfg.ProxyPortOffset
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", listenPort),
		Handler:           c.instrument(proxy, port),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	c.log.Info("traffic proxy listening", "listen_port", listenPort, "upstream_port", port)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.log.Error("proxy bind failed", "listen_port", listenPort, "error", err)
			return fmt.Errorf("collectors: bind %d: %w", listenPort, err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
		return nil
	}
}

// statusRecorder captures the forwarded response's status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (c *HTTPTrafficCollector) instrument(next http.Handler, port int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c.ignoredPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		var body string
		if c.cfg.CaptureBody && r.Body != nil && r.ContentLength >= 0 && r.ContentLength <= int64(c.cfg.MaxBodySize) {
			data, err := io.ReadAll(io.LimitReader(r.Body, int64(c.cfg.MaxBodySize)))
			if err == nil {
				body = string(data)
				r.Body = io.NopCloser(bytes.NewReader(data))
			}
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		started := time.Now()
		next.ServeHTTP(rec, r)
		durationMS := float64(time.Since(started).Microseconds()) / 1000

		metadata := map[string]any{
			"method":         r.Method,
			"path":           r.URL.Path,
			"status":         rec.status,
			"duration_ms":    durationMS,
			"ip":             clientAddr(r),
			"user_agent":     r.UserAgent(),
			"content_length": r.ContentLength,
			"port":           port,
		}
		if body != "" {
			metadata["body"] = body
		}

		c.emitter.Emit(datatypes.LogEntry{
			Source:   "http_traffic",
			Level:    levelForStatus(rec.status),
			Message:  fmt.Sprintf("%s %s %d", r.Method, r.URL.Path, rec.status),
			Metadata: metadata,
		})
	})
}

func (c *HTTPTrafficCollector) ignoredPath(path string) bool {
	for _, prefix := range c.cfg.IgnorePaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func levelForStatus(status int) string {
	switch {
	case status >= 500:
		return datatypes.LevelError
	case status >= 400:
		return datatypes.LevelWarn
	default:
		return datatypes.LevelInfo
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
