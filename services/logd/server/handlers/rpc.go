// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/recursivelog/logcollector/services/logd/analyzer"
	"github.com/recursivelog/logcollector/services/logd/datatypes"
	"github.com/recursivelog/logcollector/services/logd/store"
)

// serverName is echoed by the ping method.
const serverName = "Recursive Log System"

// rpcMethod executes one JSON-RPC method. A returned *RPCError becomes
// the error object of the response; any other error maps to -32603.
type rpcMethod func(ctx context.Context, params json.RawMessage) (any, error)

// RPC owns the JSON-RPC 2.0 endpoint. Methods are registered once at
// construction; dispatch is a map lookup.
type RPC struct {
	ingest    *Ingestor
	store     *store.Store
	analyzer  *analyzer.Analyzer
	log       *slog.Logger
	methods   map[string]rpcMethod
	startedAt time.Time
}

// NewRPC wires the method table.
func NewRPC(ingest *Ingestor, st *store.Store, an *analyzer.Analyzer, log *slog.Logger) *RPC {
	if log == nil {
		log = slog.Default()
	}
	h := &RPC{
		ingest:    ingest,
		store:     st,
		analyzer:  an,
		log:       log,
		startedAt: time.Now(),
	}
	h.methods = map[string]rpcMethod{
		"ping":                     h.ping,
		"log":                      h.logEntry,
		"log_batch":                h.logBatch,
		"query":                    h.query,
		"search":                   h.search,
		"get_stats":                h.getStats,
		"get_system_status":        h.getSystemStatus,
		"run_analysis":             h.runAnalysis,
		"get_error_patterns":       h.getErrorPatterns,
		"get_performance_analysis": h.getPerformanceAnalysis,
		"get_trend_analysis":       h.getTrendAnalysis,
		"detect_anomalies":         h.detectAnomalies,
	}
	return h
}

// Handle serves POST /rpc: a single request object or a batch array.
// Notifications (no id) execute but produce no response object; a batch
// of only notifications returns 204.
func (h *RPC) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusOK, datatypes.NewRPCErrorResponse(nil,
				datatypes.NewRPCError(datatypes.RPCParseError, "unreadable request body")))
			return
		}

		trimmed := bytes.TrimLeft(body, " \t\r\n")
		if len(trimmed) > 0 && trimmed[0] == '[' {
			h.handleBatch(c, trimmed)
			return
		}

		resp := h.handleRaw(c.Request.Context(), body)
		if resp == nil {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func (h *RPC) handleBatch(c *gin.Context, body []byte) {
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		c.JSON(http.StatusOK, datatypes.NewRPCErrorResponse(nil,
			datatypes.NewRPCError(datatypes.RPCParseError, "malformed batch")))
		return
	}
	if len(raws) == 0 {
		c.JSON(http.StatusOK, datatypes.NewRPCErrorResponse(nil,
			datatypes.NewRPCError(datatypes.RPCInvalidRequest, "empty batch")))
		return
	}

	responses := make([]*datatypes.RPCResponse, 0, len(raws))
	for _, raw := range raws {
		if resp := h.handleRaw(c.Request.Context(), raw); resp != nil {
			responses = append(responses, resp)
		}
	}
	if len(responses) == 0 {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, responses)
}

// handleRaw parses and executes one request object. Returns nil for
// notifications.
func (h *RPC) handleRaw(ctx context.Context, raw []byte) *datatypes.RPCResponse {
	var req datatypes.RPCRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return datatypes.NewRPCErrorResponse(nil,
			datatypes.NewRPCError(datatypes.RPCParseError, "malformed request"))
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return datatypes.NewRPCErrorResponse(req.ID,
			datatypes.NewRPCError(datatypes.RPCInvalidRequest, "not a jsonrpc 2.0 request"))
	}

	method, ok := h.methods[req.Method]
	if !ok {
		metricRPCRequests.WithLabelValues(req.Method, "not_found").Inc()
		if req.IsNotification() {
			return nil
		}
		return datatypes.NewRPCErrorResponse(req.ID,
			datatypes.NewRPCError(datatypes.RPCMethodNotFound, "method not found: "+req.Method))
	}

	result, err := method(ctx, req.Params)
	if err != nil {
		metricRPCRequests.WithLabelValues(req.Method, "error").Inc()
		rpcErr, ok := err.(*datatypes.RPCError)
		if !ok {
			h.log.Error("rpc method failed", "method", req.Method, "error", err)
			rpcErr = datatypes.NewRPCError(datatypes.RPCInternalError, "internal error")
		}
		if req.IsNotification() {
			return nil
		}
		return datatypes.NewRPCErrorResponse(req.ID, rpcErr)
	}

	metricRPCRequests.WithLabelValues(req.Method, "ok").Inc()
	if req.IsNotification() {
		return nil
	}
	return datatypes.NewRPCResult(req.ID, result)
}

// decodeParams unmarshals params into dst, mapping failures to -32602.
// Absent params leave dst at its zero value.
func decodeParams(params json.RawMessage, dst any) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, dst); err != nil {
		return datatypes.NewRPCError(datatypes.RPCInvalidParams, "invalid params: "+err.Error())
	}
	return nil
}
