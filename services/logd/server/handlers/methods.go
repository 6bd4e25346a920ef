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
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/recursivelog/logcollector/services/logd/datatypes"
	"github.com/recursivelog/logcollector/services/logd/store"
)

func (h *RPC) ping(_ context.Context, _ json.RawMessage) (any, error) {
	return map[string]any{
		"pong":      true,
		"timestamp": datatypes.Now(),
		"server":    serverName,
	}, nil
}

func (h *RPC) logEntry(_ context.Context, params json.RawMessage) (any, error) {
	var entry datatypes.LogEntry
	if err := decodeParams(params, &entry); err != nil {
		return nil, err
	}
	if entry.Message == "" && entry.Source == "" {
		return nil, datatypes.NewRPCError(datatypes.RPCInvalidParams, "empty log entry")
	}

	batch := []datatypes.LogEntry{entry}
	_, alerts, err := h.ingest.Ingest(batch)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"status": "received",
		"id":     batch[0].ID,
		"alerts": alerts,
	}, nil
}

// logBatchParams carries the log_batch payload. With compress set, Logs
// is a JSON string: the base64 of a gzipped JSON array of entries.
type logBatchParams struct {
	Logs     json.RawMessage `json:"logs"`
	Compress bool            `json:"compress"`
}

func (h *RPC) logBatch(_ context.Context, params json.RawMessage) (any, error) {
	var p logBatchParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if len(p.Logs) == 0 {
		return nil, datatypes.NewRPCError(datatypes.RPCInvalidParams, "missing logs")
	}

	raw := p.Logs
	if p.Compress {
		var encoded string
		if err := json.Unmarshal(p.Logs, &encoded); err != nil {
			return nil, datatypes.NewRPCError(datatypes.RPCInvalidParams, "compressed logs must be a base64 string")
		}
		blob, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, datatypes.NewRPCError(datatypes.RPCInvalidParams, "invalid base64 payload")
		}
		raw, err = gunzipBytes(blob)
		if err != nil {
			return nil, datatypes.NewRPCError(datatypes.RPCInvalidParams, "invalid gzip payload")
		}
	}

	var entries []datatypes.LogEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, datatypes.NewRPCError(datatypes.RPCInvalidParams, "logs must be an array of entries")
	}

	count, alerts, err := h.ingest.Ingest(entries)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"status": "received",
		"count":  count,
		"alerts": alerts,
	}, nil
}

func (h *RPC) query(ctx context.Context, params json.RawMessage) (any, error) {
	var p store.QueryParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := validateTimeBounds(p.Since, p.Until); err != nil {
		return nil, err
	}

	entries, err := h.store.Query(ctx, p)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"logs":  entries,
		"count": len(entries),
	}, nil
}

// searchParams is the search method's payload. Context is accepted for
// wire compatibility but has no effect on the result shape.
type searchParams struct {
	Query     string `json:"query"`
	Timerange string `json:"timerange"`
	Limit     int    `json:"limit"`
	Context   int    `json:"context"`
}

func (h *RPC) search(ctx context.Context, params json.RawMessage) (any, error) {
	var p searchParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Query == "" {
		return nil, datatypes.NewRPCError(datatypes.RPCInvalidParams, "missing query")
	}
	if err := validateTimeBounds(p.Timerange, ""); err != nil {
		return nil, err
	}

	entries, err := h.store.Query(ctx, store.QueryParams{
		Search:          p.Query,
		Since:           p.Timerange,
		Limit:           p.Limit,
		IncludeArchived: true,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"logs":  entries,
		"count": len(entries),
		"query": p.Query,
	}, nil
}

func (h *RPC) getStats(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		Timerange string `json:"timerange"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := validateTimeBounds(p.Timerange, ""); err != nil {
		return nil, err
	}
	return h.store.Stats(ctx, p.Timerange)
}

func (h *RPC) getSystemStatus(ctx context.Context, _ json.RawMessage) (any, error) {
	status := "healthy"
	total, err := h.store.TotalLogs(ctx)
	if err != nil {
		h.log.Warn("system status: store unreachable", "error", err)
		status = "degraded"
	}
	return map[string]any{
		"status":          status,
		"total_logs":      total,
		"disk_usage_mb":   h.store.DiskUsageMB(),
		"memory_usage_mb": processMemoryMB(),
		"uptime_seconds":  time.Since(h.startedAt).Seconds(),
		"last_check":      datatypes.Now(),
	}, nil
}

// processMemoryMB reports this process's resident set in MiB, 0 when the
// process table is unreadable.
func processMemoryMB() float64 {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	mem, err := proc.MemoryInfo()
	if err != nil || mem == nil {
		return 0
	}
	return float64(mem.RSS) / (1024 * 1024)
}

// validateTimeBounds rejects unparseable since/until values at the API
// boundary so store faults stay -32603.
func validateTimeBounds(since, until string) error {
	now := time.Now()
	if since != "" {
		if _, err := datatypes.ParseTimeBound(since, now); err != nil {
			return datatypes.NewRPCError(datatypes.RPCInvalidParams, "invalid since: "+since)
		}
	}
	if until != "" {
		if _, err := datatypes.ParseTimeBound(until, now); err != nil {
			return datatypes.NewRPCError(datatypes.RPCInvalidParams, "invalid until: "+until)
		}
	}
	return nil
}

// gunzipBytes inflates a gzip blob.
func gunzipBytes(blob []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
