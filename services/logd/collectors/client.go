// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package collectors produces log entries from local sources (child
// processes, HTTP proxies, watched files, the process table, database
// logs) and ships them to the daemon's JSON-RPC endpoint in batches.
package collectors

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/recursivelog/logcollector/services/logd/datatypes"
)

// compressThreshold is the serialized-batch size above which the client
// gzips the payload and sets the log_batch compress flag.
const compressThreshold = 4 * 1024

// ClientConfig configures the RPC client shared by all collectors.
type ClientConfig struct {
	// BaseURL is the daemon root, e.g. "http://127.0.0.1:8888".
	BaseURL string

	// AuthToken, when set, is sent as a bearer token.
	AuthToken string

	// RetryCount is how many times a failed post is retried. Default 3.
	RetryCount int

	// RetryDelay seeds the exponential backoff. Default 500ms.
	RetryDelay time.Duration

	// Timeout bounds one HTTP attempt. Default 10s.
	Timeout time.Duration

	Logger *slog.Logger
}

func (c *ClientConfig) applyDefaults() {
	if c.RetryCount <= 0 {
		c.RetryCount = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client posts batches and generic RPC calls to the daemon.
type Client struct {
	cfg    ClientConfig
	http   *http.Client
	log    *slog.Logger
	nextID atomic.Int64
}

// NewClient builds a client for the daemon at cfg.BaseURL.
func NewClient(cfg ClientConfig) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  cfg.Logger,
	}
}

// SendBatch ships entries via the log_batch method, gzipping payloads
// above the compression threshold. Retries transient failures with
// exponential backoff; when retries are exhausted the batch is lost and
// the drop counter increments.
func (c *Client) SendBatch(ctx context.Context, entries []datatypes.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("collectors: marshal batch: %w", err)
	}

	params := map[string]any{"logs": json.RawMessage(raw)}
	if len(raw) > compressThreshold {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			return fmt.Errorf("collectors: compress batch: %w", err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("collectors: compress batch: %w", err)
		}
		params = map[string]any{
			"logs":     base64.StdEncoding.EncodeToString(buf.Bytes()),
			"compress": true,
		}
	}

	var result struct {
		Status string `json:"status"`
		Count  int    `json:"count"`
	}
	if err := c.Call(ctx, "log_batch", params, &result); err != nil {
		metricBatchesLost.Inc()
		return err
	}
	metricEntriesShipped.Add(float64(len(entries)))
	return nil
}

// Call performs one JSON-RPC method call with retries. A non-nil result
// receives the unmarshalled result object.
func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	id := c.nextID.Add(1)
	req := datatypes.RPCRequest{
		JSONRPC: "2.0",
		ID:      json.RawMessage(fmt.Sprintf("%d", id)),
		Method:  method,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("collectors: marshal params: %w", err)
		}
		req.Params = raw
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("collectors: marshal request: %w", err)
	}

	delay := c.cfg.RetryDelay
	var lastErr error
	for attempt := 0; attempt <= c.cfg.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}

		lastErr = c.post(ctx, body, result)
		if lastErr == nil {
			return nil
		}
		c.log.Warn("rpc call failed", "method", method, "attempt", attempt+1, "error", lastErr)
	}
	return fmt.Errorf("collectors: %s after %d attempts: %w", method, c.cfg.RetryCount+1, lastErr)
}

func (c *Client) post(ctx context.Context, body []byte, result any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/rpc", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	var envelope struct {
		Result json.RawMessage     `json:"result"`
		Error  *datatypes.RPCError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}
