// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recursivelog/logcollector/services/logd/analyzer"
	"github.com/recursivelog/logcollector/services/logd/datatypes"
	"github.com/recursivelog/logcollector/services/logd/store"
	"github.com/recursivelog/logcollector/services/logd/stream"
)

type rpcFixture struct {
	rpc    *RPC
	store  *store.Store
	router *gin.Engine
}

func newRPCFixture(t *testing.T) *rpcFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.New(store.Config{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		BatchSize:    10,
		BatchTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	an := analyzer.New(analyzer.Config{})
	sm := stream.NewStreamer(nil)
	ing := &Ingestor{Store: st, Analyzer: an, Streamer: sm, Log: slog.Default()}
	rpc := NewRPC(ing, st, an, slog.Default())

	router := gin.New()
	router.POST("/rpc", rpc.Handle())
	return &rpcFixture{rpc: rpc, store: st, router: router}
}

func (f *rpcFixture) post(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *rpcFixture) call(t *testing.T, method string, params any) map[string]any {
	t.Helper()
	paramsJSON, err := json.Marshal(params)
	require.NoError(t, err)
	body := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":%q,"params":%s}`, method, paramsJSON)

	w := f.post(t, body)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Result  map[string]any  `json:"result"`
		Error   *datatypes.RPCError
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Nil(t, resp.Error, "method %s returned error: %+v", method, resp.Error)
	require.Equal(t, "2.0", resp.JSONRPC)
	assert.Equal(t, "1", string(resp.ID))
	return resp.Result
}

func (f *rpcFixture) callErr(t *testing.T, body string) *datatypes.RPCError {
	t.Helper()
	w := f.post(t, body)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Error *datatypes.RPCError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error
}

func TestPing(t *testing.T) {
	f := newRPCFixture(t)
	result := f.call(t, "ping", map[string]any{})
	assert.Equal(t, true, result["pong"])
	assert.Equal(t, serverName, result["server"])
	assert.NotEmpty(t, result["timestamp"])
}

func TestLog_RoundTrip(t *testing.T) {
	f := newRPCFixture(t)
	result := f.call(t, "log", map[string]any{
		"source":  "console",
		"level":   "INFO",
		"message": "hello from test",
	})
	assert.Equal(t, "received", result["status"])
	assert.NotEmpty(t, result["id"])

	require.NoError(t, f.store.Sync(context.Background()))

	q := f.call(t, "query", map[string]any{"sources": []string{"console"}})
	assert.EqualValues(t, 1, q["count"])
}

func TestLog_EmptyEntryRejected(t *testing.T) {
	f := newRPCFixture(t)
	rpcErr := f.callErr(t, `{"jsonrpc":"2.0","id":1,"method":"log","params":{}}`)
	assert.Equal(t, datatypes.RPCInvalidParams, rpcErr.Code)
}

func TestLogBatch_Plain(t *testing.T) {
	f := newRPCFixture(t)
	result := f.call(t, "log_batch", map[string]any{
		"logs": []map[string]any{
			{"source": "svc1", "level": "INFO", "message": "a"},
			{"source": "svc1", "level": "WARN", "message": "b"},
		},
	})
	assert.Equal(t, "received", result["status"])
	assert.EqualValues(t, 2, result["count"])
}

func TestLogBatch_Compressed(t *testing.T) {
	f := newRPCFixture(t)

	entries := []map[string]any{
		{"source": "svc1", "level": "ERROR", "message": "compressed entry"},
	}
	raw, err := json.Marshal(entries)
	require.NoError(t, err)
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err = zw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	result := f.call(t, "log_batch", map[string]any{
		"logs":     base64.StdEncoding.EncodeToString(buf.Bytes()),
		"compress": true,
	})
	assert.EqualValues(t, 1, result["count"])

	require.NoError(t, f.store.Sync(context.Background()))
	q := f.call(t, "query", map[string]any{"search": "compressed"})
	assert.EqualValues(t, 1, q["count"])
}

func TestLogBatch_BadCompressedPayload(t *testing.T) {
	f := newRPCFixture(t)
	rpcErr := f.callErr(t,
		`{"jsonrpc":"2.0","id":1,"method":"log_batch","params":{"logs":"not base64!!!","compress":true}}`)
	assert.Equal(t, datatypes.RPCInvalidParams, rpcErr.Code)
}

func TestQuery_InvalidSince(t *testing.T) {
	f := newRPCFixture(t)
	rpcErr := f.callErr(t,
		`{"jsonrpc":"2.0","id":1,"method":"query","params":{"since":"yesterdayish"}}`)
	assert.Equal(t, datatypes.RPCInvalidParams, rpcErr.Code)
}

func TestSearch_RequiresQuery(t *testing.T) {
	f := newRPCFixture(t)
	rpcErr := f.callErr(t, `{"jsonrpc":"2.0","id":1,"method":"search","params":{}}`)
	assert.Equal(t, datatypes.RPCInvalidParams, rpcErr.Code)
}

func TestSearch_FindsEntry(t *testing.T) {
	f := newRPCFixture(t)
	f.call(t, "log", map[string]any{
		"source": "svc1", "level": "ERROR", "message": "database connection refused",
	})
	require.NoError(t, f.store.Sync(context.Background()))

	result := f.call(t, "search", map[string]any{"query": "refused"})
	assert.EqualValues(t, 1, result["count"])
	assert.Equal(t, "refused", result["query"])
}

func TestGetStats(t *testing.T) {
	f := newRPCFixture(t)
	f.call(t, "log", map[string]any{"source": "svc1", "level": "INFO", "message": "x"})
	require.NoError(t, f.store.Sync(context.Background()))

	w := f.post(t, `{"jsonrpc":"2.0","id":1,"method":"get_stats","params":{"timerange":"1h"}}`)
	var resp struct {
		Result store.StatsResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "1h", resp.Result.Timerange)
	assert.EqualValues(t, 1, resp.Result.Basic.TotalLogs)
}

func TestGetSystemStatus(t *testing.T) {
	f := newRPCFixture(t)
	result := f.call(t, "get_system_status", nil)
	assert.Equal(t, "healthy", result["status"])
	assert.Contains(t, result, "total_logs")
	assert.Contains(t, result, "disk_usage_mb")
	assert.Contains(t, result, "memory_usage_mb")
	assert.Contains(t, result, "uptime_seconds")
	assert.NotEmpty(t, result["last_check"])
}

func TestMethodNotFound(t *testing.T) {
	f := newRPCFixture(t)
	rpcErr := f.callErr(t, `{"jsonrpc":"2.0","id":1,"method":"no_such_method"}`)
	assert.Equal(t, datatypes.RPCMethodNotFound, rpcErr.Code)
}

func TestParseError(t *testing.T) {
	f := newRPCFixture(t)
	rpcErr := f.callErr(t, `{"jsonrpc":`)
	assert.Equal(t, datatypes.RPCParseError, rpcErr.Code)
}

func TestInvalidRequest_MissingVersion(t *testing.T) {
	f := newRPCFixture(t)
	rpcErr := f.callErr(t, `{"id":1,"method":"ping"}`)
	assert.Equal(t, datatypes.RPCInvalidRequest, rpcErr.Code)
}

func TestNotification_NoResponse(t *testing.T) {
	f := newRPCFixture(t)
	w := f.post(t, `{"jsonrpc":"2.0","method":"ping"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestBatch_MixedRequestsAndNotifications(t *testing.T) {
	f := newRPCFixture(t)
	w := f.post(t, `[
		{"jsonrpc":"2.0","id":1,"method":"ping"},
		{"jsonrpc":"2.0","method":"ping"},
		{"jsonrpc":"2.0","id":2,"method":"no_such_method"}
	]`)
	require.Equal(t, http.StatusOK, w.Code)

	var responses []struct {
		ID     json.RawMessage     `json:"id"`
		Result map[string]any      `json:"result"`
		Error  *datatypes.RPCError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &responses))
	require.Len(t, responses, 2, "notification produces no response object")
	assert.Equal(t, "1", string(responses[0].ID))
	assert.NotNil(t, responses[0].Result)
	assert.Equal(t, "2", string(responses[1].ID))
	require.NotNil(t, responses[1].Error)
	assert.Equal(t, datatypes.RPCMethodNotFound, responses[1].Error.Code)
}

func TestBatch_Empty(t *testing.T) {
	f := newRPCFixture(t)
	rpcErr := f.callErr(t, `[]`)
	assert.Equal(t, datatypes.RPCInvalidRequest, rpcErr.Code)
}

func TestIDEcho_StringID(t *testing.T) {
	f := newRPCFixture(t)
	w := f.post(t, `{"jsonrpc":"2.0","id":"abc-123","method":"ping"}`)
	var resp struct {
		ID json.RawMessage `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, `"abc-123"`, string(resp.ID))
}
