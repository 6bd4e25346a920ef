// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recursivelog/logcollector/services/logd/store"
)

func postClientLogs(t *testing.T, f *rpcFixture, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := gin.New()
	router.POST("/api/client-logs", HandleClientLogs(f.rpc.ingest))
	req := httptest.NewRequest(http.MethodPost, "/api/client-logs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestClientLogs_WrappedBatch(t *testing.T) {
	f := newRPCFixture(t)
	w := postClientLogs(t, f, `{"logs":[
		{"logger":"app", "level":"error", "message":"ui crashed"},
		{"level":"info", "message":"no logger name"}
	]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":2`)

	require.NoError(t, f.store.Sync(context.Background()))
	entries, err := f.store.Query(context.Background(), store.QueryParams{})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	sources := map[string]bool{}
	for _, e := range entries {
		sources[e.Source] = true
		assert.True(t, e.HasTag("client"))
		assert.True(t, e.HasTag("browser"))
	}
	assert.True(t, sources["client-app"])
	assert.True(t, sources["client-js"], "missing logger defaults to js")
}

func TestClientLogs_BareArray(t *testing.T) {
	f := newRPCFixture(t)
	w := postClientLogs(t, f, `[{"logger":"sdk","level":"warn","message":"bare array form"}]`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
}

func TestClientLogs_LevelUppercased(t *testing.T) {
	f := newRPCFixture(t)
	postClientLogs(t, f, `{"logs":[{"logger":"app","level":"error","message":"x"}]}`)
	require.NoError(t, f.store.Sync(context.Background()))

	entries, err := f.store.Query(context.Background(), store.QueryParams{Levels: []string{"ERROR"}})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestClientLogs_Malformed(t *testing.T) {
	f := newRPCFixture(t)
	w := postClientLogs(t, f, `{"logs": "nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClientLogs_Empty(t *testing.T) {
	f := newRPCFixture(t)
	w := postClientLogs(t, f, `{"logs":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
