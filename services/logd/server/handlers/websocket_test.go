// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recursivelog/logcollector/services/logd/datatypes"
)

type wsFrame struct {
	Type     string              `json:"type"`
	StreamID string              `json:"stream_id"`
	Data     *datatypes.LogEntry `json:"data"`
	Alerts   []datatypes.Alert   `json:"alerts"`
}

func dialWS(t *testing.T, f *rpcFixture) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws", HandleStreamWebSocket(f.rpc.ingest.Streamer, slog.Default()))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame wsFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestWebSocket_StartStreamAndReceive(t *testing.T) {
	f := newRPCFixture(t)
	conn := dialWS(t, f)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":      "start_stream",
		"stream_id": "s1",
		"data":      map[string]any{"filters": map[string]any{"levels": []string{"ERROR"}}},
	}))
	ack := readWS(t, conn)
	assert.Equal(t, "stream_started", ack.Type)
	assert.Equal(t, "s1", ack.StreamID)

	// A non-matching entry is filtered, a matching one arrives.
	f.call(t, "log", map[string]any{"source": "svc1", "level": "INFO", "message": "quiet"})
	f.call(t, "log", map[string]any{"source": "svc1", "level": "ERROR", "message": "loud"})

	frame := readWS(t, conn)
	assert.Equal(t, "log_entry", frame.Type)
	assert.Equal(t, "s1", frame.StreamID)
	require.NotNil(t, frame.Data)
	assert.Equal(t, "loud", frame.Data.Message)
}

func TestWebSocket_PingPong(t *testing.T) {
	f := newRPCFixture(t)
	conn := dialWS(t, f)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping"}))
	frame := readWS(t, conn)
	assert.Equal(t, "pong", frame.Type)
}

func TestWebSocket_StopStream(t *testing.T) {
	f := newRPCFixture(t)
	conn := dialWS(t, f)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "start_stream", "stream_id": "s1"}))
	assert.Equal(t, "stream_started", readWS(t, conn).Type)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "stop_stream", "stream_id": "s1"}))
	assert.Equal(t, "stream_stopped", readWS(t, conn).Type)

	// Stopping again reports a protocol error.
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "stop_stream", "stream_id": "s1"}))
	assert.Equal(t, "error", readWS(t, conn).Type)
}

func TestWebSocket_UpdateFilters(t *testing.T) {
	f := newRPCFixture(t)
	conn := dialWS(t, f)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "update_filters", "stream_id": "nope"}))
	assert.Equal(t, "error", readWS(t, conn).Type)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "start_stream", "stream_id": "s1"}))
	assert.Equal(t, "stream_started", readWS(t, conn).Type)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":      "update_filters",
		"stream_id": "s1",
		"data":      map[string]any{"filters": map[string]any{"sources": []string{"svc2"}}},
	}))
	assert.Equal(t, "filters_updated", readWS(t, conn).Type)
}

func TestWebSocket_UnknownType(t *testing.T) {
	f := newRPCFixture(t)
	conn := dialWS(t, f)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "subscribe"}))
	frame := readWS(t, conn)
	assert.Equal(t, "error", frame.Type)
}
