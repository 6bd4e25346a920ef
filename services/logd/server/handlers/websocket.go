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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/recursivelog/logcollector/services/logd/datatypes"
	"github.com/recursivelog/logcollector/services/logd/stream"
)

var upgrader = websocket.Upgrader{
	// The daemon binds localhost-adjacent dev machines; browser pages on
	// any local origin may subscribe.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsRequest is a client→server control message.
type wsRequest struct {
	Type     string `json:"type"`
	StreamID string `json:"stream_id,omitempty"`
	Data     *struct {
		Filters *datatypes.StreamFilter `json:"filters"`
	} `json:"data,omitempty"`
}

func (r *wsRequest) filters() *datatypes.StreamFilter {
	if r.Data == nil {
		return nil
	}
	return r.Data.Filters
}

// HandleStreamWebSocket serves GET /ws: the read loop for one
// subscriber. All writes go through the stream client's writer
// goroutine; this loop only parses control messages.
func HandleStreamWebSocket(streamer *stream.Streamer, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Error("websocket upgrade failed", "error", err)
			return
		}

		client := streamer.Register(ws)
		defer client.Close()
		log.Info("stream client connected", "remote", c.Request.RemoteAddr)

		for {
			var req wsRequest
			if err := ws.ReadJSON(&req); err != nil {
				log.Info("stream client disconnected", "remote", c.Request.RemoteAddr)
				return
			}

			switch req.Type {
			case "start_stream":
				if req.StreamID == "" {
					client.SendError("start_stream requires stream_id")
					continue
				}
				client.Subscribe(req.StreamID, req.filters())
				client.SendControl("stream_started", req.StreamID)

			case "update_filters":
				if !client.UpdateFilter(req.StreamID, req.filters()) {
					client.SendError("unknown stream_id: " + req.StreamID)
					continue
				}
				client.SendControl("filters_updated", req.StreamID)

			case "stop_stream":
				if !client.Unsubscribe(req.StreamID) {
					client.SendError("unknown stream_id: " + req.StreamID)
					continue
				}
				client.SendControl("stream_stopped", req.StreamID)

			case "ping":
				client.SendControl("pong", "")

			default:
				client.SendError("unknown message type: " + req.Type)
			}
		}
	}
}
